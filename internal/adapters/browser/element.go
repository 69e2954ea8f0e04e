package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/manthysbr/firewerk/internal/core/ports"
)

// Element is a node handle scoped to its session. Handles go stale when the
// page replaces the node; calls then return an error.
type Element struct {
	sess *Session
	node *cdp.Node
}

var _ ports.Element = (*Element)(nil)

// call runs fn with `this` bound to the node and decodes the returned value
// into out (which may be nil).
func (e *Element) call(ctx context.Context, fn string, out any) error {
	return e.sess.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if out == nil || res == nil || len(res.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(res.Value), out)
	}))
}

func (e *Element) Click(ctx context.Context) error {
	return e.sess.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *Element) InvokeClick(ctx context.Context) error {
	return e.call(ctx, `function() { this.click(); }`, nil)
}

const dispatchScript = `function() {
	const types = %s;
	for (const t of types) {
		const init = {bubbles: true, cancelable: true, composed: true, view: window};
		const ev = t.startsWith("pointer") ? new PointerEvent(t, init) : new MouseEvent(t, init);
		this.dispatchEvent(ev);
	}
}`

func (e *Element) Dispatch(ctx context.Context, eventTypes ...string) error {
	types, err := json.Marshal(eventTypes)
	if err != nil {
		return err
	}
	return e.call(ctx, fmt.Sprintf(dispatchScript, types), nil)
}

const clearScript = `function() {
	this.focus();
	if ("value" in this) {
		const proto = Object.getPrototypeOf(this);
		const setter = Object.getOwnPropertyDescriptor(proto, "value")?.set;
		if (setter) { setter.call(this, ""); } else { this.value = ""; }
		this.dispatchEvent(new Event("input", {bubbles: true}));
	} else if (this.isContentEditable) {
		this.textContent = "";
		this.dispatchEvent(new InputEvent("input", {bubbles: true}));
	}
}`

// Fill replaces the element's content by clearing it and inserting text the
// way an IME would, so framework input handlers observe the change.
func (e *Element) Fill(ctx context.Context, text string) error {
	if err := e.call(ctx, clearScript, nil); err != nil {
		return err
	}
	return e.sess.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	}))
}

func (e *Element) Focus(ctx context.Context) error {
	return e.sess.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.Focus().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
	}))
}

func (e *Element) Hover(ctx context.Context) error {
	return e.sess.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, _, _, err := e.box(ctx)
		if err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, x+1, y+1).Do(ctx)
	}))
}

// box scrolls the node into view and returns its border box.
func (e *Element) box(ctx context.Context) (x, y, w, h float64, err error) {
	if err = dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.node.BackendNodeID).Do(ctx); err != nil {
		return 0, 0, 0, 0, err
	}
	model, err := dom.GetBoxModel().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	q := model.Border
	if len(q) < 8 {
		return 0, 0, 0, 0, fmt.Errorf("node has no layout box")
	}
	return q[0], q[1], float64(model.Width), float64(model.Height), nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, `function() { return (this.innerText || this.textContent || "").trim(); }`, &text)
	return text, err
}

type attrResult struct {
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return "", false, err
	}
	var res attrResult
	fn := fmt.Sprintf(`function() { const n = %s; return {present: this.hasAttribute(n), value: this.getAttribute(n) || ""}; }`, quoted)
	if err := e.call(ctx, fn, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.call(ctx, `function() {
	const r = this.getBoundingClientRect();
	const s = getComputedStyle(this);
	return r.width > 0 && r.height > 0 && s.visibility !== "hidden" && s.display !== "none";
}`, &visible)
	return visible, err
}

const mediaScript = `function() {
	let el = this;
	if (!["IMG", "AUDIO", "VIDEO"].includes(el.tagName)) {
		el = el.querySelector("img, audio, video") || el;
	}
	const source = el.querySelector ? el.querySelector("source") : null;
	return {
		tag: el.tagName.toLowerCase(),
		src: el.currentSrc || el.src || (source && source.src) || "",
		width: el.naturalWidth || el.videoWidth || el.clientWidth || 0,
		height: el.naturalHeight || el.videoHeight || el.clientHeight || 0,
	};
}`

type mediaResult struct {
	Tag    string `json:"tag"`
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (e *Element) Media(ctx context.Context) (ports.MediaInfo, error) {
	var res mediaResult
	if err := e.call(ctx, mediaScript, &res); err != nil {
		return ports.MediaInfo{}, err
	}
	return ports.MediaInfo{Tag: res.Tag, Src: res.Src, Width: res.Width, Height: res.Height}, nil
}

// Screenshot captures the node's border box as PNG.
func (e *Element) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := e.sess.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		x, y, w, h, err := e.box(ctx)
		if err != nil {
			return err
		}
		if w <= 0 || h <= 0 {
			return fmt.Errorf("node has an empty layout box")
		}
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{X: x, Y: y, Width: w, Height: h, Scale: 1}).
			Do(ctx)
		return err
	}))
	return buf, err
}
