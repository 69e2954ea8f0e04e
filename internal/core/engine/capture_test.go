package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
	"github.com/manthysbr/firewerk/internal/core/ports/portstest"
)

func newTestPipeline(profile domain.Profile) *Pipeline {
	cfg := testConfig()
	return NewPipeline(testLogger(), NewPage(profile, cfg.PollInterval), CaptureConfig{
		Kind:          profile.Kind,
		Spec:          profile.Capture,
		Timeout:       cfg.Timeout,
		ListenTimeout: cfg.ListenTimeout(),
		Settle:        cfg.Settle,
		PollInterval:  cfg.PollInterval,
	}, NewDeduper(cfg.DedupeSize), nil)
}

func TestWindow_FiltersAndCommitsLargestUnique(t *testing.T) {
	profile := portstest.Profile()
	profile.Capture.MaxCandidates = 0
	p := newTestPipeline(profile)
	sess := portstest.NewSession()
	ctx := context.Background()
	out := t.TempDir()

	win := p.OpenWindow(ctx, sess)
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/icon.png", "image/png", portstest.ResultBytes(1, 200)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/app.css", "text/css", portstest.ResultBytes(2, 50000)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/a.jpg", "image/jpeg", portstest.ResultBytes(3, 1200)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/b.webp", "image/webp", portstest.ResultBytes(4, 80000)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/c.jpg", "image/jpeg; charset=binary", portstest.ResultBytes(5, 45000)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/b.webp", "image/webp", portstest.ResultBytes(6, 90000)))

	require.Eventually(t, func() bool { return win.Len() == 3 }, time.Second, 5*time.Millisecond)
	cands := win.Collect(ctx, time.Second, 0, 10*time.Millisecond)
	win.Close()
	win.Close()
	require.Len(t, cands, 3)

	first, err := p.commit(ctx, domain.CaptureNetwork, cands, CaptureRequest{JobID: "img_1", ItemID: "hero", Variant: 1, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "hero_1.webp"), first.Path)
	assert.Equal(t, int64(80000), first.SizeBytes)
	assert.Equal(t, "image/webp", first.MimeType)

	second, err := p.commit(ctx, domain.CaptureNetwork, cands, CaptureRequest{JobID: "img_1", ItemID: "hero", Variant: 2, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "hero_2.jpg"), second.Path, "duplicate bytes are skipped")
	assert.Equal(t, int64(45000), second.SizeBytes)

	next := p.OpenWindow(ctx, sess)
	defer next.Close()
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/b.webp", "image/webp", portstest.ResultBytes(7, 80000)))
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/d.png", "image/png", portstest.ResultBytes(8, 4096)))
	require.Eventually(t, func() bool { return next.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://cdn.test/d.png", next.Snapshot()[0].Source)
}

func TestCapture_NetworkRespectsMaxCandidates(t *testing.T) {
	p := newTestPipeline(portstest.Profile())
	sess := portstest.NewSession()
	out := t.TempDir()

	win := p.OpenWindow(context.Background(), sess)
	defer win.Close()
	sess.EmitTransfer(portstest.BytesTransfer("https://cdn.test/r.png", "image/png", portstest.ResultBytes(1, 4096)))

	art, err := p.Capture(context.Background(), sess, win, CaptureRequest{JobID: "img_1", ItemID: "r", Variant: 1, OutputDir: out})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureNetwork, art.Mode)
	assert.FileExists(t, filepath.Join(out, "r_1.png"))
}

func TestSelectLargest(t *testing.T) {
	cands := []domain.CaptureCandidate{
		{Source: "a", SizeBytes: 1200},
		{Source: "b", SizeBytes: 80000},
		{Source: "c", SizeBytes: 45000},
	}
	got, ok := SelectLargest(cands, 1024)
	require.True(t, ok)
	assert.Equal(t, "b", got.Source)

	_, ok = SelectLargest(cands, 100000)
	assert.False(t, ok)
}

func TestCapture_ElementPrefersLargestReadableSource(t *testing.T) {
	profile := portstest.Profile()
	profile.Capture.MinWidth = 200
	profile.Capture.MinHeight = 200
	profile.Capture.MaxCandidates = 0
	p := newTestPipeline(profile)

	sess := portstest.NewSession()
	sess.Add(portstest.ResultCSS, portstest.NewElement("").WithMedia(ports.MediaInfo{Tag: "img", Src: "https://cdn.test/thumb.jpg", Width: 96, Height: 96}))
	sess.Add(portstest.ResultCSS, portstest.NewElement("").WithMedia(ports.MediaInfo{Tag: "img", Src: "https://cdn.test/full.jpg", Width: 1024, Height: 1024}))
	sess.Add(portstest.ResultCSS, portstest.NewElement("").
		WithMedia(ports.MediaInfo{Tag: "img", Src: "blob:https://generate.test/1", Width: 1024, Height: 1024}).
		WithScreenshot(portstest.ResultBytes(2, 3000)))
	sess.AddResource("https://cdn.test/full.jpg", ports.Resource{Body: portstest.ResultBytes(1, 5000), ContentType: "image/jpeg"})

	out := t.TempDir()
	art, err := p.Capture(context.Background(), sess, nil, CaptureRequest{
		JobID: "img_1", ItemID: "p", Variant: 1, OutputDir: out, Preferred: domain.CaptureElement,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureElement, art.Mode)
	assert.Equal(t, filepath.Join(out, "p_1.jpg"), art.Path)
	assert.Equal(t, int64(5000), art.SizeBytes)

	art, err = p.Capture(context.Background(), sess, nil, CaptureRequest{
		JobID: "img_1", ItemID: "p", Variant: 2, OutputDir: out, Preferred: domain.CaptureElement,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "p_2.png"), art.Path, "captured source is not reused")
}

func speechProfile() domain.Profile {
	return domain.Profile{
		Name: "test-speech",
		Kind: domain.JobKindSpeech,
		Targets: map[string][]domain.Locator{
			domain.TargetPromptInput:    {{CSS: "textarea"}},
			domain.TargetDownload:       {{CSS: "#download"}},
			domain.TargetDownloadReveal: {{CSS: ".row"}},
		},
		Capture: domain.CaptureSpec{
			Modes:     []domain.CaptureMode{domain.CaptureDownload},
			MimeTypes: []string{"audio/mpeg", "audio/wav"},
		},
	}
}

func TestCapture_DownloadMovesFileIntoPlace(t *testing.T) {
	p := newTestPipeline(speechProfile())
	sess := portstest.NewSession()
	reveal := sess.Add(".row", portstest.NewElement("line"))
	audio := portstest.ResultBytes(9, 2048)

	var tmpPath string
	sess.Add("#download", portstest.NewElement("Download")).OnClick(func(context.Context) error {
		tmpPath = filepath.Join(sess.DownloadDir(), "0b1c.part")
		if err := os.WriteFile(tmpPath, audio, 0o644); err != nil {
			return err
		}
		sess.EmitDownload(ports.Download{GUID: "0b1c", SuggestedFilename: "speech.mp3", Path: tmpPath, Size: int64(len(audio))})
		return nil
	})

	out := t.TempDir()
	art, err := p.Capture(context.Background(), sess, nil, CaptureRequest{JobID: "speech_1", ItemID: "line", Variant: 1, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, domain.CaptureDownload, art.Mode)
	assert.Equal(t, filepath.Join(out, "line_1.mp3"), art.Path)
	assert.Equal(t, 1, reveal.Hovers())
	assert.NoFileExists(t, tmpPath)

	got, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestCapture_NothingFound(t *testing.T) {
	p := newTestPipeline(portstest.Profile())
	_, err := p.Capture(context.Background(), portstest.NewSession(), nil, CaptureRequest{
		JobID: "img_1", ItemID: "x", Variant: 1, OutputDir: t.TempDir(),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
