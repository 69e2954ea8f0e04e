package ports

import (
	"context"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// MediaInfo describes a media element as rendered by the page.
type MediaInfo struct {
	Tag    string
	Src    string
	Width  int
	Height int
}

// Resource is a fetched response body.
type Resource struct {
	Body        []byte
	ContentType string
}

// Transfer is one completed network response observed by a session.
type Transfer struct {
	URL         string
	ContentType string
	Size        int64
	// Body reads the response bytes. It may only be called while the session
	// is open.
	Body func(ctx context.Context) ([]byte, error)
}

// Download is a file-download that finished on disk.
type Download struct {
	GUID              string
	SuggestedFilename string
	Path              string
	Size              int64
}

// Element is a handle to one node in the page.
type Element interface {
	// Click performs a native click after scrolling the element into view.
	Click(ctx context.Context) error
	// InvokeClick calls the element's click() method from page script.
	InvokeClick(ctx context.Context) error
	// Dispatch fires synthetic events of the given types, in order.
	Dispatch(ctx context.Context, eventTypes ...string) error
	Fill(ctx context.Context, text string) error
	Focus(ctx context.Context) error
	Hover(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	Visible(ctx context.Context) (bool, error)
	Media(ctx context.Context) (MediaInfo, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is one exclusively owned automation session. Implementations are
// not safe for concurrent use by more than one job.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Query returns the elements matching loc right now, without waiting.
	Query(ctx context.Context, loc domain.Locator) ([]Element, error)
	// PressKeys sends a key chord such as "Meta+Enter" to the focused element.
	PressKeys(ctx context.Context, chord string) error
	PageText(ctx context.Context) (string, error)
	// Fetch retrieves url from inside the page so cookies and blob: URLs resolve.
	Fetch(ctx context.Context, url string) (Resource, error)
	// Transfers subscribes to completed responses until the returned func is called.
	Transfers() (<-chan Transfer, func())
	// Downloads enables downloads into dir and subscribes to completed ones.
	Downloads(ctx context.Context, dir string) (<-chan Download, func(), error)
	Close() error
}

// SessionProvider hands out one fresh Session per job.
type SessionProvider interface {
	Acquire(ctx context.Context, jobID domain.JobID) (Session, error)
}

// Endpoint is a browser reachable over the DevTools protocol.
type Endpoint struct {
	ID     string
	CDPURL string
}

// BrowserProvisioner abstracts the container runtime that hosts browsers.
type BrowserProvisioner interface {
	// Provision starts a browser dedicated to jobID and waits until it accepts
	// DevTools connections.
	Provision(ctx context.Context, jobID domain.JobID) (Endpoint, error)
	// Release stops and removes the browser.
	Release(ctx context.Context, id string) error
}

// JobRepository abstracts the persistent storage (DuckDB)
type JobRepository interface {
	SaveJob(ctx context.Context, job domain.Job) error
	GetJob(ctx context.Context, id domain.JobID) (domain.Job, error)
	ListJobs(ctx context.Context, limit int) ([]domain.Job, error)
	SaveArtifact(ctx context.Context, artifact domain.Artifact) error
	ListArtifacts(ctx context.Context, id domain.JobID) ([]domain.Artifact, error)
	Close() error
}

// ProfileSource resolves the selector profile a job runs against. An empty
// name selects the default profile for kind.
type ProfileSource interface {
	Resolve(kind domain.JobKind, name string) (domain.Profile, error)
}

// PromptSource loads an ordered prompt set.
type PromptSource interface {
	Load(ctx context.Context, path string) ([]domain.PromptItem, error)
}
