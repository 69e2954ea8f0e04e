package domain

import (
	"errors"
	"time"
)

// CaptureMode names one of the artifact capture mechanisms.
type CaptureMode string

const (
	CaptureNetwork  CaptureMode = "network"
	CaptureElement  CaptureMode = "element"
	CaptureDownload CaptureMode = "download"
)

var AllCaptureModes = []CaptureMode{CaptureNetwork, CaptureElement, CaptureDownload}

func (m CaptureMode) Valid() bool {
	return m == CaptureNetwork || m == CaptureElement || m == CaptureDownload
}

// ParseCaptureMode accepts the mode names plus the legacy "screenshot" alias
// for element capture.
func ParseCaptureMode(raw string) (CaptureMode, bool) {
	switch raw {
	case "network", "intercept":
		return CaptureNetwork, true
	case "element", "screenshot", "dom":
		return CaptureElement, true
	case "download":
		return CaptureDownload, true
	}
	return "", false
}

// CaptureCandidate is an artifact source located before it is committed.
type CaptureCandidate struct {
	Source    string      `json:"source"`
	Mode      CaptureMode `json:"mode"`
	SizeBytes int64       `json:"size_bytes"`
	MimeHint  string      `json:"mime_hint,omitempty"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
}

// Artifact is a captured file written to the output location.
type Artifact struct {
	JobID     JobID       `json:"job_id"`
	ItemID    string      `json:"item_id"`
	Variant   int         `json:"variant"`
	Path      string      `json:"path"`
	SizeBytes int64       `json:"size_bytes"`
	MimeType  string      `json:"mime_type"`
	Mode      CaptureMode `json:"mode"`
	Digest    uint64      `json:"digest"`
	CreatedAt time.Time   `json:"created_at"`
}

var (
	// ErrNotFound means no candidate cleared the filters; the attempt may be retried.
	ErrNotFound = errors.New("artifact not found")
	// ErrStructural means a required entry surface could not be located at all.
	ErrStructural = errors.New("structural failure")
	// ErrTargetNotFound means a logical target matched no element.
	ErrTargetNotFound = errors.New("target not found")
)
