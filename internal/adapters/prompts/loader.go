// Package prompts reads prompt sets from CSV, JSON and XLSX files.
package prompts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

// ErrUnsupported is returned for file extensions no reader handles.
var ErrUnsupported = errors.New("unsupported prompt file")

// Loader resolves prompt files relative to a base directory.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	if dir == "" {
		dir = "prompts"
	}
	return &Loader{dir: dir}
}

var _ ports.PromptSource = (*Loader)(nil)

func (l *Loader) Dir() string { return l.dir }

// Load reads path, relative to the base directory unless absolute, and
// returns its items in file order. Blank rows are skipped.
func (l *Loader) Load(ctx context.Context, path string) ([]domain.PromptItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.dir, path)
	}
	var (
		items []domain.PromptItem
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		items, err = readCSV(path)
	case ".json":
		items, err = readJSON(path)
	case ".xlsx":
		items, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return items, nil
}

// Open loads a file by bare name from the base directory. Names with path
// components are rejected.
func (l *Loader) Open(ctx context.Context, name string) ([]domain.PromptItem, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid prompt file name %q: %w", name, os.ErrNotExist)
	}
	return l.Load(ctx, name)
}

// FileInfo summarizes one prompt file.
type FileInfo struct {
	Name  string         `json:"name"`
	Kind  domain.JobKind `json:"kind"`
	Count int            `json:"count"`
	Error string         `json:"error,omitempty"`
}

// List summarizes every supported file in the base directory, sorted by
// name. A missing directory yields an empty list.
func (l *Loader) List(ctx context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FileInfo{}, nil
		}
		return nil, err
	}
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".csv", ".json", ".xlsx":
		default:
			continue
		}
		info := FileInfo{Name: name}
		items, err := l.Load(ctx, name)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Count = len(items)
			info.Kind = GuessKind(items)
		}
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// GuessKind reports speech when any item carries a voice or language and
// image otherwise.
func GuessKind(items []domain.PromptItem) domain.JobKind {
	for _, it := range items {
		if it.Parameters.Get(domain.ParamVoice) != "" || it.Parameters.Get(domain.ParamLanguage) != "" {
			return domain.JobKindSpeech
		}
	}
	return domain.JobKindImage
}
