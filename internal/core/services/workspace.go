package services

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

// WorkspaceManager owns the output root that artifacts are written under.
type WorkspaceManager struct {
	baseDir string
}

func NewWorkspaceManager(baseDir string) *WorkspaceManager {
	if baseDir == "" {
		baseDir = "output"
	}
	return &WorkspaceManager{baseDir: baseDir}
}

func (s *WorkspaceManager) Root() string { return s.baseDir }

// PrepareJobDir creates the directory a job writes to. A caller-supplied
// location is used as-is; otherwise the job gets baseDir/{id}.
func (s *WorkspaceManager) PrepareJobDir(id domain.JobID, requested string) (string, error) {
	path := strings.TrimSpace(requested)
	if path == "" {
		path = filepath.Join(s.baseDir, string(id))
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

type OutputFile struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

type OutputDir struct {
	Name  string       `json:"name"`
	Path  string       `json:"path"`
	Files []OutputFile `json:"files"`
}

// ListOutputs returns every directory directly under the output root with
// its regular files, newest directory first. Hidden entries are skipped.
func (s *WorkspaceManager) ListOutputs() ([]OutputDir, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []OutputDir{}, nil
		}
		return nil, fmt.Errorf("read output root: %w", err)
	}

	type dated struct {
		dir OutputDir
		mod time.Time
	}
	var dirs []dated
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(s.baseDir, e.Name())
		files, err := listFiles(path)
		if err != nil {
			return nil, err
		}
		var mod time.Time
		if info, err := e.Info(); err == nil {
			mod = info.ModTime()
		}
		dirs = append(dirs, dated{dir: OutputDir{Name: e.Name(), Path: path, Files: files}, mod: mod})
	}
	slices.SortFunc(dirs, func(a, b dated) int { return b.mod.Compare(a.mod) })

	out := make([]OutputDir, len(dirs))
	for i, d := range dirs {
		out[i] = d.dir
	}
	return out, nil
}

func listFiles(dir string) ([]OutputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	files := make([]OutputFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, OutputFile{
			Name:     e.Name(),
			Path:     filepath.Join(dir, e.Name()),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return files, nil
}
