package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/firewerk/internal/core/domain"
	"github.com/manthysbr/firewerk/internal/core/ports"
)

//go:embed profiles/*.yaml
var builtinProfiles embed.FS

// Default profile per kind.
var defaultProfiles = map[domain.JobKind]string{
	domain.JobKindImage:  "firefly-image",
	domain.JobKindSpeech: "firefly-speech",
}

// ProfileSet holds the selector profiles known to the process.
type ProfileSet struct {
	profiles map[string]domain.Profile
}

var _ ports.ProfileSource = (*ProfileSet)(nil)

// LoadProfiles reads the built-in profiles, then every *.yaml/*.yml file in
// overrideDir. An override with the same name replaces the built-in one.
func LoadProfiles(overrideDir string) (*ProfileSet, error) {
	set := &ProfileSet{profiles: make(map[string]domain.Profile)}
	if err := set.loadFS(builtinProfiles, "profiles"); err != nil {
		return nil, err
	}
	if overrideDir != "" {
		if _, err := os.Stat(overrideDir); err == nil {
			if err := set.loadFS(os.DirFS(overrideDir), "."); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return set, nil
}

func (s *ProfileSet) loadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return err
		}
		p, err := ParseProfile(data)
		if err != nil {
			return fmt.Errorf("profile %s: %w", e.Name(), err)
		}
		s.profiles[p.Name] = p
	}
	return nil
}

// ParseProfile decodes and validates one YAML profile.
func ParseProfile(data []byte) (domain.Profile, error) {
	var p domain.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return domain.Profile{}, err
	}
	for _, mode := range p.Capture.Modes {
		if !mode.Valid() {
			return domain.Profile{}, fmt.Errorf("unknown capture mode %q", mode)
		}
	}
	if err := p.Validate(); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Resolve returns the named profile, or the default for kind when name is
// empty. A profile built for another kind is rejected.
func (s *ProfileSet) Resolve(kind domain.JobKind, name string) (domain.Profile, error) {
	if name == "" {
		name = defaultProfiles[kind]
	}
	p, ok := s.profiles[name]
	if !ok {
		return domain.Profile{}, fmt.Errorf("%w: %q", domain.ErrProfileMissing, name)
	}
	if p.Kind != kind {
		return domain.Profile{}, fmt.Errorf("profile %q is for %s jobs, not %s", name, p.Kind, kind)
	}
	return p, nil
}

func (s *ProfileSet) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
