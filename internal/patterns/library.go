// Package patterns manages the reference patterns the detector matches
// against: the builtin ones and YAML files in a patterns directory.
package patterns

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPatternName is used when no default has been set
const DefaultPatternName = "washer"

const (
	fileExt     = ".yaml"
	defaultFile = ".default_pattern"
)

// ErrNotFound is returned when a pattern exists neither on disk nor builtin
var ErrNotFound = errors.New("pattern not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Pattern is a recorded reference sequence and the analysis settings it was
// recorded with
type Pattern struct {
	Name            string    `yaml:"name"`
	Description     string    `yaml:"description,omitempty"`
	SampleRate      float64   `yaml:"sample_rate"`
	WindowSize      int       `yaml:"window_size"`
	Bands           string    `yaml:"bands,omitempty"`
	AcceptableScore int       `yaml:"acceptable_score,omitempty"`
	RecordedAt      time.Time `yaml:"recorded_at,omitempty"`
	Sequence        []int     `yaml:"sequence,flow"`
}

// Validate checks that the pattern can be used for matching
func (p *Pattern) Validate() error {
	if !validName.MatchString(p.Name) {
		return fmt.Errorf("invalid pattern name %q: use letters, digits, '-' and '_'", p.Name)
	}
	if len(p.Sequence) == 0 {
		return fmt.Errorf("pattern %q has an empty sequence", p.Name)
	}
	if p.WindowSize < 0 || p.SampleRate < 0 || p.AcceptableScore < 0 {
		return fmt.Errorf("pattern %q has negative settings", p.Name)
	}
	return nil
}

// Duration returns how long the pattern lasts in audio time
func (p *Pattern) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	seconds := float64(len(p.Sequence)*p.WindowSize) / p.SampleRate
	return time.Duration(seconds * float64(time.Second))
}

// Info describes a pattern in listings
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Length      int    `json:"length"`
	Builtin     bool   `json:"builtin"`
	Default     bool   `json:"default"`
	Path        string `json:"path,omitempty"`
}

// Library stores patterns as YAML files in a directory
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir. The directory is created on
// first save.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// DefaultDir returns ./patterns in the working directory
func DefaultDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, "patterns"), nil
}

// Dir returns the library directory
func (l *Library) Dir() string {
	return l.dir
}

// Path returns the file a pattern is stored in
func (l *Library) Path(name string) string {
	return filepath.Join(l.dir, name+fileExt)
}

// Load returns the named pattern. Files take precedence over builtins.
func (l *Library) Load(name string) (*Pattern, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("invalid pattern name %q", name)
	}

	data, err := os.ReadFile(l.Path(name))
	if err == nil {
		var p Pattern
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to parse pattern %s: %w", l.Path(name), err)
		}
		if p.Name == "" {
			p.Name = name
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		// A hand-written file may leave the threshold out; zero would never match
		if p.AcceptableScore == 0 {
			p.AcceptableScore = DefaultAcceptableScore(len(p.Sequence))
		}
		return &p, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read pattern: %w", err)
	}

	if b := FindBuiltin(name); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Save writes p to the library, replacing any pattern of the same name
func (l *Library) Save(p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern: %w", err)
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create patterns directory: %w", err)
	}
	if err := os.WriteFile(l.Path(p.Name), data, 0644); err != nil {
		return fmt.Errorf("failed to write pattern: %w", err)
	}
	return nil
}

// Delete removes a pattern file. Builtins cannot be deleted.
func (l *Library) Delete(name string) error {
	if err := os.Remove(l.Path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	return nil
}

// List returns saved and builtin patterns sorted by name. A saved pattern
// hides the builtin of the same name.
func (l *Library) List() ([]Info, error) {
	def, _ := l.Default()
	byName := make(map[string]Info)

	for _, b := range Builtin {
		byName[b.Name] = Info{
			Name:        b.Name,
			Description: b.Description,
			Length:      len(b.Sequence),
			Builtin:     true,
		}
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read patterns directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), fileExt)
		p, err := l.Load(name)
		if err != nil {
			continue
		}
		byName[name] = Info{
			Name:        name,
			Description: p.Description,
			Length:      len(p.Sequence),
			Path:        l.Path(name),
		}
	}

	infos := make([]Info, 0, len(byName))
	for _, info := range byName {
		info.Default = info.Name == def
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos, nil
}

// Default returns the configured default pattern name, or
// DefaultPatternName when none is set
func (l *Library) Default() (string, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, defaultFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPatternName, nil
		}
		return DefaultPatternName, err
	}

	name := strings.TrimSpace(string(data))
	if name == "" {
		return DefaultPatternName, nil
	}
	return name, nil
}

// SetDefault makes name the default pattern. The pattern must exist.
func (l *Library) SetDefault(name string) error {
	if _, err := l.Load(name); err != nil {
		return err
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create patterns directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, defaultFile), []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to save default pattern: %w", err)
	}
	return nil
}

// Resolve loads name, or the default pattern when name is empty
func (l *Library) Resolve(name string) (*Pattern, error) {
	if name == "" {
		def, err := l.Default()
		if err != nil {
			return nil, err
		}
		name = def
	}
	return l.Load(name)
}

// FindBuiltin returns a copy of the named builtin pattern, or nil
func FindBuiltin(name string) *Pattern {
	for _, b := range Builtin {
		if b.Name == name {
			p := b
			p.Sequence = append([]int(nil), b.Sequence...)
			return &p
		}
	}
	return nil
}
