package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/emmett/chime/internal/patterns"
)

// PatternManager prints and edits the pattern library for the CLI
type PatternManager struct {
	lib *patterns.Library
	out io.Writer
}

// NewPatternManager creates a manager over lib writing to out (stdout if nil)
func NewPatternManager(lib *patterns.Library, out io.Writer) *PatternManager {
	if out == nil {
		out = os.Stdout
	}
	return &PatternManager{lib: lib, out: out}
}

// Library returns the managed library
func (m *PatternManager) Library() *patterns.Library {
	return m.lib
}

func (m *PatternManager) List() error {
	infos, err := m.lib.List()
	if err != nil {
		return fmt.Errorf("error listing patterns: %w", err)
	}

	fmt.Fprintf(m.out, "Patterns (%d):\n", len(infos))
	fmt.Fprintln(m.out)

	for i, info := range infos {
		fmt.Fprintf(m.out, "%d. %s", i+1, info.Name)
		if info.Default {
			fmt.Fprint(m.out, " [DEFAULT]")
		}
		fmt.Fprintln(m.out)
		if info.Description != "" {
			fmt.Fprintf(m.out, "   Info:     %s\n", info.Description)
		}
		fmt.Fprintf(m.out, "   Windows:  %d\n", info.Length)
		if info.Builtin {
			fmt.Fprintf(m.out, "   Source:   builtin\n")
		} else {
			fmt.Fprintf(m.out, "   Source:   %s\n", info.Path)
		}
		fmt.Fprintln(m.out)
	}

	fmt.Fprintln(m.out, "To listen for a pattern, run:")
	fmt.Fprintln(m.out, "  chime listen --pattern <name>")
	return nil
}

func (m *PatternManager) Show(name string) error {
	p, err := m.lib.Resolve(name)
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Name:        %s\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(m.out, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(m.out, "Windows:     %d (%.2fs)\n", len(p.Sequence), p.Duration().Seconds())
	fmt.Fprintf(m.out, "Window size: %d at %.0f Hz\n", p.WindowSize, p.SampleRate)
	if p.Bands != "" {
		fmt.Fprintf(m.out, "Bands:       %s\n", p.Bands)
	}
	fmt.Fprintf(m.out, "Threshold:   %d\n", p.AcceptableScore)
	if !p.RecordedAt.IsZero() {
		fmt.Fprintf(m.out, "Recorded:    %s\n", p.RecordedAt.Format("2006-01-02 15:04:05"))
	}

	seq := make([]string, len(p.Sequence))
	for i, v := range p.Sequence {
		seq[i] = fmt.Sprint(v)
	}
	fmt.Fprintf(m.out, "Sequence:    %s\n", strings.Join(seq, " "))
	return nil
}

// Extract builds a pattern from a WAV file and saves it
func (m *PatternManager) Extract(path string, opts patterns.ExtractOptions, setDefault bool) (*patterns.Pattern, error) {
	p, err := patterns.Extract(path, opts)
	if err != nil {
		return nil, err
	}
	if err := m.lib.Save(p); err != nil {
		return nil, err
	}

	fmt.Fprintf(m.out, "✓ Pattern '%s' extracted: %d windows (%.2fs)\n", p.Name, len(p.Sequence), p.Duration().Seconds())
	fmt.Fprintf(m.out, "  Saved to: %s\n", m.lib.Path(p.Name))

	if setDefault {
		if err := m.SetDefault(p.Name); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (m *PatternManager) SetDefault(name string) error {
	if err := m.lib.SetDefault(name); err != nil {
		return fmt.Errorf("error setting default pattern: %w", err)
	}
	fmt.Fprintf(m.out, "✓ Default pattern set to: %s\n", name)
	return nil
}

func (m *PatternManager) Delete(name string) error {
	if err := m.lib.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "✓ Pattern '%s' deleted\n", name)
	return nil
}

// SelectInteractive lists the patterns and reads a choice from in
func (m *PatternManager) SelectInteractive(in io.Reader) (string, error) {
	infos, err := m.lib.List()
	if err != nil {
		return "", err
	}

	fmt.Fprintln(m.out, "Select a pattern to listen for:")
	fmt.Fprintln(m.out)
	for i, info := range infos {
		fmt.Fprintf(m.out, "%d. %s (%d windows)\n", i+1, info.Name, info.Length)
	}
	fmt.Fprintln(m.out)
	fmt.Fprintf(m.out, "Enter number (1-%d): ", len(infos))

	reader := bufio.NewReader(in)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}

	var choice int
	_, err = fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)
	if err != nil || choice < 1 || choice > len(infos) {
		return "", fmt.Errorf("invalid selection")
	}

	selected := infos[choice-1].Name
	fmt.Fprintf(m.out, "\nSelected: %s\n", selected)
	return selected, nil
}

// SelectPattern returns name, an interactive choice, or the default
func (m *PatternManager) SelectPattern(name string, selectInteractive bool, in io.Reader) (string, error) {
	if name != "" {
		return name, nil
	}
	if selectInteractive {
		return m.SelectInteractive(in)
	}
	return m.lib.Default()
}
