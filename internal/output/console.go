package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/emmett/chime/internal/alert"
)

// ConsoleOutput prints the live detector line and user-facing messages
type ConsoleOutput struct {
	mu            sync.Mutex
	writer        io.Writer
	errWriter     io.Writer
	showTimestamp bool
	showBar       bool

	lastLabel string
}

// ConsoleConfig configures console output behavior
type ConsoleConfig struct {
	// ShowTimestamp prefixes each line with a timestamp
	ShowTimestamp bool

	// ShowBar draws the score relative to the threshold on the live line
	ShowBar bool

	// Writer is the output destination (default: os.Stdout)
	Writer io.Writer

	// ErrWriter receives error messages (default: os.Stderr)
	ErrWriter io.Writer
}

// NewConsoleOutput creates a new console output handler
func NewConsoleOutput(config ConsoleConfig) *ConsoleOutput {
	writer := config.Writer
	if writer == nil {
		writer = os.Stdout
	}
	errWriter := config.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	return &ConsoleOutput{
		writer:        writer,
		errWriter:     errWriter,
		showTimestamp: config.ShowTimestamp,
		showBar:       config.ShowBar,
	}
}

// DefaultConsoleOutput creates a console output with default settings
func DefaultConsoleOutput() *ConsoleOutput {
	return NewConsoleOutput(ConsoleConfig{
		ShowTimestamp: true,
		ShowBar:       true,
	})
}

// Write writes a line, prefixed with a timestamp if enabled
func (c *ConsoleOutput) Write(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.showTimestamp {
		timestamp := time.Now().Format("15:04:05")
		fmt.Fprintf(c.writer, "\n[%s] %s\n", timestamp, text)
	} else {
		fmt.Fprintf(c.writer, "\n%s\n", text)
	}

	return nil
}

// ScoreLine renders the live status line for a score
func ScoreLine(score, threshold int, label string, bar bool) string {
	note := label
	if note == "" {
		note = "-"
	}

	line := fmt.Sprintf("score %4d/%d  %-4s", score, threshold, note)
	if !bar || threshold <= 0 {
		return line
	}

	// The bar fills as the score falls towards the threshold
	const width = 30
	filled := width * threshold / max(score, 1)
	filled = min(filled, width)
	marker := " "
	if score < threshold {
		marker = "!"
	}
	return fmt.Sprintf("%s [%-*s]%s", line, width, strings.Repeat("#", filled), marker)
}

// Clear clears the current line
func (c *ConsoleOutput) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r%80s\r", " ") // Clear line
	return nil
}

// Finalize ends the live line
func (c *ConsoleOutput) Finalize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.writer)
	return nil
}

// Info writes an informational message
func (c *ConsoleOutput) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "[INFO] %s\n", msg)
}

// Error writes an error message to the error writer
func (c *ConsoleOutput) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.errWriter, "[ERROR] %s\n", msg)
}

// Status writes a status message (typically overwritten)
func (c *ConsoleOutput) Status(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.writer, "\r[*] %s", msg)
}

func (c *ConsoleOutput) OnWindowAnalyzed(feature int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastLabel = label
}

func (c *ConsoleOutput) OnScoreUpdated(score, threshold int) {
	c.mu.Lock()
	label := c.lastLabel
	c.mu.Unlock()

	c.Status(ScoreLine(score, threshold, label, c.showBar))
}

// OnPatternMatched is a no-op: the alert latch reports episodes instead of
// every matching window
func (c *ConsoleOutput) OnPatternMatched() {}

func (c *ConsoleOutput) AlertRaised(a alert.Alert) {
	// The terminal bell stands in for the alarm sound
	c.Write(fmt.Sprintf("\a*** %s detected (score %d < %d) ***", a.Pattern, a.Score, a.Threshold))
}

func (c *ConsoleOutput) AlertCleared(a alert.Alert) {
	c.Write(fmt.Sprintf("alert dismissed after %d matching windows", a.Matches))
}
