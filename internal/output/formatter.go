package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emmett/chime/internal/events"
)

// Summary is written when a session ends
type Summary struct {
	Pattern          string        `json:"pattern"`
	WindowsProcessed uint64        `json:"windows_processed"`
	Matches          uint64        `json:"matches"`
	Alerts           int           `json:"alerts"`
	BestScore        *int          `json:"best_score,omitempty"`
	Duration         time.Duration `json:"duration_ns"`
}

// Formatter is the interface for event output formatters
type Formatter interface {
	// WriteEvent writes one detector event
	WriteEvent(e events.Event) error

	// WriteSummary writes the end-of-session summary
	WriteSummary(s Summary) error

	// Flush ensures all buffered output is written
	Flush() error

	// Close closes the formatter and releases resources
	Close() error
}

// NewFormatter returns the formatter for format ("json" or "text")
func NewFormatter(format string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONFormatter(w), nil
	case "text":
		return NewPlainTextFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format: %q (valid: json, text)", format)
	}
}

// JSONFormatter writes one JSON object per line
type JSONFormatter struct {
	writer  io.Writer
	encoder *json.Encoder
	count   int
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(writer io.Writer) *JSONFormatter {
	return &JSONFormatter{
		writer:  writer,
		encoder: json.NewEncoder(writer),
	}
}

// WriteEvent writes an event as a JSON line
func (j *JSONFormatter) WriteEvent(e events.Event) error {
	j.count++
	return j.encoder.Encode(e)
}

// WriteSummary writes the summary as a JSON line
func (j *JSONFormatter) WriteSummary(s Summary) error {
	return j.encoder.Encode(struct {
		Kind string `json:"kind"`
		Summary
	}{Kind: "summary", Summary: s})
}

// Flush ensures all buffered output is written
func (j *JSONFormatter) Flush() error {
	// JSON encoder writes immediately, nothing to flush
	return nil
}

// Close closes the formatter
func (j *JSONFormatter) Close() error {
	return nil
}

// Count returns the number of events written
func (j *JSONFormatter) Count() int {
	return j.count
}

// PlainTextFormatter outputs events as readable lines
type PlainTextFormatter struct {
	writer io.Writer
}

// NewPlainTextFormatter creates a new plain text formatter
func NewPlainTextFormatter(writer io.Writer) *PlainTextFormatter {
	return &PlainTextFormatter{
		writer: writer,
	}
}

// WriteEvent writes an event in plain text
func (p *PlainTextFormatter) WriteEvent(e events.Event) error {
	timestamp := e.Time.Format("15:04:05.000")

	var text string
	switch e.Kind {
	case events.KindWindow:
		label := e.Label
		if label == "" {
			label = "-"
		}
		text = fmt.Sprintf("[%s] window band=%d note=%s\n", timestamp, e.Feature, label)
	case events.KindScore:
		text = fmt.Sprintf("[%s] score %d/%d\n", timestamp, e.Score, e.Threshold)
	case events.KindMatch:
		text = fmt.Sprintf("[%s] match %s\n", timestamp, e.Pattern)
	case events.KindAlertRaised:
		text = fmt.Sprintf("[%s] [ALERT] %s detected (score %d, alert %s)\n", timestamp, e.Pattern, e.Score, e.AlertID)
	case events.KindAlertCleared:
		text = fmt.Sprintf("[%s] [ALERT] %s dismissed (alert %s)\n", timestamp, e.Pattern, e.AlertID)
	default:
		text = fmt.Sprintf("[%s] [%s]\n", timestamp, e.Kind)
	}

	_, err := p.writer.Write([]byte(text))
	return err
}

// WriteSummary writes the summary in plain text
func (p *PlainTextFormatter) WriteSummary(s Summary) error {
	best := "none"
	if s.BestScore != nil {
		best = fmt.Sprintf("%d", *s.BestScore)
	}
	text := fmt.Sprintf("%s: %d windows in %s, %d matching, %d alerts, best score %s\n",
		s.Pattern, s.WindowsProcessed, s.Duration.Round(time.Millisecond), s.Matches, s.Alerts, best)
	_, err := p.writer.Write([]byte(text))
	return err
}

// Flush ensures all buffered output is written
func (p *PlainTextFormatter) Flush() error {
	return nil
}

// Close closes the formatter
func (p *PlainTextFormatter) Close() error {
	return nil
}
