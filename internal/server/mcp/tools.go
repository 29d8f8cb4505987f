package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emmett/chime/internal/detect"
	"github.com/emmett/chime/internal/patterns"
	"github.com/emmett/chime/internal/store"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type StatusArgs struct{}

type StatusOutput struct {
	Listening bool           `json:"listening"`
	Pattern   string         `json:"pattern,omitempty"`
	Status    *detect.Status `json:"status,omitempty"`
}

type ScoreArgs struct {
	Sequence []int  `json:"sequence" jsonschema:"dominant band indices, oldest first; -1 marks a silent window"`
	Pattern  string `json:"pattern,omitempty" jsonschema:"pattern name, defaults to the library default"`
}

type ScoreOutput struct {
	Pattern   string `json:"pattern"`
	Score     int    `json:"score"`
	Threshold int    `json:"threshold"`
	Matched   bool   `json:"matched"`

	// Difference is set when the sequence has the pattern's length
	Difference *int `json:"difference,omitempty"`
}

type ListPatternsArgs struct{}

type ListPatternsOutput struct {
	Patterns []patterns.Info `json:"patterns"`
}

type BestArgs struct {
	Pattern string `json:"pattern,omitempty" jsonschema:"pattern name, defaults to the library default"`
}

type BestOutput struct {
	Pattern  string `json:"pattern"`
	Found    bool   `json:"found"`
	Score    int    `json:"score,omitempty"`
	Sequence []int  `json:"sequence,omitempty"`
	SavedAt  string `json:"saved_at,omitempty"`
}

type DismissArgs struct{}

type DismissOutput struct {
	Dismissed bool `json:"dismissed"`
}

func (s *Server) handleDetectorStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusArgs) (*sdk.CallToolResult, StatusOutput, error) {
	det := s.config.Detector
	if det == nil {
		out := StatusOutput{Listening: false}
		return textResult("Detector is not listening", out), out, nil
	}

	st := det.Status()
	// The output schema types scores as an array, which rejects null
	if st.Scores == nil {
		st.Scores = []int{}
	}
	out := StatusOutput{Listening: true, Pattern: det.PatternName(), Status: &st}

	summary := fmt.Sprintf("Listening for %s: %d windows, %d matching", out.Pattern, st.WindowsProcessed, st.Matches)
	if st.HasScore {
		summary += fmt.Sprintf(", last score %d/%d", st.LastScore, st.Threshold)
	}
	if st.HasBest {
		summary += fmt.Sprintf(", best %d", st.BestScore)
	}
	return textResult(summary, out), out, nil
}

func (s *Server) handleScoreSequence(ctx context.Context, req *sdk.CallToolRequest, args ScoreArgs) (*sdk.CallToolResult, ScoreOutput, error) {
	if len(args.Sequence) == 0 {
		return nil, ScoreOutput{}, errors.New("sequence must not be empty")
	}

	p, err := s.config.Library.Resolve(args.Pattern)
	if err != nil {
		return nil, ScoreOutput{}, fmt.Errorf("failed to load pattern: %w", err)
	}

	out := ScoreOutput{
		Pattern:   p.Name,
		Score:     detect.Distance(args.Sequence, p.Sequence),
		Threshold: p.AcceptableScore,
	}
	out.Matched = out.Score < out.Threshold
	if diff, ok := detect.Difference(args.Sequence, p.Sequence); ok {
		out.Difference = &diff
	}

	verdict := "no match"
	if out.Matched {
		verdict = "match"
	}
	return textResult(fmt.Sprintf("%s: score %d (threshold %d), %s", p.Name, out.Score, out.Threshold, verdict), out), out, nil
}

func (s *Server) handleListPatterns(ctx context.Context, req *sdk.CallToolRequest, args ListPatternsArgs) (*sdk.CallToolResult, ListPatternsOutput, error) {
	infos, err := s.config.Library.List()
	if err != nil {
		return nil, ListPatternsOutput{}, fmt.Errorf("failed to list patterns: %w", err)
	}

	content := []sdk.Content{
		&sdk.TextContent{Text: fmt.Sprintf("Patterns (%d):", len(infos))},
	}
	for _, info := range infos {
		line := fmt.Sprintf("- %s (%d windows)", info.Name, info.Length)
		if info.Default {
			line += " [default]"
		}
		content = append(content, &sdk.TextContent{Text: line})
	}

	return &sdk.CallToolResult{Content: content}, ListPatternsOutput{Patterns: infos}, nil
}

func (s *Server) handleBestScore(ctx context.Context, req *sdk.CallToolRequest, args BestArgs) (*sdk.CallToolResult, BestOutput, error) {
	if s.config.Store == nil {
		return nil, BestOutput{}, errors.New("no best score store configured")
	}

	name := args.Pattern
	if name == "" {
		def, err := s.config.Library.Default()
		if err != nil {
			return nil, BestOutput{}, err
		}
		name = def
	}

	best, ok, err := store.NewBestKeeper(s.config.Store, name).LoadBest(ctx)
	if err != nil {
		return nil, BestOutput{}, fmt.Errorf("failed to load best score: %w", err)
	}

	out := BestOutput{Pattern: name, Found: ok}
	if !ok {
		return textResult(fmt.Sprintf("No best score recorded for %s", name), out), out, nil
	}
	out.Score = best.Score
	out.Sequence = best.Sequence
	out.SavedAt = best.SavedAt.UTC().Format(time.RFC3339)
	return textResult(fmt.Sprintf("Best score for %s: %d (saved %s)", name, best.Score, out.SavedAt), out), out, nil
}

func (s *Server) handleDismissAlert(ctx context.Context, req *sdk.CallToolRequest, args DismissArgs) (*sdk.CallToolResult, DismissOutput, error) {
	if s.config.Detector == nil {
		return nil, DismissOutput{}, errors.New("detector is not listening")
	}

	out := DismissOutput{Dismissed: s.config.Detector.Dismiss()}
	s.logger.Info("alert dismiss requested", "dismissed", out.Dismissed)

	text := "No active alert"
	if out.Dismissed {
		text = "Alert dismissed"
	}
	return textResult(text, out), out, nil
}

// textResult renders a summary line followed by the structured output as JSON
func textResult(summary string, out any) *sdk.CallToolResult {
	content := []sdk.Content{&sdk.TextContent{Text: summary}}
	if data, err := json.Marshal(out); err == nil {
		content = append(content, &sdk.TextContent{Text: string(data)})
	}
	return &sdk.CallToolResult{Content: content}
}
