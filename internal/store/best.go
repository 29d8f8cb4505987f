package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emmett/chime/internal/detect"
)

var _ detect.BestStore = (*BestKeeper)(nil)

// BestKeeper stores the best score of one pattern in a Backend
type BestKeeper struct {
	backend Backend
	key     string
}

type bestRecord struct {
	Score    int       `json:"score"`
	Sequence []int     `json:"sequence"`
	SavedAt  time.Time `json:"saved_at"`
}

// BestKey returns the key the best score of pattern is stored under
func BestKey(pattern string) string {
	return "best/" + pattern
}

// NewBestKeeper creates a keeper for the named pattern
func NewBestKeeper(backend Backend, pattern string) *BestKeeper {
	return &BestKeeper{backend: backend, key: BestKey(pattern)}
}

// Key returns the backend key in use
func (k *BestKeeper) Key() string {
	return k.key
}

// LoadBest implements detect.BestStore
func (k *BestKeeper) LoadBest(ctx context.Context) (detect.Best, bool, error) {
	raw, ok, err := k.backend.Get(ctx, k.key)
	if err != nil || !ok {
		return detect.Best{}, false, err
	}

	var rec bestRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return detect.Best{}, false, fmt.Errorf("decoding best score %q: %w", k.key, err)
	}

	return detect.Best{Score: rec.Score, Sequence: rec.Sequence, SavedAt: rec.SavedAt}, true, nil
}

// SaveBest implements detect.BestStore
func (k *BestKeeper) SaveBest(ctx context.Context, best detect.Best) error {
	savedAt := best.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	raw, err := json.Marshal(bestRecord{Score: best.Score, Sequence: best.Sequence, SavedAt: savedAt.UTC()})
	if err != nil {
		return fmt.Errorf("encoding best score: %w", err)
	}
	return k.backend.Set(ctx, k.key, raw)
}

// Reset removes the stored best score
func (k *BestKeeper) Reset(ctx context.Context) error {
	return k.backend.Delete(ctx, k.key)
}
