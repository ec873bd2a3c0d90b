package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"subdex/internal/model"
	"subdex/internal/storage/postgres"
)

// Sink receives finished report windows.
type Sink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

var _ Sink = (*postgres.Store)(nil)

// JSONLSink writes one window per line.
type JSONLSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

func (s *JSONLSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, m := range metrics {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("write window metrics: %w", err)
		}
	}
	return nil
}
