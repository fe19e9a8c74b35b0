package engine

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/tandem/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONLSink writes one JSON document per result.
type JSONLSink struct {
	mu  sync.Mutex
	enc *jsoniter.Encoder

	recorded atomic.Int64
	failed   atomic.Int64
}

// NewJSONLSink writes results to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// Record implements Sink.
func (s *JSONLSink) Record(ctx context.Context, result schemas.ReplayResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.enc.Encode(result)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.recorded.Add(1)
	if result.Error != "" {
		s.failed.Add(1)
	}
	return nil
}

// Recorded is the number of results written.
func (s *JSONLSink) Recorded() int64 { return s.recorded.Load() }

// Failed is the number of written results that carry an error.
func (s *JSONLSink) Failed() int64 { return s.failed.Load() }
