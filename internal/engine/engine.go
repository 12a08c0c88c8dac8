package engine

import (
	"io"
	"log/slog"

	"github.com/roach88/foxmirror/internal/schema"
)

// DefaultBatchSize is the number of bookmark ids scanned per load batch.
const DefaultBatchSize = 100

// Snapshotter backs up the origin file before a commit touches it.
// Implemented by snapshot.Manager.
type Snapshotter interface {
	Backup(originPath string) (string, error)
}

// Engine loads, diffs and commits between an origin and a mirror store.
//
// The engine holds no database handles. Callers pass the origin and mirror
// stores to each operation, so one Engine can serve any number of sessions.
//
// INVARIANTS:
//   - the field table (translator) never changes after construction
//   - a commit always backs up the origin before diffing
//   - every origin write of a commit happens inside one transaction
type Engine struct {
	translator *schema.Translator
	snapshots  Snapshotter
	batchSize  int
	logger     *slog.Logger
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithBatchSize sets the id-range width of each load batch.
//
// Default: 100 (DefaultBatchSize). Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the structured logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine over the given field table and snapshot backend.
func New(translator *schema.Translator, snapshots Snapshotter, opts ...Option) *Engine {
	e := &Engine{
		translator: translator,
		snapshots:  snapshots,
		batchSize:  DefaultBatchSize,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Translator returns the field table the engine was built with.
func (e *Engine) Translator() *schema.Translator {
	return e.translator
}

// BatchSize returns the configured load batch width.
func (e *Engine) BatchSize() int {
	return e.batchSize
}
