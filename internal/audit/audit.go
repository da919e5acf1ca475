// Package audit records committed changes as JSON Lines.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/provenance"
)

type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`
	// Path of the audit file. Empty writes to the fallback writer (stdout in the
	// daemon).
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSize    int    `conf:"max_size" yaml:"max_size" json:"max_size"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `conf:"max_age" yaml:"max_age" json:"max_age"`
	// Filter is an expr-lang boolean over Record fields, e.g.
	// `collection == "posts" && op != "remove"`. Empty records everything.
	Filter string `conf:"filter" yaml:"filter" json:"filter"`
}

// Record is one audit line.
type Record struct {
	Timestamp      time.Time `json:"timestamp" expr:"timestamp"`
	Collection     string    `json:"collection" expr:"collection"`
	Operation      string    `json:"op" expr:"op"`
	DocumentID     string    `json:"document_id" expr:"document_id"`
	ActingIdentity string    `json:"user_id,omitempty" expr:"user_id"`
	InstanceID     string    `json:"instance_id,omitempty" expr:"instance_id"`
	ChangedAt      time.Time `json:"changed_at,omitzero" expr:"changed_at"`
	Inserted       bool      `json:"inserted,omitempty" expr:"inserted"`
}

// Hook writes a Record for every change dispatched to the after-hooks of the
// collections it is attached to.
type Hook struct {
	writer io.Writer
	closer io.Closer
	filter *vm.Program
	mu     sync.Mutex
	now    func() time.Time
}

func NewHook(w io.Writer) *Hook {
	return &Hook{
		writer: w,
		now:    time.Now,
	}
}

// NewFromConfig writes to a rotated file when cfg.Path is set, otherwise to
// fallback. It fails only on an invalid cfg.Filter.
func NewFromConfig(cfg Config, fallback io.Writer) (*Hook, error) {
	var h *Hook

	if cfg.Path == "" {
		h = NewHook(fallback)
	} else {
		lj := &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}

		h = NewHook(lj)
		h.closer = lj
	}

	if err := h.SetFilter(cfg.Filter); err != nil {
		return nil, err
	}

	return h, nil
}

// SetFilter restricts the hook to records for which expression evaluates to true.
func (h *Hook) SetFilter(expression string) error {
	if expression == "" {
		h.filter = nil
		return nil
	}

	program, err := expr.Compile(expression, expr.Env(Record{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("audit: compile filter: %w", err)
	}

	h.filter = program

	return nil
}

// Attach registers the hook's after-hooks on c.
func (h *Hook) Attach(c *collection.Collection) {
	c.AfterInsert(func(ctx context.Context, e hooks.InsertedEvent) error {
		return h.write(e.Collection, "insert", e.Document, false)
	})
	c.AfterUpdate(func(ctx context.Context, e hooks.UpdatedEvent) error {
		return h.write(e.Collection, "update", e.Document, false)
	})
	c.AfterUpsert(func(ctx context.Context, e hooks.UpsertedEvent) error {
		return h.write(e.Collection, "upsert", e.Document, e.Inserted)
	})
	c.AfterRemove(func(ctx context.Context, e hooks.RemovedEvent) error {
		return h.write(e.Collection, "remove", e.Document, false)
	})
}

func (h *Hook) write(collectionName, op string, doc docstore.Document, inserted bool) error {
	record := Record{
		Timestamp:  h.now(),
		Collection: collectionName,
		Operation:  op,
		DocumentID: doc.ID(),
		Inserted:   inserted,
	}

	if meta, ok, err := provenance.FromDocument(doc); err == nil && ok {
		record.InstanceID = meta.InstanceID
		record.ChangedAt = meta.Timestamp

		if meta.ActingIdentity != nil {
			record.ActingIdentity = *meta.ActingIdentity
		}
	}

	if h.filter != nil {
		keep, err := expr.Run(h.filter, record)
		if err != nil {
			return fmt.Errorf("audit: evaluate filter: %w", err)
		}

		if ok, _ := keep.(bool); !ok {
			return nil
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return json.NewEncoder(h.writer).Encode(record)
}

func (h *Hook) Close() error {
	if h.closer == nil {
		return nil
	}

	return h.closer.Close()
}
