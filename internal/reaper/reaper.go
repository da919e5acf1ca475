// Package reaper finishes removals interrupted between tagging and deletion.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/metrics"
	"github.com/looplj/dochooks/internal/provenance"
)

type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled" conf:"enabled"`
	CRON    string `json:"cron" yaml:"cron" conf:"cron"`
	// Grace is how long a document may stay tagged removed before the reaper deletes
	// it. It must exceed the time a removal normally takes between its two phases.
	Grace time.Duration `json:"grace" yaml:"grace" conf:"grace"`
}

// Worker periodically deletes documents this instance tagged removed longer than
// Grace ago. Readers already treat such documents as deleted.
type Worker struct {
	Registry   *collection.Registry
	Executor   executors.ScheduledExecutor
	Config     Config
	CancelFunc context.CancelFunc

	now func() time.Time
}

type Params struct {
	fx.In

	Config   Config
	Registry *collection.Registry
}

func NewWorker(params Params) *Worker {
	return &Worker{
		Registry: params.Registry,
		Executor: executors.NewPoolScheduleExecutor(executors.WithMaxConcurrent(1)),
		Config:   params.Config,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if !w.Config.Enabled {
		log.Info(ctx, "removal reaper disabled")
		return nil
	}

	cancelFunc, err := w.Executor.ScheduleFuncAtCronRate(
		w.run,
		executors.CRONRule{Expr: w.Config.CRON},
	)
	if err != nil {
		return err
	}

	w.CancelFunc = cancelFunc

	log.Info(ctx, "removal reaper started", log.String("cron", w.Config.CRON), log.Duration("grace", w.Config.Grace))

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	if w.CancelFunc != nil {
		w.CancelFunc()
	}

	return w.Executor.Shutdown(ctx)
}

func (w *Worker) run(ctx context.Context) {
	total, err := w.RunOnce(ctx)
	if err != nil {
		log.Error(ctx, "removal reaper run failed", log.Cause(err))
	}

	if total > 0 {
		log.Info(ctx, "removal reaper deleted documents", log.Int("total", total))
	}
}

// RunOnce reaps every registered collection and returns the number of documents
// deleted. A failing collection does not stop the others.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	var (
		total    int
		firstErr error
	)

	for _, name := range w.Registry.Names() {
		c, ok := w.Registry.Lookup(name)
		if !ok {
			continue
		}

		n, err := w.reap(ctx, c)
		total += n

		if err != nil {
			log.Warn(ctx, "failed to reap collection", log.String("collection", name), log.Cause(err))

			if firstErr == nil {
				firstErr = fmt.Errorf("reap %s: %w", name, err)
			}
		}
	}

	return total, firstErr
}

func (w *Worker) reap(ctx context.Context, c *collection.Collection) (int, error) {
	cutoff := w.now().Add(-w.Config.Grace)

	n, err := c.Direct().Remove(ctx, Selector(c.InstanceID(), cutoff))
	if err != nil {
		return 0, err
	}

	metrics.RecordReaped(ctx, c.Name(), n)

	if n > 0 {
		log.Debug(ctx, "reaped half-removed documents", log.String("collection", c.Name()), log.Int("count", n))
	}

	return n, nil
}

// Selector matches documents instanceID tagged removed at or before cutoff.
func Selector(instanceID string, cutoff time.Time) docstore.Selector {
	return docstore.Selector{
		provenance.PathInstanceID: instanceID,
		provenance.PathRemoved:    true,
		provenance.PathTimestamp:  map[string]any{"$lte": cutoff},
	}
}
