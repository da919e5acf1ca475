package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/looplj/dochooks"

var (
	mu sync.RWMutex

	operations  metric.Int64Counter
	vetoes      metric.Int64Counter
	dispatched  metric.Int64Counter
	rejected    metric.Int64Counter
	duplicates  metric.Int64Counter
	hookFailure metric.Int64Counter
	reaped      metric.Int64Counter
)

func init() {
	// The global provider is a no-op until SetupMetrics runs.
	_ = initInstruments("dochooks")
}

func initInstruments(service string) error {
	meter := otel.Meter(meterName, metric.WithInstrumentationAttributes(attribute.String("service", service)))

	var (
		ops, vet, dis, rej, dup, hf, rp metric.Int64Counter
		errs                            [7]error
	)

	ops, errs[0] = meter.Int64Counter("dochooks.operations", metric.WithDescription("Intercepted collection operations."))
	vet, errs[1] = meter.Int64Counter("dochooks.operations.vetoed", metric.WithDescription("Mutations vetoed by before hooks."))
	dis, errs[2] = meter.Int64Counter("dochooks.changes.dispatched", metric.WithDescription("Changes dispatched to after hooks."))
	rej, errs[3] = meter.Int64Counter("dochooks.changes.rejected", metric.WithDescription("Observed changes rejected by provenance validation."))
	dup, errs[4] = meter.Int64Counter("dochooks.changes.duplicate", metric.WithDescription("Observed changes dropped as already dispatched."))
	hf, errs[5] = meter.Int64Counter("dochooks.hooks.failed", metric.WithDescription("Hook callbacks that returned an error or panicked."))
	rp, errs[6] = meter.Int64Counter("dochooks.reaper.removed", metric.WithDescription("Documents deleted by the removal reaper."))

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	mu.Lock()
	operations, vetoes, dispatched, rejected, duplicates, hookFailure, reaped = ops, vet, dis, rej, dup, hf, rp
	mu.Unlock()

	return nil
}

func attrs(collection, op string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("collection", collection), attribute.String("op", op))
}

func add(ctx context.Context, c *metric.Int64Counter, n int64, collection, op string) {
	mu.RLock()
	counter := *c
	mu.RUnlock()

	if counter != nil {
		counter.Add(ctx, n, attrs(collection, op))
	}
}

func RecordOperation(ctx context.Context, collection, op string) {
	add(ctx, &operations, 1, collection, op)
}

func RecordVeto(ctx context.Context, collection, op string) {
	add(ctx, &vetoes, 1, collection, op)
}

func RecordDispatch(ctx context.Context, collection, op string) {
	add(ctx, &dispatched, 1, collection, op)
}

func RecordRejected(ctx context.Context, collection, reason string) {
	add(ctx, &rejected, 1, collection, reason)
}

func RecordDuplicate(ctx context.Context, collection, op string) {
	add(ctx, &duplicates, 1, collection, op)
}

func RecordHookFailures(ctx context.Context, collection, op string, n int) {
	if n > 0 {
		add(ctx, &hookFailure, int64(n), collection, op)
	}
}

func RecordReaped(ctx context.Context, collection string, n int) {
	if n > 0 {
		add(ctx, &reaped, int64(n), collection, "remove")
	}
}
