package contexts

import (
	"context"

	"github.com/looplj/dochooks/internal/log"
)

// SetupLogger makes every context-aware log entry carry the actor, collection and
// operation stored in the context.
func SetupLogger(logger *log.Logger) {
	logger.AddHook(log.HookFunc(LogFields))
}

func LogFields(ctx context.Context, _ string, fields ...log.Field) []log.Field {
	if ctx == nil {
		return fields
	}

	if actor, ok := GetActor(ctx); ok {
		fields = append(fields, log.String("actor", actor))
	}

	if collection, ok := GetCollection(ctx); ok {
		fields = append(fields, log.String("collection", collection))
	}

	if op, ok := GetOperation(ctx); ok {
		fields = append(fields, log.String("operation", op))
	}

	return fields
}
