package provenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/looplj/dochooks/internal/contexts"
	"github.com/looplj/dochooks/internal/log"
)

// IdentityProvider resolves the acting identity for the current call. Absence is a
// normal outcome, not an error.
type IdentityProvider func(ctx context.Context) (string, bool)

// ContextIdentity reads the actor stored with contexts.WithActor.
func ContextIdentity(ctx context.Context) (string, bool) {
	return contexts.GetActor(ctx)
}

// SafeIdentity adapts a lookup that may fail or panic. Failures are logged at debug
// level and yield an absent identity.
func SafeIdentity(lookup func(ctx context.Context) (string, error)) IdentityProvider {
	return func(ctx context.Context) (id string, ok bool) {
		defer func() {
			if r := recover(); r != nil {
				log.Debug(ctx, "identity lookup panicked", log.Any("panic", r))

				id, ok = "", false
			}
		}()

		id, err := lookup(ctx)
		if err != nil {
			log.Debug(ctx, "identity lookup failed", log.Cause(err))
			return "", false
		}

		return id, id != ""
	}
}

// processInstanceID is generated once per process.
var processInstanceID = sync.OnceValue(uuid.NewString)

// NewInstanceID returns configured, or the process-wide random id when it is
// empty, so every collection of one process shares the same instance id.
func NewInstanceID(configured string) string {
	if configured != "" {
		return configured
	}

	return processInstanceID()
}

type Tagger struct {
	instanceID string
	identity   IdentityProvider
	now        func() time.Time
}

// NewTagger builds a tagger. A nil identity provider falls back to ContextIdentity.
func NewTagger(instanceID string, identity IdentityProvider) *Tagger {
	if instanceID == "" {
		panic("provenance: instance id is required")
	}

	if identity == nil {
		identity = ContextIdentity
	}

	return &Tagger{
		instanceID: instanceID,
		identity:   identity,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tagger) InstanceID() string { return t.instanceID }

// Tag builds fresh metadata: new timestamp, identity resolved now.
func (t *Tagger) Tag(ctx context.Context, op Operation, direct bool) Meta {
	m := Meta{
		Timestamp:  t.now(),
		InstanceID: t.instanceID,
		Direct:     direct,
		Operation:  op,
	}

	if id, ok := t.identity(ctx); ok {
		m.ActingIdentity = &id
	}

	return m
}

// TagRemoval builds the metadata written by the first phase of a removal.
func (t *Tagger) TagRemoval(ctx context.Context) Meta {
	m := t.Tag(ctx, OpRemove, false)
	m.Removed = true

	return m
}

func (m Meta) String() string {
	return fmt.Sprintf("%s@%s direct=%t removed=%t", m.Operation, m.Timestamp.Format(time.RFC3339Nano), m.Direct, m.Removed)
}
