// Package collection wraps a document store with before/after hooks and
// provenance tagging.
package collection

import (
	"context"

	"github.com/google/uuid"

	"github.com/looplj/dochooks/internal/contexts"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/metrics"
	"github.com/looplj/dochooks/internal/notifier"
	"github.com/looplj/dochooks/internal/provenance"
)

type Options struct {
	InstanceID string
	Identity   provenance.IdentityProvider
	Policy     hooks.ErrorPolicy
	Notifier   notifier.Config
	Verbose    bool

	// NewID generates the _id an upsert inserts with. Defaults to uuid.NewString.
	NewID func() string
}

// OptionsFromConfig resolves cfg. An empty instance id is filled with the process id.
func OptionsFromConfig(cfg Config) (Options, error) {
	policy, err := hooks.ParseErrorPolicy(cfg.BeforeHookErrors)
	if err != nil {
		return Options{}, err
	}

	if _, err := notifier.ParseMode(cfg.Notifier.Mode); err != nil {
		return Options{}, err
	}

	return Options{
		InstanceID: provenance.NewInstanceID(cfg.InstanceID),
		Policy:     policy,
		Notifier:   cfg.Notifier,
		Verbose:    cfg.Verbose,
	}, nil
}

// Collection is a store wrapped with hooks. All hooked operations and the Direct
// facade are safe for concurrent use.
type Collection struct {
	name       string
	store      docstore.Store
	hooks      *hooks.Registry
	tagger     *provenance.Tagger
	invoker    hooks.Invoker
	dispatcher *notifier.Dispatcher
	notifier   notifier.Notifier
	newID      func() string
	verbose    bool
}

var (
	_ docstore.Store = (*Collection)(nil)
	_ docstore.Store = Direct{}
)

// Wrap decorates store with hooks. The change notifier is created but not started;
// call Start before relying on asynchronous after-hooks.
func Wrap(store docstore.Store, opts Options) (*Collection, error) {
	instanceID := provenance.NewInstanceID(opts.InstanceID)

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	policy := opts.Policy
	if policy == "" {
		policy = hooks.PolicyPropagate
	}

	registry := hooks.NewRegistry()
	dispatcher := notifier.NewDispatcher(store.Name(), registry, provenance.NewValidator(instanceID), opts.Notifier.DedupSize)

	n, err := notifier.New(opts.Notifier, store, dispatcher, instanceID)
	if err != nil {
		return nil, err
	}

	return &Collection{
		name:       store.Name(),
		store:      store,
		hooks:      registry,
		tagger:     provenance.NewTagger(instanceID, opts.Identity),
		invoker:    hooks.Invoker{Collection: store.Name(), Policy: policy},
		dispatcher: dispatcher,
		notifier:   n,
		newID:      newID,
		verbose:    opts.Verbose,
	}, nil
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) InstanceID() string { return c.tagger.InstanceID() }

// Hooks exposes the callback lists for registration.
func (c *Collection) Hooks() *hooks.Registry { return c.hooks }

// Store returns the wrapped store.
func (c *Collection) Store() docstore.Store { return c.store }

func (c *Collection) Mode() notifier.Mode { return c.notifier.Mode() }

func (c *Collection) Start(ctx context.Context) error {
	if err := c.notifier.Start(ctx); err != nil {
		return err
	}

	log.Info(ctx, "collection hooks started",
		log.String("collection", c.name),
		log.String("mode", string(c.notifier.Mode())),
		log.String("instance_id", c.InstanceID()),
	)

	return nil
}

// Stop tears down the change notifier. Events observed afterwards are ignored.
func (c *Collection) Stop() {
	c.notifier.Stop()
}

func (c *Collection) synchronous() bool {
	return c.notifier.Mode() == notifier.ModeSync
}

func (c *Collection) opContext(ctx context.Context, op string) context.Context {
	ctx = contexts.WithCollection(ctx, c.name)
	ctx = contexts.WithOperation(ctx, op)

	metrics.RecordOperation(ctx, c.name, op)

	return ctx
}

func (c *Collection) trace(ctx context.Context, msg string, fields ...log.Field) {
	if c.verbose || log.DebugEnabled(ctx) {
		log.Debug(ctx, msg, fields...)
	}
}

func (c *Collection) vetoed(ctx context.Context, op string) {
	metrics.RecordVeto(ctx, c.name, op)
	c.trace(ctx, "operation vetoed by before hook", log.String("operation", op))
}
