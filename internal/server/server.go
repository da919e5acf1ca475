// Package server assembles the hooks daemon: it opens the configured collections
// through the shared factory, attaches the audit trail and runs the reaper.
package server

import (
	"context"
	"os"

	"go.uber.org/fx"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/audit"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/reaper"
	"github.com/looplj/dochooks/internal/server/dependencies"
)

type Params struct {
	fx.In

	Store    conf.StoreConfig
	Audit    audit.Config
	Factory  *collection.Factory
	Registry *collection.Registry
}

type Server struct {
	Store    conf.StoreConfig
	Factory  *collection.Factory
	Registry *collection.Registry

	audit *audit.Hook
}

func New(params Params) (*Server, error) {
	srv := &Server{
		Store:    params.Store,
		Factory:  params.Factory,
		Registry: params.Registry,
	}

	if params.Audit.Enabled {
		h, err := audit.NewFromConfig(params.Audit, os.Stdout)
		if err != nil {
			return nil, err
		}

		srv.audit = h
	}

	return srv, nil
}

// Start opens every configured collection so its notifier runs for the life of
// the process.
func (srv *Server) Start(ctx context.Context) error {
	opts := srv.Factory.Options()
	log.Info(ctx, "opening collections",
		log.String("instance_id", srv.InstanceID()),
		log.String("notifier", opts.Notifier.Mode),
		log.Int("count", len(srv.Store.Collections)),
	)

	for _, name := range srv.Store.Collections {
		c, err := srv.Open(ctx, name)
		if err != nil {
			return err
		}

		log.Info(ctx, "collection opened",
			log.String("collection", c.Name()),
			log.String("mode", string(c.Mode())),
		)
	}

	return nil
}

// InstanceID is the provenance id shared by every collection this server opens.
func (srv *Server) InstanceID() string {
	return srv.Factory.Options().InstanceID
}

// Open returns the hooked collection called name, creating it with the audit
// trail attached on first use.
func (srv *Server) Open(ctx context.Context, name string) (*collection.Collection, error) {
	if c, ok := srv.Registry.Lookup(name); ok {
		return c, nil
	}

	c, err := srv.Factory.Collection(ctx, name)
	if err != nil {
		return nil, err
	}

	if srv.audit != nil {
		srv.audit.Attach(c)
	}

	return c, nil
}

func (srv *Server) Shutdown(ctx context.Context) error {
	err := srv.Registry.Close(ctx)

	if srv.audit != nil {
		if cerr := srv.audit.Close(); cerr != nil {
			log.Error(ctx, "close audit trail error", log.Cause(cerr))
		}
	}

	return err
}

func Run(opts ...fx.Option) {
	app := fx.New(
		append([]fx.Option{
			fx.NopLogger,
			dependencies.Module,
			fx.Provide(New),
			fx.Provide(reaper.NewWorker),
			fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
				lc.Append(fx.Hook{
					OnStart: srv.Start,
					OnStop:  srv.Shutdown,
				})
			}),
			fx.Invoke(func(lc fx.Lifecycle, worker *reaper.Worker) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return worker.Start(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return worker.Stop(ctx)
					},
				})
			}),
		}, opts...)...,
	)
	app.Run()
}
