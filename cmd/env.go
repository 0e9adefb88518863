package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inbox-api/internal/pipeline"
	"github.com/sells-group/inbox-api/internal/store"
	"github.com/sells-group/inbox-api/pkg/anthropic"
)

// env bundles the wired dependencies a command needs.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens the configured store, runs migrations, and wires the
// pipeline with a live Anthropic client.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	ai := anthropic.NewClient(cfg.Anthropic.Key)
	return &env{
		Store:    st,
		Pipeline: pipeline.New(st, ai, cfg.Anthropic),
	}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("cmd: unknown store driver %q", cfg.Store.Driver)
	}
}
