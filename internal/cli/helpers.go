package cli

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/crescendo-labs/crescendo/internal/engine"
	"github.com/crescendo-labs/crescendo/internal/store"
)

// withEngine opens the database, rehydrates the engine, executes the
// function and handles cleanup.
func withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return eris.Wrap(err, "open database")
	}
	defer s.Close()

	e := engine.New(s, engine.WithRecomputeInterval(cfg.Engine.RecomputeInterval))
	defer e.Close()

	if err := e.Rehydrate(ctx); err != nil {
		return eris.Wrap(err, "rehydrate")
	}

	return fn(e)
}
