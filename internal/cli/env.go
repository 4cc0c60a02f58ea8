package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/flotilla/internal/compiler"
	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/provider"
	"github.com/roach88/flotilla/internal/state"
	"github.com/roach88/flotilla/internal/store"
)

// loadManifest reads, compiles, and validates the stack manifest,
// emitting a coded error through the formatter on failure. The returned
// error is already an ExitError.
func loadManifest(opts *RootOptions, formatter *OutputFormatter) (*model.Stack, error) {
	src, err := os.ReadFile(opts.Manifest)
	if err != nil {
		return nil, formatter.fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("cannot read manifest %s", opts.Manifest), err.Error())
	}
	stack, err := compiler.CompileSource(opts.Manifest, src)
	if err != nil {
		return nil, formatter.fail(ExitFailure, ErrCodeCompile, err.Error(), nil)
	}
	if err := stack.Validate(model.BuiltinSchemas()); err != nil {
		return nil, formatter.fail(ExitFailure, ErrCodeValidate, err.Error(), nil)
	}
	return stack, nil
}

// newLogger builds the command logger. Verbose mode emits structured
// events to errWriter; otherwise events are discarded.
func newLogger(opts *RootOptions, errWriter io.Writer) *slog.Logger {
	if !opts.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(errWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// env is the wiring shared by state-touching commands: the schema
// registry, the simulated provider seeded from the last snapshot, and
// the open state database.
type env struct {
	Schemas   *model.SchemaRegistry
	Store     *store.Store
	Provider  *provider.Memory
	Providers *provider.Registry
	Live      state.Live
	Order     []model.Key
	Log       *slog.Logger
}

// openEnv opens the state database, loads the latest snapshot, and
// seeds the provider with it so simulated updates see prior resources.
// Callers must Close the env.
func openEnv(ctx context.Context, opts *RootOptions, errWriter io.Writer) (*env, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	live, order, err := st.LoadLatestSnapshot(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	schemas := model.BuiltinSchemas()
	prov := provider.NewMemory()
	for _, k := range live.Keys() {
		attrs, _ := live.Get(k)
		prov.Seed(k, attrs)
	}
	providers := provider.NewRegistry()
	providers.RegisterAll(schemas, prov)

	return &env{
		Schemas:   schemas,
		Store:     st,
		Provider:  prov,
		Providers: providers,
		Live:      live,
		Order:     order,
		Log:       newLogger(opts, errWriter),
	}, nil
}

func (e *env) Close() error {
	return e.Store.Close()
}
