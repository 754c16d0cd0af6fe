package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/croprot/internal/config"
	"github.com/roach88/croprot/internal/engine"
	"github.com/roach88/croprot/internal/ir"
	"github.com/roach88/croprot/internal/metrics"
	"github.com/roach88/croprot/internal/redisstore"
	"github.com/roach88/croprot/internal/rotation"
	"github.com/roach88/croprot/internal/store"
)

// session is an engine wired to the configured stores.
type session struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Registry *prometheus.Registry

	sqlite *store.Store      // nil when checkpoints live in Redis
	redis  *redisstore.Store // nil unless redis.addr is set
}

// openSession loads the configuration and opens the stores it names.
// Failures are printed through out and returned as ExitErrors.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command, out *OutputFormatter) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath, cmd.Flags())
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.SlogLevel(), opts.Verbose)
	reg := prometheus.NewRegistry()

	s := &session{Config: cfg, Logger: logger, Registry: reg}
	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics.New(reg)),
	}
	if opts.FieldIDs != nil {
		engOpts = append(engOpts, engine.WithFieldIDGenerator(opts.FieldIDs))
	}

	if cfg.UseRedis() {
		logger.Debug("using redis checkpoints", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB, "prefix", cfg.Redis.Prefix)
		s.redis = redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redisstore.WithPrefix(cfg.Redis.Prefix))
		engOpts = append(engOpts, engine.WithSharedCheckpoints())
		s.Engine = engine.New(s.redis, engOpts...)
		return s, nil
	}

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	seq, err := st.MaxSeq(ctx)
	if err != nil {
		st.Close()
		return nil, out.Fail(ExitCommandError, ErrCodeStore, "failed to read database", err)
	}
	s.sqlite = st
	engOpts = append(engOpts,
		engine.WithEventLog(st),
		engine.WithClock(engine.NewClockAt(seq)),
	)
	s.Engine = engine.New(st, engOpts...)
	return s, nil
}

// Close releases the stores.
func (s *session) Close() error {
	var errs []error
	if s.sqlite != nil {
		errs = append(errs, s.sqlite.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		s.Logger.Error("error closing store", "error", err)
		return err
	}
	return nil
}

func newLogger(w io.Writer, level slog.Level, verbose bool) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// engineFailure prints an engine error under its domain code. Unknown crops
// and fields are command errors like any other unusable input.
func engineFailure(out *OutputFormatter, err error) error {
	var unknown *rotation.UnknownCropError
	var fieldErr *engine.FieldError

	switch {
	case errors.As(err, &unknown):
		return out.Fail(ExitCommandError, unknown.Code(), fmt.Sprintf("%q is not a rotation crop", unknown.Crop), err)
	case errors.As(err, &fieldErr):
		return out.Fail(ExitCommandError, string(fieldErr.Code), fieldErr.Message, err)
	case errors.Is(err, ir.ErrCheckpointStale):
		return out.Fail(ExitCommandError, ErrCodeStale, "field was changed by another writer, retry", err)
	default:
		return out.Fail(ExitCommandError, ErrCodeStore, "store operation failed", err)
	}
}
