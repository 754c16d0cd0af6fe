package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/croprot/internal/httpapi"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr            string
	ShutdownTimeout time.Duration

	// Ready is called with the bound address once the server accepts
	// connections (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rotation engine over HTTP",
		Long: `Serve sowing checks and harvests over a JSON HTTP API.

Routes:
  POST /fields                          create a field
  GET  /fields                          list fields
  GET  /fields/{id}                     field history
  POST /fields/{id}/sowing-checks       {"crop": "wheat"}
  POST /fields/{id}/harvests            {"crop": "wheat"}
  GET  /metrics                         Prometheus metrics

The server runs until interrupted (SIGINT or SIGTERM), then drains open
requests before exiting.

Examples:
  croprot serve --addr :8080 --db ./croprot.db
  croprot serve --redis localhost:6379`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "grace period for open requests")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, opts.RootOptions, cmd, out)
	if err != nil {
		return err
	}
	defer s.Close()

	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", s.Config.HTTP.Addr)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           httpapi.NewHandler(s.Engine, s.Registry, s.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s.Logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		s.Logger.Info("shutting down http server")
		shCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.Logger.Warn("graceful shutdown incomplete", "timeout", opts.ShutdownTimeout, "error", err)
			return srv.Close()
		}
		return nil
	})

	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	if err := group.Wait(); err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "http server failed", err)
	}
	s.Logger.Info("http server stopped")
	return nil
}
