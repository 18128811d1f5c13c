package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/livedoc/internal/broadcast"
	"github.com/roach88/livedoc/internal/config"
	"github.com/roach88/livedoc/internal/scheduler"
	"github.com/roach88/livedoc/internal/server"
	"github.com/roach88/livedoc/internal/session"
	"github.com/roach88/livedoc/internal/store"
)

// ServeOptions holds flags for the serve command. Zero values mean "use the
// config file".
type ServeOptions struct {
	*RootOptions
	Addr        string
	Journal     string
	DocstepMs   int64
	Seed        int64
	Paused      bool
	NoAdvance   bool
	NoWatch     bool
	HeartbeatMs int64

	// Ready, if set, receives the listener address once the server accepts
	// connections. Used by tests.
	Ready chan<- string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <document>",
		Short: "Serve a document for live editing and preview",
		Long: `Open a document, start its runtime scheduler and serve the edit API,
patch stream and rendered preview over HTTP.

Flags override values from the config file.

Example:
  livedoc serve talk.ld
  livedoc serve talk.ld --addr :8080 --journal talk.db --seed 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite commit journal (disabled if empty)")
	cmd.Flags().Int64Var(&opts.DocstepMs, "docstep-ms", 0, "docstep interval in milliseconds")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "runtime seed")
	cmd.Flags().BoolVar(&opts.Paused, "paused", false, "start with the runtime paused")
	cmd.Flags().BoolVar(&opts.NoAdvance, "no-advance-time", false, "keep runtime time at zero")
	cmd.Flags().BoolVar(&opts.NoWatch, "no-watch", false, "do not follow external edits to the document")
	cmd.Flags().Int64Var(&opts.HeartbeatMs, "heartbeat-ms", 0, "stream heartbeat interval in milliseconds")

	return cmd
}

// resolve merges flags over the config file.
func (o *ServeOptions) resolve(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = o.Addr
	}
	if flags.Changed("journal") {
		cfg.Journal = o.Journal
	}
	if flags.Changed("docstep-ms") {
		cfg.DocstepMs = o.DocstepMs
	}
	if flags.Changed("seed") {
		cfg.Seed = o.Seed
	}
	if flags.Changed("paused") {
		cfg.Paused = o.Paused
	}
	if flags.Changed("no-advance-time") {
		cfg.AdvanceTime = !o.NoAdvance
	}
	if flags.Changed("heartbeat-ms") {
		cfg.HeartbeatMs = o.HeartbeatMs
	}
	return cfg
}

func runServe(opts *ServeOptions, docPath string, cmd *cobra.Command) error {
	opts.setupLogging()

	fileCfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cfg := opts.resolve(cmd, fileCfg)
	if cfg.DocstepMs <= 0 || cfg.HeartbeatMs <= 0 {
		return NewExitError(ExitCommandError, "docstep-ms and heartbeat-ms must be positive")
	}

	var sessOpts []session.Option
	var srvOpts []server.Option
	if cfg.Journal != "" {
		slog.Info("opening journal", "path", cfg.Journal)
		j, err := store.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		sessOpts = append(sessOpts, session.WithJournal(j))
		srvOpts = append(srvOpts, server.WithJournal(j))
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	hub := broadcast.NewHub(broadcast.WithHeartbeat(cfg.Heartbeat()))
	sched := scheduler.New(hub,
		scheduler.WithInterval(cfg.DocstepInterval()),
		scheduler.WithAdvanceTime(cfg.AdvanceTime),
		scheduler.WithSeed(cfg.Seed),
		scheduler.WithPaused(cfg.Paused),
	)
	sess, err := session.Open(ctx, docPath, sched, hub, sessOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open document", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	httpSrv := &http.Server{
		Handler:           server.New(sess, sched, hub, srvOpts...),
		ReadHeaderTimeout: 10 * time.Second,
		// Streaming handlers end when the command's context is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 3)
	go func() { errc <- sched.Run(ctx) }()
	if !opts.NoWatch {
		go func() { errc <- sess.Watch(ctx, 0) }()
	}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	addr := ln.Addr().String()
	slog.Info("serving document", "path", sess.Path(), "addr", addr, "session", sess.ID())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", sess.Path(), addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready <- addr
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down server", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", runErr)
	}
	slog.Info("server stopped gracefully")
	return nil
}
