package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/riverwalk/internal/connectivity"
	"github.com/marcus/riverwalk/internal/data"
	"github.com/marcus/riverwalk/internal/db"
	"github.com/marcus/riverwalk/internal/events"
	rwsync "github.com/marcus/riverwalk/internal/sync"
	"github.com/marcus/riverwalk/internal/syncclient"
	"github.com/marcus/riverwalk/internal/syncconfig"
	"github.com/spf13/cobra"
)

// healthTimeout bounds the reachability check one-shot commands make.
const healthTimeout = 3 * time.Second

type appMode int

const (
	// modeOneShot checks the server once and flushes pending work on exit.
	modeOneShot appMode = iota
	// modeLive holds the presence socket open and syncs in the background.
	modeLive
)

// app is the composition root shared by every command.
type app struct {
	store   *db.DB
	client  *syncclient.Client
	monitor connectivity.Monitor
	bus     *events.Bus
	engine  *rwsync.Engine
	data    *data.Service
	logger  *slog.Logger

	closers []func()
}

// openApp wires the store, backend client, connectivity monitor, engine and
// facade. logOut receives log output; nil means stderr.
func openApp(cmd *cobra.Command, mode appMode, logOut io.Writer) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	offline, _ := cmd.Flags().GetBool("offline")
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := newLogger(logOut, verbose)

	dir, err := syncconfig.GetStoreDir()
	if err != nil {
		return nil, fmt.Errorf("resolve store dir: %w", err)
	}
	store := db.Open(dir)
	if err := store.Init(); err != nil {
		return nil, err
	}

	serverURL := syncconfig.GetServerURL()
	apiKey := syncconfig.GetAPIKey()
	a := &app{
		store:  store,
		client: syncclient.New(serverURL, apiKey, syncconfig.GetHTTPTimeout()),
		bus:    events.NewBus(logger),
		logger: logger,
	}

	switch {
	case offline || apiKey == "":
		a.monitor = connectivity.NewManual(false)
	case mode == modeLive:
		sock := connectivity.NewSocket(serverURL, apiKey, logger)
		sockCtx, cancel := context.WithCancel(ctx)
		go sock.Run(sockCtx)
		a.closers = append(a.closers, cancel)
		a.monitor = sock
	default:
		a.monitor = connectivity.NewManual(reachable(ctx, a.client))
	}

	ident := syncconfig.Session{}
	a.engine = rwsync.NewEngine(store, a.client, a.monitor, ident, rwsync.Options{
		MaxAttempts: syncconfig.GetMaxAttempts(),
		Interval:    syncconfig.GetSyncInterval(),
		Bus:         a.bus,
		Logger:      logger,
	})
	a.data = data.New(store, a.monitor, ident, a.engine, data.Options{Bus: a.bus, Logger: logger})

	if mode == modeLive {
		a.closers = append(a.closers, a.engine.Start(ctx))
	}
	return a, nil
}

// flush pushes work left in the queue before a one-shot command exits.
func (a *app) flush(ctx context.Context) {
	if !syncconfig.GetSyncOnStart() || !a.monitor.IsOnline() {
		return
	}
	if st, err := a.engine.Status(); err != nil || st.PendingItems == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, syncconfig.GetHTTPTimeout())
	defer cancel()
	if _, err := a.engine.Sync(ctx); err != nil {
		a.logger.Debug("flush on exit", "err", err)
	}
}

// reachable reports whether the server answers its health check.
func reachable(ctx context.Context, client *syncclient.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	_, err := client.HealthCheck(ctx)
	return err == nil
}

// Close stops background work, waiting for a running sync, then closes the
// store.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "err", err)
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openLogFile opens a log file next to the store for full-screen commands.
func openLogFile(name string) (*os.File, error) {
	dir, err := syncconfig.GetStoreDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, ".rwalk", name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// withApp opens a one-shot app, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd, modeOneShot, nil)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, a); err != nil {
		return err
	}
	a.flush(ctx)
	return nil
}
