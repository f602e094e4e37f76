// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command streamrec records one resolved stream to disk, or serves the
// recorder control API when started with -listen.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/streamrec/internal/api"
	"github.com/ManuGH/streamrec/internal/config"
	"github.com/ManuGH/streamrec/internal/events"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
	"github.com/ManuGH/streamrec/internal/recorder"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

var (
	version   = "v0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath  string
	url         string
	kind        string
	out         string
	buffering   int
	listen      string
	header      headerFlag
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("streamrec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to config file (YAML)")
	fs.StringVar(&o.url, "url", "", "resolved stream URL to record")
	fs.StringVar(&o.kind, "kind", "", "recorder kind: direct, hls_finite, hls_continuous, hls_external")
	fs.StringVar(&o.out, "out", "", "output directory of the recording")
	fs.IntVar(&o.buffering, "buffering", 0, "segments before the ready event (0 uses the config)")
	fs.StringVar(&o.listen, "listen", "", "serve the control API on this address")
	fs.Var(&o.header, "header", "request header \"Name: value\", repeatable")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.showVersion {
		return o, nil
	}
	if o.url == "" && o.listen == "" {
		return o, errors.New("either -url or -listen is required")
	}
	if o.url != "" && (o.kind == "" || o.out == "") {
		return o, errors.New("-url needs -kind and -out")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stderr, "streamrec:", err)
		}
		return exitUsage
	}
	if o.showVersion {
		_, _ = fmt.Fprintf(stdout, "%s (commit: %s, built: %s)\n", version, commit, buildDate)
		return exitOK
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "streamrec", Version: version})
	logger := xglog.WithComponent("main")

	loader := config.NewLoader(o.configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str("event", "config.load_failed").Str("config_path", o.configPath).Msg("failed to load configuration")
		return exitError
	}
	xglog.SetLevel(cfg.LogLevel)
	if o.listen != "" {
		cfg.API.ListenAddr = o.listen
	}

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry())
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise telemetry")
		return exitError
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	bus := events.NewMemoryBus()
	readySub, err := bus.Subscribe(ctx, events.TopicReady)
	if err != nil {
		return exitOK
	}
	defer func() { _ = readySub.Close() }()
	stopSub, err := bus.Subscribe(ctx, events.TopicStop)
	if err != nil {
		return exitOK
	}
	defer func() { _ = stopSub.Close() }()

	sup := recorder.NewSupervisor(nil, events.NewBusBroadcaster(bus), cfg.RecorderOptions())
	client := httpx.NewStreamingClient()
	if provider.Enabled() {
		client = httpx.Traced(client)
	}

	srv := api.NewServer(sup, api.Config{
		DataDir:        cfg.DataDir,
		Client:         client,
		CleanupStale:   cfg.Recorder.CleanupStale,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracingService(provider),
	})

	holder := config.NewHolder(cfg, loader, o.configPath)
	holder.OnReload(func(_, next config.AppConfig) {
		xglog.SetLevel(next.LogLevel)
		sup.SetOptions(next.RecorderOptions())
	})
	if err := holder.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("config hot reload disabled")
	}

	oneShot := o.url != ""
	var result atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(gctx)
	defer finish()

	g.Go(func() error {
		for {
			select {
			case m := <-readySub.C():
				ev, ok := m.(events.ReadyEvent)
				if !ok {
					continue
				}
				srv.Ready(ev)
				logger.Info().
					Str(xglog.FieldRunID, ev.RunID).
					Str(xglog.FieldPath, ev.Path).
					Int(xglog.FieldSegmentIndex, ev.SegmentIndex).
					Msg("recording ready for playback")
			case m := <-stopSub.C():
				ev, ok := m.(events.StopEvent)
				if !ok {
					continue
				}
				srv.Stopped(ev)
				logStop(logger, ev)
				if oneShot {
					if ev.Failed() {
						result.Store(exitError)
					}
					finish()
					return nil
				}
			case <-runCtx.Done():
				return nil
			}
		}
	})

	if cfg.API.ListenAddr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.API.ListenAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", httpSrv.Addr).Msg("control api listening")
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control api: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if oneShot {
		res, err := buildResult(o, cfg, client)
		if err == nil {
			err = sup.Start(res)
		}
		if err != nil {
			logger.Error().Err(err).Str(xglog.FieldURL, xglog.MaskURL(o.url)).Msg("failed to start recording")
			finish()
			_ = g.Wait()
			return exitError
		}
	}

	// Stop the recorder on shutdown so its stop event is still delivered.
	<-runCtx.Done()
	if !sup.Stop() {
		logger.Warn().Msg("recorder detached during shutdown")
	}
	if oneShot && ctx.Err() != nil {
		if ev, ok := drainStop(stopSub); ok {
			srv.Stopped(ev)
			logStop(logger, ev)
			if ev.Failed() {
				result.Store(exitError)
			}
		}
	}
	finish()

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("shutdown with error")
		return exitError
	}
	return int(result.Load())
}

func buildResult(o options, cfg config.AppConfig, client *http.Client) (recorder.ResolveResult, error) {
	kind, err := recorder.ParseKind(o.kind)
	if err != nil {
		return recorder.ResolveResult{}, err
	}
	return recorder.ResolveResult{
		URL:          o.url,
		Kind:         kind,
		Client:       client,
		AuthHeaders:  o.header.Header(),
		OutputDir:    o.out,
		Buffering:    o.buffering,
		CleanupStale: cfg.Recorder.CleanupStale,
	}, nil
}

// drainStop waits briefly for the stop event of a run interrupted by a
// signal.
func drainStop(sub events.Subscriber) (events.StopEvent, bool) {
	select {
	case m := <-sub.C():
		ev, ok := m.(events.StopEvent)
		return ev, ok
	case <-time.After(time.Second):
		return events.StopEvent{}, false
	}
}

func logStop(logger zerolog.Logger, ev events.StopEvent) {
	e := logger.Info()
	if ev.Failed() {
		e = logger.Error()
	}
	e.Str(xglog.FieldRunID, ev.RunID).
		Str(xglog.FieldRecorder, ev.Recorder).
		Str("reason", string(ev.Reason)).
		Str(xglog.FieldErrorClass, string(ev.ErrorClass)).
		Str("message", ev.Message).
		Msg("recording stopped")
}

func tracingService(p *telemetry.Provider) string {
	if p.Enabled() {
		return "streamrec-api"
	}
	return ""
}
