package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capgate/capgate"
	"github.com/capgate/capgate/internal"
	"github.com/capgate/capgate/lib"
	"github.com/capgate/capgate/lib/preset"
	"github.com/capgate/capgate/lib/render"
	"github.com/capgate/capgate/lib/store"
)

var (
	baseURL       = flag.String("base-url", "http://localhost:6729", "base URL used to build image and verify links")
	bind          = flag.String("bind", ":6729", "network address to bind HTTP to")
	metricsBind   = flag.String("metrics-bind", ":9090", "network address to bind metrics to")
	presetsFname  = flag.String("presets-fname", "", "full path to a preset document (defaults to the built-in presets)")
	renderWorkers = flag.Int("render-workers", 0, "maximum concurrent image renders, 0 means GOMAXPROCS")
	settleTTL     = flag.Duration("settle-ttl", capgate.DefaultSettleTTL, "how long a solved challenge image stays fetchable")
	slogLevel     = flag.String("slog-level", "INFO", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
	sweepInterval = flag.Duration("sweep-interval", capgate.DefaultSweepInterval, "how often the reclamation sweeper runs")
	unsolvedTTL   = flag.Duration("unsolved-ttl", capgate.DefaultUnsolvedTTL, "how long an unsolved challenge lives")
	healthcheck   = flag.Bool("healthcheck", false, "run a health check against capgate")
	versionFlag   = flag.Bool("version", false, "print capgate version")
)

func doHealthCheck() error {
	resp, err := http.Get("http://localhost" + *metricsBind + "/metrics")
	if err != nil {
		return fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func main() {
	flagenv.Parse()
	flag.Parse()

	if *versionFlag {
		fmt.Println("capgate", capgate.Version)
		return
	}

	internal.InitSlog(*slogLevel)

	if *healthcheck {
		if err := doHealthCheck(); err != nil {
			log.Fatal(err)
		}
		return
	}

	presets, err := preset.LoadOrDefault(*presetsFname)
	if err != nil {
		log.Fatalf("can't load presets: %v", err)
	}

	drawn, err := render.NewDrawn()
	if err != nil {
		log.Fatalf("can't build renderer: %v", err)
	}

	st := store.New(store.WithTTLs(*unsolvedTTL, *settleTTL))

	srv, err := lib.New(lib.Options{
		Store:       st,
		Renderer:    render.NewPool(drawn, *renderWorkers),
		Presets:     presets,
		BaseURL:     *baseURL,
		UnsolvedTTL: *unsolvedTTL,
	})
	if err != nil {
		log.Fatalf("can't build server: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sweeper := &store.Sweeper{Store: st, Interval: *sweepInterval}
	go sweeper.Run(ctx)

	go metricsServer(ctx)

	h := &http.Server{
		Addr:     *bind,
		Handler:  srv,
		ErrorLog: internal.GetFilteredHTTPLogger(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := h.Shutdown(shutdownCtx); err != nil {
			slog.Error("can't shut down cleanly", "err", err)
		}
	}()

	slog.Info(
		"capgate is up",
		"version", capgate.Version,
		"bind", *bind,
		"base-url", *baseURL,
		"presets", len(presets),
		"unsolved-ttl", unsolvedTTL.String(),
		"settle-ttl", settleTTL.String(),
		"sweep-interval", sweepInterval.String(),
	)

	if err := h.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("can't serve HTTP: %v", err)
	}
}

func metricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	srv := &http.Server{
		Addr:     *metricsBind,
		Handler:  mux,
		ErrorLog: internal.GetFilteredHTTPLogger(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("can't shut down metrics server cleanly", "err", err)
		}
	}()

	slog.Debug("metrics server is up", "bind", *metricsBind)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("can't serve metrics", "err", err)
	}
}
