package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avalkov/mev-monitor/internal/authenticator"
	botregistry "github.com/avalkov/mev-monitor/internal/bot_registry"
	"github.com/avalkov/mev-monitor/internal/broadcaster"
	"github.com/avalkov/mev-monitor/internal/clock"
	"github.com/avalkov/mev-monitor/internal/config"
	"github.com/avalkov/mev-monitor/internal/detector"
	frontruntracker "github.com/avalkov/mev-monitor/internal/frontrun_tracker"
	"github.com/avalkov/mev-monitor/internal/housekeeping"
	"github.com/avalkov/mev-monitor/internal/kafka"
	"github.com/avalkov/mev-monitor/internal/logger"
	"github.com/avalkov/mev-monitor/internal/metrics"
	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/avalkov/mev-monitor/internal/monitor"
	"github.com/avalkov/mev-monitor/internal/node"
	profilestore "github.com/avalkov/mev-monitor/internal/profile_store"
	rpccodecs "github.com/avalkov/mev-monitor/internal/rpc_codecs"
	rpcservices "github.com/avalkov/mev-monitor/internal/rpc_services"
	"github.com/avalkov/mev-monitor/internal/sandwich"
	dbstorage "github.com/avalkov/mev-monitor/internal/storage/db"
	memstorage "github.com/avalkov/mev-monitor/internal/storage/memory"
	"github.com/gorilla/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := runService(); err != nil {
		log.Fatal(err)
	}
}

func runService() error {
	cfg, err := config.NewConfig(".env")
	if err != nil {
		return fmt.Errorf("creating config failed: %w", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	clk := clock.NewReal()

	ethNode, err := node.Dial(ctx, cfg.EthNodeUrl, cfg.EthHttpUrl, m, zlog)
	if err != nil {
		return err
	}
	defer ethNode.Close()

	profiles := profilestore.NewStore(cfg.ProfileTTL)
	tracker := frontruntracker.NewTracker(cfg.TrackerTTL())
	bots := botregistry.NewRegistry(cfg.KnownBots...)

	engine := detector.NewEngine(detector.Config{
		MonitoredContract:    cfg.MonitoredContract,
		GasMultipleThreshold: cfg.GasMultipleThreshold,
	}, ethNode, ethNode, profiles, tracker, bots, clk, zlog)

	auth := authenticator.NewAuthenticator(cfg.JwtSecret)
	alerts := broadcaster.NewBroadcaster(auth, m, zlog)
	defer alerts.Close()

	archive, closeArchive, err := openArchive(ctx, cfg.DbConnectionUrl)
	if err != nil {
		return err
	}
	defer closeArchive()

	sinks := []monitor.Sink{monitor.BroadcastSink(alerts), monitor.ArchiveSink(archive, clk)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sinks = append(sinks, monitor.KafkaSink(kafkaSink))
	}

	server := rpc.NewServer()

	codec := rpccodecs.NewCustomRequestsCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")

	analyzer := sandwich.NewAnalyzer(cfg.MonitoredContract, ethNode, zlog)
	if err := server.RegisterService(rpcservices.NewMevService(engine, analyzer, archive, bots, auth), ""); err != nil {
		return err
	}

	apiMux := http.NewServeMux()
	apiMux.Handle("/rpc", server)
	apiMux.Handle("/metrics", m.Handler())
	apiMux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	wsMux := http.NewServeMux()
	wsMux.Handle("/", alerts.Handler())

	sweeper := housekeeping.NewScheduler("sweep", cfg.CorrelationWindow,
		housekeeping.Sweep(profiles, tracker, m, zlog), clk, zlog)
	status := housekeeping.NewScheduler("status", cfg.StatusInterval,
		housekeeping.Status(engine, alerts, zlog), clk, zlog)
	sweeper.Start(ctx)
	defer sweeper.Stop()
	status.Start(ctx)
	defer status.Stop()

	mon := monitor.NewMonitor(ethNode, ethNode, engine, sinks, cfg.MaxInFlight, m, zlog)

	zlog.Info().
		Str("contract", cfg.MonitoredContract).
		Dur("correlationWindow", cfg.CorrelationWindow).
		Int64("gasMultipleThreshold", cfg.GasMultipleThreshold).
		Int("knownBots", bots.Len()).
		Int("apiPort", cfg.ApiPort).
		Int("wsPort", cfg.WsPort).
		Msg("mev monitor starting")

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ignoreCanceled(mon.Run(ctx))
	})
	group.Go(func() error {
		return serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", cfg.ApiPort), Handler: apiMux}, zlog)
	})
	group.Go(func() error {
		return serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", cfg.WsPort), Handler: wsMux}, zlog)
	})

	err = group.Wait()
	zlog.Info().Err(err).Msg("mev monitor stopped")
	return err
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, zlog zerolog.Logger) error {
	errs := make(chan error, 1)
	go func() {
		zlog.Info().Str("addr", srv.Addr).Msg("listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("http server %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openArchive uses Postgres when a connection url is configured and keeps
// recent alerts in memory otherwise.
func openArchive(ctx context.Context, connectionUrl string) (alertArchive, func(), error) {
	if connectionUrl == "" {
		return memstorage.NewStorage(memstorage.DefaultCapacity), func() {}, nil
	}

	storage, err := dbstorage.Open(ctx, connectionUrl)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.ExecuteMigrations(ctx); err != nil {
		storage.Close()
		return nil, nil, err
	}
	return storage, func() { storage.Close() }, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type alertArchive interface {
	StoreAlert(ctx context.Context, alert model.ArchivedAlert) error
	GetAlert(ctx context.Context, hash string) (model.ArchivedAlert, error)
	GetAlerts(ctx context.Context, sender string, limit int) ([]model.ArchivedAlert, error)
}
