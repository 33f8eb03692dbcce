package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/control"
	"main/internal/dispatch"
	"main/internal/event"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/provider/remote"
	"main/internal/session"
	"main/internal/store"
	"main/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	socketPath := flag.String("socket", "", "Control socket path (overrides config)")
	devMode := flag.Bool("dev", false, "Use the in-memory store instead of PostgreSQL")
	flag.Parse()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *socketPath != "" {
		loaded.SocketPath = *socketPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if loaded.Pyroscope.Enabled {
		profiler, err := startProfiler(loaded.Pyroscope)
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	st, closeStore, err := openStore(loaded, *devMode)
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer closeStore()

	metrics := obs.NewMetrics()
	queue := bus.NewQueue(loaded.QueueCapacity)
	registry := session.NewRegistry()
	dialer := remote.NewDialer(loaded.ProviderURL)

	svc := session.NewService(registry, st, dialer, queue, metrics, session.Config{
		ConfirmWindow: loaded.ConfirmWindow,
	})
	if loaded.Features.EnableDispatch {
		binder := dispatch.NewBinder(st, logProcessor{}, queue, metrics)
		svc.SetRebinder(binder)
	}

	gateway := control.NewGateway(svc, st, queue, metrics, loaded.ChannelLimit)
	server, err := control.NewServer(gateway, loaded.SocketPath)
	if err != nil {
		log.Fatalf("control socket setup failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx, server.Broadcast)
	}()

	if loaded.Features.EnableSweep {
		sweep := session.NewSweep(svc, loaded.SweepInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweep.Run(ctx)
		}()
	}

	if err := server.Run(ctx); err != nil {
		logs.Errorf("control server stopped, err: %+v", err)
	}

	queue.Close()
	wg.Wait()

	snapshot := metrics.Snapshot()
	logs.Infof("shutdown: events=%v auth=%v dispatches=%d skips=%d drops=%d sweeps=%d reaped=%d",
		snapshot.EventCounts, snapshot.AuthOutcomes, snapshot.Dispatches, snapshot.DispatchSkips,
		snapshot.QueueDrops, snapshot.SweepRuns, snapshot.SweepReaped)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Resolve(ops.FileConfig{
			Provider: ops.ProviderConfig{URL: "ws://localhost:8145/bridge"},
			Store:    ops.StoreConfig{Driver: "memory"},
		})
	}
	return ops.Load(path)
}

func openStore(loaded ops.Loaded, devMode bool) (store.Store, func(), error) {
	if devMode || loaded.StoreDriver == "memory" {
		return store.NewMemory(), func() {}, nil
	}
	client, err := conn.New(loaded.Postgres)
	if err != nil {
		return nil, nil, err
	}
	pg, err := store.NewPostgres(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return pg, func() { _ = client.Close() }, nil
}

func startProfiler(cfg ops.PyroscopeConfig) (*pyroscope.Profiler, error) {
	appName := cfg.AppName
	if appName == "" {
		appName = "sessiond"
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   cfg.ServerAddress,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

// logProcessor is the default downstream pipeline: it records the matched
// signal and leaves acting on it to whoever consumes the event stream.
type logProcessor struct{}

func (logProcessor) Process(_ context.Context, userID string, channel event.ChannelPayload, message string) error {
	logs.Infof("signal, user: %s, channel: %s (%s), bytes: %d", userID, channel.ID, channel.Title, len(message))
	return nil
}
