package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	persistlog "terrastream.ai/internal/persistence/log"
	"terrastream.ai/internal/platform/otel"
	"terrastream.ai/internal/sim/catalogs"
	"terrastream.ai/internal/sim/ecs"
	"terrastream.ai/internal/sim/mathx"
	"terrastream.ai/internal/sim/mesh"
	"terrastream.ai/internal/sim/stream"
	"terrastream.ai/internal/sim/terrain/region"
	"terrastream.ai/internal/sim/tuning"
	"terrastream.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		envFile    = flag.String("env_file", ".env", "optional dotenv file loaded before reading TERRASTREAM_* variables")
		backend    = flag.String("store", "", "region store backend: sqlite or memory (default: $TERRASTREAM_STORE_BACKEND or sqlite)")
		dimension  = flag.String("dimension", "", "dimension to stream (overrides tuning)")
		spawnX     = flag.Float64("spawn_x", 50, "initial observer x")
		spawnY     = flag.Float64("spawn_y", 50, "initial observer y")
		eventLog   = flag.Bool("event_log", true, "write chunk events to <data>/events")
		remote     = flag.Bool("allow_remote", false, "serve observer endpoints to non-loopback clients")
		logFile    = flag.String("log_file", "", "also write logs to this file, rotated by size")
	)
	flag.Parse()

	out, closeLog := logOutput(*logFile)
	defer closeLog()
	logger := log.New(out, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			logger.Printf("dotenv %s: %v", *envFile, err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := otel.Setup(ctx, "terrastream-server")
	if err != nil {
		logger.Fatalf("otel: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = shutdownTracing(ctx2)
	}()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	if _, err := os.Stat(tp); os.IsNotExist(err) {
		logger.Printf("tuning not found (%s); using defaults", tp)
		tp = ""
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if *dimension != "" {
		tune.Stream.Dimension = *dimension
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load catalogs: %v", err)
		}
		logger.Printf("models.json not found in %s; using built-in catalog", *configDir)
		cats = catalogs.Default()
	}

	_ = os.MkdirAll(*dataDir, 0o755)
	store, closeStore, err := openStore(*backend, *dataDir, logger)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer closeStore()

	gen, err := region.NewGenerator(region.GeneratorConfig{
		Seed:         tune.Seed,
		Params:       tune.Terrain,
		CacheMaxCost: tune.RegionCacheMaxCost,
	}, store, log.New(out, "[region] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("region generator: %v", err)
	}
	defer gen.Close()

	dim, err := gen.Dimension(ctx, tune.Stream.Dimension)
	if err != nil {
		logger.Fatalf("dimension %s: %v", tune.Stream.Dimension, err)
	}
	if dim.Params.RegionSize != tune.Stream.RegionSize {
		// A dimension keeps the parameters it was created with.
		logger.Printf("dimension %s was created with region_size=%v; streaming with it", dim.ID, dim.Params.RegionSize)
		tune.Stream.RegionSize = dim.Params.RegionSize
	}

	st, err := stream.New(tune.Stream, gen, mesh.NewBuilder(cats), ecs.NewRegistry(),
		log.New(out, "[stream] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("streamer: %v", err)
	}
	defer st.Close()

	if *eventLog {
		events := persistlog.NewChunkEventLogger(*dataDir, 4096)
		defer events.Close()
		st.AddSink(events)
	}

	obsSrv := observer.NewServer(st, observer.Info{
		Seed:         dim.Seed,
		Terrain:      dim.Params,
		ModelPalette: cats.Palette,
		ModelDigest:  cats.Digest,
	}, observer.Options{AllowRemote: *remote}, logger)
	st.AddSink(obsSrv)

	spawnZ, err := st.GroundHeight(ctx, *spawnX, *spawnY)
	if err != nil {
		logger.Fatalf("spawn ground height: %v", err)
	}
	st.SetFocus(mathx.Vec3{X: *spawnX, Y: *spawnY, Z: spawnZ}, mathx.Vec3{X: 1})

	go func() {
		if err := st.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("streamer stopped: %v", err)
		}
	}()

	mux := obsSrv.Routes()
	mux.HandleFunc("/metrics", metricsHandler(dim.ID, st, gen, obsSrv))
	if envBool("TERRASTREAM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (TERRASTREAM_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s dimension=%s seed=%d", *addr, dim.ID, dim.Seed)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
