package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tiryaq/voice/internal/api"
	"tiryaq/voice/internal/config"
	"tiryaq/voice/internal/events"
	"tiryaq/voice/internal/health"
	"tiryaq/voice/internal/llm"
	"tiryaq/voice/internal/memory"
	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/sessions"
	"tiryaq/voice/internal/stt"
	"tiryaq/voice/internal/tenant"
	"tiryaq/voice/internal/tts"
	"tiryaq/voice/internal/voicews"
)

const readinessInterval = 15 * time.Second

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	log := cfg.NewLogger()
	slog.SetDefault(log)
	log.Info("config loaded", "port", cfg.Server.Port, "env", cfg.Server.Env, "tenants", cfg.Tenants.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	prov, voice := buildProviders(cfg, log)
	mem, closeMem := buildMemory(ctx, cfg, log)
	defer closeMem()

	resolver := tenant.NewResolver(cfg.Tenants.DataDir, cfg.Tenants.Aliases, cfg.Eleven.VoiceID)
	resolver.Language = cfg.STT.Language

	// Turns detached from a closed connection run under this context, which
	// outlives every request.
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	reg := sessions.NewRegistry(base, sessions.Deps{
		Resolver:  resolver,
		Providers: prov,
		Pool:      orchestrator.NewPool(cfg.Workers.Providers),
		Memory:    mem,
		Events:    events.NewLog(0, 0),
	}, cfg.SessionConfig())

	var checker health.VoiceChecker
	if voice != nil {
		checker = voice
	}
	h := api.NewHandlers(cfg, reg, voicews.NewServer(reg), checker)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		l, err := net.Listen("tcp", ":"+cfg.Server.GRPCHealthPort)
		if err != nil {
			return err
		}
		log.Info("grpc health listening", "addr", l.Addr().String())
		return gs.Serve(l)
	})
	g.Go(func() error {
		watchReadiness(gctx, cfg, mem, hs, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received; stopping server...")
		hs.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		if cerr := reg.CloseAll(sctx); cerr != nil {
			log.Warn("sessions not persisted before deadline", "err", cerr)
		}
		gs.GracefulStop()
		return err
	})
	return g.Wait()
}

// buildProviders leaves a capability unset when its key is missing, so
// sessions fail at connect with a configuration error.
func buildProviders(cfg config.Config, log *slog.Logger) (orchestrator.Providers, *tts.ElevenLabs) {
	var prov orchestrator.Providers

	if cfg.STT.APIKey != "" {
		opts := []stt.Option{stt.WithModel(cfg.STT.Model), stt.WithSampleRate(cfg.Audio.SampleRate)}
		if cfg.STT.BaseURL != "" {
			opts = append(opts, stt.WithBaseURL(cfg.STT.BaseURL))
		}
		if w, err := stt.New(cfg.STT.APIKey, opts...); err != nil {
			log.Error("stt client", "err", err)
		} else {
			prov.STT = w
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; transcription disabled")
	}

	if cfg.LLM.APIKey != "" {
		c, err := llm.New(cfg.LLM.APIKey, cfg.LLM.Model,
			llm.WithBaseURL(cfg.LLM.BaseURL),
			llm.WithTemperature(cfg.LLM.Temperature))
		if err != nil {
			log.Error("llm client", "err", err)
		} else {
			prov.LLM = c
		}
	} else {
		log.Warn("GROQ_API_KEY not set; generation disabled")
	}

	var voice *tts.ElevenLabs
	if cfg.Eleven.APIKey != "" {
		e, err := tts.New(cfg.Eleven.APIKey,
			tts.WithModel(cfg.Eleven.Model),
			tts.WithSampleRate(cfg.Audio.SampleRate),
			tts.WithTimeout(time.Duration(cfg.Eleven.TimeoutS)*time.Second))
		if err != nil {
			log.Error("tts client", "err", err)
		} else {
			prov.TTS = e
			voice = e
		}
	} else {
		log.Warn("ELEVENLABS_API_KEY not set; synthesis disabled")
	}
	return prov, voice
}

// buildMemory falls back to the in-process cache alone when Postgres is not
// configured or cannot be reached.
func buildMemory(ctx context.Context, cfg config.Config, log *slog.Logger) (*memory.Manager, func()) {
	cache := memory.NewCache()
	if cfg.Memory.DSN == "" {
		log.Info("memory: in-process cache only")
		return memory.NewManager(cache, nil), func() {}
	}
	octx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := memory.OpenPostgres(octx, cfg.Memory.DSN)
	if err != nil {
		log.Error("memory: postgres unavailable, using in-process cache", "err", err)
		return memory.NewManager(cache, nil), func() {}
	}
	log.Info("memory: postgres backend ready")
	return memory.NewManager(cache, pg), pg.Close
}

func watchReadiness(ctx context.Context, cfg config.Config, mem *memory.Manager, hs *grpchealth.Server, log *slog.Logger) {
	tracker := health.NewTracker(log.With("component", "health"))
	set := func() {
		st := health.CheckAll(ctx, cfg, mem, nil)
		tracker.Observe(st)
		status := healthpb.HealthCheckResponse_SERVING
		if !st.OK {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
	}
	set()
	t := time.NewTicker(readinessInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			set()
		}
	}
}
