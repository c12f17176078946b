package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tiryaq/voice/internal/orchestrator"
	"tiryaq/voice/internal/sessions"
	"tiryaq/voice/internal/vad"
)

type Config struct {
	Server struct {
		Port           string
		GRPCHealthPort string
		LogLevel       string
		LogFormat      string
		StaticDir      string
		Env            string
		AppName        string
	}
	Audio struct {
		SampleRate     int
		OnsetRMS       float64
		OffsetRMS      float64
		SilenceMs      int
		MinUtteranceMs int
		PadMs          int
	}
	STT struct {
		APIKey   string
		BaseURL  string
		Model    string
		Language string
	}
	LLM struct {
		APIKey           string
		BaseURL          string
		Model            string
		MaxTokens        int
		Temperature      float64
		MaxAttempts      int
		BackoffInitialMs int
		BackoffMaxMs     int
	}
	Eleven struct {
		APIKey   string
		Model    string
		VoiceID  string
		TimeoutS int
	}
	Workers struct {
		Providers int
	}
	Tenants struct {
		DataDir string
		Aliases map[string]string
	}
	Memory struct {
		DSN string
	}
	Sessions struct {
		CancelOnDisconnect bool
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_health_port", 9000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("server.static_dir", "static")
	v.SetDefault("server.env", "production")
	v.SetDefault("server.app_name", "Tiryaq Voice AI")

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.onset_rms", 300)
	v.SetDefault("audio.offset_rms", 150)
	v.SetDefault("audio.silence_ms", 1500)
	v.SetDefault("audio.min_utterance_ms", 250)
	v.SetDefault("audio.pad_ms", 200)

	v.SetDefault("stt.model", "whisper-1")
	v.SetDefault("stt.language", "ar")

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1/")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.max_tokens", 150)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.backoff_initial_ms", 500)
	v.SetDefault("llm.backoff_max_ms", 2000)

	v.SetDefault("elevenlabs.model", "eleven_turbo_v2_5")
	v.SetDefault("elevenlabs.voice_id", "pNInz6obpgnuMvkhbuZ5")
	v.SetDefault("elevenlabs.timeout_s", 8)

	v.SetDefault("workers.providers", 32)

	v.SetDefault("tenants.data_dir", "data")
	v.SetDefault("tenants.aliases", "tiryaq_technology=tiryaq")

	v.SetDefault("sessions.cancel_on_disconnect", false)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_health_port", "GRPC_HEALTH_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")
	v.BindEnv("server.static_dir", "STATIC_DIR")
	v.BindEnv("server.env", "ENV")
	v.BindEnv("server.app_name", "APP_NAME")

	v.BindEnv("audio.sample_rate", "SAMPLE_RATE")
	v.BindEnv("audio.onset_rms", "VAD_ONSET_RMS")
	v.BindEnv("audio.offset_rms", "VAD_OFFSET_RMS")
	v.BindEnv("audio.silence_ms", "VAD_SILENCE_MS")
	v.BindEnv("audio.min_utterance_ms", "VAD_MIN_UTTERANCE_MS")
	v.BindEnv("audio.pad_ms", "STT_PAD_MS")

	v.BindEnv("stt.api_key", "OPENAI_API_KEY")
	v.BindEnv("stt.base_url", "STT_BASE_URL")
	v.BindEnv("stt.model", "STT_MODEL")
	v.BindEnv("stt.language", "STT_LANGUAGE")

	v.BindEnv("llm.api_key", "GROQ_API_KEY")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("llm.max_tokens", "LLM_MAX_TOKENS")
	v.BindEnv("llm.temperature", "LLM_TEMPERATURE")
	v.BindEnv("llm.max_attempts", "LLM_MAX_ATTEMPTS")
	v.BindEnv("llm.backoff_initial_ms", "LLM_BACKOFF_INITIAL_MS")
	v.BindEnv("llm.backoff_max_ms", "LLM_BACKOFF_MAX_MS")

	v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	v.BindEnv("elevenlabs.model", "ELEVENLABS_MODEL")
	v.BindEnv("elevenlabs.voice_id", "ELEVENLABS_VOICE_ID")
	v.BindEnv("elevenlabs.timeout_s", "TTS_TIMEOUT_S")

	v.BindEnv("workers.providers", "PROVIDER_WORKERS")

	v.BindEnv("tenants.data_dir", "TENANT_DATA_DIR")
	v.BindEnv("tenants.aliases", "TENANT_ALIASES")

	v.BindEnv("memory.dsn", "MEMORY_DSN")

	v.BindEnv("sessions.cancel_on_disconnect", "SESSION_CANCEL_ON_DISCONNECT")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCHealthPort = toString(v.Get("server.grpc_health_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")
	c.Server.StaticDir = v.GetString("server.static_dir")
	c.Server.Env = v.GetString("server.env")
	c.Server.AppName = v.GetString("server.app_name")

	c.Audio.SampleRate = v.GetInt("audio.sample_rate")
	c.Audio.OnsetRMS = v.GetFloat64("audio.onset_rms")
	c.Audio.OffsetRMS = v.GetFloat64("audio.offset_rms")
	c.Audio.SilenceMs = v.GetInt("audio.silence_ms")
	c.Audio.MinUtteranceMs = v.GetInt("audio.min_utterance_ms")
	c.Audio.PadMs = v.GetInt("audio.pad_ms")

	c.STT.APIKey = v.GetString("stt.api_key")
	c.STT.BaseURL = v.GetString("stt.base_url")
	c.STT.Model = v.GetString("stt.model")
	c.STT.Language = v.GetString("stt.language")

	c.LLM.APIKey = v.GetString("llm.api_key")
	c.LLM.BaseURL = v.GetString("llm.base_url")
	c.LLM.Model = v.GetString("llm.model")
	c.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	c.LLM.Temperature = v.GetFloat64("llm.temperature")
	c.LLM.MaxAttempts = v.GetInt("llm.max_attempts")
	c.LLM.BackoffInitialMs = v.GetInt("llm.backoff_initial_ms")
	c.LLM.BackoffMaxMs = v.GetInt("llm.backoff_max_ms")

	c.Eleven.APIKey = v.GetString("elevenlabs.api_key")
	c.Eleven.Model = v.GetString("elevenlabs.model")
	c.Eleven.VoiceID = v.GetString("elevenlabs.voice_id")
	c.Eleven.TimeoutS = v.GetInt("elevenlabs.timeout_s")

	c.Workers.Providers = v.GetInt("workers.providers")

	c.Tenants.DataDir = v.GetString("tenants.data_dir")
	c.Tenants.Aliases = ParseAliases(v.GetString("tenants.aliases"))

	c.Memory.DSN = v.GetString("memory.dsn")

	c.Sessions.CancelOnDisconnect = v.GetBool("sessions.cancel_on_disconnect")

	return c
}

// ParseAliases reads "alias=tenant,alias2=tenant2".
func ParseAliases(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ",") {
		k, val, ok := strings.Cut(pair, "=")
		k, val = strings.TrimSpace(k), strings.TrimSpace(val)
		if !ok || k == "" || val == "" {
			continue
		}
		out[k] = val
	}
	return out
}

func (c Config) VAD() vad.Config {
	return vad.Config{
		SampleRate:   c.Audio.SampleRate,
		OnsetRMS:     c.Audio.OnsetRMS,
		OffsetRMS:    c.Audio.OffsetRMS,
		Silence:      ms(c.Audio.SilenceMs),
		MinUtterance: ms(c.Audio.MinUtteranceMs),
	}
}

func (c Config) Pipeline() orchestrator.Config {
	return orchestrator.Config{
		SampleRate: c.Audio.SampleRate,
		Padding:    ms(c.Audio.PadMs),
		MaxTokens:  c.LLM.MaxTokens,
		Retry: orchestrator.RetryPolicy{
			Attempts: c.LLM.MaxAttempts,
			Initial:  ms(c.LLM.BackoffInitialMs),
			Max:      ms(c.LLM.BackoffMaxMs),
		},
	}
}

func (c Config) SessionConfig() sessions.Config {
	sc := sessions.DefaultConfig()
	sc.VAD = c.VAD()
	sc.Pipeline = c.Pipeline()
	sc.CancelOnDisconnect = c.Sessions.CancelOnDisconnect
	return sc
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Server.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func toString(v any) string { return fmt.Sprint(v) }
