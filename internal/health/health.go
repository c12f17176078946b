package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tiryaq/voice/internal/config"
	"tiryaq/voice/internal/memory"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
	Detail  any           `json:"detail,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

// String renders the report one check per line, the way it is logged when
// readiness changes.
func (h HealthStatus) String() string {
	var b strings.Builder
	if h.OK {
		b.WriteString("ready")
	} else {
		b.WriteString("not ready")
	}
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "\n  %s %s", mark, c.Name)
		if c.Error != "" {
			fmt.Fprintf(&b, ": %s", c.Error)
		}
	}
	return b.String()
}

// Tracker logs the report whenever overall readiness flips, including the
// first observation.
type Tracker struct {
	log  *slog.Logger
	seen bool
	ok   bool
}

func NewTracker(log *slog.Logger) *Tracker {
	return &Tracker{log: log}
}

// Observe records st and reports whether readiness changed.
func (t *Tracker) Observe(st HealthStatus) bool {
	if t.seen && t.ok == st.OK {
		return false
	}
	t.seen, t.ok = true, st.OK
	if st.OK {
		t.log.Info("readiness changed", "ok", true, "report", st.String())
	} else {
		t.log.Warn("readiness changed", "ok", false, "report", st.String())
	}
	return true
}

// VoiceChecker verifies that a synthesis voice exists.
type VoiceChecker interface {
	CheckVoice(ctx context.Context, voiceID string) error
}

// CheckAll reports whether every provider has credentials and how the
// memory store is doing. voice may be nil to skip the remote voice lookup.
func CheckAll(ctx context.Context, cfg config.Config, mem *memory.Manager, voice VoiceChecker) HealthStatus {
	checks := []CheckResult{
		checkKey("stt", cfg.STT.APIKey, "OPENAI_API_KEY"),
		checkKey("llm", cfg.LLM.APIKey, "GROQ_API_KEY"),
		checkKey("tts", cfg.Eleven.APIKey, "ELEVENLABS_API_KEY"),
		checkMemory(ctx, mem),
	}
	if voice != nil && cfg.Eleven.APIKey != "" {
		checks = append(checks, checkVoice(ctx, cfg, voice))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkKey(name, key, env string) CheckResult {
	if key == "" {
		return CheckResult{Name: name, Error: env + " not set"}
	}
	return CheckResult{Name: name, OK: true}
}

// checkMemory never fails the probe on a down backend; sessions fall back to
// the in-process cache. The status is reported for operators.
func checkMemory(ctx context.Context, mem *memory.Manager) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "memory", OK: true}
	if mem == nil {
		return result
	}
	st := mem.Status(ctx)
	result.Latency = time.Since(start)
	result.Detail = st
	if st.StorageType != "in_memory" && !st.BackendAvailable {
		result.Error = st.StorageType + " unavailable, using in-process cache"
	}
	return result
}

func checkVoice(ctx context.Context, cfg config.Config, voice VoiceChecker) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "elevenlabs_voice"}
	if cfg.Eleven.VoiceID == "" {
		result.Error = "ELEVENLABS_VOICE_ID not set"
		return result
	}
	err := voice.CheckVoice(ctx, cfg.Eleven.VoiceID)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.OK = true
	return result
}
