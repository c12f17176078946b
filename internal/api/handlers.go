package api

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tiryaq/voice/internal/config"
	"tiryaq/voice/internal/health"
	"tiryaq/voice/internal/sessions"
	"tiryaq/voice/internal/voicews"
)

// Version is reported by /health.
const Version = "9.0.0"

// IndexFile is served at / when it exists under the static directory.
const IndexFile = "voice_assistant_v3.html"

type Handlers struct {
	cfg     config.Config
	reg     *sessions.Registry
	ws      *voicews.Server
	voice   health.VoiceChecker
	started time.Time
}

// NewHandlers wires the HTTP surface. voice may be nil when no synthesis
// credentials are configured.
func NewHandlers(cfg config.Config, reg *sessions.Registry, wss *voicews.Server, voice health.VoiceChecker) *Handlers {
	return &Handlers{cfg: cfg, reg: reg, ws: wss, voice: voice, started: time.Now()}
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": h.cfg.Server.AppName,
		"version": Version,
		"env":     h.cfg.Server.Env,
	})
}

// HandleReady runs the readiness checks. The remote voice lookup only runs
// with ?deep=1.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	var voice health.VoiceChecker
	if r.URL.Query().Get("deep") == "1" {
		voice = h.voice
	}
	st := health.CheckAll(r.Context(), h.cfg, h.reg.Memory(), voice)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleDebug(w http.ResponseWriter, r *http.Request) {
	_, err := os.Stat(h.cfg.Tenants.DataDir)
	writeJSON(w, http.StatusOK, map[string]any{
		"env_port":        os.Getenv("PORT"),
		"settings_port":   h.cfg.Server.Port,
		"app_name":        h.cfg.Server.AppName,
		"status":          "online",
		"data_dir":        h.cfg.Tenants.DataDir,
		"data_exists":     err == nil,
		"active_sessions": h.reg.Len(),
		"uptime_s":        int(time.Since(h.started).Seconds()),
	})
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.reg.List(),
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	evs := h.reg.Events().List(id)
	if evs == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     evs,
	})
}

// HandleIndex serves the bundled client page, or a JSON banner when the page
// is not deployed.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.cfg.Server.StaticDir, IndexFile)
	if _, err := os.Stat(path); err == nil {
		http.ServeFile(w, r, path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": h.cfg.Server.AppName + " is running",
		"status":  "active",
		"health":  "/health",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
