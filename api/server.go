package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradeengine/core"
	"github.com/web3guy0/tradeengine/execution"
	"github.com/web3guy0/tradeengine/risk"
	"github.com/web3guy0/tradeengine/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP API - session control surface
// ═══════════════════════════════════════════════════════════════════════════════

// Sessions is the scheduler surface the API drives
type Sessions interface {
	Create(ctx context.Context, req core.CreateRequest) (*types.Session, error)
	List(ctx context.Context) ([]core.StatusView, error)
	Status(ctx context.Context, id string) (core.StatusView, error)
	Stop(ctx context.Context, id string) (*types.Session, error)
	Kill(ctx context.Context, id string) (*types.Session, error)
	Trades(ctx context.Context, id string) ([]types.Trade, error)
	Archive(ctx context.Context, id string) error
	Stats() (ticks int64, sessions int, active int)
}

// PolicySource reloads the frequency policy file
type PolicySource interface {
	Reload() error
	Current() *risk.FrequencyPolicy
}

// Server is a lightweight HTTP API over the scheduler
type Server struct {
	httpServer *http.Server
	sessions   Sessions
	policy     PolicySource
	router     *execution.Router
	feed       interface{ Connected() bool }
	startedAt  time.Time
}

// NewServer creates a new API server bound to addr. policy may be nil.
func NewServer(addr string, sessions Sessions, policy PolicySource) *Server {
	s := &Server{
		sessions:  sessions,
		policy:    policy,
		startedAt: time.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetRouter adds executor counters to the health report
func (s *Server) SetRouter(r *execution.Router) {
	s.router = r
}

// SetFeed adds the feed connection state to the health report when the feed exposes one
func (s *Server) SetFeed(feed any) {
	if f, ok := feed.(interface{ Connected() bool }); ok {
		s.feed = f
	}
}

// Handler returns the routed mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions", s.handleList)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleArchive)
	mux.HandleFunc("POST /api/sessions/{id}/stop", s.handleStop)
	mux.HandleFunc("POST /api/sessions/{id}/kill", s.handleKill)
	mux.HandleFunc("GET /api/sessions/{id}/trades", s.handleTrades)
	mux.HandleFunc("POST /api/policy/reload", s.handlePolicyReload)
	return mux
}

// Start begins serving HTTP requests
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", s.httpServer.Addr).Msg("🌐 API server listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server stopped")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError maps the error taxonomy onto status codes
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var ve *types.ValidationError
	var ar *types.AdmissionRejected
	var ef *types.ExecutionFailure
	var td *types.TransientDataError
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		code = http.StatusNotFound
	case errors.As(err, &ve):
		code = http.StatusBadRequest
	case errors.As(err, &ar):
		code = http.StatusConflict
	case errors.As(err, &ef):
		code = http.StatusBadGateway
	case errors.As(err, &td):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ticks, sessions, active := s.sessions.Stats()
	resp := map[string]any{
		"status":   "ok",
		"uptime_s": int64(time.Since(s.startedAt).Seconds()),
		"ticks":    ticks,
		"sessions": sessions,
		"active":   active,
	}
	if s.router != nil {
		resp["executors"] = s.router.Metrics()
	}
	if s.feed != nil {
		resp["feed_connected"] = s.feed.Connected()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/sessions
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req core.CreateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, types.NewValidationError("body", err.Error()))
		return
	}

	sess, err := s.sessions.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.sessions.Status(r.Context(), sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GET /api/sessions
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.sessions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if views == nil {
		views = []core.StatusView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// GET /api/sessions/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/sessions/{id}/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Stop)
}

// POST /api/sessions/{id}/kill
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.control(w, r, s.sessions.Kill)
}

func (s *Server) control(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*types.Session, error)) {
	id := r.PathValue("id")
	if _, err := fn(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.sessions.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/sessions/{id}/trades
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.sessions.Trades(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if trades == nil {
		trades = []types.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// DELETE /api/sessions/{id}
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Archive(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/policy/reload
func (s *Server) handlePolicyReload(w http.ResponseWriter, _ *http.Request) {
	if s.policy == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "no policy file configured"})
		return
	}
	if err := s.policy.Reload(); err != nil {
		writeError(w, types.NewValidationError("policy", err.Error()))
		return
	}
	p := s.policy.Current()
	writeJSON(w, http.StatusOK, map[string]any{"slabs": len(p.Slabs), "max_hourly_cap": p.MaxHourlyCap})
}
