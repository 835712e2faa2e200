package server

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/funnelsight/tracker/internal/pipeline"
	"github.com/funnelsight/tracker/internal/sources"
	"github.com/funnelsight/tracker/internal/store"
)

// Server maps the ingestion pipeline onto HTTP. Response policy follows the
// error taxonomy: unknown tenants, identity-free payloads and duplicate
// occurrences all look like success to the sender; only auth failures and
// internal errors surface as non-2xx, because senders disable endpoints
// that keep returning errors.
type Server struct {
	pipeline *pipeline.Pipeline
	adapters map[string]sources.Adapter
	orgs     *OrgResolver
	limiter  *RateLimiter
	log      zerolog.Logger
}

func New(p *pipeline.Pipeline, adapters map[string]sources.Adapter, orgs *OrgResolver, limiter *RateLimiter, logger zerolog.Logger) *Server {
	return &Server{pipeline: p, adapters: adapters, orgs: orgs, limiter: limiter, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/health", s.handleHealth)
	r.Post("/v1/beacon", s.handleBeacon)
	r.Post("/v1/webhooks/{provider}", s.handleWebhook)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	defer r.Body.Close()

	env, err := sources.ParseBeacon(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid beacon payload")
		return
	}

	org, err := s.orgs.ByKey(r.Context(), env.OrgKey)
	if errors.Is(err, store.ErrNotFound) {
		// Success-shaped so probing for valid org keys yields nothing.
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	// Limit on the resolved tenant, not the client-supplied key, so varying
	// bogus keys cannot sidestep the counter.
	if !s.limiter.Allow(r.Context(), org.ID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if _, err := s.pipeline.HandleBeacon(r.Context(), org, env, r.Header.Get("User-Agent"), clientIP(r)); err != nil {
		s.log.Error().Err(err).Str("org", org.ID).Msg("beacon processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})

	// Advisory alert freshness; allowed to finish after the response.
	go s.pipeline.TouchActivity(org.ID)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	adapter, ok := s.adapters[provider]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	defer r.Body.Close()

	if err := adapter.Verify(r, body); err != nil {
		s.log.Warn().Str("provider", provider).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	if isFormEncoded(r) {
		body, err = formToJSON(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
	}

	orgID := r.URL.Query().Get("orgId")
	if orgID == "" {
		orgID = r.URL.Query().Get("org_id")
	}
	if orgID == "" {
		if ex, ok := adapter.(sources.OrgExtractor); ok {
			orgID = ex.OrgFromPayload(body)
		}
	}
	if orgID == "" {
		// No tenant reference at all; accept so the sender stops retrying.
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	org, err := s.orgs.ByID(r.Context(), orgID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	if !s.limiter.Allow(r.Context(), org.ID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if err := s.pipeline.HandleWebhook(r.Context(), adapter, org, body); err != nil {
		if errors.Is(err, sources.ErrMalformed) {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		s.log.Error().Err(err).Str("provider", provider).Str("org", org.ID).
			Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

func isFormEncoded(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

// formToJSON rewrites a form-urlencoded body as a JSON object so every
// adapter parses one shape. Repeated keys keep their first value.
func formToJSON(body []byte) ([]byte, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return json.Marshal(m)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
