package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/near-pulse/internal/circuitbreaker"
	"github.com/near-pulse/internal/errors"
)

// HealthResponse is the payload of /api/health
type HealthResponse struct {
	Status   string                  `json:"status"`
	Time     time.Time               `json:"time"`
	Uptime   string                  `json:"uptime"`
	Cache    string                  `json:"cache"`
	CacheTTL string                  `json:"cacheTTL,omitempty"`
	Sources  []*circuitbreaker.Stats `json:"sources"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":   "near-pulse",
		"status": "running",
		"endpoints": []string{
			"/api/health",
			"/api/balance/{account}",
			"/api/transactions/{account}",
			"/api/stats/{account}",
			"/api/nft/{account}",
			"/metrics",
		},
	})
}

// handleHealth reports "degraded" while any upstream circuit is not closed.
// It always answers 200 so load balancers keep routing to the cached tiers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Time:    time.Now().UTC(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Cache:   "memory",
		Sources: []*circuitbreaker.Stats{},
	}
	if s.cache != nil {
		if s.cache.RedisEnabled() {
			resp.Cache = "redis"
		}
		resp.CacheTTL = s.cache.GetTTL().String()
	}
	if s.breakers != nil {
		resp.Sources = s.breakers.AllStats()
		for _, stats := range resp.Sources {
			if stats.State != circuitbreaker.StateClosed {
				resp.Status = "degraded"
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if !s.refreshIfRequested(w, r) {
		return
	}
	view, err := s.accounts.GetBalance(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !s.refreshIfRequested(w, r) {
		return
	}
	view, err := s.accounts.GetActivity(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.refreshIfRequested(w, r) {
		return
	}
	view, err := s.accounts.GetStats(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleNFTs(w http.ResponseWriter, r *http.Request) {
	if !s.refreshIfRequested(w, r) {
		return
	}
	view, err := s.accounts.GetNFTs(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// refreshIfRequested drops the cached views when the query carries refresh=true.
// It returns false after writing an error response.
func (s *Server) refreshIfRequested(w http.ResponseWriter, r *http.Request) bool {
	raw := r.URL.Query().Get("refresh")
	if raw == "" {
		return true
	}
	refresh, err := strconv.ParseBool(raw)
	if err != nil {
		respondError(w, r, errors.NewInvalidParameterError("refresh", "must be true or false"))
		return false
	}
	if !refresh {
		return true
	}
	if err := s.accounts.Refresh(r.Context(), mux.Vars(r)["account"]); err != nil {
		respondError(w, r, err)
		return false
	}
	return true
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, errors.NewNotFoundError("route", r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, errors.NewInvalidParameterError("method", r.Method+" is not supported"))
}
