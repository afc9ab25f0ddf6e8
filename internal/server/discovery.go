package server

import (
	"net/http"
	"net/url"
	"time"

	"github.com/neboloop/browserd/internal/httputil"
)

// wsURL builds the connectable endpoint for discovery responses, secret
// included, the way DevTools-style clients expect to find it.
func (s *Server) wsURL(r *http.Request) string {
	token := url.QueryEscape(string(s.secrets.Secret()))
	return "ws://" + r.Host + "/cdp?token=" + token
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.sessionCount(),
	})
}

func (s *Server) handleJSONVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"Browser":              "browserd/" + s.version,
		"Protocol-Version":     "1.3",
		"webSocketDebuggerUrl": s.wsURL(r),
	})
}

func (s *Server) handleJSONList(w http.ResponseWriter, r *http.Request) {
	// One connectable endpoint. Targets only exist inside a session, so
	// the list advertises the socket rather than live pages.
	httputil.WriteJSON(w, http.StatusOK, []map[string]string{{
		"id":                   "browserd",
		"type":                 "page",
		"title":                "browserd",
		"url":                  "about:blank",
		"webSocketDebuggerUrl": s.wsURL(r),
	}})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime_s": int(time.Since(s.started).Seconds()),
		"sessions": s.sessionCount(),
	}

	if s.store != nil {
		audit := map[string]any{}
		if count, err := s.store.CountSince(r.Context(), time.Now().Add(-24*time.Hour)); err == nil {
			audit["commands_24h"] = count
		}
		if recent, err := s.store.Recent(r.Context(), 20); err == nil {
			audit["recent"] = recent
		}
		status["audit"] = audit
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}
