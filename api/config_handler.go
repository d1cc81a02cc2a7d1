package api

import (
	"net/http"

	"github.com/seenimoa/tradegate/internal/config"
)

// ConfigResponse is the JSON envelope returned by GET /api/config.
type ConfigResponse struct {
	Config *config.Config     `json:"config"`
	Keys   []config.KeyStatus `json:"keys"`
	Mode   string             `json:"mode"`
}

// handleGetConfig returns the running configuration.
// Secrets are excluded via json:"-" tags and reported masked in Keys.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Config: s.cfg,
			Keys:   config.CheckAPIKeys(s.cfg),
			Mode:   string(s.svc.Mode()),
		},
	})
}

// handleGetConfigKeys returns the status of all sensitive API keys.
func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    config.CheckAPIKeys(s.cfg),
	})
}
