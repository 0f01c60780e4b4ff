package localapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"agentdock/internal/global"
)

type configResponse struct {
	LocalPort int                   `json:"local_port"`
	Scripts   scriptsConfigResponse `json:"scripts"`
	Jenkins   jenkinsConfigResponse `json:"jenkins"`
}

type scriptsConfigResponse struct {
	Python string `json:"python"`
	Dir    string `json:"dir"`
}

type jenkinsConfigResponse struct {
	TimeoutSeconds     int  `json:"timeout_seconds"`
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

func buildConfigResponse(cfg global.GlobalConfig) configResponse {
	return configResponse{
		LocalPort: cfg.LocalPort,
		Scripts: scriptsConfigResponse{
			Python: cfg.Scripts.Python,
			Dir:    cfg.Scripts.Dir,
		},
		Jenkins: jenkinsConfigResponse{
			TimeoutSeconds:     cfg.Jenkins.TimeoutSeconds,
			InsecureSkipVerify: cfg.Jenkins.InsecureSkipVerify,
		},
	}
}

func (s *Server) registerConfigRoutes() {
	s.mux.HandleFunc("/api/v1/config", s.handleConfig)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.ConfigStore == nil {
		respondError(w, http.StatusNotImplemented, "CONFIG_UNAVAILABLE", "config store is unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.deps.ConfigStore.LoadOrInit()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
			return
		}
		respondOK(w, buildConfigResponse(cfg))
	case http.MethodPatch:
		var req struct {
			LocalPort *int `json:"local_port"`
			Scripts   *struct {
				Python *string `json:"python"`
				Dir    *string `json:"dir"`
			} `json:"scripts"`
			Jenkins *struct {
				TimeoutSeconds     *int  `json:"timeout_seconds"`
				InsecureSkipVerify *bool `json:"insecure_skip_verify"`
			} `json:"jenkins"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
		cfg, err := s.deps.ConfigStore.LoadOrInit()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
			return
		}
		if req.LocalPort != nil {
			if *req.LocalPort <= 0 || *req.LocalPort > 65535 {
				respondError(w, http.StatusBadRequest, "INVALID_LOCAL_PORT", "local_port must be between 1 and 65535")
				return
			}
			cfg.LocalPort = *req.LocalPort
		}
		if req.Scripts != nil {
			if req.Scripts.Python != nil {
				cfg.Scripts.Python = strings.TrimSpace(*req.Scripts.Python)
			}
			if req.Scripts.Dir != nil {
				cfg.Scripts.Dir = strings.TrimSpace(*req.Scripts.Dir)
			}
		}
		if req.Jenkins != nil {
			if req.Jenkins.TimeoutSeconds != nil {
				if *req.Jenkins.TimeoutSeconds < 0 {
					respondError(w, http.StatusBadRequest, "INVALID_JENKINS_TIMEOUT", "timeout_seconds must not be negative")
					return
				}
				cfg.Jenkins.TimeoutSeconds = *req.Jenkins.TimeoutSeconds
			}
			if req.Jenkins.InsecureSkipVerify != nil {
				cfg.Jenkins.InsecureSkipVerify = *req.Jenkins.InsecureSkipVerify
			}
		}
		if err := s.deps.ConfigStore.Save(cfg); err != nil {
			respondError(w, http.StatusInternalServerError, "CONFIG_SAVE_FAILED", err.Error())
			return
		}
		saved, err := s.deps.ConfigStore.LoadOrInit()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "CONFIG_LOAD_FAILED", err.Error())
			return
		}
		respondOK(w, buildConfigResponse(saved))
	default:
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	}
}
