package webui

import (
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"

	"github.com/basecamp-iot/basecamp-go/pkg/config"
)

//go:embed static/*
var staticFiles embed.FS

// maxConfigBody bounds the accepted configuration payload.
const maxConfigBody = 1 << 16

// settableKeys are the configuration keys the setup form may write. The
// configured flag and the access point secret are managed by the
// orchestrator and never accepted from a client.
var settableKeys = map[config.Key]bool{
	config.KeyDeviceName:        true,
	config.KeyWifiESSID:         true,
	config.KeyWifiPassword:      true,
	config.KeyMQTTActive:        true,
	config.KeyMQTTHost:          true,
	config.KeyMQTTUser:          true,
	config.KeyMQTTPassword:      true,
	config.KeyOTAActive:         true,
	config.KeyOTAPassword:       true,
	config.KeyHADiscoveryPrefix: true,
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/config", s.handleConfig)
	s.mux.HandleFunc("/api/v1/status", s.handleStatus)
	s.mux.HandleFunc("/api/v1/ws", s.handleWS)
	s.mux.HandleFunc("/", s.handleStatic)
}

// handleConfig persists submitted configuration values, marks the device
// as configured and requests the restart that applies them.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var values map[string]string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxConfigBody)).Decode(&values); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid configuration payload",
		})
		return
	}

	for key, value := range values {
		if !settableKeys[config.Key(key)] {
			s.logger.Debug("ignoring unknown configuration key", "key", key)
			continue
		}
		s.cfg.Store.Set(config.Key(key), value)
	}
	s.cfg.Store.Set(config.KeyWifiConfigured, config.ValueTrue)

	if err := s.cfg.Store.Save(); err != nil {
		s.logger.Error("saving configuration", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "saving configuration failed",
		})
		return
	}

	s.logger.Info("configuration saved, requesting restart")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"restart": true,
	})

	if s.cfg.OnSave != nil {
		s.cfg.OnSave()
	}
}

// handleStatus serves the current status snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.statusData())
}

// handleStatic serves the embedded setup page.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	// Unknown paths fall back to the setup page: behind the captive DNS
	// redirect, clients request arbitrary URLs and all of them should land
	// on the form.
	filePath := path[1:]
	if f, err := staticFS.Open(filePath); err != nil {
		filePath = "index.html"
	} else {
		f.Close()
	}

	http.ServeFileFS(w, r, staticFS, filePath)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
