package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"weight-monitor/config"
	"weight-monitor/devices"
	"weight-monitor/logging"
	"weight-monitor/output"
	"weight-monitor/types"
)

func (s *Server) scaleStatus() types.ScaleStatus {
	return types.ScaleStatus{
		Connection: s.scale.Status(),
		Display:    s.display.Current(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case devices.IsCode(err, devices.CodeInvalidConfig):
		return http.StatusBadRequest
	case devices.IsCode(err, devices.CodePortUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeConfig reads an optional {port, baud} body. A missing baud falls back
// to the default rate.
func decodeConfig(r *http.Request) (types.ConnectionConfig, error) {
	var cfg types.ConnectionConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, err
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = config.DEFAULT_BAUD
	}
	return cfg, nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scaleStatus())
}

func (s *Server) portsHandler(w http.ResponseWriter, r *http.Request) {
	ports, err := s.scale.ListPorts()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ports": ports})
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	s.log.Info().Str("port", cfg.Port).Int("baud", cfg.BaudRate).Msg("connect requested")

	if err := s.scale.Connect(cfg); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.scaleStatus())
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	s.log.Info().Msg("disconnect requested")
	if err := s.scale.Disconnect(); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.scaleStatus())
}

func (s *Server) toggleHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := s.scale.Toggle(cfg); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.scaleStatus())
}

func (s *Server) weightHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.display.Current())
}

func (s *Server) copyWeightHandler(w http.ResponseWriter, r *http.Request) {
	text, err := output.CopyWeight(s.display.Current())
	if errors.Is(err, output.ErrNoReading) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msgf("❌ copy failed: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info().Msgf("📋 copied %s kg to clipboard", text)
	writeJSON(w, http.StatusOK, map[string]string{"copied": text})
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logging.Entries())
}

func (s *Server) saveLogsHandler(w http.ResponseWriter, r *http.Request) {
	path, err := logging.Save(s.logDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) clearLogsHandler(w http.ResponseWriter, r *http.Request) {
	logging.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logsStreamHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := make(chan types.LogMessage, 100)
	logging.AddLogClient(client)
	defer logging.RemoveLogClient(client)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-client:
			if !ok {
				return
			}
			data, _ := json.Marshal(msg)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
