package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
)

type statusResponse struct {
	SystemID    string                  `json:"system_id"`
	Version     string                  `json:"version"`
	Stats       *catalog.Stats          `json:"stats"`
	Bindings    []catalog.MountBinding  `json:"bindings"`
	Checkpoints []catalog.ScanCheckpoint `json:"checkpoints"`
}

type resolveResponse struct {
	DeviceID     string `json:"device_id"`
	RelativePath string `json:"relative_path"`
	Path         string `json:"path"`
}

type deviceEntry struct {
	DeviceID  string    `json:"device_id"`
	Label     string    `json:"label"`
	MountPath string    `json:"mount_path"`
	LastSeen  time.Time `json:"last_seen"`
	IsActive  bool      `json:"is_active"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    s.version,
		"go_version": runtime.Version(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		logging.Error("Failed to read catalog stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	bindings, err := s.store.ListBindings(ctx, s.systemID)
	if err != nil {
		logging.Error("Failed to list bindings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list bindings")
		return
	}
	checkpoints, err := s.store.ListCheckpoints(ctx)
	if err != nil {
		logging.Error("Failed to list checkpoints: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list checkpoints")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		SystemID:    s.systemID,
		Version:     s.version,
		Stats:       stats,
		Bindings:    bindings,
		Checkpoints: checkpoints,
	})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	bindings, err := s.store.ListBindings(ctx, s.systemID)
	if err != nil {
		logging.Error("Failed to list bindings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	entries := make([]deviceEntry, 0, len(bindings))
	for _, b := range bindings {
		entry := deviceEntry{
			DeviceID:  b.DeviceID,
			MountPath: b.MountPath,
			LastSeen:  b.LastSeen,
			IsActive:  b.IsActive,
		}
		if d, err := s.store.GetDevice(ctx, b.DeviceID); err == nil {
			entry.Label = d.Label
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	deviceID := vars["device"]
	relPath := vars["path"]
	if deviceID == "" || relPath == "" {
		writeError(w, http.StatusBadRequest, "device and path are required")
		return
	}

	full, err := s.registry.ResolveFilePath(r.Context(), deviceID, relPath)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no mount binding for device")
		return
	}
	if err != nil {
		logging.Error("Failed to resolve %s/%s: %v", deviceID, relPath, err)
		writeError(w, http.StatusInternalServerError, "failed to resolve path")
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		DeviceID:     deviceID,
		RelativePath: relPath,
		Path:         full,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
