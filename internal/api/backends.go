package api

import (
	"net/http"
	"time"

	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/model"
)

// backendInfo joins a registry entry with its backend's static description.
type backendInfo struct {
	ID              string                  `json:"id"`
	Trained         bool                    `json:"trained"`
	TrainedAt       *time.Time              `json:"trained_at,omitempty"`
	Metrics         *model.Metrics          `json:"metrics,omitempty"`
	Characteristics backend.Characteristics `json:"characteristics"`
}

type listBackendsResponse struct {
	Backends []backendInfo `json:"backends"`
}

func (s *Server) handleListBackends(w http.ResponseWriter, r *http.Request) {
	entries, err := s.registry.List(r.Context())
	if err != nil {
		s.logger.Error("list backends", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list backends")
		return
	}

	infos := make([]backendInfo, 0, len(entries))
	for _, e := range entries {
		info := backendInfo{
			ID:        e.ID,
			Trained:   e.Trained,
			TrainedAt: e.TrainedAt,
			Metrics:   e.Metrics,
		}
		if b, ok := s.backends[e.ID]; ok {
			info.Characteristics = b.Characteristics()
		}
		infos = append(infos, info)
	}

	s.writeJSON(w, http.StatusOK, listBackendsResponse{Backends: infos})
}
