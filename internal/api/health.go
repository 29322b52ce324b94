package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status string `json:"status"`
}

type brokerHealthResponse struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleBrokerHealth reports whether the broker answers a round trip and how
// long it took.
func (s *Server) handleBrokerHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.broker.Ping(r.Context())
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		s.logger.Error("broker health", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, brokerHealthResponse{
			Status:    "unavailable",
			LatencyMS: latency,
			Error:     err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, brokerHealthResponse{
		Status:    "ok",
		LatencyMS: latency,
	})
}
