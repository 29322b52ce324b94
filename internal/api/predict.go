package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/seantiz/prophet/internal/model"
	"github.com/seantiz/prophet/internal/router"
)

// compareRequest is the JSON body for POST /predict/compare.
type compareRequest struct {
	Features model.Features `json:"features"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req router.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.predictor.Predict(r.Context(), req)
	if err != nil {
		s.writePredictError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredictCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cmp, err := s.predictor.Compare(r.Context(), req.Features)
	if err != nil {
		s.writePredictError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, cmp)
}

// writePredictError maps routing failures onto HTTP status codes.
func (s *Server) writePredictError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, verr.Error())
		return
	}

	var uerr *model.BackendUnavailableError
	if errors.As(err, &uerr) {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":   uerr.Error(),
			"missing": uerr.Missing,
		})
		return
	}

	s.logger.Error("predict", "error", err)
	s.writeError(w, http.StatusInternalServerError, "prediction failed")
}
