package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/prophet/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// createJobRequest is the JSON body for POST /jobs. Backend is a built-in
// backend id or "all"; omitted config fields take training defaults.
type createJobRequest struct {
	Backend string                 `json:"backend"`
	Config  *trainingConfigRequest `json:"config"`
}

// trainingConfigRequest uses pointer fields so an explicit zero can be
// rejected instead of being mistaken for an omitted field.
type trainingConfigRequest struct {
	Epochs       *int     `json:"epochs"`
	LearningRate *float64 `json:"learning_rate"`
	HiddenSizes  []int    `json:"hidden_sizes"`
}

type createJobResponse struct {
	JobID string `json:"job_id"`
}

// jobStatusResponse is the polling view of a job. Progress is synthesized
// for states that have not produced a report yet.
type jobStatusResponse struct {
	JobID    string          `json:"job_id"`
	State    string          `json:"state"`
	Progress *model.Progress `json:"progress,omitempty"`
	Result   *model.Result   `json:"result,omitempty"`
}

const allBackends = "all"

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Backend == "" {
		s.writeError(w, http.StatusBadRequest, "backend is required")
		return
	}

	kind := model.KindTrainSingle
	if req.Backend == allBackends {
		kind = model.KindTrainAll
	} else if _, ok := s.backends[req.Backend]; !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown backend %q", req.Backend))
		return
	}

	cfg, err := req.Config.toTrainingConfig()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Reject up front when the broker is down rather than losing the job.
	if err := s.broker.Ping(r.Context()); err != nil {
		s.logger.Error("broker ping", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, model.ErrBrokerUnavailable.Error())
		return
	}

	job := &model.Job{
		ID:        model.NewID(),
		Kind:      kind,
		Backend:   req.Backend,
		Config:    cfg,
		State:     model.StatePending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.broker.Enqueue(r.Context(), job); err != nil {
		s.logger.Error("enqueue job", "error", err)
		if errors.Is(err, model.ErrBrokerUnavailable) {
			s.writeError(w, http.StatusServiceUnavailable, model.ErrBrokerUnavailable.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, createJobResponse{JobID: job.ID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.broker.GetJob(r.Context(), id)
	if errors.Is(err, model.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("get job", "error", err, "job_id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:    job.ID,
		State:    job.State,
		Progress: synthesizeProgress(job),
		Result:   job.Result,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.broker.GetJob(r.Context(), id)
	if errors.Is(err, model.ErrJobNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %s not found", id))
		return
	}
	if err != nil {
		s.logger.Error("get job result", "error", err, "job_id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	if !model.Terminal(job.State) {
		s.writeJSON(w, http.StatusConflict, map[string]string{
			"state": job.State,
			"error": model.ErrNotTerminal.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, jobStatusResponse{
		JobID:  job.ID,
		State:  job.State,
		Result: job.Result,
	})
}

// synthesizeProgress fills in a progress snapshot for states the worker has
// not reported on yet, so pollers always see a percentage.
func synthesizeProgress(job *model.Job) *model.Progress {
	switch job.State {
	case model.StatePending:
		return &model.Progress{Current: 0, Total: 100, Percent: 0, Message: "waiting in queue"}
	case model.StateStarted:
		return &model.Progress{Current: 0, Total: 100, Percent: 0, Message: "training started"}
	case model.StateSucceeded:
		if job.Progress == nil || job.Progress.Percent < 100 {
			return &model.Progress{Current: 100, Total: 100, Percent: 100, Message: "training complete"}
		}
	}
	return job.Progress
}

// toTrainingConfig validates the supplied fields and fills omitted ones with
// training defaults. Explicitly non-positive values are rejected; only truly
// absent fields default.
func (r *trainingConfigRequest) toTrainingConfig() (model.TrainingConfig, error) {
	var cfg model.TrainingConfig
	if r != nil {
		if r.Epochs != nil {
			if *r.Epochs <= 0 {
				return cfg, &model.ValidationError{Field: "config.epochs", Reason: "must be positive"}
			}
			cfg.Epochs = *r.Epochs
		}
		if r.LearningRate != nil {
			if *r.LearningRate <= 0 {
				return cfg, &model.ValidationError{Field: "config.learning_rate", Reason: "must be positive"}
			}
			cfg.LearningRate = *r.LearningRate
		}
		for _, size := range r.HiddenSizes {
			if size <= 0 {
				return cfg, &model.ValidationError{Field: "config.hidden_sizes", Reason: "sizes must be positive"}
			}
		}
		cfg.HiddenSizes = r.HiddenSizes
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
