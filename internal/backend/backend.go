// Package backend defines the common contract that all predictive backends
// implement, along with the three built-in estimators (linear, forest,
// attention) exchanged between the worker, the router, and the registry.
// Trained parameters travel as opaque artifact bytes; nothing outside a
// backend interprets them.
package backend

import (
	"context"
	"sort"

	"github.com/seantiz/prophet/internal/model"
)

// Built-in backend ids.
const (
	Linear    = "linear"
	Forest    = "forest"
	Attention = "attention"
)

// ProgressFunc is the narrow reporting capability handed to a backend for the
// duration of one training run.
type ProgressFunc func(current, total int, message string)

// Characteristics is the static descriptive record for one backend, read by
// the router when explaining selections.
type Characteristics struct {
	Name           string   `json:"name"`
	Architecture   string   `json:"architecture"`
	Strengths      []string `json:"strengths"`
	BestFor        string   `json:"best_for"`
	TrainingSpeed  string   `json:"training_speed"`
	InferenceSpeed string   `json:"inference_speed"`
}

// Backend is one interchangeable predictive model implementation.
type Backend interface {
	// Name returns the backend's registry id.
	Name() string

	// Characteristics reports the backend's static descriptive record.
	Characteristics() Characteristics

	// Train fits the model, reporting progress through report, and returns
	// the serialized artifact plus evaluation metrics. The context carries
	// cancellation for the run.
	Train(ctx context.Context, cfg model.TrainingConfig, report ProgressFunc) ([]byte, model.Metrics, error)

	// Predict scores one feature vector against a previously trained
	// artifact. The returned value is in dataset target units (hundreds of
	// thousands of dollars).
	Predict(artifact []byte, f model.Features) (float64, error)
}

// All returns the built-in backends keyed by id.
func All() map[string]Backend {
	return map[string]Backend{
		Linear:    &LinearBackend{},
		Forest:    &ForestBackend{},
		Attention: &AttentionBackend{},
	}
}

// IDs returns the built-in backend ids in sorted order.
func IDs() []string {
	m := All()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsKnown reports whether id names a built-in backend.
func IsKnown(id string) bool {
	_, ok := All()[id]
	return ok
}
