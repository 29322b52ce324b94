// Package router decides which trained backend serves a prediction request
// and executes it, including the ensemble path that averages every backend.
// The router holds no state of its own; availability always comes from the
// registry so a freshly published artifact is visible on the next request.
package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/model"
	"github.com/seantiz/prophet/internal/registry"
)

// Request is one prediction request after JSON decoding.
type Request struct {
	Features   model.Features  `json:"features"`
	Preference string          `json:"preference,omitempty"`
	Criteria   *model.Criteria `json:"criteria,omitempty"`
}

// Decision records which backend (or the ensemble) was selected and why.
type Decision struct {
	Backend     string `json:"backend"`
	Ensemble    bool   `json:"ensemble"`
	Explanation string `json:"explanation"`
}

// Response is the result of a routed prediction.
type Response struct {
	Prediction  float64            `json:"prediction"`
	BackendUsed string             `json:"backend_used"`
	Explanation string             `json:"explanation"`
	Breakdown   map[string]float64 `json:"breakdown,omitempty"`
}

// Comparison reports one prediction per trained backend plus their mean.
type Comparison struct {
	Predictions map[string]float64 `json:"predictions"`
	Unavailable []string           `json:"unavailable,omitempty"`
	Mean        float64            `json:"mean"`
}

// Router selects and runs backends for prediction requests.
type Router struct {
	registry  *registry.Registry
	artifacts *registry.ArtifactStore
	backends  map[string]backend.Backend
}

// New builds a router over the given backends.
func New(reg *registry.Registry, artifacts *registry.ArtifactStore, backends map[string]backend.Backend) *Router {
	return &Router{registry: reg, artifacts: artifacts, backends: backends}
}

// Route resolves the request's preference to a concrete selection without
// running any backend. An empty preference means auto, and auto with no
// criteria means balanced.
func (r *Router) Route(_ context.Context, req Request) (Decision, error) {
	pref := req.Preference
	if pref == "" {
		pref = model.PreferenceAuto
	}

	switch pref {
	case model.PreferenceEnsemble:
		return Decision{
			Backend:     model.PreferenceEnsemble,
			Ensemble:    true,
			Explanation: "ensemble requested: averaging predictions from all trained backends",
		}, nil

	case model.PreferenceAuto:
		priority := model.PriorityBalanced
		if req.Criteria != nil && req.Criteria.Priority != "" {
			priority = req.Criteria.Priority
		}
		return r.routeByPriority(priority), nil

	default:
		if _, ok := r.backends[pref]; !ok {
			return Decision{}, &model.ValidationError{
				Field:  "preference",
				Reason: fmt.Sprintf("unknown backend %q", pref),
			}
		}
		return Decision{
			Backend:     pref,
			Explanation: fmt.Sprintf("backend %q explicitly requested", pref),
		}, nil
	}
}

func (r *Router) routeByPriority(priority string) Decision {
	switch priority {
	case model.PrioritySpeed:
		return Decision{
			Backend:     backend.Linear,
			Explanation: "speed priority: linear has the fastest training and inference",
		}
	case model.PriorityAccuracy:
		return Decision{
			Backend:     backend.Forest,
			Explanation: "accuracy priority: forest gives the best single-model accuracy on tabular data",
		}
	case model.PriorityExperimental:
		return Decision{
			Backend:     backend.Attention,
			Explanation: "experimental priority: attention is the newest architecture",
		}
	case model.PriorityBalanced:
		return Decision{
			Backend:     model.PreferenceEnsemble,
			Ensemble:    true,
			Explanation: "balanced priority: ensemble averages all trained backends",
		}
	default:
		return Decision{
			Backend:     backend.Forest,
			Explanation: fmt.Sprintf("unrecognized priority %q: defaulting to forest, the most stable backend", priority),
		}
	}
}

// Predict routes the request and runs the selected backend or ensemble.
func (r *Router) Predict(ctx context.Context, req Request) (*Response, error) {
	decision, err := r.Route(ctx, req)
	if err != nil {
		return nil, err
	}

	features := req.Features
	features.ApplyDefaults()

	if decision.Ensemble {
		prediction, breakdown, err := r.predictEnsemble(ctx, features)
		if err != nil {
			return nil, err
		}
		return &Response{
			Prediction:  prediction,
			BackendUsed: model.PreferenceEnsemble,
			Explanation: decision.Explanation,
			Breakdown:   breakdown,
		}, nil
	}

	prediction, err := r.predictOne(ctx, decision.Backend, features)
	if err != nil {
		return nil, err
	}
	return &Response{
		Prediction:  prediction,
		BackendUsed: decision.Backend,
		Explanation: decision.Explanation,
	}, nil
}

// predictOne runs a single backend, requiring it to be trained.
func (r *Router) predictOne(ctx context.Context, id string, f model.Features) (float64, error) {
	trained, err := r.registry.IsTrained(ctx, id)
	if err != nil {
		return 0, err
	}
	if !trained {
		return 0, &model.BackendUnavailableError{Missing: []string{id}}
	}

	b, ok := r.backends[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", registry.ErrUnknownBackend, id)
	}

	artifact, err := r.artifacts.Load(id)
	if err != nil {
		return 0, err
	}
	return b.Predict(artifact, f)
}

// predictEnsemble averages all backends. Every backend must be trained; a
// partial mean would silently change meaning between deployments.
func (r *Router) predictEnsemble(ctx context.Context, f model.Features) (float64, map[string]float64, error) {
	missing, err := r.registry.Missing(ctx)
	if err != nil {
		return 0, nil, err
	}
	if len(missing) > 0 {
		return 0, nil, &model.BackendUnavailableError{Missing: missing}
	}

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	breakdown := make(map[string]float64, len(ids))
	var sum float64
	for _, id := range ids {
		p, err := r.predictOne(ctx, id, f)
		if err != nil {
			return 0, nil, err
		}
		breakdown[id] = p
		sum += p
	}
	return sum / float64(len(ids)), breakdown, nil
}

// Compare runs every trained backend and reports each prediction alongside
// the mean of the available ones. Untrained backends are listed, not errors.
func (r *Router) Compare(ctx context.Context, f model.Features) (*Comparison, error) {
	f.ApplyDefaults()

	trained, err := r.registry.Trained(ctx)
	if err != nil {
		return nil, err
	}
	unavailable, err := r.registry.Missing(ctx)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		Predictions: make(map[string]float64, len(trained)),
		Unavailable: unavailable,
	}
	var sum float64
	for _, id := range trained {
		p, err := r.predictOne(ctx, id, f)
		if err != nil {
			return nil, err
		}
		cmp.Predictions[id] = p
		sum += p
	}
	if len(trained) > 0 {
		cmp.Mean = sum / float64(len(trained))
	}
	return cmp, nil
}
