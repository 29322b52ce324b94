package model

import "time"

// Job state constants.
const (
	StatePending   = "pending"
	StateStarted   = "started"
	StateProgress  = "progress"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Job kind constants.
const (
	KindTrainSingle = "train"
	KindTrainAll    = "train_all"
)

// validTransitions maps each job state to the set of states it may transition to.
var validTransitions = map[string]map[string]bool{
	StatePending: {
		StateStarted: true,
		StateFailed:  true,
	},
	StateStarted: {
		StateProgress:  true,
		StateSucceeded: true,
		StateFailed:    true,
	},
	StateProgress: {
		StateProgress:  true,
		StateSucceeded: true,
		StateFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one job state to another
// is allowed. Terminal states (succeeded, failed) permit no further moves.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the given state is terminal.
func Terminal(state string) bool {
	return state == StateSucceeded || state == StateFailed
}

// TrainingConfig holds the hyperparameters for one training run.
type TrainingConfig struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	HiddenSizes  []int   `json:"hidden_sizes"`
}

// Training defaults, applied when a submission omits a field.
const (
	DefaultEpochs       = 500
	DefaultLearningRate = 0.001
)

// DefaultHiddenSizes returns the default hidden layer sizes.
func DefaultHiddenSizes() []int { return []int{64, 32, 16} }

// ApplyDefaults fills zero-valued fields with training defaults.
func (c *TrainingConfig) ApplyDefaults() {
	if c.Epochs == 0 {
		c.Epochs = DefaultEpochs
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if len(c.HiddenSizes) == 0 {
		c.HiddenSizes = DefaultHiddenSizes()
	}
}

// Progress is a snapshot of an in-flight job's advancement.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// Metrics holds the evaluation metrics produced by a completed training run.
type Metrics struct {
	TrainR2   float64 `json:"train_r2"`
	TestR2    float64 `json:"test_r2"`
	TrainRMSE float64 `json:"train_rmse"`
	TestRMSE  float64 `json:"test_rmse"`
	FinalLoss float64 `json:"final_loss"`
}

// ErrorInfo carries the failure diagnostic for a failed job.
type ErrorInfo struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Result is the terminal outcome of a job. Exactly one of Metrics or Error is
// set for a single-backend job; all-backends jobs populate PerBackend instead
// of Metrics.
type Result struct {
	Metrics    *Metrics            `json:"metrics,omitempty"`
	PerBackend map[string]*Metrics `json:"per_backend,omitempty"`
	Error      *ErrorInfo          `json:"error,omitempty"`
}

// Job represents one asynchronous training run with a lifecycle state.
type Job struct {
	ID        string         `json:"job_id"`
	Kind      string         `json:"kind"`
	Backend   string         `json:"backend"`
	Config    TrainingConfig `json:"config"`
	State     string         `json:"state"`
	Progress  *Progress      `json:"progress,omitempty"`
	Result    *Result        `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}
