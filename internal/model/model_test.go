package model

import (
	"errors"
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransitions(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatePending, StateStarted},
		{StatePending, StateFailed},
		{StateStarted, StateProgress},
		{StateStarted, StateSucceeded},
		{StateStarted, StateFailed},
		{StateProgress, StateProgress},
		{StateProgress, StateSucceeded},
		{StateProgress, StateFailed},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = false, want true", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to string }{
		{StateStarted, StatePending},
		{StateProgress, StateStarted},
		{StateSucceeded, StateFailed},
		{StateSucceeded, StateProgress},
		{StateFailed, StateStarted},
		{StatePending, StateSucceeded},
		{StatePending, StateProgress},
	}
	for _, tr := range denied {
		if ValidTransition(tr.from, tr.to) {
			t.Errorf("ValidTransition(%q, %q) = true, want false", tr.from, tr.to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, state := range []string{StateSucceeded, StateFailed} {
		if !Terminal(state) {
			t.Errorf("Terminal(%q) = false, want true", state)
		}
	}
	for _, state := range []string{StatePending, StateStarted, StateProgress} {
		if Terminal(state) {
			t.Errorf("Terminal(%q) = true, want false", state)
		}
	}
}

func TestTrainingConfigDefaults(t *testing.T) {
	var cfg TrainingConfig
	cfg.ApplyDefaults()

	if cfg.Epochs != DefaultEpochs {
		t.Errorf("epochs = %d, want %d", cfg.Epochs, DefaultEpochs)
	}
	if cfg.LearningRate != DefaultLearningRate {
		t.Errorf("learning rate = %v, want %v", cfg.LearningRate, DefaultLearningRate)
	}
	if len(cfg.HiddenSizes) != 3 {
		t.Errorf("hidden sizes = %v, want 3 layers", cfg.HiddenSizes)
	}

	// Explicit values survive.
	cfg = TrainingConfig{Epochs: 10, LearningRate: 0.5, HiddenSizes: []int{4}}
	cfg.ApplyDefaults()
	if cfg.Epochs != 10 || cfg.LearningRate != 0.5 || len(cfg.HiddenSizes) != 1 {
		t.Errorf("defaults overwrote explicit config: %+v", cfg)
	}
}

func TestFeaturesVectorOrder(t *testing.T) {
	f := Features{
		MedianIncome: 1, HouseAge: 2, AveRooms: 3, AveBedrooms: 4,
		Population: 5, AveOccupancy: 6, Latitude: 7, Longitude: 8,
	}
	v := f.Vector()
	if len(v) != FeatureCount {
		t.Fatalf("vector length = %d, want %d", len(v), FeatureCount)
	}
	for i, want := range []float64{1, 2, 3, 4, 5, 6, 7, 8} {
		if v[i] != want {
			t.Errorf("vector[%d] = %v, want %v", i, v[i], want)
		}
	}
}

func TestBackendUnavailableErrorMessage(t *testing.T) {
	err := &BackendUnavailableError{Missing: []string{"linear"}}
	if got := err.Error(); got != `backend "linear" is not trained` {
		t.Errorf("single missing backend message = %q", got)
	}

	err = &BackendUnavailableError{Missing: []string{"linear", "forest"}}
	if got := err.Error(); got != "backends not trained: linear, forest" {
		t.Errorf("multiple missing backends message = %q", got)
	}

	var target *BackendUnavailableError
	if !errors.As(error(err), &target) {
		t.Error("errors.As failed to match BackendUnavailableError")
	}
}
