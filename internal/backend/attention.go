package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/seantiz/prophet/internal/model"
)

const (
	// maxPrototypes bounds the reference samples stored in the artifact.
	maxPrototypes = 256
	// maxTemperatureSteps bounds the temperature search regardless of the
	// configured epoch count.
	maxTemperatureSteps = 25
)

// attentionArtifact is the serialized form of a trained attention model.
type attentionArtifact struct {
	Scaler      scaler      `json:"scaler"`
	Prototypes  [][]float64 `json:"prototypes"`
	Targets     []float64   `json:"targets"`
	Temperature float64     `json:"temperature"`
}

// AttentionBackend predicts by soft-attending over stored prototype samples:
// a query's prediction is the similarity-weighted mean of prototype targets.
// The most novel of the built-ins, and the slowest at inference.
type AttentionBackend struct{}

func (b *AttentionBackend) Name() string { return Attention }

func (b *AttentionBackend) Characteristics() Characteristics {
	return Characteristics{
		Name:           "Attention Regressor",
		Architecture:   "Softmax attention over prototype samples",
		Strengths:      []string{"Captures local structure", "No fixed functional form", "Attention-style weighting"},
		BestFor:        "Experimental use, exploring attention mechanisms",
		TrainingSpeed:  "Slower",
		InferenceSpeed: "Medium",
	}
}

func (b *AttentionBackend) Train(ctx context.Context, cfg model.TrainingConfig, report ProgressFunc) ([]byte, model.Metrics, error) {
	cfg.ApplyDefaults()

	train, test := loadDataset().split()
	sc := fitScaler(train.X)
	X := sc.transformAll(train.X)

	// Prototypes come from the head of the training split, a holdout from its
	// tail validates temperature candidates.
	protoN := len(X) - len(X)/5
	if protoN > maxPrototypes {
		protoN = maxPrototypes
	}
	prototypes := X[:protoN]
	targets := train.Y[:protoN]
	valX := X[len(X)-len(X)/5:]
	valY := train.Y[len(train.Y)-len(train.Y)/5:]

	steps := cfg.Epochs
	if steps > maxTemperatureSteps {
		steps = maxTemperatureSteps
	}
	if steps < 2 {
		steps = 2
	}

	// Geometric sweep over attention temperatures; lower is sharper.
	bestTau := 1.0
	bestLoss := math.Inf(1)
	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, model.Metrics{}, err
		}

		tau := 0.1 * math.Pow(100, float64(step)/float64(steps-1))
		pred := make([]float64, len(valX))
		for i, q := range valX {
			pred[i] = attendOver(prototypes, targets, q, tau)
		}
		loss := mseOf(valY, pred)
		if loss < bestLoss {
			bestLoss = loss
			bestTau = tau
		}

		if report != nil {
			report(step+1, steps, fmt.Sprintf("temperature sweep %d/%d, loss %.4f", step+1, steps, loss))
		}
	}

	art := attentionArtifact{Scaler: sc, Prototypes: prototypes, Targets: targets, Temperature: bestTau}

	trainPred := make([]float64, len(X))
	for i, q := range X {
		trainPred[i] = attendOver(prototypes, targets, q, bestTau)
	}
	scaledTest := sc.transformAll(test.X)
	testPred := make([]float64, len(scaledTest))
	for i, q := range scaledTest {
		testPred[i] = attendOver(prototypes, targets, q, bestTau)
	}
	metrics := evaluate(train.Y, trainPred, test.Y, testPred, bestLoss)

	data, err := json.Marshal(art)
	if err != nil {
		return nil, model.Metrics{}, fmt.Errorf("serialize attention artifact: %w", err)
	}
	return data, metrics, nil
}

func (b *AttentionBackend) Predict(artifact []byte, f model.Features) (float64, error) {
	var art attentionArtifact
	if err := json.Unmarshal(artifact, &art); err != nil {
		return 0, fmt.Errorf("decode attention artifact: %w", err)
	}
	q := art.Scaler.transform(f.Vector())
	return attendOver(art.Prototypes, art.Targets, q, art.Temperature), nil
}

// attendOver computes the softmax-weighted mean of prototype targets, with
// weights from negative squared distance scaled by the temperature.
func attendOver(prototypes [][]float64, targets []float64, query []float64, tau float64) float64 {
	scores := make([]float64, len(prototypes))
	maxScore := math.Inf(-1)
	for i, p := range prototypes {
		var dist float64
		for j := range query {
			diff := query[j] - p[j]
			dist += diff * diff
		}
		scores[i] = -dist / tau
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	var weightSum, weighted float64
	for i, s := range scores {
		w := math.Exp(s - maxScore)
		weightSum += w
		weighted += w * targets[i]
	}
	return weighted / weightSum
}
