package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/seantiz/prophet/internal/model"
)

const linearBatchSize = 32

// linearArtifact is the serialized form of a trained linear model.
type linearArtifact struct {
	Scaler  scaler    `json:"scaler"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// LinearBackend fits a linear regressor with mini-batch gradient descent.
// It is the fastest of the built-ins at both training and inference.
type LinearBackend struct{}

func (b *LinearBackend) Name() string { return Linear }

func (b *LinearBackend) Characteristics() Characteristics {
	return Characteristics{
		Name:           "Linear Regressor",
		Architecture:   "Mini-batch gradient descent over standardized features",
		Strengths:      []string{"Fastest inference", "Interpretable weights", "Low memory"},
		BestFor:        "Latency-sensitive predictions, quick baselines",
		TrainingSpeed:  "Fast",
		InferenceSpeed: "Very Fast",
	}
}

func (b *LinearBackend) Train(ctx context.Context, cfg model.TrainingConfig, report ProgressFunc) ([]byte, model.Metrics, error) {
	cfg.ApplyDefaults()

	train, test := loadDataset().split()
	sc := fitScaler(train.X)
	X := sc.transformAll(train.X)

	weights := make([]float64, model.FeatureCount)
	var bias float64
	rng := rand.New(rand.NewSource(datasetSeed))

	var loss float64
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, model.Metrics{}, err
		}

		for start := 0; start < len(X); start += linearBatchSize {
			end := start + linearBatchSize
			if end > len(X) {
				end = len(X)
			}

			gradW := make([]float64, model.FeatureCount)
			var gradB float64
			for _, i := range batchIndices(rng, start, end) {
				pred := bias
				for j, w := range weights {
					pred += w * X[i][j]
				}
				residual := pred - train.Y[i]
				for j := range gradW {
					gradW[j] += residual * X[i][j]
				}
				gradB += residual
			}

			scale := cfg.LearningRate / float64(end-start)
			for j := range weights {
				weights[j] -= scale * gradW[j]
			}
			bias -= scale * gradB
		}

		trainPred := predictLinear(X, weights, bias)
		loss = mseOf(train.Y, trainPred)

		if report != nil {
			report(epoch+1, cfg.Epochs, fmt.Sprintf("epoch %d/%d, loss %.4f", epoch+1, cfg.Epochs, loss))
		}
	}

	trainPred := predictLinear(X, weights, bias)
	testPred := predictLinear(sc.transformAll(test.X), weights, bias)
	metrics := evaluate(train.Y, trainPred, test.Y, testPred, loss)

	art, err := json.Marshal(linearArtifact{Scaler: sc, Weights: weights, Bias: bias})
	if err != nil {
		return nil, model.Metrics{}, fmt.Errorf("serialize linear artifact: %w", err)
	}
	return art, metrics, nil
}

func (b *LinearBackend) Predict(artifact []byte, f model.Features) (float64, error) {
	var art linearArtifact
	if err := json.Unmarshal(artifact, &art); err != nil {
		return 0, fmt.Errorf("decode linear artifact: %w", err)
	}

	x := art.Scaler.transform(f.Vector())
	pred := art.Bias
	for j, w := range art.Weights {
		pred += w * x[j]
	}
	return pred, nil
}

// batchIndices returns the sample indices for one mini-batch in randomized
// visit order.
func batchIndices(rng *rand.Rand, start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx
}

// predictLinear scores every standardized row.
func predictLinear(X [][]float64, weights []float64, bias float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		pred := bias
		for j, w := range weights {
			pred += w * row[j]
		}
		out[i] = pred
	}
	return out
}
