package backend

import (
	"math"
	"math/rand"

	"github.com/seantiz/prophet/internal/model"
)

const (
	datasetSeed = 42
	datasetSize = 2000
	// testFraction is the share of samples held out for evaluation.
	testFraction = 0.2
)

// Dataset holds feature rows and target values. Targets are house values in
// hundreds of thousands of dollars.
type Dataset struct {
	X [][]float64
	Y []float64
}

// loadDataset generates the deterministic synthetic housing dataset every
// backend trains against. The same seed always yields the same samples, so
// repeated training runs are reproducible.
func loadDataset() *Dataset {
	rng := rand.New(rand.NewSource(datasetSeed))
	d := &Dataset{
		X: make([][]float64, datasetSize),
		Y: make([]float64, datasetSize),
	}

	for i := 0; i < datasetSize; i++ {
		medInc := 0.5 + 9.5*rng.Float64()
		houseAge := 1 + 51*rng.Float64()
		aveRooms := 3 + 5*rng.Float64()
		aveBedrms := 0.8 + 0.6*rng.Float64()
		population := 200 + 3000*rng.Float64()
		aveOccup := 1.5 + 3.5*rng.Float64()
		latitude := 32.5 + 9.5*rng.Float64()
		longitude := -124.3 + 10*rng.Float64()

		// Value rises with income and rooms, falls with crowding and age,
		// with a coastal premium that decays inland.
		coastal := 0.8 * math.Exp(-0.4*math.Abs(longitude+122.5))
		value := 0.4*medInc +
			0.05*aveRooms -
			0.08*aveOccup -
			0.004*houseAge +
			coastal +
			rng.NormFloat64()*0.25

		if value < 0.15 {
			value = 0.15
		}
		if value > 5 {
			value = 5
		}

		d.X[i] = []float64{medInc, houseAge, aveRooms, aveBedrms, population, aveOccup, latitude, longitude}
		d.Y[i] = value
	}
	return d
}

// split partitions the dataset into train and test sets. The generator order
// is already random, so a positional split is an unbiased holdout.
func (d *Dataset) split() (train, test *Dataset) {
	cut := int(float64(len(d.Y)) * (1 - testFraction))
	train = &Dataset{X: d.X[:cut], Y: d.Y[:cut]}
	test = &Dataset{X: d.X[cut:], Y: d.Y[cut:]}
	return train, test
}

// scaler standardizes feature vectors to zero mean and unit variance using
// statistics computed on the training set. It is embedded in every artifact
// so prediction applies the same transform.
type scaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// fitScaler computes per-feature means and standard deviations.
func fitScaler(X [][]float64) scaler {
	n := len(X)
	dims := model.FeatureCount
	means := make([]float64, dims)
	stds := make([]float64, dims)

	for _, row := range X {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	for _, row := range X {
		for j, v := range row {
			diff := v - means[j]
			stds[j] += diff * diff
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / float64(n))
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return scaler{Means: means, Stds: stds}
}

// transform standardizes one feature vector.
func (s scaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Means[j]) / s.Stds[j]
	}
	return out
}

// transformAll standardizes every row.
func (s scaler) transformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.transform(row)
	}
	return out
}

// meanOf returns the arithmetic mean of values.
func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// mseOf returns the mean squared error between targets and predictions.
func mseOf(y, pred []float64) float64 {
	var sum float64
	for i := range y {
		diff := y[i] - pred[i]
		sum += diff * diff
	}
	return sum / float64(len(y))
}

// r2Score returns the coefficient of determination.
func r2Score(y, pred []float64) float64 {
	mean := meanOf(y)
	var ssRes, ssTot float64
	for i := range y {
		ssRes += (y[i] - pred[i]) * (y[i] - pred[i])
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// evaluate scores predictions on train and test sets into a Metrics record.
func evaluate(trainY, trainPred, testY, testPred []float64, finalLoss float64) model.Metrics {
	return model.Metrics{
		TrainR2:   r2Score(trainY, trainPred),
		TestR2:    r2Score(testY, testPred),
		TrainRMSE: math.Sqrt(mseOf(trainY, trainPred)),
		TestRMSE:  math.Sqrt(mseOf(testY, testPred)),
		FinalLoss: finalLoss,
	}
}
