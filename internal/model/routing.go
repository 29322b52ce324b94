package model

// Preference constants for prediction routing. Any other value is treated as
// an explicit backend id.
const (
	PreferenceAuto     = "auto"
	PreferenceEnsemble = "ensemble"
)

// Priority constants for auto routing criteria.
const (
	PrioritySpeed        = "speed"
	PriorityAccuracy     = "accuracy"
	PriorityExperimental = "experimental"
	PriorityBalanced     = "balanced"
)

// Criteria guides backend selection when the preference is auto.
type Criteria struct {
	Priority string `json:"priority"`
}

// Features is the input vector for a prediction. Optional fields default to
// typical values when omitted.
type Features struct {
	MedianIncome float64 `json:"median_income"`
	HouseAge     float64 `json:"house_age"`
	AveRooms     float64 `json:"ave_rooms"`
	AveBedrooms  float64 `json:"ave_bedrms"`
	Population   float64 `json:"population"`
	AveOccupancy float64 `json:"ave_occup"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

// ApplyDefaults fills zero-valued fields with typical area values so that a
// sparse request still yields a usable vector.
func (f *Features) ApplyDefaults() {
	if f.MedianIncome == 0 {
		f.MedianIncome = 3.5
	}
	if f.HouseAge == 0 {
		f.HouseAge = 25
	}
	if f.AveRooms == 0 {
		f.AveRooms = 5
	}
	if f.AveBedrooms == 0 {
		f.AveBedrooms = 1
	}
	if f.Population == 0 {
		f.Population = 1500
	}
	if f.AveOccupancy == 0 {
		f.AveOccupancy = 3
	}
	if f.Latitude == 0 {
		f.Latitude = 35
	}
	if f.Longitude == 0 {
		f.Longitude = -120
	}
}

// Vector returns the features as an ordered slice, the order every backend
// trains and predicts against.
func (f Features) Vector() []float64 {
	return []float64{
		f.MedianIncome,
		f.HouseAge,
		f.AveRooms,
		f.AveBedrooms,
		f.Population,
		f.AveOccupancy,
		f.Latitude,
		f.Longitude,
	}
}

// FeatureCount is the dimensionality of the feature vector.
const FeatureCount = 8
