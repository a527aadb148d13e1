// Package agro provides weighted-sum agronomic inference over farm data:
// yield prediction, vegetation stress analysis, and irrigation scheduling.
// All functions are pure; model tables are fixed constants.
package agro

import (
	"math"
	"strings"
)

// yieldWeights are the per-feature contributions of the yield model.
var yieldWeights = map[string]float64{
	"weather_temp":     0.15,
	"weather_rainfall": 0.25,
	"weather_humidity": 0.08,
	"weather_gdd":      0.20,
	"soil_ph":          0.10,
	"soil_om":          0.12,
	"soil_n":           0.18,
	"soil_p":           0.08,
	"satellite_ndvi":   0.30,
	"satellite_evi":    0.15,
	"field_area":       0.05,
	"planting_doy":     0.08,
}

const baseYield = 8.5

var cropFactors = map[string]float64{
	"corn":    1.0,
	"soybean": 0.7,
	"wheat":   0.9,
	"rice":    1.1,
}

// scaler holds z-score normalization parameters for one feature.
type scaler struct {
	mean, std float64
}

var featureScalers = map[string]scaler{
	"weather_temp":     {20.0, 8.0},
	"weather_rainfall": {500.0, 200.0},
	"weather_humidity": {65.0, 15.0},
	"weather_gdd":      {1500.0, 400.0},
	"soil_ph":          {6.8, 0.8},
	"soil_om":          {3.0, 1.5},
	"soil_n":           {30.0, 15.0},
	"soil_p":           {25.0, 10.0},
	"satellite_ndvi":   {0.7, 0.2},
	"satellite_evi":    {0.5, 0.15},
	"field_area":       {100.0, 50.0},
	"planting_doy":     {120.0, 30.0},
}

// Uncertainty bounds a prediction.
type Uncertainty struct {
	LowerBound   float64 `json:"lowerBound"`
	UpperBound   float64 `json:"upperBound"`
	StdDeviation float64 `json:"stdDeviation"`
}

// YieldPrediction is the result of PredictYield.
type YieldPrediction struct {
	PredictedYield    float64            `json:"predictedYield"`
	Confidence        float64            `json:"confidence"`
	Uncertainty       Uncertainty        `json:"uncertainty"`
	FeatureImportance map[string]float64 `json:"featureImportance"`
	CropType          string             `json:"cropType"`
	CropFactor        float64            `json:"cropFactor"`
	BaseYield         float64            `json:"baseYield"`
}

// PredictYield estimates yield (t/ha) from normalized weather, soil,
// satellite, and field features. Unknown crop types fall back to a neutral
// crop factor. Confidence scales with feature completeness.
func PredictYield(features map[string]float64, cropType string) YieldPrediction {
	normalized := make(map[string]float64, len(features))
	for name, value := range features {
		if sc, ok := featureScalers[name]; ok {
			normalized[name] = (value - sc.mean) / sc.std
		} else {
			normalized[name] = value
		}
	}

	prediction := baseYield
	totalWeight := 0.0
	for name, weight := range yieldWeights {
		if v, ok := normalized[name]; ok {
			prediction += v * weight
			totalWeight += math.Abs(weight)
		}
	}

	factor, ok := cropFactors[strings.ToLower(cropType)]
	if !ok {
		factor = 1.0
	}
	prediction *= factor
	prediction = math.Max(0, prediction)

	present := 0
	for name := range yieldWeights {
		if _, ok := features[name]; ok {
			present++
		}
	}
	completeness := float64(present) / float64(len(yieldWeights))
	confidence := math.Min(0.95, 0.6+completeness*0.35)

	uf := 1 - confidence
	importance := make(map[string]float64)
	for name, weight := range yieldWeights {
		if v, ok := normalized[name]; ok {
			if totalWeight > 0 {
				importance[name] = math.Abs(v*weight) / totalWeight
			} else {
				importance[name] = 0
			}
		}
	}

	return YieldPrediction{
		PredictedYield: round(prediction, 2),
		Confidence:     round(confidence, 3),
		Uncertainty: Uncertainty{
			LowerBound:   round(prediction*(1-uf*0.2), 2),
			UpperBound:   round(prediction*(1+uf*0.2), 2),
			StdDeviation: round(prediction*uf*0.1, 2),
		},
		FeatureImportance: importance,
		CropType:          cropType,
		CropFactor:        factor,
		BaseYield:         baseYield,
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
