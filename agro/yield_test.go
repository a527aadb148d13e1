package agro

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPredictYieldNoFeatures(t *testing.T) {
	p := PredictYield(nil, "corn")

	if !almostEqual(p.PredictedYield, 8.5) {
		t.Errorf("predicted = %v, want base yield 8.5", p.PredictedYield)
	}
	if !almostEqual(p.Confidence, 0.6) {
		t.Errorf("confidence = %v, want floor 0.6", p.Confidence)
	}
	if !almostEqual(p.Uncertainty.LowerBound, 7.82) || !almostEqual(p.Uncertainty.UpperBound, 9.18) {
		t.Errorf("bounds = [%v, %v], want [7.82, 9.18]", p.Uncertainty.LowerBound, p.Uncertainty.UpperBound)
	}
	if !almostEqual(p.Uncertainty.StdDeviation, 0.34) {
		t.Errorf("std = %v, want 0.34", p.Uncertainty.StdDeviation)
	}
	if len(p.FeatureImportance) != 0 {
		t.Errorf("importance = %v, want empty", p.FeatureImportance)
	}
}

func TestPredictYieldCropFactors(t *testing.T) {
	tests := []struct {
		crop string
		want float64
	}{
		{"corn", 8.5},
		{"soybean", 5.95},
		{"wheat", 7.65},
		{"rice", 9.35},
		{"SOYBEAN", 5.95}, // case-insensitive
		{"quinoa", 8.5},   // unknown crop: neutral factor
	}
	for _, tt := range tests {
		p := PredictYield(nil, tt.crop)
		if !almostEqual(p.PredictedYield, tt.want) {
			t.Errorf("PredictYield(%s) = %v, want %v", tt.crop, p.PredictedYield, tt.want)
		}
	}
}

func TestPredictYieldAtFeatureMeans(t *testing.T) {
	// Every feature sitting exactly on its scaler mean contributes zero;
	// completeness is full so confidence caps out.
	features := map[string]float64{
		"weather_temp": 20, "weather_rainfall": 500, "weather_humidity": 65,
		"weather_gdd": 1500, "soil_ph": 6.8, "soil_om": 3.0, "soil_n": 30,
		"soil_p": 25, "satellite_ndvi": 0.7, "satellite_evi": 0.5,
		"field_area": 100, "planting_doy": 120,
	}
	p := PredictYield(features, "corn")

	if !almostEqual(p.PredictedYield, 8.5) {
		t.Errorf("predicted = %v, want 8.5", p.PredictedYield)
	}
	if !almostEqual(p.Confidence, 0.95) {
		t.Errorf("confidence = %v, want cap 0.95", p.Confidence)
	}
	for name, imp := range p.FeatureImportance {
		if imp != 0 {
			t.Errorf("importance[%s] = %v, want 0 at the mean", name, imp)
		}
	}
}

func TestPredictYieldSingleFeature(t *testing.T) {
	// NDVI one standard deviation above the mean adds exactly its weight.
	p := PredictYield(map[string]float64{"satellite_ndvi": 0.9}, "corn")

	if !almostEqual(p.PredictedYield, 8.8) {
		t.Errorf("predicted = %v, want 8.8", p.PredictedYield)
	}
	if !almostEqual(p.Confidence, 0.629) {
		t.Errorf("confidence = %v, want 0.629", p.Confidence)
	}
	if !almostEqual(p.FeatureImportance["satellite_ndvi"], 1.0) {
		t.Errorf("importance = %v, want the sole feature at 1.0", p.FeatureImportance)
	}
}

func TestPredictYieldClampedAtZero(t *testing.T) {
	p := PredictYield(map[string]float64{"weather_rainfall": -7000}, "corn")
	if p.PredictedYield != 0 {
		t.Errorf("predicted = %v, want clamp at 0", p.PredictedYield)
	}
}
