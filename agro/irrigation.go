package agro

import "math"

// ForecastDay is one day of weather forecast input.
type ForecastDay struct {
	Precipitation float64 `json:"precipitation"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
}

// FieldConditions describes the inputs to the water-balance model. Zero
// values for SoilMoisture, FieldCapacity, WiltingPoint, and CropStage are
// replaced by the model defaults.
type FieldConditions struct {
	SoilMoisture  float64       `json:"soilMoisture"`  // volumetric fraction
	CropStage     string        `json:"cropStage"`     // germination..maturity
	Forecast      []ForecastDay `json:"forecast"`      // upcoming days, first 7 used
	FieldCapacity float64       `json:"fieldCapacity"` // volumetric fraction
	WiltingPoint  float64       `json:"wiltingPoint"`  // volumetric fraction
}

// stageRequirements are relative crop water requirements per growth stage.
var stageRequirements = map[string]float64{
	"germination": 0.3,
	"emergence":   0.4,
	"vegetative":  0.6,
	"flowering":   0.8,
	"fruiting":    0.7,
	"maturity":    0.4,
}

// IrrigationPlan is the result of OptimizeIrrigation.
type IrrigationPlan struct {
	IrrigationNeeded    bool     `json:"irrigationNeeded"`
	RecommendedAmount   float64  `json:"recommendedAmount"` // mm
	Urgency             string   `json:"urgency"`           // critical, high, moderate, low
	Timing              string   `json:"timing"`
	WaterStressLevel    float64  `json:"waterStressLevel"`
	ExpectedRainfall7d  float64  `json:"expectedRainfall7d"`
	AvgTemperature      float64  `json:"avgTemperature"`
	AvgHumidity         float64  `json:"avgHumidity"`
	EvapotransFactor    float64  `json:"evapotranspirationFactor"`
	BaseRequirement     float64  `json:"baseRequirement"`
	AdjustedRequirement float64  `json:"adjustedRequirement"`
	EfficiencyTips      []string `json:"efficiencyTips"`
}

// OptimizeIrrigation schedules irrigation from soil water balance and the
// short-term forecast. Amounts are offset against expected rainfall.
func OptimizeIrrigation(fc FieldConditions) IrrigationPlan {
	soilMoisture := fc.SoilMoisture
	if soilMoisture == 0 {
		soilMoisture = 0.3
	}
	stage := fc.CropStage
	if stage == "" {
		stage = "vegetative"
	}
	capacity := fc.FieldCapacity
	if capacity == 0 {
		capacity = 0.4
	}
	wilting := fc.WiltingPoint
	if wilting == 0 {
		wilting = 0.15
	}

	available := math.Max(0, soilMoisture-wilting)
	maxAvailable := capacity - wilting
	stress := 0.0
	if maxAvailable > 0 {
		stress = available / maxAvailable
	}

	baseReq, ok := stageRequirements[stage]
	if !ok {
		baseReq = 0.6
	}

	expectedRainfall := 0.0
	avgTemp := 25.0
	avgHumidity := 60.0
	if len(fc.Forecast) > 0 {
		days := fc.Forecast
		if len(days) > 7 {
			days = days[:7]
		}
		var tempSum, humSum float64
		for _, d := range days {
			expectedRainfall += d.Precipitation
			tempSum += d.Temperature
			humSum += d.Humidity
		}
		avgTemp = tempSum / float64(len(days))
		avgHumidity = humSum / float64(len(days))
	}

	etFactor := 1.0
	if avgTemp > 30 {
		etFactor += 0.2
	} else if avgTemp < 15 {
		etFactor -= 0.2
	}
	if avgHumidity > 80 {
		etFactor -= 0.1
	} else if avgHumidity < 40 {
		etFactor += 0.1
	}
	adjustedReq := baseReq * etFactor

	var urgency, timing string
	var amount float64
	switch {
	case stress < 0.3:
		urgency = "critical"
		amount = (capacity - soilMoisture) * 1000
		timing = "immediate"
	case stress < 0.5:
		urgency = "high"
		amount = (capacity - soilMoisture) * 800
		timing = "within_24h"
	case stress < 0.7:
		urgency = "moderate"
		amount = adjustedReq * 600
		timing = "within_3_days"
	default:
		urgency = "low"
		amount = 0
		timing = "monitor"
	}

	if expectedRainfall > amount*0.8 && expectedRainfall > 0 {
		amount = 0
		timing = "delay_for_rain"
		urgency = "low"
	} else if expectedRainfall > 0 {
		amount = math.Max(0, amount-expectedRainfall)
	}

	var tips []string
	if urgency == "critical" || urgency == "high" {
		tips = append(tips, "Apply during early morning or evening to reduce evaporation")
	}
	if avgTemp > 30 {
		tips = append(tips, "Consider mulching to retain soil moisture")
	}
	if expectedRainfall > 10 {
		tips = append(tips, "Delay irrigation until after expected rainfall")
	}

	return IrrigationPlan{
		IrrigationNeeded:    amount > 0,
		RecommendedAmount:   round(amount, 1),
		Urgency:             urgency,
		Timing:              timing,
		WaterStressLevel:    round(stress, 2),
		ExpectedRainfall7d:  round(expectedRainfall, 1),
		AvgTemperature:      round(avgTemp, 1),
		AvgHumidity:         round(avgHumidity, 1),
		EvapotransFactor:    round(etFactor, 2),
		BaseRequirement:     baseReq,
		AdjustedRequirement: round(adjustedReq, 2),
		EfficiencyTips:      tips,
	}
}
