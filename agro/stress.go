package agro

import (
	"errors"
	"fmt"
	"math"
)

// Observation is one satellite NDVI sample.
type Observation struct {
	Date string  `json:"date"`
	NDVI float64 `json:"ndvi"`
}

// StressLevel classifies vegetation health from mean NDVI.
type StressLevel string

const (
	StressLow      StressLevel = "low"
	StressModerate StressLevel = "moderate"
	StressHigh     StressLevel = "high"
	StressSevere   StressLevel = "severe"
)

// Anomaly is an observation beyond two standard deviations of the mean.
type Anomaly struct {
	Date      string  `json:"date"`
	NDVI      float64 `json:"ndvi"`
	Deviation float64 `json:"deviation"`
	Type      string  `json:"type"` // "low" or "high"
}

// Trend summarizes the NDVI time-series direction.
type Trend struct {
	Direction    string  `json:"direction"` // improving, declining, stable
	Slope        float64 `json:"slope"`
	Significance string  `json:"significance"` // high, moderate, low
}

// StressStats carries the summary statistics behind an analysis.
type StressStats struct {
	MeanNDVI               float64 `json:"meanNdvi"`
	StdNDVI                float64 `json:"stdNdvi"`
	MinNDVI                float64 `json:"minNdvi"`
	MaxNDVI                float64 `json:"maxNdvi"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
}

// StressAnalysis is the result of AnalyzeStress.
type StressAnalysis struct {
	Level           StressLevel `json:"stressLevel"`
	Confidence      float64     `json:"confidence"`
	Statistics      StressStats `json:"statistics"`
	Trend           Trend       `json:"trend"`
	Anomalies       []Anomaly   `json:"anomalies"`
	Recommendations []string    `json:"recommendations"`
	Observations    int         `json:"observations"`
	DateRange       string      `json:"dateRange"`
}

// ErrInsufficientData is returned when fewer than three observations are
// available; trend and anomaly detection are meaningless below that.
var ErrInsufficientData = errors.New("at least 3 observations required for stress analysis")

// AnalyzeStress classifies crop stress from an NDVI time series: summary
// statistics, a least-squares trend, and 2-sigma anomaly detection.
func AnalyzeStress(observations []Observation) (StressAnalysis, error) {
	if len(observations) < 3 {
		return StressAnalysis{}, ErrInsufficientData
	}

	n := float64(len(observations))
	var sum float64
	minV, maxV := observations[0].NDVI, observations[0].NDVI
	for _, o := range observations {
		sum += o.NDVI
		minV = math.Min(minV, o.NDVI)
		maxV = math.Max(maxV, o.NDVI)
	}
	mean := sum / n

	var variance float64
	for _, o := range observations {
		d := o.NDVI - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)

	slope := leastSquaresSlope(observations)

	var level StressLevel
	switch {
	case mean > 0.7:
		level = StressLow
	case mean > 0.5:
		level = StressModerate
	case mean > 0.3:
		level = StressHigh
	default:
		level = StressSevere
	}

	var anomalies []Anomaly
	threshold := 2 * std
	for _, o := range observations {
		dev := math.Abs(o.NDVI - mean)
		if dev > threshold {
			typ := "high"
			if o.NDVI < mean {
				typ = "low"
			}
			anomalies = append(anomalies, Anomaly{Date: o.Date, NDVI: o.NDVI, Deviation: dev, Type: typ})
		}
	}

	direction := "stable"
	if slope > 0.01 {
		direction = "improving"
	} else if slope < -0.01 {
		direction = "declining"
	}
	significance := "low"
	if math.Abs(slope) > 0.02 {
		significance = "high"
	} else if math.Abs(slope) > 0.005 {
		significance = "moderate"
	}

	cov := 0.0
	if mean > 0 {
		cov = std / mean
	}

	return StressAnalysis{
		Level:      level,
		Confidence: math.Min(0.95, 0.7+(1-cov)*0.25),
		Statistics: StressStats{
			MeanNDVI:               round(mean, 3),
			StdNDVI:                round(std, 3),
			MinNDVI:                round(minV, 3),
			MaxNDVI:                round(maxV, 3),
			CoefficientOfVariation: round(cov, 3),
		},
		Trend: Trend{
			Direction:    direction,
			Slope:        round(slope, 4),
			Significance: significance,
		},
		Anomalies:       anomalies,
		Recommendations: stressRecommendations(level, direction, len(anomalies)),
		Observations:    len(observations),
		DateRange:       fmt.Sprintf("%s to %s", observations[0].Date, observations[len(observations)-1].Date),
	}, nil
}

// leastSquaresSlope fits NDVI against observation index.
func leastSquaresSlope(obs []Observation) float64 {
	n := float64(len(obs))
	var sumX, sumY, sumXY, sumXX float64
	for i, o := range obs {
		x := float64(i)
		sumX += x
		sumY += o.NDVI
		sumXY += x * o.NDVI
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func stressRecommendations(level StressLevel, direction string, anomalies int) []string {
	var recs []string
	switch level {
	case StressSevere:
		recs = append(recs,
			"Immediate irrigation required to prevent crop damage",
			"Consider emergency nutrient application",
			"Investigate potential pest or disease issues")
	case StressHigh:
		recs = append(recs,
			"Increase irrigation frequency",
			"Monitor for pest and disease pressure",
			"Consider stress-reducing treatments")
	case StressModerate:
		recs = append(recs,
			"Optimize irrigation timing",
			"Monitor crop development closely")
	}

	switch direction {
	case "declining":
		recs = append(recs,
			"Investigate causes of declining vegetation health",
			"Consider soil testing for nutrient deficiencies")
	case "improving":
		recs = append(recs, "Continue current management practices")
	}

	if anomalies > 2 {
		recs = append(recs,
			"High variability detected - investigate field uniformity",
			"Consider precision management approaches")
	}
	return recs
}
