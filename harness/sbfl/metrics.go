package sbfl

import (
	"fmt"
	"math"
)

// Metric selects a suspiciousness formula. All metrics are functions of
// ef (failing tests covering the line), ep (passing tests covering the
// line), F (total failing) and P (total passing), and all share one
// convention: a zero denominator scores 0, never a division error, so
// rankings stay deterministic across metrics.
type Metric string

const (
	Ochiai    Metric = "ochiai"
	Tarantula Metric = "tarantula"
	DStar     Metric = "dstar"
	Jaccard   Metric = "jaccard"
)

// dstarExponent is the conventional star value for DStar.
const dstarExponent = 2

// ParseMetric maps a metric name to a Metric.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case Ochiai, Tarantula, DStar, Jaccard:
		return Metric(name), nil
	}
	return "", fmt.Errorf("unknown suspiciousness metric %q", name)
}

// Score computes the metric over the spectrum counts.
func (m Metric) Score(ef, ep, totalFailing, totalPassing int) float64 {
	switch m {
	case Tarantula:
		return tarantula(ef, ep, totalFailing, totalPassing)
	case DStar:
		return dstar(ef, ep, totalFailing)
	case Jaccard:
		return jaccard(ef, ep, totalFailing)
	default:
		return ochiai(ef, ep, totalFailing)
	}
}

// ochiai: ef / sqrt(F * (ef + ep)), in [0, 1]. A line covered by every
// failing test and no passing test scores 1.
func ochiai(ef, ep, totalFailing int) float64 {
	denom := math.Sqrt(float64(totalFailing) * float64(ef+ep))
	if denom == 0 {
		return 0
	}
	return float64(ef) / denom
}

// tarantula: (ef/F) / ((ef/F) + (ep/P)), in [0, 1]. With no passing
// tests the pass ratio term is taken as 0.
func tarantula(ef, ep, totalFailing, totalPassing int) float64 {
	if totalFailing == 0 {
		return 0
	}
	failRatio := float64(ef) / float64(totalFailing)
	passRatio := 0.0
	if totalPassing > 0 {
		passRatio = float64(ep) / float64(totalPassing)
	}
	denom := failRatio + passRatio
	if denom == 0 {
		return 0
	}
	return failRatio / denom
}

// dstar: ef^2 / (ep + (F - ef)). Unbounded above, 0 on a zero
// denominator.
func dstar(ef, ep, totalFailing int) float64 {
	denom := float64(ep + (totalFailing - ef))
	if denom == 0 {
		return 0
	}
	return math.Pow(float64(ef), dstarExponent) / denom
}

// jaccard: ef / (F + ep), in [0, 1].
func jaccard(ef, ep, totalFailing int) float64 {
	denom := float64(totalFailing + ep)
	if denom == 0 {
		return 0
	}
	return float64(ef) / denom
}
