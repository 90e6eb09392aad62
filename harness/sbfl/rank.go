package sbfl

import "sort"

// Score is a line's suspiciousness with the raw spectrum counts that
// produced it.
type Score struct {
	Line  int
	Score float64
	Ef    int // failing tests covering the line
	Ep    int // passing tests covering the line
	Nf    int // failing tests not covering the line
	Np    int // passing tests not covering the line
}

// Rank scores every line covered by any recorded test case and returns
// them ordered by descending score, ties broken by ascending line number.
// The ordering is a total order, so identical matrix contents always
// produce identical rankings. topN <= 0 returns all lines.
func (m *Matrix) Rank(metric Metric, topN int) []Score {
	totalFailing := m.NumFailing()
	totalPassing := m.NumPassing()

	var scores []Score
	for _, line := range m.AllLines() {
		ef, ep := m.Counts(line)
		scores = append(scores, Score{
			Line:  line,
			Score: metric.Score(ef, ep, totalFailing, totalPassing),
			Ef:    ef,
			Ep:    ep,
			Nf:    totalFailing - ef,
			Np:    totalPassing - ep,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Line < scores[j].Line
	})

	if topN > 0 && len(scores) > topN {
		scores = scores[:topN]
	}
	return scores
}
