// Package metrics aggregates the results and verdicts of a run.
package metrics

import "github.com/spboyer/promptbench/internal/models"

// RunSummary aggregates the settled results of a run. Latency and token
// figures only cover completed results.
type RunSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`

	TokensIn  int `json:"tokensIn"`
	TokensOut int `json:"tokensOut"`

	// Cost is nil when no completed result reported one.
	Cost *float64 `json:"cost"`

	MeanLatencyMs   float64 `json:"meanLatencyMs"`
	MedianLatencyMs float64 `json:"medianLatencyMs"`
	// Fastest and Slowest are -1 when nothing completed.
	Fastest int `json:"fastest"`
	Slowest int `json:"slowest"`
}

// Summarize computes a RunSummary for run.
func Summarize(run *models.Run) RunSummary {
	s := RunSummary{Total: len(run.Results), Fastest: -1, Slowest: -1}

	var latencies []float64
	for i, r := range run.Results {
		switch r.Status {
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
			continue
		default:
			s.Pending++
			continue
		}

		s.TokensIn += r.TokensIn
		s.TokensOut += r.TokensOut
		if r.Cost != nil {
			total := *r.Cost
			if s.Cost != nil {
				total += *s.Cost
			}
			s.Cost = &total
		}

		latencies = append(latencies, float64(r.LatencyMs))
		if s.Fastest < 0 || r.LatencyMs < run.Results[s.Fastest].LatencyMs {
			s.Fastest = i
		}
		if s.Slowest < 0 || r.LatencyMs > run.Results[s.Slowest].LatencyMs {
			s.Slowest = i
		}
	}

	s.MeanLatencyMs = Mean(latencies)
	s.MedianLatencyMs = Median(latencies)
	return s
}

// VerdictSummary aggregates a validation pass.
type VerdictSummary struct {
	Graded      int     `json:"graded"`
	Passed      int     `json:"passed"`
	PassRate    float64 `json:"passRate"`
	MeanScore   float64 `json:"meanScore"`
	ScoreStdDev float64 `json:"scoreStdDev"`
}

// SummarizeVerdicts computes a VerdictSummary. An empty pass has a zero
// pass rate.
func SummarizeVerdicts(verdicts []models.Verdict) VerdictSummary {
	s := VerdictSummary{Graded: len(verdicts)}
	if s.Graded == 0 {
		return s
	}

	scores := make([]float64, len(verdicts))
	for i, v := range verdicts {
		if v.Passed {
			s.Passed++
		}
		scores[i] = v.Score
	}
	s.PassRate = float64(s.Passed) / float64(s.Graded)
	s.MeanScore = Mean(scores)
	s.ScoreStdDev = StdDev(scores)
	return s
}
