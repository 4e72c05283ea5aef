package quality

import (
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

const maxSummaryRecommendations = 10

// Summary aggregates the QualityReports of one run
type Summary struct {
	EngineCount       int      `json:"engine_count"`
	BestEngine        string   `json:"best_engine"`
	BestScore         float64  `json:"best_score"`
	WorstEngine       string   `json:"worst_engine"`
	WorstScore        float64  `json:"worst_score"`
	AverageScriptRate float64  `json:"average_script_rate"`
	AverageConfidence float64  `json:"average_confidence"`
	CommonIssues      []string `json:"common_issues"`
	Recommendations   []string `json:"recommendations"`
}

// CompareQualityReports summarizes reports. Best and worst ties resolve to
// the alphabetically first engine name.
func CompareQualityReports(reports []*model.QualityReport) Summary {
	summary := Summary{
		CommonIssues:    []string{},
		Recommendations: []string{},
	}

	var valid []*model.QualityReport
	for _, r := range reports {
		if r != nil {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return summary
	}
	summary.EngineCount = len(valid)

	best, worst := valid[0], valid[0]
	var scriptSum, confSum float64
	issueCounts := make(map[string]int)
	var issueOrder []string
	seenRec := make(map[string]bool)

	for _, r := range valid {
		if r.OverallScore > best.OverallScore ||
			(r.OverallScore == best.OverallScore && r.EngineName < best.EngineName) {
			best = r
		}
		if r.OverallScore < worst.OverallScore ||
			(r.OverallScore == worst.OverallScore && r.EngineName < worst.EngineName) {
			worst = r
		}

		scriptSum += r.ScriptDetectionRate
		confSum += r.ConfidenceAverage

		seenIssue := make(map[string]bool)
		for _, issue := range r.IssuesDetected {
			if seenIssue[issue] {
				continue
			}
			seenIssue[issue] = true
			if issueCounts[issue] == 0 {
				issueOrder = append(issueOrder, issue)
			}
			issueCounts[issue]++
		}

		for _, rec := range r.Recommendations {
			if seenRec[rec] || len(summary.Recommendations) >= maxSummaryRecommendations {
				continue
			}
			seenRec[rec] = true
			summary.Recommendations = append(summary.Recommendations, rec)
		}
	}

	n := float64(len(valid))
	summary.BestEngine, summary.BestScore = best.EngineName, best.OverallScore
	summary.WorstEngine, summary.WorstScore = worst.EngineName, worst.OverallScore
	summary.AverageScriptRate = scriptSum / n
	summary.AverageConfidence = confSum / n

	for _, issue := range issueOrder {
		if issueCounts[issue]*2 > len(valid) {
			summary.CommonIssues = append(summary.CommonIssues, issue)
		}
	}

	return summary
}
