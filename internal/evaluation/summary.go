package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// lowRatingThreshold is the mean rating below which further investigation is advised
const lowRatingThreshold = 6.0

// GenerateEvaluationSummary renders a markdown summary ranking engines by user rating
func (m *Manager) GenerateEvaluationSummary(reports map[string]*model.AccuracyReport) string {
	ranked := make([]*model.AccuracyReport, 0, len(reports))
	for name, r := range reports {
		if r == nil {
			continue
		}
		entry := *r
		if entry.EngineName == "" {
			entry.EngineName = name
		}
		ranked = append(ranked, &entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].UserRating != ranked[j].UserRating {
			return ranked[i].UserRating > ranked[j].UserRating
		}
		return ranked[i].EngineName < ranked[j].EngineName
	})

	var b strings.Builder
	b.WriteString("# OCR Evaluation Summary\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", m.now().Format("2006-01-02 15:04:05 MST"))

	if len(ranked) == 0 {
		b.WriteString("No evaluations were recorded.\n")
		return b.String()
	}

	b.WriteString("## Ranking\n\n")
	b.WriteString("| Rank | Engine | Rating | Character accuracy | Word accuracy |\n")
	b.WriteString("|---:|---|---:|---:|---:|\n")
	for i, r := range ranked {
		fmt.Fprintf(&b, "| %d | %s | %d/10 | %.1f%% | %.1f%% |\n",
			i+1, r.EngineName, r.UserRating, r.CharacterAccuracy*100, r.WordAccuracy*100)
	}

	b.WriteString("\n## Engine Details\n\n")
	for _, r := range ranked {
		fmt.Fprintf(&b, "### %s\n\n", r.EngineName)
		fmt.Fprintf(&b, "- User rating: %d/10\n", r.UserRating)
		fmt.Fprintf(&b, "- Character accuracy: %.1f%%\n", r.CharacterAccuracy*100)
		fmt.Fprintf(&b, "- Word accuracy: %.1f%%\n", r.WordAccuracy*100)
		if r.BLEUScore > 0 || r.EditDistance > 0 {
			fmt.Fprintf(&b, "- BLEU score: %.3f\n", r.BLEUScore)
			fmt.Fprintf(&b, "- Edit distance: %d\n", r.EditDistance)
		} else {
			b.WriteString("- BLEU score and edit distance: not computed\n")
		}
		if len(r.ManualCorrections) > 0 {
			fmt.Fprintf(&b, "- Manual corrections: %d pages\n", len(r.ManualCorrections))
		}
		if r.Comments != "" {
			fmt.Fprintf(&b, "- Comments: %s\n", r.Comments)
		}
		b.WriteString("\n")
	}

	var total int
	for _, r := range ranked {
		total += r.UserRating
	}
	mean := float64(total) / float64(len(ranked))
	best, worst := ranked[0], ranked[len(ranked)-1]

	b.WriteString("## Recommendations\n\n")
	fmt.Fprintf(&b, "- Best rated engine: %s (%d/10)\n", best.EngineName, best.UserRating)
	if len(ranked) > 1 {
		fmt.Fprintf(&b, "- Lowest rated engine: %s (%d/10)\n", worst.EngineName, worst.UserRating)
	}
	fmt.Fprintf(&b, "- Mean rating across engines: %.1f/10\n", mean)
	if mean < lowRatingThreshold {
		b.WriteString("- Ratings are low overall; investigate image quality and language settings before relying on these engines\n")
	}

	return b.String()
}
