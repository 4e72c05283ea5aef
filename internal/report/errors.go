package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/accuracy"
)

// CreateErrorAnalysisSection renders the per-engine error analysis as a
// markdown section for the detailed report. Empty when there is nothing to show.
func (r *Reporter) CreateErrorAnalysisSection(analyses map[string]accuracy.ErrorAnalysis) string {
	if len(analyses) == 0 {
		return ""
	}

	names := make([]string, 0, len(analyses))
	for name := range analyses {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("## Error Analysis\n\n")
	for _, name := range names {
		a := analyses[name]
		fmt.Fprintf(&b, "### %s\n\n", name)
		if a.Clean() {
			b.WriteString("No differences from the reference text.\n\n")
			continue
		}
		writeCounts(&b, "Character substitutions", a.CharacterErrors.Substitutions)
		writeCounts(&b, "Missing characters", a.CharacterErrors.Deletions)
		writeCounts(&b, "Extra characters", a.CharacterErrors.Insertions)
		writeCounts(&b, "Word substitutions", a.WordErrors.Substitutions)
		writeCounts(&b, "Missing words", a.WordErrors.Missing)
		writeCounts(&b, "Extra words", a.WordErrors.Extra)
		if len(a.ScriptSpecificErrors) > 0 {
			pairs := make([]string, len(a.ScriptSpecificErrors))
			for i, c := range a.ScriptSpecificErrors {
				pairs[i] = fmt.Sprintf("%s/%s (%d)", c.Pair[0], c.Pair[1], c.Count)
			}
			fmt.Fprintf(&b, "- %s confusions: %s\n", r.opts.TargetScript, strings.Join(pairs, ", "))
		}
		s := a.StructuralErrors
		fmt.Fprintf(&b, "- Lines: %d extracted, %d expected\n\n", s.ExtractedLines, s.ReferenceLines)
	}
	return b.String()
}

func writeCounts(b *strings.Builder, label string, counts []accuracy.Count) {
	if len(counts) == 0 {
		return
	}
	items := make([]string, len(counts))
	for i, c := range counts {
		items[i] = fmt.Sprintf("%s (%d)", escapeCell(c.Item), c.Count)
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}
