package quality

import (
	"math"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// tableSeparators are the glyphs counted when deciding whether a line is tabular
var tableSeparators = []string{
	"|", "\t", "  ", ":", "-",
	"│", "─", "┼", "├", "┤", "┬", "┴", "┌", "┐", "└", "┘",
}

const (
	minSeparatorsPerLine = 2
	minTableLines        = 2
	minTotalSeparators   = 4
)

// countSeparators returns the number of separator occurrences in line
func countSeparators(line string) int {
	n := 0
	for _, sep := range tableSeparators {
		n += strings.Count(line, sep)
	}
	return n
}

// AnalyzeTableStructure judges whether text contains tables and whether
// their column alignment survived extraction.
func (a *Assessor) AnalyzeTableStructure(text string) model.TableAnalysis {
	lines := strings.Split(text, "\n")

	var counts []int
	total, tables, run := 0, 0, 0
	for _, line := range lines {
		n := countSeparators(line)
		if n < minSeparatorsPerLine {
			if run >= minTableLines {
				tables++
			}
			run = 0
			continue
		}
		counts = append(counts, n)
		total += n
		run++
	}
	if run >= minTableLines {
		tables++
	}

	analysis := model.TableAnalysis{
		HasTables:  len(counts) >= minTableLines && total >= minTotalSeparators,
		TableCount: tables,
		Confidence: alignmentConsistency(counts),
	}
	analysis.StructurePreserved = analysis.Confidence > a.opts.TableAlignmentThreshold
	if !analysis.HasTables {
		analysis.TableCount = 0
	}

	return analysis
}

// alignmentConsistency is 1 - coefficient of variation of per-line separator
// counts, clamped to [0,1]. Fewer than two lines are trivially consistent.
func alignmentConsistency(counts []int) float64 {
	if len(counts) < 2 {
		return 1.0
	}

	mean := 0.0
	for _, c := range counts {
		mean += float64(c)
	}
	mean /= float64(len(counts))
	if mean == 0 {
		return 1.0
	}

	variance := 0.0
	for _, c := range counts {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(counts))

	return clamp01(1 - math.Min(1, math.Sqrt(variance)/mean))
}
