package accuracy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Count is one error item and how often it occurred
type Count struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// CharacterErrors are rune-level differences, most frequent first.
// Substitutions are formatted "expected→got".
type CharacterErrors struct {
	Substitutions []Count `json:"substitutions"`
	Insertions    []Count `json:"insertions"`
	Deletions     []Count `json:"deletions"`
}

// WordErrors are word-level differences, most frequent first
type WordErrors struct {
	Substitutions []Count `json:"substitutions"`
	Missing       []Count `json:"missing"`
	Extra         []Count `json:"extra"`
}

// ConfusionCount counts substitutions between one confusable pair, in either direction
type ConfusionCount struct {
	Pair  [2]string `json:"pair"`
	Count int       `json:"count"`
}

// StructuralErrors compares the layout shape of the two texts
type StructuralErrors struct {
	ExtractedLines         int     `json:"extracted_lines"`
	ReferenceLines         int     `json:"reference_lines"`
	LineDifference         int     `json:"line_difference"`
	ExtractedSpaces        int     `json:"extracted_spaces"`
	ReferenceSpaces        int     `json:"reference_spaces"`
	SpaceDifference        int     `json:"space_difference"`
	ExtractedAvgLineLength float64 `json:"extracted_avg_line_length"`
	ReferenceAvgLineLength float64 `json:"reference_avg_line_length"`
}

// ErrorAnalysis is the categorized difference between an extraction and its reference
type ErrorAnalysis struct {
	CharacterErrors      CharacterErrors  `json:"character_errors"`
	WordErrors           WordErrors       `json:"word_errors"`
	ScriptSpecificErrors []ConfusionCount `json:"script_specific_errors"`
	StructuralErrors     StructuralErrors `json:"structural_errors"`
}

// GenerateErrorAnalysis aligns extracted against reference at character and word level
func (c *Calculator) GenerateErrorAnalysis(extracted, reference string) ErrorAnalysis {
	ext := Normalize(extracted)
	ref := Normalize(reference)

	subs, ins, dels := tally(), tally(), tally()
	for _, e := range alignRunes(c.dmp.DiffMain(ref, ext, false)) {
		switch {
		case e.expected != "" && e.got != "":
			subs.add(e.expected + "→" + e.got)
		case e.expected != "":
			dels.add(e.expected)
		default:
			ins.add(e.got)
		}
	}

	refWords := strings.Fields(ref)
	extWords := strings.Fields(ext)
	codec := newWordCodec()
	diffs := c.dmp.DiffMainRunes(codec.encode(refWords), codec.encode(extWords), false)
	wordSubs, missing, extra := tally(), tally(), tally()
	for _, e := range alignWords(diffs, codec) {
		switch {
		case e.expected != "" && e.got != "":
			wordSubs.add(e.expected + "→" + e.got)
		case e.expected != "":
			missing.add(e.expected)
		default:
			extra.add(e.got)
		}
	}

	top := c.opts.TopErrors
	return ErrorAnalysis{
		CharacterErrors: CharacterErrors{
			Substitutions: subs.top(top),
			Insertions:    ins.top(top),
			Deletions:     dels.top(top),
		},
		WordErrors: WordErrors{
			Substitutions: wordSubs.top(top),
			Missing:       missing.top(top),
			Extra:         extra.top(top),
		},
		ScriptSpecificErrors: c.confusions(subs),
		StructuralErrors:     structuralComparison(extracted, reference),
	}
}

// AnalyzeEngineErrors runs the error analysis over every page of one engine
// that has reference text, pages joined in page order. ok is false when no
// page has a reference.
func (c *Calculator) AnalyzeEngineErrors(results []*model.OCRResult, references map[int]string) (analysis ErrorAnalysis, ok bool) {
	sorted := make([]*model.OCRResult, 0, len(results))
	for _, r := range results {
		if r != nil && strings.TrimSpace(references[r.PageNumber]) != "" {
			sorted = append(sorted, r)
		}
	}
	if len(sorted) == 0 {
		return ErrorAnalysis{}, false
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	extracted := make([]string, len(sorted))
	reference := make([]string, len(sorted))
	for i, r := range sorted {
		extracted[i] = r.Text
		reference[i] = references[r.PageNumber]
	}
	return c.GenerateErrorAnalysis(strings.Join(extracted, "\n"), strings.Join(reference, "\n")), true
}

// Clean reports whether the analysis found no difference at all
func (a ErrorAnalysis) Clean() bool {
	return len(a.CharacterErrors.Substitutions) == 0 &&
		len(a.CharacterErrors.Insertions) == 0 &&
		len(a.CharacterErrors.Deletions) == 0 &&
		len(a.WordErrors.Substitutions) == 0 &&
		len(a.WordErrors.Missing) == 0 &&
		len(a.WordErrors.Extra) == 0
}

// confusions counts substitutions matching a configured pair in either direction
func (c *Calculator) confusions(subs *counter) []ConfusionCount {
	out := make([]ConfusionCount, 0, len(c.opts.ConfusablePairs))
	for _, pair := range c.opts.ConfusablePairs {
		n := subs.counts[pair[0]+"→"+pair[1]] + subs.counts[pair[1]+"→"+pair[0]]
		if n > 0 {
			out = append(out, ConfusionCount{Pair: pair, Count: n})
		}
	}
	return out
}

// edit is one aligned difference; empty expected is an insertion, empty got a deletion
type edit struct {
	expected string
	got      string
}

// alignRunes turns reference→extracted diffs into rune-level edits.
// A deletion immediately followed by an insertion is paired position by position.
func alignRunes(diffs []diffmatchpatch.Diff) []edit {
	var edits []edit
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			deleted := []rune(d.Text)
			var inserted []rune
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted = []rune(diffs[i+1].Text)
				i++
			}
			edits = append(edits, pairUp(runeStrings(deleted), runeStrings(inserted))...)
		case diffmatchpatch.DiffInsert:
			edits = append(edits, pairUp(nil, runeStrings([]rune(d.Text)))...)
		}
	}
	return edits
}

// alignWords is alignRunes over codec-encoded word sequences
func alignWords(diffs []diffmatchpatch.Diff, codec *wordCodec) []edit {
	var edits []edit
	for i := 0; i < len(diffs); i++ {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			deleted := codec.decode(d.Text)
			var inserted []string
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				inserted = codec.decode(diffs[i+1].Text)
				i++
			}
			edits = append(edits, pairUp(deleted, inserted)...)
		case diffmatchpatch.DiffInsert:
			edits = append(edits, pairUp(nil, codec.decode(d.Text))...)
		}
	}
	return edits
}

func pairUp(expected, got []string) []edit {
	n := max(len(expected), len(got))
	edits := make([]edit, 0, n)
	for i := 0; i < n; i++ {
		var e edit
		if i < len(expected) {
			e.expected = expected[i]
		}
		if i < len(got) {
			e.got = got[i]
		}
		edits = append(edits, e)
	}
	return edits
}

func runeStrings(rs []rune) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

func structuralComparison(extracted, reference string) StructuralErrors {
	extLines, extAvg := lineStats(extracted)
	refLines, refAvg := lineStats(reference)
	extSpaces := strings.Count(extracted, " ")
	refSpaces := strings.Count(reference, " ")

	return StructuralErrors{
		ExtractedLines:         extLines,
		ReferenceLines:         refLines,
		LineDifference:         abs(extLines - refLines),
		ExtractedSpaces:        extSpaces,
		ReferenceSpaces:        refSpaces,
		SpaceDifference:        abs(extSpaces - refSpaces),
		ExtractedAvgLineLength: extAvg,
		ReferenceAvgLineLength: refAvg,
	}
}

// lineStats returns the number of non-empty lines and their mean rune length
func lineStats(text string) (int, float64) {
	lines, total := 0, 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines++
		total += utf8.RuneCountInString(line)
	}
	if lines == 0 {
		return 0, 0
	}
	return lines, float64(total) / float64(lines)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

type counter struct {
	counts map[string]int
}

func tally() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(item string) {
	c.counts[item]++
}

// top returns the n most frequent items, ties by item
func (c *counter) top(n int) []Count {
	out := make([]Count, 0, len(c.counts))
	for item, count := range c.counts {
		out = append(out, Count{Item: item, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Item < out[j].Item
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
