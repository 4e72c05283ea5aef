package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Placeholder markers written into fields awaiting reviewer input
const (
	PlaceholderCorrectText = "[ENTER CORRECT TEXT]"
	PlaceholderScore       = "[1-10]"
	PlaceholderComments    = "[YOUR COMMENTS]"
	PlaceholderIssues      = "[ISSUES]"
)

// FormHeader is the column layout of the evaluation form
var FormHeader = []string{
	"Page", "Engine", "Extracted_Text", "Correct_Text",
	"Accuracy_Score", "Comments", "Issues_Found", "Confidence_Score",
}

var formInstructions = []string{
	"# OCR EVALUATION FORM",
	"#",
	"# For each row:",
	"#   Correct_Text     replace the placeholder with the correct text if the extraction is wrong",
	"#   Accuracy_Score   rate the extraction from 1 (unusable) to 10 (perfect)",
	"#   Comments         anything a reviewer should know about this page",
	"#   Issues_Found     short tags such as missing_text, wrong_characters, broken_table",
	"#",
	"# Rows whose Accuracy_Score still reads [1-10] are ignored.",
	"# Lines starting with # are comments.",
}

// Row is one (page, engine) line of the evaluation form
type Row struct {
	Page            int
	Engine          string
	ExtractedText   string
	CorrectText     string
	AccuracyScore   string
	Comments        string
	IssuesFound     string
	ConfidenceScore float64
}

// Form is an evaluation form awaiting (or carrying) reviewer input
type Form struct {
	Rows []Row
}

// GenerateEvaluationForm emits one row per (page, engine), ordered by page then engine name
func (m *Manager) GenerateEvaluationForm(results map[string][]*model.OCRResult) *Form {
	form := &Form{}
	for engine, pages := range results {
		for _, r := range pages {
			if r == nil {
				continue
			}
			form.Rows = append(form.Rows, Row{
				Page:            r.PageNumber,
				Engine:          engine,
				ExtractedText:   truncate(r.Text, m.opts.FormTextCap),
				CorrectText:     PlaceholderCorrectText,
				AccuracyScore:   PlaceholderScore,
				Comments:        PlaceholderComments,
				IssuesFound:     PlaceholderIssues,
				ConfidenceScore: r.ConfidenceScore,
			})
		}
	}

	sort.Slice(form.Rows, func(i, j int) bool {
		if form.Rows[i].Page != form.Rows[j].Page {
			return form.Rows[i].Page < form.Rows[j].Page
		}
		return form.Rows[i].Engine < form.Rows[j].Engine
	})

	m.logger.Info("Generated evaluation form", "rows", len(form.Rows), "engines", len(results))
	return form
}

// WriteCSV writes the header, the instruction block and one record per row
func (f *Form) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(FormHeader); err != nil {
		return fmt.Errorf("failed to write form header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to write form header: %w", err)
	}

	if _, err := io.WriteString(w, strings.Join(formInstructions, "\n")+"\n"); err != nil {
		return fmt.Errorf("failed to write form instructions: %w", err)
	}

	for _, r := range f.Rows {
		record := []string{
			strconv.Itoa(r.Page),
			r.Engine,
			r.ExtractedText,
			r.CorrectText,
			r.AccuracyScore,
			r.Comments,
			r.IssuesFound,
			strconv.FormatFloat(r.ConfidenceScore, 'f', 3, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write form row (page %d, %s): %w", r.Page, r.Engine, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ParseForm reads a (possibly reviewer-edited) form back. Comment lines are
// skipped; short records are padded so trailing empty columns may be omitted.
func ParseForm(r io.Reader) (*Form, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewInvalidFeedbackError("form is empty", nil)
	}
	if err != nil {
		return nil, errors.NewInvalidFeedbackError("unreadable form header", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	form := &Form{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewInvalidFeedbackError(fmt.Sprintf("malformed record %d", line), err)
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		for len(record) < len(FormHeader) {
			record = append(record, "")
		}

		page, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, errors.NewInvalidFeedbackError(fmt.Sprintf("record %d has invalid page %q", line, record[0]), err)
		}
		confidence, _ := strconv.ParseFloat(strings.TrimSpace(record[7]), 64)

		form.Rows = append(form.Rows, Row{
			Page:            page,
			Engine:          strings.TrimSpace(record[1]),
			ExtractedText:   record[2],
			CorrectText:     record[3],
			AccuracyScore:   strings.TrimSpace(record[4]),
			Comments:        record[5],
			IssuesFound:     record[6],
			ConfidenceScore: confidence,
		})
	}

	return form, nil
}

func checkHeader(header []string) error {
	if len(header) < len(FormHeader) {
		return errors.NewInvalidFeedbackError(fmt.Sprintf("form header has %d columns, want %d", len(header), len(FormHeader)), nil)
	}
	for i, want := range FormHeader {
		if got := strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")); got != want {
			return errors.NewInvalidFeedbackError(fmt.Sprintf("form column %d is %q, want %q", i+1, got, want), nil)
		}
	}
	return nil
}

// isPlaceholder reports whether a field still holds a bracketed marker
func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

// truncate caps s at limit runes, marking the cut with "..."
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
