package report

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

const dashboardCSS = `
body { font-family: -apple-system, "Segoe UI", "Noto Sans Devanagari", sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.generated { color: #777; margin-top: 0; }
.highlights { display: flex; gap: 1rem; margin: 1.5rem 0; }
.card { flex: 1; border: 1px solid #ddd; border-radius: 6px; padding: 1rem; background: #fafafa; }
.card .label { font-size: 0.85rem; color: #666; }
.card .value { font-size: 1.4rem; font-weight: 600; }
.card .detail { font-size: 0.85rem; color: #444; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 0.45rem 0.6rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
th { background: #f0f0f0; }
tr.tier-high { background: #e6f4ea; }
tr.tier-medium { background: #fff8e1; }
tr.tier-low { background: #fdecea; }
`

// tier classifies a quality (or confidence) score for row styling
func tier(score float64) string {
	switch {
	case score >= 0.8:
		return "tier-high"
	case score >= 0.6:
		return "tier-medium"
	default:
		return "tier-low"
	}
}

// GeneratePerformanceDashboard renders a self-contained HTML page with the
// comparison table and four headline highlights.
func (r *Reporter) GeneratePerformanceDashboard(results map[string][]*model.OCRResult, qualityReports map[string]*model.QualityReport) (string, error) {
	rows := r.CreateEngineComparisonTable(results, qualityReports)

	body := element(atom.Body, nil,
		element(atom.H1, nil, text("OCR Engine Performance Dashboard")),
		element(atom.P, attrs("class", "generated"),
			text("Generated "+r.now().Format("2006-01-02 15:04:05 MST"))),
	)

	if len(rows) == 0 {
		body.AppendChild(element(atom.P, nil, text("No engine produced results.")))
	} else {
		h := summarize(rows)
		body.AppendChild(element(atom.Div, attrs("class", "highlights"),
			card("Highest confidence", h.BestConfidence.Engine, fmt.Sprintf("%.1f%% mean confidence", h.BestConfidence.AvgConfidence*100)),
			card("Fastest", h.Fastest.Engine, fmt.Sprintf("%.2f s per page", h.Fastest.AvgProcessingTime)),
			card("Most text extracted", h.MostText.Engine, fmt.Sprintf("%d characters", h.MostText.TotalCharacters)),
			card("Engines compared", fmt.Sprintf("%d", h.EngineCount), ""),
		))
		body.AppendChild(element(atom.H2, nil, text("Engine comparison")))
		body.AppendChild(r.comparisonTable(rows))
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(element(atom.Html, attrs("lang", "en"),
		element(atom.Head, nil,
			element(atom.Meta, attrs("charset", "utf-8")),
			element(atom.Title, nil, text("OCR Engine Performance Dashboard")),
			element(atom.Style, nil, text(dashboardCSS)),
		),
		body,
	))

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", fmt.Errorf("failed to render dashboard: %w", err)
	}
	return sb.String(), nil
}

func (r *Reporter) comparisonTable(rows []Row) *html.Node {
	header := element(atom.Tr, nil)
	for _, h := range []string{"Engine", "Pages", "Avg confidence", "Avg time (s)", "Characters",
		"Chars/s", "Quality score", "Script detection", "Cost/page", "Script support"} {
		header.AppendChild(element(atom.Th, nil, text(h)))
	}

	tbody := element(atom.Tbody, nil)
	for _, row := range rows {
		score := row.AvgConfidence
		quality, script := "n/a", "n/a"
		if row.HasQuality {
			score = row.QualityScore
			quality = fmt.Sprintf("%.3f", row.QualityScore)
			script = fmt.Sprintf("%.1f%%", row.ScriptDetectionRate*100)
		}
		cost := "unknown"
		if row.CostKnown {
			cost = fmt.Sprintf("$%.4f", row.CostPerPage)
		}

		tr := element(atom.Tr, attrs("class", tier(score)))
		for _, cell := range []string{
			row.Engine,
			fmt.Sprintf("%d", row.PagesProcessed),
			fmt.Sprintf("%.1f%%", row.AvgConfidence*100),
			fmt.Sprintf("%.2f", row.AvgProcessingTime),
			fmt.Sprintf("%d", row.TotalCharacters),
			fmt.Sprintf("%.1f", row.CharactersPerSecond),
			quality,
			script,
			cost,
			row.ScriptSupport,
		} {
			tr.AppendChild(element(atom.Td, nil, text(cell)))
		}
		tbody.AppendChild(tr)
	}

	return element(atom.Table, nil, element(atom.Thead, nil, header), tbody)
}

func card(label, value, detail string) *html.Node {
	n := element(atom.Div, attrs("class", "card"),
		element(atom.Div, attrs("class", "label"), text(label)),
		element(atom.Div, attrs("class", "value"), text(value)),
	)
	if detail != "" {
		n.AppendChild(element(atom.Div, attrs("class", "detail"), text(detail)))
	}
	return n
}

// element builds an HTML element node with children
func element(a atom.Atom, attr []html.Attribute, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attr}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// attrs builds an attribute list from key/value pairs
func attrs(kv ...string) []html.Attribute {
	out := make([]html.Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return out
}
