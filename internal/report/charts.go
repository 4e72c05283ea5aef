package report

import (
	stderrors "errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// Chart file names returned by GenerateCharts
const (
	ChartConfidence      = "confidence_by_engine.svg"
	ChartProcessingTime  = "processing_time_by_engine.svg"
	ChartQualityVsSpeed  = "quality_vs_speed.svg"
	ChartScriptDetection = "script_detection_by_engine.svg"
)

const (
	chartWidth  = 640
	chartHeight = 360
	chartMargin = 50
)

// GenerateCharts renders the comparison charts as standalone SVG documents.
// Charting is best-effort: a failing chart is left out and reported in the
// returned error while the others are still returned.
func (r *Reporter) GenerateCharts(results map[string][]*model.OCRResult, qualityReports map[string]*model.QualityReport) (map[string]string, error) {
	rows := r.CreateEngineComparisonTable(results, qualityReports)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Engine < rows[j].Engine })

	charts := make(map[string]string)
	if len(rows) == 0 {
		return charts, nil
	}

	builders := []struct {
		name  string
		build func() *html.Node
	}{
		{ChartConfidence, func() *html.Node {
			return barChart("Mean confidence by engine", rows, func(row Row) float64 { return row.AvgConfidence }, 1.0, "%.2f")
		}},
		{ChartProcessingTime, func() *html.Node {
			return barChart("Mean processing time per page (s)", rows, func(row Row) float64 { return row.AvgProcessingTime }, 0, "%.2f")
		}},
		{ChartScriptDetection, func() *html.Node {
			return barChart(r.opts.TargetScript+" detection rate by engine", rows, func(row Row) float64 { return row.ScriptDetectionRate }, 1.0, "%.2f")
		}},
		{ChartQualityVsSpeed, func() *html.Node {
			return scatterChart("Quality vs speed", rows)
		}},
	}

	var errs []error
	for _, b := range builders {
		svg, err := renderChart(b.build)
		if err != nil {
			r.logger.Warn("Chart generation failed", "chart", b.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
			continue
		}
		charts[b.name] = svg
	}

	return charts, stderrors.Join(errs...)
}

func renderChart(build func() *html.Node) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chart panicked: %v", r)
		}
	}()

	var sb strings.Builder
	if err := html.Render(&sb, build()); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// barChart draws one vertical bar per row. A zero max scales to the largest value.
func barChart(title string, rows []Row, value func(Row) float64, max float64, format string) *html.Node {
	if max <= 0 {
		for _, row := range rows {
			max = math.Max(max, value(row))
		}
		if max == 0 {
			max = 1
		}
	}

	svg := svgRoot(title)
	plotW := float64(chartWidth - 2*chartMargin)
	plotH := float64(chartHeight - 2*chartMargin)
	slot := plotW / float64(len(rows))
	barW := slot * 0.6

	svg.AppendChild(axes())
	for i, row := range rows {
		v := math.Max(0, value(row))
		h := plotH * math.Min(v/max, 1)
		x := float64(chartMargin) + slot*float64(i) + (slot-barW)/2
		y := float64(chartMargin) + plotH - h

		svg.AppendChild(svgElement("rect",
			"x", num(x), "y", num(y), "width", num(barW), "height", num(h), "fill", "#4e79a7"))
		svg.AppendChild(svgText(x+barW/2, y-4, "middle", fmt.Sprintf(format, v)))
		svg.AppendChild(svgText(x+barW/2, float64(chartHeight-chartMargin+16), "middle", row.Engine))
	}
	return svg
}

// scatterChart plots quality score (y) against mean seconds per page (x)
func scatterChart(title string, rows []Row) *html.Node {
	maxTime := 0.0
	for _, row := range rows {
		maxTime = math.Max(maxTime, row.AvgProcessingTime)
	}
	if maxTime == 0 {
		maxTime = 1
	}

	svg := svgRoot(title)
	plotW := float64(chartWidth - 2*chartMargin)
	plotH := float64(chartHeight - 2*chartMargin)

	svg.AppendChild(axes())
	svg.AppendChild(svgText(float64(chartWidth)/2, float64(chartHeight-10), "middle", "seconds per page"))
	for _, row := range rows {
		score := row.AvgConfidence
		if row.HasQuality {
			score = row.QualityScore
		}
		x := float64(chartMargin) + plotW*row.AvgProcessingTime/maxTime
		y := float64(chartMargin) + plotH*(1-math.Min(math.Max(score, 0), 1))

		svg.AppendChild(svgElement("circle", "cx", num(x), "cy", num(y), "r", "6", "fill", "#e15759"))
		svg.AppendChild(svgText(x+8, y-8, "start", row.Engine))
	}
	return svg
}

func svgRoot(title string) *html.Node {
	root := svgElement("svg",
		"xmlns", "http://www.w3.org/2000/svg",
		"width", fmt.Sprintf("%d", chartWidth),
		"height", fmt.Sprintf("%d", chartHeight),
		"viewBox", fmt.Sprintf("0 0 %d %d", chartWidth, chartHeight),
		"font-family", "sans-serif",
		"font-size", "12")
	root.AppendChild(svgElement("rect", "width", "100%", "height", "100%", "fill", "white"))
	t := svgText(float64(chartWidth)/2, 24, "middle", title)
	t.Attr = append(t.Attr, html.Attribute{Key: "font-size", Val: "16"})
	root.AppendChild(t)
	return root
}

func axes() *html.Node {
	left, top := float64(chartMargin), float64(chartMargin)
	bottom, right := float64(chartHeight-chartMargin), float64(chartWidth-chartMargin)
	path := fmt.Sprintf("M%s %s L%s %s L%s %s", num(left), num(top), num(left), num(bottom), num(right), num(bottom))
	return svgElement("path", "d", path, "stroke", "#333", "fill", "none")
}

func svgText(x, y float64, anchor, s string) *html.Node {
	n := svgElement("text", "x", num(x), "y", num(y), "text-anchor", anchor)
	n.AppendChild(text(s))
	return n
}

// svgElement builds a foreign (non-HTML) element; SVG names have no atom
func svgElement(name string, kv ...string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: name, Attr: attrs(kv...)}
}

func num(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
