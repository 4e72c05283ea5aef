package report

// Published list prices per page in USD; self-hosted engines are free.
var engineCostPerPage = map[string]float64{
	"tesseract":     0.0,
	"easyocr":       0.0,
	"paddleocr":     0.0,
	"ollama":        0.0,
	"mageagent":     0.0015,
	"google_vision": 0.0015,
	"azure_ocr":     0.001,
	"aws_textract":  0.0015,
}

// Observed support for Indic scripts, from vendor documentation
var engineScriptSupport = map[string]string{
	"tesseract":     "Good",
	"easyocr":       "Good",
	"paddleocr":     "Fair",
	"ollama":        "Fair",
	"mageagent":     "Excellent",
	"google_vision": "Excellent",
	"azure_ocr":     "Good",
	"aws_textract":  "Poor",
}

// CostPerPage returns the listed per-page cost of engine and whether it is known
func CostPerPage(engine string) (float64, bool) {
	cost, ok := engineCostPerPage[engine]
	return cost, ok
}

// ScriptSupportRating returns the listed script-support rating, or "Unknown"
func ScriptSupportRating(engine string) string {
	if rating, ok := engineScriptSupport[engine]; ok {
		return rating
	}
	return "Unknown"
}
