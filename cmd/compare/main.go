// Command compare runs every configured OCR engine over local page images and
// writes the comparison artifacts to an output directory. With -feedback it
// instead ingests a filled evaluation form into the accuracy database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/config"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/orchestrator"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/pages"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/processor"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/storage"
)

func main() {
	var outDir, envFile, refs, engineList, feedback, jobID string
	var history bool

	flag.StringVar(&outDir, "out", "comparison_output", "output directory")
	flag.StringVar(&envFile, "env", ".env", "environment file to load")
	flag.StringVar(&refs, "refs", "", "comma-separated reference text files, one per page in page order (empty entries skip a page)")
	flag.StringVar(&engineList, "engines", "", "comma-separated engine subset (default: every available engine)")
	flag.StringVar(&feedback, "feedback", "", "filled evaluation form to ingest instead of running a comparison")
	flag.BoolVar(&history, "history", false, "print the accuracy database ranking and exit")
	flag.StringVar(&jobID, "job", "", "print the stored status of a queued comparison job and exit (PostgreSQL only)")
	flag.Parse()

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: %s not found, using system environment variables", envFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.NewLoggerWithWriter("OCRCompare", os.Stderr, logging.ParseLevel(cfg.LogLevel))

	store, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.AccuracyDBPath, logger.Named("StorageManager"))
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	opts := processor.OptionsFromConfig(cfg)
	manager := orchestrator.NewManager(opts.Orchestrator, logger.Named("Orchestrator"))
	proc, err := processor.NewComparisonProcessor(&processor.ProcessorConfig{
		Options:      opts,
		Orchestrator: manager,
		Store:        store,
		Logger:       logger.Named("ComparisonProcessor"),
	})
	if err != nil {
		log.Fatalf("Failed to initialize processor: %v", err)
	}

	ctx := context.Background()

	switch {
	case history:
		if err := printHistory(ctx, proc); err != nil {
			log.Fatal(err)
		}
		return
	case jobID != "":
		if err := printJob(ctx, store, jobID); err != nil {
			log.Fatal(err)
		}
		return
	case feedback != "":
		if err := ingest(ctx, proc, feedback, outDir); err != nil {
			log.Fatal(err)
		}
		return
	}

	if flag.NArg() == 0 {
		log.Fatalf("usage: %s [-out dir] [-refs r1.txt,r2.txt] [-engines tesseract,ollama] page1.png [page2.jpg ...]", filepath.Base(os.Args[0]))
	}

	images, err := pages.LoadAll(flag.Args())
	if err != nil {
		log.Fatalf("Failed to load pages: %v", err)
	}
	references, err := loadReferences(refs)
	if err != nil {
		log.Fatalf("Failed to load references: %v", err)
	}

	if _, err := processor.RegisterEngines(ctx, manager, processor.ConfiguredEngines(cfg, logger.Named("EngineSetup")), logger.Named("EngineSetup")); err != nil {
		log.Fatalf("Failed to register engines: %v", err)
	}
	log.Printf("Comparing %d pages with engines %v", len(images), manager.EngineNames())

	result, err := proc.ProcessComparison(ctx, &processor.ProcessRequest{
		Pages:      images,
		References: references,
		Engines:    splitList(engineList),
	})
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}

	written, err := writeArtifacts(outDir, result)
	if err != nil {
		log.Fatalf("Failed to write results: %v", err)
	}

	log.Printf("Best performing engine: %s", result.Comparison.BestPerformingEngine)
	for _, n := range result.Notes {
		log.Printf("Note: %s", n)
	}
	for _, f := range written {
		fmt.Println(f)
	}
}

// writeArtifacts stores every output of a run under dir and returns the paths written
func writeArtifacts(dir string, result *processor.ProcessResult) ([]string, error) {
	if err := os.MkdirAll(filepath.Join(dir, "charts"), 0o755); err != nil {
		return nil, err
	}

	doc, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode comparison: %w", err)
	}

	files := map[string][]byte{
		"engine_comparison.json": doc,
		"detailed_report.md":     []byte(result.DetailedReport),
	}
	if result.DashboardHTML != "" {
		files["performance_dashboard.html"] = []byte(result.DashboardHTML)
	}
	if result.DetailedReportHTML != "" {
		files["detailed_report.html"] = []byte(result.DetailedReportHTML)
	}
	for name, svg := range result.Charts {
		files[filepath.Join("charts", name)] = []byte(svg)
	}

	var written []string
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if result.EvaluationForm != nil {
		path := filepath.Join(dir, "evaluation_form.csv")
		f, err := os.Create(path)
		if err != nil {
			return written, err
		}
		werr := result.EvaluationForm.WriteCSV(f)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return written, fmt.Errorf("failed to write evaluation form: %w", werr)
		}
		written = append(written, path)
	}

	return written, nil
}

func ingest(ctx context.Context, proc *processor.ComparisonProcessor, path, outDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := proc.IngestFeedback(ctx, f)
	if err != nil {
		return fmt.Errorf("failed to ingest feedback: %w", err)
	}
	log.Printf("Recorded feedback for %d engines in %s", len(result.Reports), result.Location)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	summaryPath := filepath.Join(outDir, "evaluation_summary.md")
	if err := os.WriteFile(summaryPath, []byte(result.Summary), 0o644); err != nil {
		return err
	}
	fmt.Println(summaryPath)

	if result.SummaryHTML != "" {
		htmlPath := filepath.Join(outDir, "evaluation_summary.html")
		if err := os.WriteFile(htmlPath, []byte(result.SummaryHTML), 0o644); err != nil {
			return err
		}
		fmt.Println(htmlPath)
	}
	return nil
}

func printHistory(ctx context.Context, proc *processor.ComparisonProcessor) error {
	db, ranked, err := proc.AccuracyHistory(ctx)
	if err != nil {
		return err
	}
	if len(ranked) == 0 {
		fmt.Println("No evaluations recorded yet.")
		return nil
	}
	for i, name := range ranked {
		h := db.Engines[name]
		fmt.Printf("%d. %-12s average %.2f/10 over %d evaluations\n", i+1, name, h.AverageAccuracy, h.TotalEvaluations)
	}
	return nil
}

func printJob(ctx context.Context, store *storage.StorageManager, jobID string) error {
	job, err := store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	doc, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(doc))
	return nil
}

// loadReferences reads one reference file per page; page numbers follow list order
func loadReferences(list string) (map[int]string, error) {
	if list == "" {
		return nil, nil
	}
	refs := make(map[int]string)
	for i, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		refs[i+1] = string(data)
	}
	return refs, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
