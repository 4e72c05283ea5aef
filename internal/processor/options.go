package processor

import (
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/accuracy"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/config"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/evaluation"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/orchestrator"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/quality"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/report"
)

// Options gathers the settings of every pipeline component
type Options struct {
	Quality      quality.Options
	Accuracy     accuracy.Options
	Orchestrator orchestrator.Options
	Evaluation   evaluation.Options
	Report       report.Options

	// Timeout bounds one ProcessComparison call; zero means no bound
	Timeout time.Duration
}

// DefaultOptions returns the Devanagari defaults
func DefaultOptions() Options {
	q := quality.DefaultOptions()
	return Options{
		Quality:      q,
		Accuracy:     accuracy.DefaultOptions(),
		Orchestrator: orchestrator.Options{MaxConcurrentEngines: 3},
		Evaluation:   evaluation.DefaultOptions(),
		Report:       report.Options{TargetScript: q.TargetScript, MinScriptRate: q.MinScriptRate},
	}
}

// OptionsFromConfig projects the worker configuration onto component options
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}

	opts.Quality = quality.Options{
		TargetScript:            cfg.TargetScript,
		MinScriptRate:           cfg.MinScriptRate,
		MinConfidence:           cfg.MinConfidence,
		MinTextLength:           cfg.MinTextLength,
		TableAlignmentThreshold: cfg.TableAlignmentThreshold,
	}
	opts.Orchestrator.MaxConcurrentEngines = cfg.MaxConcurrentEngines
	opts.Evaluation.FormTextCap = cfg.FormTextCap
	opts.Report = report.Options{
		TargetScript:  cfg.TargetScript,
		MinScriptRate: cfg.MinScriptRate,
	}
	// Confusable pairs are only known for Devanagari
	if cfg.TargetScript != "Devanagari" {
		opts.Accuracy.ConfusablePairs = nil
	}
	if cfg.ProcessingTimeout > 0 {
		opts.Timeout = time.Duration(cfg.ProcessingTimeout) * time.Millisecond
	}
	return opts
}
