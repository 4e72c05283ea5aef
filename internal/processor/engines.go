package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-comparison-worker/internal/clients"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/config"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/engines"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/orchestrator"
)

const probeTimeout = 10 * time.Second

// scriptLanguageHints maps a target script to the MageAgent language hint
var scriptLanguageHints = map[string]string{
	"Devanagari": "hi",
	"Bengali":    "bn",
	"Tamil":      "ta",
	"Telugu":     "te",
	"Arabic":     "ar",
	"Latin":      "en",
}

// ConfiguredEngines builds every engine the configuration enables.
// Engines that cannot be constructed are logged and left out.
func ConfiguredEngines(cfg *config.Config, logger *logging.Logger) []engines.Engine {
	logger = logging.OrDefault(logger, "EngineSetup")
	var out []engines.Engine

	if cfg.TesseractEnabled {
		out = append(out, engines.NewTesseractEngine(engines.TesseractConfig{
			Languages:    cfg.TargetLanguages,
			TargetScript: cfg.TargetScript,
		}))
	}

	if cfg.MageAgentURL != "" {
		client := clients.NewMageAgentClient(cfg.MageAgentURL, logger.Named("MageAgentClient"))
		out = append(out, engines.NewMageAgentEngine(client, scriptLanguageHints[cfg.TargetScript]))
	} else {
		logger.Warn("MAGEAGENT_URL not configured, MageAgent engine disabled")
	}

	if cfg.OllamaURL != "" {
		ollama, err := engines.NewOllamaEngine(engines.OllamaConfig{
			BaseURL:      cfg.OllamaURL,
			Model:        cfg.OllamaModel,
			TargetScript: cfg.TargetScript,
		})
		if err != nil {
			logger.Warn("Ollama engine disabled", "error", err)
		} else {
			out = append(out, ollama)
		}
	}

	return out
}

// RegisterEngines probes and registers each engine, returning how many were accepted.
// It fails only when no engine could be registered.
func RegisterEngines(ctx context.Context, mgr *orchestrator.Manager, candidates []engines.Engine, logger *logging.Logger) (int, error) {
	logger = logging.OrDefault(logger, "EngineSetup")
	registered := 0

	for _, engine := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ok, err := mgr.RegisterEngine(probeCtx, engine)
		cancel()
		if err != nil {
			logger.Warn("Engine rejected", "engine", engine.Name(), "error", err)
			continue
		}
		if ok {
			registered++
		}
	}

	if registered == 0 {
		return 0, fmt.Errorf("none of %d configured engines is available", len(candidates))
	}
	logger.Info("Engines ready", "registered", registered, "configured", len(candidates), "engines", mgr.EngineNames())
	return registered, nil
}
