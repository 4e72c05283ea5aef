package orchestrator

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ocrerrors "github.com/adverant/nexus/ocr-comparison-worker/internal/errors"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/logging"
	"github.com/adverant/nexus/ocr-comparison-worker/internal/model"
)

// fakeEngine returns scripted text/confidence per page, or the error in failOn
type fakeEngine struct {
	name        string
	unavailable error
	confidence  map[int]float64
	failOn      map[int]error
	panicOn     int
	cost        float64
	delay       time.Duration

	mu       sync.Mutex
	attempts []int
	last     float64

	active    *int32
	maxActive *int32
}

func (f *fakeEngine) Name() string                        { return f.name }
func (f *fakeEngine) SupportsTargetScript() bool          { return true }
func (f *fakeEngine) IsLocal() bool                       { return true }
func (f *fakeEngine) CostPerPage() float64                { return f.cost }
func (f *fakeEngine) Available(ctx context.Context) error { return f.unavailable }

func (f *fakeEngine) ConfidenceScore() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeEngine) ExtractText(ctx context.Context, image []byte, page int) (*model.OCRResult, error) {
	f.mu.Lock()
	f.attempts = append(f.attempts, page)
	f.mu.Unlock()

	if f.active != nil {
		n := atomic.AddInt32(f.active, 1)
		for {
			peak := atomic.LoadInt32(f.maxActive)
			if n <= peak || atomic.CompareAndSwapInt32(f.maxActive, peak, n) {
				break
			}
		}
		defer atomic.AddInt32(f.active, -1)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if page == f.panicOn {
		panic("native crash")
	}
	if err, ok := f.failOn[page]; ok {
		return nil, err
	}

	conf := f.confidence[page]
	f.mu.Lock()
	f.last = conf
	f.mu.Unlock()

	// deliberately wrong identity; the orchestrator must normalize it
	return &model.OCRResult{
		Text:            fmt.Sprintf("%s page %s", f.name, image),
		ConfidenceScore: conf,
		ProcessingTime:  0.5,
		EngineName:      "someone-else",
		PageNumber:      99,
	}, nil
}

func (f *fakeEngine) attempted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.attempts...)
}

func quietManager(max int) *Manager {
	return NewManager(Options{MaxConcurrentEngines: max},
		logging.NewLoggerWithWriter("test", &bytes.Buffer{}, logging.LevelError))
}

func pages(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("img%d", i+1))
	}
	return out
}

func mustRegister(t *testing.T, m *Manager, e *fakeEngine) {
	t.Helper()
	ok, err := m.RegisterEngine(context.Background(), e)
	if err != nil || !ok {
		t.Fatalf("RegisterEngine(%s) = %v, %v", e.name, ok, err)
	}
}

func TestRegisterEngine(t *testing.T) {
	m := quietManager(2)

	mustRegister(t, m, &fakeEngine{name: "a"})

	ok, err := m.RegisterEngine(context.Background(), &fakeEngine{name: "b", unavailable: fmt.Errorf("no credentials")})
	if ok || err != nil {
		t.Errorf("Unavailable engine: got (%v, %v), want (false, nil)", ok, err)
	}

	ok, err = m.RegisterEngine(context.Background(), &fakeEngine{name: "a"})
	if ok || !stderrors.Is(err, ocrerrors.ErrDuplicateEngine) {
		t.Errorf("Duplicate engine: got (%v, %v), want ErrDuplicateEngine", ok, err)
	}

	if names := m.EngineNames(); len(names) != 1 || names[0] != "a" {
		t.Errorf("EngineNames() = %v", names)
	}
}

func TestProcessWithAllEnginesIsolatesFailures(t *testing.T) {
	m := quietManager(3)
	good := &fakeEngine{name: "good", confidence: map[int]float64{1: 0.9, 2: 0.8, 3: 0.7}}
	flaky := &fakeEngine{name: "flaky", failOn: map[int]error{1: fmt.Errorf("timeout")}, panicOn: 2,
		confidence: map[int]float64{3: 0.4}}
	mustRegister(t, m, good)
	mustRegister(t, m, flaky)

	run, err := m.ProcessWithAllEngines(context.Background(), pages(3))
	if err != nil {
		t.Fatalf("ProcessWithAllEngines() error = %v", err)
	}

	if got := flaky.attempted(); len(got) != 3 {
		t.Errorf("Expected every page attempted after failures, got %v", got)
	}

	if len(run.Results["good"]) != 3 || len(run.Results["flaky"]) != 1 {
		t.Fatalf("Unexpected result sizes: good=%d flaky=%d", len(run.Results["good"]), len(run.Results["flaky"]))
	}
	for i, r := range run.Results["good"] {
		if r.PageNumber != i+1 || r.EngineName != "good" {
			t.Errorf("Result %d has identity page=%d engine=%s", i, r.PageNumber, r.EngineName)
		}
	}
	if run.Results["flaky"][0].PageNumber != 3 {
		t.Errorf("Expected flaky's surviving page to be 3")
	}

	if len(run.Failures) != 2 || len(run.FailedEngines) != 1 || run.FailedEngines[0] != "flaky" {
		t.Errorf("Unexpected failures: %+v / %v", run.Failures, run.FailedEngines)
	}
	if run.RunID == "" {
		t.Error("Expected a run ID")
	}
	if len(run.EngineOrder) != 2 || run.EngineOrder[0] != "good" {
		t.Errorf("EngineOrder = %v", run.EngineOrder)
	}
}

func TestSkipEngineStopsFurtherPages(t *testing.T) {
	m := quietManager(1)
	limited := &fakeEngine{name: "limited", failOn: map[int]error{1: ocrerrors.NewAPILimitExceededError("limited", nil)}}
	other := &fakeEngine{name: "other", confidence: map[int]float64{1: 0.5, 2: 0.5}}
	mustRegister(t, m, limited)
	mustRegister(t, m, other)

	run, err := m.ProcessWithAllEngines(context.Background(), pages(2))
	if err != nil {
		t.Fatalf("ProcessWithAllEngines() error = %v", err)
	}

	if got := limited.attempted(); len(got) != 1 {
		t.Errorf("Expected skip after quota error, attempted %v", got)
	}
	if _, ok := run.Results["limited"]; ok {
		t.Error("Skipped engine with no pages must be omitted from results")
	}
}

func TestAllEnginesFailedIsFatal(t *testing.T) {
	m := quietManager(2)
	boom := map[int]error{1: fmt.Errorf("x"), 2: fmt.Errorf("y")}
	mustRegister(t, m, &fakeEngine{name: "a", failOn: boom})
	mustRegister(t, m, &fakeEngine{name: "b", failOn: boom})

	run, err := m.ProcessWithAllEngines(context.Background(), pages(2))
	if !stderrors.Is(err, ocrerrors.ErrAllEnginesFailed) {
		t.Fatalf("Expected ErrAllEnginesFailed, got %v", err)
	}
	if run == nil || len(run.Failures) != 4 {
		t.Errorf("Expected failures to be reported alongside the error")
	}

	var ee *ocrerrors.EngineError
	if !stderrors.As(err, &ee) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if names, _ := ee.Details["failed_engines"].([]string); len(names) != 2 {
		t.Errorf("failed_engines = %v, want [a b]", ee.Details["failed_engines"])
	}
	if failures, _ := ee.Details["failures"].([]ocrerrors.Failure); len(failures) != 4 {
		t.Errorf("Expected the error to carry all 4 failures, got %v", ee.Details["failures"])
	}
}

func TestProcessPreconditions(t *testing.T) {
	m := quietManager(1)
	if _, err := m.ProcessWithAllEngines(context.Background(), pages(1)); !stderrors.Is(err, ocrerrors.ErrNoEnginesRegistered) {
		t.Errorf("Expected ErrNoEnginesRegistered, got %v", err)
	}

	mustRegister(t, m, &fakeEngine{name: "a"})
	if _, err := m.ProcessWithAllEngines(context.Background(), nil); !stderrors.Is(err, ocrerrors.ErrNoPages) {
		t.Errorf("Expected ErrNoPages, got %v", err)
	}
	if _, err := m.ProcessWithSingleEngine(context.Background(), "ghost", pages(1)); !stderrors.Is(err, ocrerrors.ErrEngineNotFound) {
		t.Errorf("Expected ErrEngineNotFound, got %v", err)
	}
	if _, err := m.ProcessWithEngines(context.Background(), []string{"a", "ghost"}, pages(1)); !stderrors.Is(err, ocrerrors.ErrEngineNotFound) {
		t.Errorf("Expected ErrEngineNotFound for subset, got %v", err)
	}
}

func TestRejectedPagesAreSkipped(t *testing.T) {
	m := quietManager(1)
	a := &fakeEngine{name: "a"}
	mustRegister(t, m, a)

	images := pages(3)
	images[1] = nil
	run, err := m.ProcessWithAllEngines(context.Background(), images)
	if err != nil {
		t.Fatalf("ProcessWithAllEngines() error = %v", err)
	}
	if got := a.attempted(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Expected pages [1 3] attempted, got %v", got)
	}
	if len(run.Failures) != 0 {
		t.Errorf("Rejected page must not count as an engine failure: %v", run.Failures)
	}

	if _, err := m.ProcessWithAllEngines(context.Background(), [][]byte{nil}); !stderrors.Is(err, ocrerrors.ErrNoPages) {
		t.Errorf("Expected ErrNoPages when every page was rejected, got %v", err)
	}
}

func TestProcessWithSingleEngine(t *testing.T) {
	m := quietManager(1)
	a := &fakeEngine{name: "a", confidence: map[int]float64{1: 0.3, 2: 0.6}}
	b := &fakeEngine{name: "b"}
	mustRegister(t, m, a)
	mustRegister(t, m, b)

	run, err := m.ProcessWithSingleEngine(context.Background(), "a", pages(2))
	if err != nil {
		t.Fatalf("ProcessWithSingleEngine() error = %v", err)
	}
	if len(run.Results) != 1 || len(run.Results["a"]) != 2 {
		t.Errorf("Unexpected results: %v", run.Results)
	}
	if len(b.attempted()) != 0 {
		t.Error("Other engines must not be invoked")
	}
}

func TestMaxConcurrentEnginesIsHonored(t *testing.T) {
	m := quietManager(2)
	var active, maxActive int32
	for i := 0; i < 5; i++ {
		mustRegister(t, m, &fakeEngine{
			name:       fmt.Sprintf("e%d", i),
			confidence: map[int]float64{1: 0.5},
			delay:      20 * time.Millisecond,
			active:     &active,
			maxActive:  &maxActive,
		})
	}

	if _, err := m.ProcessWithAllEngines(context.Background(), pages(2)); err != nil {
		t.Fatalf("ProcessWithAllEngines() error = %v", err)
	}
	if got := atomic.LoadInt32(&maxActive); got > 2 {
		t.Errorf("Observed %d concurrent engines, limit is 2", got)
	}
}

func TestGetEngineComparison(t *testing.T) {
	m := quietManager(1)
	mustRegister(t, m, &fakeEngine{name: "x", cost: 0.01})

	results := map[string][]*model.OCRResult{
		"x": {
			{Text: "क ख", ConfidenceScore: 0.9, ProcessingTime: 1, PageNumber: 1},
			{Text: "ग घ", ConfidenceScore: 0.9, ProcessingTime: 3, PageNumber: 2},
		},
		"y":     {{Text: "", ConfidenceScore: 0.0, ProcessingTime: 2, PageNumber: 1}},
		"tie-b": {{ConfidenceScore: 0.5, PageNumber: 1}},
		"tie-a": {{ConfidenceScore: 0.5, PageNumber: 1}},
		"none":  {},
	}

	report := m.GetEngineComparison(results)

	if report.BestPerformingEngine != "x" {
		t.Errorf("Best = %s, want x", report.BestPerformingEngine)
	}
	wantOrder := []string{"x", "tie-a", "tie-b", "y"}
	if len(report.QualityRankings) != len(wantOrder) {
		t.Fatalf("Rankings = %+v", report.QualityRankings)
	}
	for i, name := range wantOrder {
		if report.QualityRankings[i].EngineName != name {
			t.Errorf("Rank %d = %s, want %s", i, report.QualityRankings[i].EngineName, name)
		}
	}

	if report.EngineResults["x"].PageNumber != 1 {
		t.Error("Representative tie must resolve to the first page")
	}
	if report.ProcessingTimes["x"] != 2 {
		t.Errorf("Mean time = %v, want 2", report.ProcessingTimes["x"])
	}
	if report.CostAnalysis["x"] != 0.02 {
		t.Errorf("Cost = %v, want 0.02", report.CostAnalysis["x"])
	}
	if _, ok := report.EngineResults["none"]; ok {
		t.Error("Engines without results must not be ranked")
	}
}
