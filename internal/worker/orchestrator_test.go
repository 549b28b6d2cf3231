package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tag-bridge/internal/engine"
	"tag-bridge/internal/entity"
	"tag-bridge/internal/profile"
	"tag-bridge/internal/scoring"
)

// ---- fakes ----

type fakeSource struct {
	mu         sync.Mutex
	items      []entity.WorkItem
	pendingErr error
	reportErr  map[string]error
	reports    map[string]entity.ResultRecord
	fetches    int
	onFetch    func(n int)
}

func (s *fakeSource) PendingItems(ctx context.Context, limit int) ([]entity.WorkItem, error) {
	s.mu.Lock()
	s.fetches++
	n := s.fetches
	s.mu.Unlock()
	if s.onFetch != nil {
		s.onFetch(n)
	}
	if s.pendingErr != nil {
		return nil, s.pendingErr
	}
	return s.items, nil
}

func (s *fakeSource) ReportResult(ctx context.Context, itemID string, rec entity.ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reportErr[itemID]; err != nil {
		return err
	}
	if s.reports == nil {
		s.reports = map[string]entity.ResultRecord{}
	}
	s.reports[itemID] = rec
	return nil
}

type fakeEngine struct {
	mu        sync.Mutex
	submitted []engine.Graph
	// keyed by staged image name
	submitErr map[string]error
	awaitErr  map[string]error
	panicOn   string
	outputs   entity.RawOutputMap
	onAwait   func()
	jobImages map[string]string
}

func (e *fakeEngine) Submit(ctx context.Context, g engine.Graph) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	img, _ := g["1"].Inputs["image"].(string)
	if err := e.submitErr[img]; err != nil {
		return "", err
	}
	e.submitted = append(e.submitted, g)
	if e.jobImages == nil {
		e.jobImages = map[string]string{}
	}
	id := "job-" + img
	e.jobImages[id] = img
	return id, nil
}

func (e *fakeEngine) AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) (entity.RawOutputMap, error) {
	e.mu.Lock()
	img := e.jobImages[jobID]
	err := e.awaitErr[img]
	panicOn := e.panicOn
	e.mu.Unlock()

	if e.onAwait != nil {
		e.onAwait()
	}
	if img == panicOn {
		panic("engine exploded")
	}
	if err != nil {
		return nil, err
	}
	return e.outputs, nil
}

type fakeStager struct {
	mu      sync.Mutex
	failFor map[string]error
	staged  []string
	cleaned []string
}

func (s *fakeStager) Stage(ctx context.Context, item entity.WorkItem) (Staged, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[item.ID]; err != nil {
		return Staged{}, err
	}
	name := item.ID + ".jpg"
	s.staged = append(s.staged, name)
	return Staged{LocalPath: "/tmp/" + name, EngineName: name}, nil
}

func (s *fakeStager) Cleanup(st Staged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleaned = append(s.cleaned, st.EngineName)
}

type fakeNotifier struct {
	mu    sync.Mutex
	items []string
}

func (n *fakeNotifier) Notify(ctx context.Context, itemID string, d entity.PriorityDecision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, itemID)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.items)
}

type fakeRecorder struct {
	outcomes []entity.Outcome
}

func (r *fakeRecorder) Record(ctx context.Context, o entity.Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

// ---- helpers ----

func workflow() engine.Graph {
	return engine.Graph{
		"1": {ClassType: "LoadImage", Inputs: map[string]any{"image": "placeholder.png"}},
		"7": {ClassType: "PreviewAny", Inputs: map[string]any{}},
	}
}

func items(ids ...string) []entity.WorkItem {
	out := make([]entity.WorkItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.WorkItem{ID: id, SourceURL: "http://img/" + id + ".jpg"})
	}
	return out
}

func highScoreOutputs() entity.RawOutputMap {
	return entity.RawOutputMap{
		"3": {"tags": []any{"Silk, dress"}},
		"7": {"text": []any{"9.5"}},
	}
}

type rig struct {
	source   *fakeSource
	engine   *fakeEngine
	stager   *fakeStager
	notifier *fakeNotifier
	recorder *fakeRecorder
	orch     *Orchestrator
}

func newRig(t *testing.T, src *fakeSource, eng *fakeEngine) *rig {
	t.Helper()
	if eng.outputs == nil {
		eng.outputs = highScoreOutputs()
	}
	r := &rig{
		source:   src,
		engine:   eng,
		stager:   &fakeStager{},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
	cfg := scoring.DefaultConfig()
	cfg.ArchiveThreshold = 0.75
	orch, err := NewOrchestrator(Options{
		Source:   src,
		Engine:   eng,
		Stager:   r.stager,
		Scorer:   scoring.New(cfg, nil),
		Profile:  &entity.PreferenceProfile{LikedTags: []string{"silk"}},
		Workflow: workflow(),
		Notifier: r.notifier,
		Recorder: r.recorder,
	})
	require.NoError(t, err)
	r.orch = orch
	return r
}

// ---- tests ----

func TestNewOrchestrator_RequiresWorkflow(t *testing.T) {
	_, err := NewOrchestrator(Options{Source: &fakeSource{}, Engine: &fakeEngine{}, Stager: &fakeStager{}})
	require.ErrorIs(t, err, engine.ErrEmptyGraph)
}

func TestRunBatch_HappyPath(t *testing.T) {
	src := &fakeSource{items: append(items("a", "b"), entity.WorkItem{ID: "c"})}
	r := newRig(t, src, &fakeEngine{})

	n, err := r.orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, r.engine.submitted, 2)
	assert.Equal(t, "a.jpg", r.engine.submitted[0]["1"].Inputs["image"])
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, r.stager.cleaned)

	rec := src.reports["a"]
	assert.Equal(t, []string{"Silk", "dress"}, rec.Tags)
	assert.Equal(t, 9.5, rec.AestheticScore)
	assert.Equal(t, []string{"Silk"}, rec.CategorizedTags["material"])

	// 0.4*0.95 + 0.4*0.5 + 0.2*1.0 = 0.78 -> archive at threshold 0.75
	assert.Equal(t, []string{"a", "b"}, r.notifier.items)
	require.Len(t, r.recorder.outcomes, 2)
	assert.True(t, r.recorder.outcomes[0].Reported)
	assert.Equal(t, "job-a.jpg", r.recorder.outcomes[0].JobID)

	st := r.orch.Stats()
	assert.Equal(t, 2, st.Reported)
	assert.Equal(t, 1, st.Skipped)
	assert.Equal(t, 2, st.Dispositions[entity.DispositionArchive])
	assert.Equal(t, 1, st.Batches)
}

func TestRunBatch_FailuresAreIsolated(t *testing.T) {
	src := &fakeSource{items: items("stage-fail", "submit-fail", "timeout", "boom", "ok")}
	eng := &fakeEngine{
		submitErr: map[string]error{"submit-fail.jpg": &engine.SubmissionError{Err: engine.ErrTransport}},
		awaitErr:  map[string]error{"timeout.jpg": engine.ErrTimeout},
		panicOn:   "boom.jpg",
	}
	r := newRig(t, src, eng)
	r.stager.failFor = map[string]error{"stage-fail": errors.New("404")}

	n, err := r.orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{"submit-fail.jpg", "timeout.jpg", "boom.jpg", "ok.jpg"}, r.stager.cleaned)
	assert.Contains(t, src.reports, "ok")
	assert.Len(t, src.reports, 1)
	assert.Equal(t, 4, r.orch.Stats().Failed)
}

func TestRunBatch_ReportFailureSkipsNotification(t *testing.T) {
	src := &fakeSource{
		items:     items("a"),
		reportErr: map[string]error{"a": errors.New("500")},
	}
	r := newRig(t, src, &fakeEngine{})

	n, err := r.orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, r.notifier.count())
	require.Len(t, r.recorder.outcomes, 1)
	assert.False(t, r.recorder.outcomes[0].Reported)
	assert.Equal(t, []string{"a.jpg"}, r.stager.cleaned)
}

func TestRunBatch_NonArchiveDoesNotNotify(t *testing.T) {
	src := &fakeSource{items: items("a")}
	r := newRig(t, src, &fakeEngine{outputs: entity.RawOutputMap{"7": {"text": []any{"5"}}}})

	n, err := r.orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, r.notifier.count())
}

func TestRunBatch_PendingFetchError(t *testing.T) {
	src := &fakeSource{pendingErr: errors.New("connection refused")}
	r := newRig(t, src, &fakeEngine{})

	n, err := r.orch.RunBatch(context.Background(), 10)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.NotEmpty(t, r.orch.Stats().LastError)
}

func TestRunBatch_TruncatesToMax(t *testing.T) {
	src := &fakeSource{items: items("a", "b", "c", "d")}
	r := newRig(t, src, &fakeEngine{})

	n, err := r.orch.RunBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, r.engine.submitted, 2)
}

func TestRunBatch_CancellationBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{items: items("a", "b", "c")}
	eng := &fakeEngine{onAwait: cancel}
	r := newRig(t, src, eng)

	n, err := r.orch.RunBatch(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, n, 1)
	assert.Len(t, eng.submitted, 1)
	assert.Equal(t, []string{"a.jpg"}, r.stager.cleaned)
}

func TestRunBatch_Pacing(t *testing.T) {
	src := &fakeSource{items: items("a", "b", "c")}
	r := newRig(t, src, &fakeEngine{})
	r.orch.pacing = 20 * time.Millisecond

	start := time.Now()
	_, err := r.orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRunContinuous_RetriesAfterErrorUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{pendingErr: errors.New("down")}
	src.onFetch = func(n int) {
		if n >= 3 {
			cancel()
		}
	}
	r := newRig(t, src, &fakeEngine{})

	done := make(chan error, 1)
	go func() {
		done <- r.orch.RunContinuous(ctx, LoopConfig{BatchSize: 5, Interval: time.Hour, Cooldown: 5 * time.Millisecond})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	assert.GreaterOrEqual(t, src.fetches, 3)
}

func TestRunContinuous_SleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	r := newRig(t, src, &fakeEngine{})

	done := make(chan error, 1)
	go func() {
		done <- r.orch.RunContinuous(ctx, LoopConfig{BatchSize: 5, Interval: time.Hour, Cooldown: time.Hour})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sleep was not interrupted")
	}
}

func TestRunBatch_ReloadsProfileEachBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	store := profile.NewStore(path)
	require.NoError(t, store.Save(entity.PreferenceProfile{LikedTags: []string{"denim"}, TotalLiked: 1}))

	src := &fakeSource{items: items("a")}
	r := newRig(t, src, &fakeEngine{})
	cfg := scoring.DefaultConfig()
	cfg.ArchiveThreshold = 0.75
	orch, err := NewOrchestrator(Options{
		Source:   src,
		Engine:   r.engine,
		Stager:   r.stager,
		Scorer:   scoring.New(cfg, nil),
		Profiles: store,
		Workflow: workflow(),
		Notifier: r.notifier,
		Recorder: r.recorder,
	})
	require.NoError(t, err)
	assert.Nil(t, orch.Profile())

	// 0.4*0.95 + 0.4*0.5 + 0.2*0 = 0.58 -> review
	_, err = orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, r.notifier.count())
	assert.Equal(t, []string{"denim"}, orch.Profile().LikedTags)

	require.NoError(t, store.Save(entity.PreferenceProfile{LikedTags: []string{"silk"}, TotalLiked: 1}))

	_, err = orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, r.notifier.count())
	assert.Equal(t, []string{"silk"}, orch.Profile().LikedTags)

	st := orch.Stats()
	assert.Equal(t, 1, st.Dispositions[entity.DispositionReview])
	assert.Equal(t, 1, st.Dispositions[entity.DispositionArchive])
}

func TestRunBatch_KeepsProfileWhenReloadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	store := profile.NewStore(path)
	require.NoError(t, store.Save(entity.PreferenceProfile{LikedTags: []string{"silk"}, TotalLiked: 1}))

	src := &fakeSource{items: items("a")}
	r := newRig(t, src, &fakeEngine{})
	cfg := scoring.DefaultConfig()
	cfg.ArchiveThreshold = 0.75
	orch, err := NewOrchestrator(Options{
		Source:   src,
		Engine:   r.engine,
		Stager:   r.stager,
		Scorer:   scoring.New(cfg, nil),
		Profiles: store,
		Workflow: workflow(),
		Notifier: r.notifier,
	})
	require.NoError(t, err)

	_, err = orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = orch.RunBatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, r.notifier.count())
	assert.Equal(t, []string{"silk"}, orch.Profile().LikedTags)
}
