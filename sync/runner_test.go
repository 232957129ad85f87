package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgost/mgost/api"
	mgErrors "github.com/mgost/mgost/errors"
	"github.com/mgost/mgost/storage"
)

const testProjectID int64 = 7

// fakeAPI implements API in memory. Mutating calls are recorded so
// tests can assert what a pass actually did.
type fakeAPI struct {
	mu gosync.Mutex

	available bool
	availErr  error
	project   *api.ProjectDetails
	files     map[string]api.RemoteFile
	reqs      map[string]api.Requirement

	failUpload   map[string]error
	failDownload map[string]error

	uploads       []string
	downloads     []string
	moves         [][2]string
	invalidations int

	uploadDelay time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		available: true,
		project: &api.ProjectDetails{
			Project:        api.Project{ID: testProjectID, Name: "thesis"},
			PathToMarkdown: "main.md",
		},
		files:        make(map[string]api.RemoteFile),
		reqs:         make(map[string]api.Requirement),
		failUpload:   make(map[string]error),
		failDownload: make(map[string]error),
	}
}

func (f *fakeAPI) addFile(path string, size int64, created, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = api.RemoteFile{
		ProjectID: testProjectID,
		Path:      path,
		Size:      size,
		Created:   created,
		Modified:  modified,
	}
}

func (f *fakeAPI) IsProjectAvailable(ctx context.Context, projectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available, f.availErr
}

func (f *fakeAPI) Project(ctx context.Context, projectID int64) (*api.ProjectDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.project, nil
}

func (f *fakeAPI) ProjectFiles(ctx context.Context, projectID int64) (map[string]api.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]api.RemoteFile, len(f.files))
	for k, v := range f.files {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAPI) Requirements(ctx context.Context, projectID int64) (map[string]api.Requirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]api.Requirement, len(f.reqs))
	for k, v := range f.reqs {
		out[k] = v
	}
	return out, nil
}

func (f *fakeAPI) Upload(ctx context.Context, projectID int64, path string, overwrite bool) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.uploadDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err := f.failUpload[path]; err != nil {
		return err
	}
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeAPI) Download(ctx context.Context, projectID int64, path string, overwriteOK bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDownload[path]; err != nil {
		return err
	}
	f.downloads = append(f.downloads, path)
	return nil
}

func (f *fakeAPI) MoveOnCloud(ctx context.Context, projectID int64, oldPath, newPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, [2]string{oldPath, newPath})
	return nil
}

func (f *fakeAPI) InvalidateCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

type runnerEnv struct {
	root string
	api  *fakeAPI
}

func setupRunnerEnv(t *testing.T) *runnerEnv {
	t.Helper()
	return &runnerEnv{root: t.TempDir(), api: newFakeAPI()}
}

// seedPrimary puts an identical main.md on both sides so the primary
// phase reduces to a no-op and passes focus on the file set.
func (env *runnerEnv) seedPrimary(t *testing.T) {
	t.Helper()
	t0 := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	env.writeLocal(t, "main.md", []byte("# Thesis"), t0)
	env.api.addFile("main.md", 8, t0.Add(-time.Hour), t0)
}

func (env *runnerEnv) writeLocal(t *testing.T, relPath string, content []byte, mtime time.Time) {
	t.Helper()
	p := filepath.Join(env.root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, 0644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
}

func TestRunner_UnavailableProjectAborts(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	env.api.available = false

	report, err := NewRunner(env.api, testProjectID, env.root).Run(context.Background())
	require.Error(t, err)
	assert.True(t, mgErrors.IsUnavailable(err))
	assert.Equal(t, StateAborted, report.State)
	assert.Empty(t, env.api.uploads)
	assert.Empty(t, env.api.downloads)
}

func TestRunner_PrimaryFailureAborts(t *testing.T) {
	env := setupRunnerEnv(t)
	// main.md exists nowhere, so the pass cannot continue.

	report, err := NewRunner(env.api, testProjectID, env.root).Run(context.Background())
	require.Error(t, err)
	assert.True(t, mgErrors.IsNotFound(err))
	assert.Equal(t, StateAborted, report.State)
	assert.Empty(t, env.api.uploads)
}

func TestRunner_HappyPassSyncsEverything(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	env.writeLocal(t, "images/graph.png", []byte("png-bytes"), time.Time{})
	env.api.addFile("chapters/intro.md", 512,
		time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 2, 8, 0, 0, 0, time.UTC))
	env.api.reqs["images/graph.png"] = api.Requirement{}
	env.api.reqs["chapters/intro.md"] = api.Requirement{}

	report, err := NewRunner(env.api, testProjectID, env.root).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Len(t, report.Planned, 3) // primary + 2 requirements
	assert.Equal(t, 3, report.Completed)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"images/graph.png"}, env.api.uploads)
	assert.Equal(t, []string{"chapters/intro.md"}, env.api.downloads)
	assert.Equal(t, 1, env.api.invalidations)
}

// A batch where some executions fail: every sibling still runs and
// the report names exactly the failed ones with their actions.
func TestRunner_CollectsFailuresWithoutCancelling(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("assets/fig%02d.png", i)
		env.writeLocal(t, name, []byte("data"), time.Time{})
		env.api.reqs[name] = api.Requirement{}
	}
	env.api.failUpload["assets/fig03.png"] = mgErrors.RemoteRequestError{
		Method: "PUT", Path: "/mgost/project/7/files", Status: 500, Detail: "remote hiccup",
	}
	env.api.failUpload["assets/fig07.png"] = mgErrors.RemoteRequestError{
		Method: "PUT", Path: "/mgost/project/7/files", Status: 500, Detail: "remote hiccup",
	}

	report, err := NewRunner(env.api, testProjectID, env.root).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Len(t, report.Planned, 11)
	assert.Equal(t, 1+8, report.Completed)

	require.Len(t, report.Failures, 2)
	failed := make(map[string]Action, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.Path] = f.Action
	}
	require.Contains(t, failed, "assets/fig03.png")
	require.Contains(t, failed, "assets/fig07.png")
	// Each failure keeps the action that caused it.
	assert.Equal(t, KindUpload, failed["assets/fig03.png"].Kind)
	assert.Equal(t, KindUpload, failed["assets/fig07.png"].Kind)

	assert.Len(t, env.api.uploads, 8)
}

func TestRunner_StateProgression(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	bus := NewEventBus()
	ch := bus.Subscribe()

	runner := NewRunner(env.api, testProjectID, env.root, WithEvents(bus))
	assert.Equal(t, StateIdle, runner.State())

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, runner.State())

	var states []State
	for drained := false; !drained; {
		select {
		case e := <-ch:
			if e.Type == EventState {
				states = append(states, e.State)
			}
		default:
			drained = true
		}
	}

	assert.Equal(t, []State{
		StateValidatingProject,
		StateSyncingPrimary,
		StateEnumerating,
		StateSyncingFileSet,
		StateDone,
	}, states)
}

func TestRunner_BoundsWorkerPool(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	env.api.uploadDelay = 10 * time.Millisecond
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("f%02d.dat", i)
		env.writeLocal(t, name, []byte("x"), time.Time{})
		env.api.reqs[name] = api.Requirement{}
	}

	_, err := NewRunner(env.api, testProjectID, env.root, WithWorkers(2)).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, env.api.uploads, 12)
	assert.LessOrEqual(t, env.api.maxInFlight, 2)
}

func TestRunner_RecordsUploadsInLedger(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	env.writeLocal(t, "images/graph.png", []byte("png-bytes"), time.Time{})
	env.api.reqs["images/graph.png"] = api.Requirement{}

	store, err := storage.Open(filepath.Join(t.TempDir(), "mgost.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRunner(env.api, testProjectID, env.root, WithLedger(store)).Run(context.Background())
	require.NoError(t, err)

	rec, err := store.Get("images/graph.png")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(9), rec.Size)
	assert.NotEmpty(t, rec.Fingerprint)
	assert.False(t, rec.UploadedAt.IsZero())
}

func TestRunner_MovesFollowLocalRenames(t *testing.T) {
	env := setupRunnerEnv(t)
	env.seedPrimary(t)
	env.writeLocal(t, "chapters/renamed.bin", make([]byte, 64), time.Time{})
	env.api.addFile("old.bin", 64,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC))
	env.api.reqs["old.bin"] = api.Requirement{}

	report, err := NewRunner(env.api, testProjectID, env.root).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	require.Len(t, env.api.moves, 1)
	assert.Equal(t, [2]string{"old.bin", "chapters/renamed.bin"}, env.api.moves[0])
}
