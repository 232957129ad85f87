package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/maruel/natural"
	"github.com/marusama/semaphore/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/mgost/mgost/api"
	mgErrors "github.com/mgost/mgost/errors"
	"github.com/mgost/mgost/logging"
	"github.com/mgost/mgost/storage"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// defaultWorkers bounds concurrent action executions, which in turn
// bounds outbound requests and open file handles.
const defaultWorkers = 4

// API is the surface the engine needs from the cloud client.
type API interface {
	IsProjectAvailable(ctx context.Context, projectID int64) (bool, error)
	Project(ctx context.Context, projectID int64) (*api.ProjectDetails, error)
	ProjectFiles(ctx context.Context, projectID int64) (map[string]api.RemoteFile, error)
	Requirements(ctx context.Context, projectID int64) (map[string]api.Requirement, error)
	Upload(ctx context.Context, projectID int64, path string, overwrite bool) error
	Download(ctx context.Context, projectID int64, path string, overwriteOK bool) error
	MoveOnCloud(ctx context.Context, projectID int64, oldPath, newPath string) error
	InvalidateCache()
}

// Failure pairs a failed step with its error. A failure during
// planning carries the zero Action.
type Failure struct {
	Path   string
	Action Action
	Err    error
}

// Report summarizes one pass: what was planned, what completed, and
// every failure with the action that caused it.
type Report struct {
	State     State
	Planned   []Action
	Completed int
	Failures  []Failure
	Duration  time.Duration
}

// Runner drives sync passes for one project binding. All ambient
// inputs of a pass (project id, local root, pool size, ledger) are
// carried here explicitly.
type Runner struct {
	api     API
	project int64
	root    string
	workers int
	store   *storage.Store
	events  *EventBus

	state atomic.Int32
}

// State returns where the current (or last) pass is in its lifecycle.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the size of the execution pool.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLedger records successful uploads in the given store.
func WithLedger(store *storage.Store) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithEvents publishes pass progress on the given bus.
func WithEvents(bus *EventBus) RunnerOption {
	return func(r *Runner) { r.events = bus }
}

// NewRunner creates a runner syncing root against the given project.
func NewRunner(a API, projectID int64, root string, opts ...RunnerOption) *Runner {
	r := &Runner{
		api:     a,
		project: projectID,
		root:    root,
		workers: defaultWorkers,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one full sync pass. The returned error is non-nil only
// for pass-fatal conditions (unavailable project, primary document
// failure); per-file trouble lands in the report instead, so one bad
// file never stops the batch.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	log := logging.Sub("runner")
	start := nowFunc()
	report := &Report{}
	defer func() {
		report.Duration = nowFunc().Sub(start)
	}()

	r.setState(report, StateValidatingProject)
	// Decisions in this pass must be made against fresh listings.
	r.api.InvalidateCache()

	ok, err := r.api.IsProjectAvailable(ctx, r.project)
	if err != nil {
		r.setState(report, StateAborted)
		return report, err
	}
	if !ok {
		r.setState(report, StateAborted)
		return report, mgErrors.ProjectUnavailable{ID: r.project}
	}
	project, err := r.api.Project(ctx, r.project)
	if err != nil {
		r.setState(report, StateAborted)
		return report, err
	}
	log.Info("pass started", "project", project.Name, "id", r.project)

	// The primary document gates everything else: the requirement set
	// is derived from its content, so it must land first.
	r.setState(report, StateSyncingPrimary)
	primary := norm.NFC.String(project.PathToMarkdown)
	action, err := r.Reconcile(ctx, r.project, primary)
	if err != nil {
		r.setState(report, StateAborted)
		return report, fmt.Errorf("reconcile primary document: %w", err)
	}
	report.Planned = append(report.Planned, action)
	if err := r.apply(ctx, action); err != nil {
		r.setState(report, StateAborted)
		return report, fmt.Errorf("sync primary document: %w", err)
	}
	report.Completed++
	r.publish(Event{Type: EventAction, Action: action})

	r.setState(report, StateEnumerating)
	// The requirement set and the manifest feed every planning
	// decision below; fetch both at once and let the per-path
	// reconciles hit the warmed cache.
	var reqs map[string]api.Requirement
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reqs, err = r.api.Requirements(gctx, r.project)
		return err
	})
	g.Go(func() error {
		_, err := r.api.ProjectFiles(gctx, r.project)
		return err
	})
	if err := g.Wait(); err != nil {
		r.setState(report, StateAborted)
		return report, err
	}
	paths := lo.Uniq(lo.Map(lo.Keys(reqs), func(p string, _ int) string {
		return norm.NFC.String(p)
	}))
	sort.Slice(paths, func(i, j int) bool { return natural.Less(paths[i], paths[j]) })
	log.Debug("requirements enumerated", "count", len(paths))

	// Planning is read-only and cheap, so it runs sequentially; only
	// execution fans out.
	r.setState(report, StateSyncingFileSet)
	actions := make([]Action, 0, len(paths))
	for _, p := range paths {
		a, err := r.Reconcile(ctx, r.project, p)
		if err != nil {
			log.Warn("reconcile failed", "path", p, "err", err)
			report.Failures = append(report.Failures, Failure{Path: p, Err: err})
			r.publish(Event{Type: EventFailure, Action: Action{Path: p}, Err: err.Error()})
			continue
		}
		actions = append(actions, a)
	}
	report.Planned = append(report.Planned, actions...)

	var (
		sem = semaphore.New(r.workers)
		wg  gosync.WaitGroup
		mu  gosync.Mutex
	)
	for _, a := range actions {
		wg.Add(1)
		go func(a Action) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Path: a.Path, Action: a, Err: err})
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			if err := r.apply(ctx, a); err != nil {
				log.Warn("action failed", "action", a.String(), "err", err)
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Path: a.Path, Action: a, Err: err})
				mu.Unlock()
				r.publish(Event{Type: EventFailure, Action: a, Err: err.Error()})
				return
			}
			mu.Lock()
			report.Completed++
			mu.Unlock()
			r.publish(Event{Type: EventAction, Action: a})
		}(a)
	}
	wg.Wait()

	r.setState(report, StateDone)
	log.Info("pass finished",
		"planned", len(report.Planned), "completed", report.Completed, "failed", len(report.Failures))
	return report, nil
}

// apply executes one action against the cloud. This switch is the
// single place where action kinds meet side effects.
func (r *Runner) apply(ctx context.Context, a Action) error {
	switch a.Kind {
	case KindNoOp:
		return nil
	case KindUpload:
		if err := r.api.Upload(ctx, r.project, a.Path, a.Overwrite); err != nil {
			return err
		}
		r.recordUpload(a.Path)
		return nil
	case KindDownload:
		return r.api.Download(ctx, r.project, a.Path, a.OverwriteOK)
	case KindMovedLocally:
		return r.api.MoveOnCloud(ctx, r.project, a.Path, a.NewPath)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// recordUpload notes a completed upload in the ledger. Ledger trouble
// is only logged; the upload itself already succeeded.
func (r *Runner) recordUpload(relPath string) {
	if r.store == nil {
		return
	}
	local := filepath.Join(r.root, filepath.FromSlash(relPath))
	fi, err := os.Lstat(local)
	if err != nil {
		return
	}
	fp, err := storage.Fingerprint(local)
	if err != nil {
		fp = ""
	}
	rec := storage.UploadRecord{
		Path:        relPath,
		UploadedAt:  nowFunc(),
		Size:        fi.Size(),
		Fingerprint: fp,
	}
	if err := r.store.Record(rec); err != nil {
		logging.Sub("runner").Warn("ledger update failed", "path", relPath, "err", err)
	}
}

func (r *Runner) setState(report *Report, s State) {
	r.state.Store(int32(s))
	report.State = s
	if logging.Enabled(slog.LevelDebug) {
		logging.Sub("runner").Debug("state change", "state", s.String())
	}
	r.publish(Event{Type: EventState, State: s})
}

func (r *Runner) publish(e Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}
