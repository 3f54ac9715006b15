package jobs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"media-converter/internal/archive"
	"media-converter/internal/domain"
	"media-converter/internal/transcode"
)

// ErrJobNotFound is returned for IDs that are not in the current selection.
var ErrJobNotFound = errors.New("job not found")

// jobState pairs the public job with the source bytes it still owns.
type jobState struct {
	job    domain.Job
	source []byte
}

// Manager holds the ordered job list of the current selection and applies
// lifecycle transitions. Every change is published on the event bus.
type Manager struct {
	mu     sync.RWMutex
	order  []*jobState
	byID   map[string]*jobState
	events *EventBus
	newID  func() string
}

// NewManager creates an empty manager publishing to events.
func NewManager(events *EventBus) *Manager {
	if events == nil {
		events = NewEventBus(0)
	}
	return &Manager{
		byID:   make(map[string]*jobState),
		events: events,
		newID:  uuid.NewString,
	}
}

// Events returns the bus job changes are published on.
func (m *Manager) Events() *EventBus {
	return m.events
}

// Reset discards every previous job and creates one pending job per
// source, in order. Output names use format until a run picks its own.
func (m *Manager) Reset(sources []domain.Artifact, format domain.Format) []domain.Job {
	if format != domain.FormatWebM {
		format = domain.FormatMP4
	}

	m.mu.Lock()
	m.order = make([]*jobState, 0, len(sources))
	m.byID = make(map[string]*jobState, len(sources))
	for _, src := range sources {
		st := &jobState{
			job: domain.Job{
				ID:         m.newID(),
				SourceName: src.Name,
				SourceSize: int64(len(src.Data)),
				OutputName: m.freeOutputNameLocked(transcode.OutputName(src.Name, format), ""),
				Status:     domain.JobStatusPending,
			},
			source: src.Data,
		}
		m.order = append(m.order, st)
		m.byID[st.job.ID] = st
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.events.Publish(Event{
		Type:    EventTypeReset,
		Message: fmt.Sprintf("%d file(s) selected", len(snapshot)),
	})
	return snapshot
}

// Jobs returns a copy of the job list in selection order.
func (m *Manager) Jobs() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() []domain.Job {
	out := make([]domain.Job, 0, len(m.order))
	for _, st := range m.order {
		out = append(out, copyJob(st.job))
	}
	return out
}

// Get returns a copy of one job.
func (m *Manager) Get(id string) (domain.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byID[id]
	if !ok {
		return domain.Job{}, false
	}
	return copyJob(st.job), true
}

// PendingIDs lists the jobs that have not been started, in order.
func (m *Manager) PendingIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.order))
	for _, st := range m.order {
		if st.job.Status == domain.JobStatusPending {
			ids = append(ids, st.job.ID)
		}
	}
	return ids
}

// Begin moves a pending job to processing with zero progress.
func (m *Manager) Begin(id, outputName string) (domain.Job, error) {
	m.mu.Lock()
	st, err := m.transitionLocked(id, domain.JobStatusProcessing)
	if err != nil {
		m.mu.Unlock()
		return domain.Job{}, err
	}
	st.job.Progress = 0
	if outputName != "" {
		st.job.OutputName = m.freeOutputNameLocked(outputName, id)
	}
	job := copyJob(st.job)
	m.mu.Unlock()

	m.publishStatus(job, "Converting "+job.SourceName)
	return job, nil
}

// TakeSource hands the source bytes to the caller and drops the job's
// reference so they can be collected once staged in the engine.
func (m *Manager) TakeSource(id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.byID[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if st.source == nil {
		return nil, fmt.Errorf("source of %s already consumed", st.job.SourceName)
	}
	data := st.source
	st.source = nil
	return data, nil
}

// SetProgress records a percentage for a processing job. Values are
// clamped to [0,100] and never move backwards; it reports whether the
// stored value changed.
func (m *Manager) SetProgress(id string, percent int) bool {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	m.mu.Lock()
	st, ok := m.byID[id]
	if !ok || st.job.Status != domain.JobStatusProcessing || percent <= st.job.Progress {
		m.mu.Unlock()
		return false
	}
	st.job.Progress = percent
	job := copyJob(st.job)
	m.mu.Unlock()

	m.events.Publish(Event{
		JobID:    job.ID,
		Type:     EventTypeProgress,
		Status:   job.Status,
		Progress: job.Progress,
	})
	return true
}

// Complete marks a processing job done with its produced artifact.
func (m *Manager) Complete(id string, output domain.Artifact) (domain.Job, error) {
	m.mu.Lock()
	st, err := m.transitionLocked(id, domain.JobStatusDone)
	if err != nil {
		m.mu.Unlock()
		return domain.Job{}, err
	}
	output.Size = int64(len(output.Data))
	st.job.Progress = 100
	st.job.Error = ""
	st.job.Output = &output
	st.job.OutputName = output.Name
	st.source = nil
	job := copyJob(st.job)
	m.mu.Unlock()

	m.publishStatus(job, "Converted "+job.SourceName)
	m.events.Publish(Event{
		JobID:    job.ID,
		Type:     EventTypeResult,
		Status:   job.Status,
		Progress: job.Progress,
		Output:   job.OutputName,
	})
	return job, nil
}

// Fail marks a processing job as errored with a short message.
func (m *Manager) Fail(id, message string) (domain.Job, error) {
	if message == "" {
		message = "conversion failed"
	}

	m.mu.Lock()
	st, err := m.transitionLocked(id, domain.JobStatusError)
	if err != nil {
		m.mu.Unlock()
		return domain.Job{}, err
	}
	st.job.Error = message
	st.job.Output = nil
	st.source = nil
	job := copyJob(st.job)
	m.mu.Unlock()

	m.publishStatus(job, "Failed "+job.SourceName)
	m.events.Publish(Event{
		JobID:    job.ID,
		Type:     EventTypeError,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  message,
	})
	return job, nil
}

// Output returns the produced artifact, including its bytes, of a done job.
func (m *Manager) Output(id string) (domain.Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.byID[id]
	if !ok || st.job.Status != domain.JobStatusDone || st.job.Output == nil {
		return domain.Artifact{}, false
	}
	return *st.job.Output, true
}

// Outputs returns the artifacts of every done job, in order.
func (m *Manager) Outputs() []domain.Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return lo.FilterMap(m.order, func(st *jobState, _ int) (domain.Artifact, bool) {
		if st.job.Status != domain.JobStatusDone || st.job.Output == nil {
			return domain.Artifact{}, false
		}
		return *st.job.Output, true
	})
}

// freeOutputNameLocked suffixes name until no job other than self uses it.
// Names are compared case-insensitively since outputs land in one directory.
func (m *Manager) freeOutputNameLocked(name, self string) string {
	return archive.UniqueName(name, func(candidate string) bool {
		return lo.ContainsBy(m.order, func(st *jobState) bool {
			return st.job.ID != self && strings.EqualFold(st.job.OutputName, candidate)
		})
	})
}

func (m *Manager) transitionLocked(id string, to domain.JobStatus) (*jobState, error) {
	st, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !isValidTransition(st.job.Status, to) {
		return nil, fmt.Errorf("invalid transition: %s -> %s", st.job.Status, to)
	}
	st.job.Status = to
	return st, nil
}

func (m *Manager) publishStatus(job domain.Job, message string) {
	m.events.Publish(Event{
		JobID:    job.ID,
		Type:     EventTypeStatus,
		Status:   job.Status,
		Progress: job.Progress,
		Message:  message,
	})
}

// copyJob detaches the output pointer so callers cannot mutate state.
func copyJob(job domain.Job) domain.Job {
	if job.Output != nil {
		out := *job.Output
		job.Output = &out
	}
	return job
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusProcessing
	case domain.JobStatusProcessing:
		return to == domain.JobStatusDone || to == domain.JobStatusError
	default:
		return false
	}
}
