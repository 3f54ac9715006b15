package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"media-converter/internal/metrics"
)

// Manager lazily loads the single shared engine handle. Concurrent callers
// arriving while a load is in flight share its outcome.
type Manager struct {
	loader  Loader
	log     *zap.Logger
	metrics *metrics.Recorder

	group  singleflight.Group
	mu     sync.Mutex
	handle Handle
}

// NewManager creates a manager; nothing is loaded until Acquire.
func NewManager(loader Loader, log *zap.Logger, rec *metrics.Recorder) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		loader:  loader,
		log:     log,
		metrics: rec,
	}
}

// Acquire returns the shared handle, loading it on first use. The load is
// detached from ctx so one waiter giving up does not fail the others; ctx
// only bounds how long this caller waits. A failed load is returned as
// *InitializationError and is not retried until Acquire is called again.
func (m *Manager) Acquire(ctx context.Context) (Handle, error) {
	if h := m.loaded(); h != nil {
		return h, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("engine", func() (interface{}, error) {
		if h := m.loaded(); h != nil {
			return h, nil
		}
		return m.load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Handle), nil
	}
}

func (m *Manager) load(ctx context.Context) (Handle, error) {
	start := time.Now()
	m.log.Info("loading transcoding engine")

	h, err := m.loader.Load(ctx)
	if err != nil {
		m.metrics.EngineInit(false)
		m.log.Error("engine initialization failed", zap.Error(err))
		return nil, &InitializationError{Err: err}
	}

	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()

	m.metrics.EngineInit(true)
	m.log.Info("transcoding engine ready", zap.Duration("elapsed", time.Since(start)))
	return h, nil
}

// Loaded reports whether a handle is ready.
func (m *Manager) Loaded() bool {
	return m.loaded() != nil
}

func (m *Manager) loaded() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Close releases the handle's resources when it supports it.
func (m *Manager) Close() error {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if c, ok := h.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
