package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-converter/internal/metrics"
)

// gatedLoader blocks every Load until release is closed.
type gatedLoader struct {
	loads   atomic.Int32
	started chan struct{}
	release chan struct{}
	handle  Handle
	err     error
	once    sync.Once
}

func newGatedLoader(h Handle, err error) *gatedLoader {
	return &gatedLoader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		handle:  h,
		err:     err,
	}
}

// Load counts the call, signals start and waits for release.
func (l *gatedLoader) Load(ctx context.Context) (Handle, error) {
	l.loads.Add(1)
	l.once.Do(func() { close(l.started) })
	<-l.release
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

type closingHandle struct {
	FFmpegHandle
	closed bool
}

func (h *closingHandle) Close() error {
	h.closed = true
	return nil
}

func TestManagerAcquireIsMemoizedUnderConcurrency(t *testing.T) {
	h := newMemHandle(&fakeRunner{})
	loader := newGatedLoader(h, nil)
	m := NewManager(loader, zap.NewNop(), nil)

	const callers = 16
	results := make([]Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.Acquire(context.Background())
		}(i)
	}

	<-loader.started
	time.Sleep(10 * time.Millisecond)
	close(loader.release)
	wg.Wait()

	assert.Equal(t, int32(1), loader.loads.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, h, results[i])
	}

	again, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, again)
	assert.Equal(t, int32(1), loader.loads.Load())
	assert.True(t, m.Loaded())
}

func TestManagerAcquireFailureIsInitializationError(t *testing.T) {
	cause := errors.New("ffmpeg not found")
	loader := newGatedLoader(nil, cause)
	close(loader.release)
	reg := prometheus.NewRegistry()
	m := NewManager(loader, zap.NewNop(), metrics.NewRecorder(reg))

	_, err := m.Acquire(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, cause)
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, initErr.Error(), "ffmpeg not found")
	assert.False(t, m.Loaded())

	// Not retried on its own; a new explicit Acquire tries again.
	assert.Equal(t, int32(1), loader.loads.Load())
	_, err = m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), loader.loads.Load())
}

func TestManagerAcquireWaiterCancellation(t *testing.T) {
	h := newMemHandle(&fakeRunner{})
	loader := newGatedLoader(h, nil)
	m := NewManager(loader, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Acquire(ctx)
		done <- err
	}()

	<-loader.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The load itself keeps going and serves the next caller.
	close(loader.release)
	got, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Equal(t, int32(1), loader.loads.Load())
}

func TestManagerClose(t *testing.T) {
	h := &closingHandle{}
	loader := newGatedLoader(h, nil)
	close(loader.release)
	m := NewManager(loader, zap.NewNop(), nil)

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.True(t, h.closed)
	assert.False(t, m.Loaded())
}
