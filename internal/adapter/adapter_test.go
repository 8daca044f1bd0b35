package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termbed/termbed/internal/asyncx"
	"github.com/termbed/termbed/internal/sessions"
	"github.com/termbed/termbed/internal/surface"
)

type stubSession struct {
	exit *asyncx.Future[sessions.ExitStatus]

	mu      sync.Mutex
	killed  int
	killErr error
	piped   []surface.Surface
	resizes [][2]int
}

func newStubSession() *stubSession {
	return &stubSession{exit: asyncx.NewFuture[sessions.ExitStatus]()}
}

func (s *stubSession) Handle() sessions.Handle { return nil }

func (s *stubSession) Exit() *asyncx.Future[sessions.ExitStatus] { return s.exit }

func (s *stubSession) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killed++
	if s.killErr != nil {
		return s.killErr
	}
	s.exit.Resolve(sessions.Exited(0))
	return nil
}

func (s *stubSession) Pipe(sf surface.Surface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.piped = append(s.piped, sf)
	return nil
}

func (s *stubSession) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resizes = append(s.resizes, [2]int{cols, rows})
	return nil
}

func (s *stubSession) kills() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

func (s *stubSession) resizeCalls() [][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]int, len(s.resizes))
	copy(out, s.resizes)
	return out
}

func TestSessionCreatedLazily(t *testing.T) {
	var calls atomic.Int32
	sess := newStubSession()
	a, err := New(surface.NewVirtual(80, 24), func() (sessions.Pseudoterminal, error) {
		calls.Add(1)
		return sess, nil
	}, Options{})
	require.NoError(t, err)

	assert.False(t, a.Started())
	assert.Zero(t, calls.Load())

	got, err := a.Session(context.Background())
	require.NoError(t, err)
	assert.Same(t, sessions.Pseudoterminal(sess), got)
	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, sess.piped, 1)

	// Second call reuses the cached session.
	_, err = a.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSessionFactoryErrorCached(t *testing.T) {
	boom := errors.New("no shell")
	var calls atomic.Int32
	a, err := New(surface.NewVirtual(80, 24), func() (sessions.Pseudoterminal, error) {
		calls.Add(1)
		return nil, boom
	}, Options{})
	require.NoError(t, err)

	_, err = a.Session(context.Background())
	assert.ErrorIs(t, err, boom)
	_, err = a.Session(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResizeDebounced(t *testing.T) {
	sess := newStubSession()
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return sess, nil }, Options{
		ResizeDelay: 30 * time.Millisecond,
	})
	require.NoError(t, err)
	_, err = a.Session(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() { defer wg.Done(); errs[0] = a.Resize(100, 30) }()
	time.Sleep(10 * time.Millisecond)
	wg.Add(1)
	go func() { defer wg.Done(); errs[1] = a.Resize(132, 43) }()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	// Only the final geometry lands, exactly once.
	assert.Equal(t, [][2]int{{132, 43}}, sess.resizeCalls())
	assert.Equal(t, 132, sf.Cols())
	assert.Equal(t, 43, sf.Rows())
}

func TestResizeBeforeSessionOnlyTouchesSurface(t *testing.T) {
	sess := newStubSession()
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return sess, nil }, Options{
		ResizeDelay: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, a.Resize(120, 40))
	assert.Equal(t, 120, sf.Cols())
	assert.Empty(t, sess.resizeCalls())
	assert.False(t, a.Started())
}

func TestCloseKillsAndDisposes(t *testing.T) {
	sess := newStubSession()
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return sess, nil }, Options{})
	require.NoError(t, err)
	_, err = a.Session(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Equal(t, 1, sess.kills())
	assert.True(t, sf.Disposed())
}

func TestCloseKeepsSurfaceWhenKillFails(t *testing.T) {
	sess := newStubSession()
	sess.killErr = sessions.ErrKillFailed
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return sess, nil }, Options{})
	require.NoError(t, err)
	_, err = a.Session(context.Background())
	require.NoError(t, err)

	err = a.Close()
	assert.ErrorIs(t, err, sessions.ErrKillFailed)
	assert.False(t, sf.Disposed())
}

func TestCloseAfterExitSkipsKill(t *testing.T) {
	sess := newStubSession()
	sess.exit.Resolve(sessions.Exited(1))
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return sess, nil }, Options{})
	require.NoError(t, err)
	_, err = a.Session(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Zero(t, sess.kills())
	assert.True(t, sf.Disposed())
}

func TestCloseWithoutSession(t *testing.T) {
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) {
		t.Fatal("factory must not run")
		return nil, nil
	}, Options{})
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, sf.Disposed())
}

func TestInitialStateRestored(t *testing.T) {
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return newStubSession(), nil }, Options{
		Initial: &surface.State{Columns: 100, Rows: 30, Data: "saved line\nsecond"},
	})
	require.NoError(t, err)

	st := a.Serialize()
	assert.Equal(t, 100, st.Columns)
	assert.Equal(t, 30, st.Rows)
	assert.Equal(t, "saved line\nsecond", st.Data)
}

func TestSerializeRoundTrip(t *testing.T) {
	sf := surface.NewVirtual(80, 24)
	a, err := New(sf, func() (sessions.Pseudoterminal, error) { return newStubSession(), nil }, Options{})
	require.NoError(t, err)
	require.NoError(t, sf.Write("alpha\r\nbeta"))

	st := a.Serialize()

	restored, err := New(surface.NewVirtual(80, 24), nil, Options{Initial: &st})
	require.NoError(t, err)
	assert.Equal(t, st, restored.Serialize())
}
