package logstream

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer is a bytes.Buffer usable from the pump goroutine and the
// test goroutine.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// slowBuffer delays every write to simulate a consumer that cannot
// keep up.
type slowBuffer struct {
	safeBuffer
	delay time.Duration
}

func (b *slowBuffer) Write(p []byte) (int, error) {
	time.Sleep(b.delay)
	return b.safeBuffer.Write(p)
}

// closeRecorder notes whether the stream closed it at End.
type closeRecorder struct {
	safeBuffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

// failingWriter errors on every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("consumer broken")
}

func TestHeldLinesFlushOnRelease(t *testing.T) {
	s := New()
	_, err := s.Write([]byte("header line\r\n"))
	require.NoError(t, err)
	_, err = s.Write([]byte("second line\r\n"))
	require.NoError(t, err)

	out := &safeBuffer{}
	s.Attach(out)

	// Nothing may reach the consumer before Release.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, out.String())

	s.Release()
	require.NoError(t, s.End())
	assert.Equal(t, "header line\r\nsecond line\r\n", out.String())
}

func TestPassThroughAfterRelease(t *testing.T) {
	s := New()
	out := &safeBuffer{}
	s.Attach(out)
	s.Release()

	_, err := s.Write([]byte("live output\n"))
	require.NoError(t, err)

	require.NoError(t, s.End())
	assert.Equal(t, "live output\n", out.String())
}

func TestOrderAcrossReleaseBoundary(t *testing.T) {
	s := New()
	out := &safeBuffer{}
	s.Attach(out)

	_, _ = s.Write([]byte("a"))
	_, _ = s.Write([]byte("b"))
	s.Release()
	_, _ = s.Write([]byte("c"))
	_, _ = s.Write([]byte("d"))

	require.NoError(t, s.End())
	assert.Equal(t, "abcd", out.String())
}

func TestSlowConsumerNeverLosesLines(t *testing.T) {
	s := New()
	slow := &slowBuffer{delay: 5 * time.Millisecond}
	s.Attach(slow)

	var want bytes.Buffer
	for i := 0; i < 50; i++ {
		line := []byte("line with some realistic width to push bytes through\r\n")
		want.Write(line)
		_, err := s.Write(line)
		require.NoError(t, err)
	}
	s.Release()

	require.NoError(t, s.End())
	// End resolved, so the slow consumer must already hold every byte.
	assert.Equal(t, want.String(), slow.String())
}

func TestEndBlocksUntilDelivered(t *testing.T) {
	s := New()
	slow := &slowBuffer{delay: 30 * time.Millisecond}
	s.Attach(slow)
	s.Release()

	for i := 0; i < 5; i++ {
		_, _ = s.Write([]byte("x"))
	}

	start := time.Now()
	require.NoError(t, s.End())
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond,
		"End returned before the slow consumer finished")
	assert.Equal(t, "xxxxx", slow.String())
}

func TestWriteAfterEnd(t *testing.T) {
	s := New()
	s.Release()
	require.NoError(t, s.End())

	_, err := s.Write([]byte("too late"))
	assert.ErrorIs(t, err, ErrEnded)
}

func TestEndIdempotent(t *testing.T) {
	s := New()
	s.Release()
	require.NoError(t, s.End())
	require.NoError(t, s.End())
}

func TestEndWithoutReleaseStillDelivers(t *testing.T) {
	s := New()
	out := &safeBuffer{}
	s.Attach(out)
	_, _ = s.Write([]byte("held only\r\n"))

	require.NoError(t, s.End())
	assert.Equal(t, "held only\r\n", out.String())
}

func TestCloserConsumersClosedAtEnd(t *testing.T) {
	s := New()
	rec := &closeRecorder{}
	s.Attach(rec)
	s.Release()
	_, _ = s.Write([]byte("data"))

	require.NoError(t, s.End())
	assert.True(t, rec.closed)
	assert.Equal(t, "data", rec.String())
}

func TestFailedConsumerDoesNotBlockOthers(t *testing.T) {
	s := New()
	good := &safeBuffer{}
	s.Attach(failingWriter{})
	s.Attach(good)
	s.Release()

	_, _ = s.Write([]byte("one"))
	_, _ = s.Write([]byte("two"))

	err := s.End()
	require.Error(t, err, "End reports the consumer failure")
	assert.Equal(t, "onetwo", good.String())
}

func TestLateAttachSeesOnlySubsequentWrites(t *testing.T) {
	s := New()
	early := &safeBuffer{}
	s.Attach(early)
	_, _ = s.Write([]byte("before\r\n"))
	s.Release()

	late := &safeBuffer{}
	s.Attach(late)
	_, _ = s.Write([]byte("after\r\n"))

	require.NoError(t, s.End())
	assert.Equal(t, "before\r\nafter\r\n", early.String())
	assert.Equal(t, "after\r\n", late.String())
}

func TestConcurrentWriters(t *testing.T) {
	s := New()
	out := &safeBuffer{}
	s.Attach(out)
	s.Release()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := s.Write([]byte("z"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.End())
	assert.Len(t, out.String(), 8*25)
}
