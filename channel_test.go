package ringchan_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacoelho/ringchan"
)

func TestWriteReadFitsAll(t *testing.T) {
	ch := newTestChannel(t, 128)

	data := testBytes(1, 100)
	mustWrite(t, ch, data)
	mustRead(t, ch, data)
	assert.Equal(t, 0, ch.Len())
}

func TestWrapAround(t *testing.T) {
	ch := newTestChannel(t, 40)

	first := testBytes(2, 35)
	mustWrite(t, ch, first)
	mustRead(t, ch, first)

	second := testBytes(3, 35)
	mustWrite(t, ch, second)
	mustRead(t, ch, second)
}

func TestWriteBlocksUntilRead(t *testing.T) {
	ch := newTestChannel(t, 2)

	data := []byte("hello")
	var (
		wg       sync.WaitGroup
		writeErr error
	)
	wg.Go(func() {
		_, writeErr = ch.Write(context.Background(), data)
	})

	time.Sleep(10 * time.Millisecond)

	mustRead(t, ch, data)
	wg.Wait()
	require.NoError(t, writeErr)
}

func TestReadWaitsForFullBuffer(t *testing.T) {
	ch := newTestChannel(t, 32)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := ch.Read(context.Background(), buf)
		assert.NoError(t, err)
		done <- buf[:n]
	}()

	mustWrite(t, ch, []byte("abcd"))
	select {
	case got := <-done:
		t.Fatalf("read returned early with %q", got)
	case <-time.After(20 * time.Millisecond):
	}

	mustWrite(t, ch, []byte("efgh"))
	select {
	case got := <-done:
		assert.Equal(t, "abcdefgh", string(got))
	case <-time.After(time.Second):
		t.Fatal("read did not return after buffer filled")
	}
}

func TestPartialRead(t *testing.T) {
	ch := newTestChannel(t, 35, ringchan.WithPartialReads(true))

	data := testBytes(4, 16)
	mustWrite(t, ch, data)

	buf := make([]byte, 32)
	n, err := ch.Read(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	assert.Equal(t, data, buf[:n])
}

func TestPartialReadContinuesAcrossWraparound(t *testing.T) {
	ch := newTestChannel(t, 8, ringchan.WithPartialReads(true))

	mustWrite(t, ch, []byte("abcdef"))
	mustRead(t, ch, []byte("abcd"))
	mustWrite(t, ch, []byte("ghijkl"))

	buf := make([]byte, 16)
	n, err := ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, "efghijkl", string(buf[:n]))
}

func TestCloseWakesPendingRead(t *testing.T) {
	ch := newTestChannel(t, 32)

	var (
		wg      sync.WaitGroup
		n       int
		readErr error
	)
	wg.Go(func() {
		n, readErr = ch.Read(context.Background(), make([]byte, 32))
	})

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ch.Close())
	wg.Wait()

	assert.Equal(t, 0, n)
	assert.ErrorIs(t, readErr, io.EOF)

	_, err := ch.Write(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, ringchan.ErrClosed)
}

func TestWriteAfterClose(t *testing.T) {
	ch := newTestChannel(t, 32)
	require.NoError(t, ch.Close())

	n, err := ch.Write(context.Background(), testBytes(5, 8))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ringchan.ErrClosed)
	assert.Contains(t, err.Error(), ch.Name())
}

func TestCloseWhileWriting(t *testing.T) {
	ch := newTestChannel(t, 32)

	var (
		wg       sync.WaitGroup
		n        int
		writeErr error
	)
	wg.Go(func() {
		n, writeErr = ch.Write(context.Background(), testBytes(6, 50))
	})

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ch.Close())
	wg.Wait()

	assert.Equal(t, 32, n)
	assert.ErrorIs(t, writeErr, ringchan.ErrClosed)
}

func TestCloseWakesQueuedWriter(t *testing.T) {
	ch := newTestChannel(t, 4)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Go(func() {
			_, errs[i] = ch.Write(context.Background(), testBytes(uint64(i), 8))
		})
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ch.Close())
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ringchan.ErrClosed)
	}
}

func TestReadDrainsAfterClose(t *testing.T) {
	ch := newTestChannel(t, 32)

	data := testBytes(7, 16)
	mustWrite(t, ch, data)
	require.NoError(t, ch.Close())

	buf := make([]byte, 32)
	n, err := ch.Read(context.Background(), buf)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])

	expectEOF(t, ch)
}

func TestCloseWhileReading(t *testing.T) {
	ch := newTestChannel(t, 32)

	var (
		wg      sync.WaitGroup
		n       int
		readErr error
	)
	buf := make([]byte, 32)
	wg.Go(func() {
		n, readErr = ch.Read(context.Background(), buf)
	})

	data := testBytes(8, 16)
	mustWrite(t, ch, data)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, ch.Close())
	wg.Wait()

	require.NoError(t, readErr)
	require.Equal(t, 16, n)
	assert.Equal(t, data, buf[:n])
	expectEOF(t, ch)
}

func TestReadCancelled(t *testing.T) {
	ch := newTestChannel(t, 16)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg      sync.WaitGroup
		readErr error
	)
	wg.Go(func() {
		_, readErr = ch.Read(ctx, make([]byte, 4))
	})

	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.ErrorIs(t, readErr, ringchan.ErrCancelled)
	assert.ErrorIs(t, readErr, context.Canceled)
	assert.False(t, ch.Closed())

	mustWrite(t, ch, []byte("next"))
	mustRead(t, ch, []byte("next"))
}

func TestReadWithCancelledContext(t *testing.T) {
	ch := newTestChannel(t, 16)
	mustWrite(t, ch, []byte("ab"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// buffered bytes are still handed out, the call only fails once it
	// would have to wait
	buf := make([]byte, 4)
	n, err := ch.Read(ctx, buf)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ringchan.ErrCancelled)
	assert.Equal(t, "ab", string(buf[:n]))
}

func TestWriteCancelled(t *testing.T) {
	ch := newTestChannel(t, 4)
	mustWrite(t, ch, []byte("full"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := ch.Write(ctx, []byte("xy"))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ringchan.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ch.Closed())

	mustRead(t, ch, []byte("full"))
}

func TestCancelOnlyAffectsOneWaiter(t *testing.T) {
	ch := newTestChannel(t, 16)

	ctx, cancel := context.WithCancel(context.Background())
	var (
		wg                  sync.WaitGroup
		cancelledErr, other error
		got                 []byte
	)
	wg.Go(func() {
		_, cancelledErr = ch.Read(ctx, make([]byte, 4))
	})
	time.Sleep(10 * time.Millisecond)
	wg.Go(func() {
		buf := make([]byte, 4)
		var n int
		n, other = ch.Read(context.Background(), buf)
		got = buf[:n]
	})

	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
	mustWrite(t, ch, []byte("wxyz"))
	wg.Wait()

	assert.ErrorIs(t, cancelledErr, ringchan.ErrCancelled)
	require.NoError(t, other)
	assert.Equal(t, "wxyz", string(got))
}

func TestWriteStalled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ch := newTestChannel(t, 4,
		ringchan.WithStallTimeout(30*time.Millisecond),
		ringchan.WithLogger(zap.New(core)),
		ringchan.WithName("stalled"),
	)
	mustWrite(t, ch, []byte("full"))

	start := time.Now()
	n, err := ch.Write(context.Background(), []byte("more"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ringchan.ErrStalled)
	assert.False(t, ch.Closed())

	entries := logs.FilterMessage("write stalled on full channel").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "stalled", entries[0].ContextMap()["channel"])
	assert.Equal(t, int64(4), entries[0].ContextMap()["pending"])
}

func TestWriteStallReportsPartialProgress(t *testing.T) {
	ch := newTestChannel(t, 4, ringchan.WithStallTimeout(30*time.Millisecond))

	n, err := ch.Write(context.Background(), testBytes(9, 10))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, ringchan.ErrStalled)
}

func TestSlowReaderDoesNotStall(t *testing.T) {
	ch := newTestChannel(t, 4, ringchan.WithStallTimeout(200*time.Millisecond))

	data := testBytes(10, 20)
	var (
		wg       sync.WaitGroup
		writeErr error
	)
	wg.Go(func() {
		_, writeErr = ch.Write(context.Background(), data)
	})

	got := make([]byte, 0, len(data))
	buf := make([]byte, 1)
	for len(got) < len(data) {
		time.Sleep(5 * time.Millisecond)
		n, err := ch.Read(context.Background(), buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}

	wg.Wait()
	require.NoError(t, writeErr)
	assert.Equal(t, data, got)
}

func TestStallTimeoutDisabled(t *testing.T) {
	ch := newTestChannel(t, 2, ringchan.WithStallTimeout(0))
	mustWrite(t, ch, []byte("ab"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := ch.Write(ctx, []byte("c"))
	assert.ErrorIs(t, err, ringchan.ErrCancelled)
	assert.NotErrorIs(t, err, ringchan.ErrStalled)
}

func TestInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		ch, err := ringchan.New(capacity)
		assert.Nil(t, ch)
		assert.ErrorIs(t, err, ringchan.ErrInvalidCapacity)
	}
}

func TestZeroLengthReadWrite(t *testing.T) {
	ch := newTestChannel(t, 4)

	n, err := ch.Read(context.Background(), nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)

	n, err = ch.Write(context.Background(), []byte{})
	assert.Equal(t, 0, n)
	assert.NoError(t, err)

	require.NoError(t, ch.Close())
	_, err = ch.Write(context.Background(), nil)
	assert.ErrorIs(t, err, ringchan.ErrClosed)

	n, err = ch.Read(context.Background(), []byte{})
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestDoubleClose(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := newTestChannel(t, 4, ringchan.WithLogger(zap.New(core)))

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.True(t, ch.Closed())
	assert.Equal(t, 1, logs.FilterMessage("channel closed").Len())
}

func TestConcurrentClose(t *testing.T) {
	ch := newTestChannel(t, 4)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			assert.NoError(t, ch.Close())
		})
	}
	wg.Wait()
	assert.True(t, ch.Closed())
}

func TestStats(t *testing.T) {
	ch := newTestChannel(t, 16, ringchan.WithName("stats"))

	before := time.Now()
	mustWrite(t, ch, []byte("abcdef"))
	mustRead(t, ch, []byte("abcd"))

	st := ch.Stats()
	assert.Equal(t, "stats", st.Name)
	assert.Equal(t, 16, st.Capacity)
	assert.Equal(t, 2, st.Buffered)
	assert.False(t, st.Closed)
	assert.Equal(t, int64(6), st.BytesWritten)
	assert.Equal(t, int64(4), st.BytesRead)
	assert.False(t, st.LastWrite.Before(before))
	assert.False(t, st.LastRead.Before(st.LastWrite))
}

func TestByteCountersWhileWriterBlocked(t *testing.T) {
	ch := newTestChannel(t, 4, ringchan.WithStallTimeout(0))

	done := make(chan error, 1)
	go func() {
		_, err := ch.Write(context.Background(), []byte("0123456789"))
		done <- err
	}()

	require.Eventually(t, func() bool { return ch.BytesWritten() == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), ch.BytesRead())

	mustRead(t, ch, []byte("0123"))
	require.Eventually(t, func() bool { return ch.BytesWritten() == 8 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(4), ch.BytesRead())

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, <-done, ringchan.ErrClosed)
	assert.Equal(t, ch.Stats().BytesWritten, ch.BytesWritten())
}

func TestDefaultName(t *testing.T) {
	a := newTestChannel(t, 1)
	b := newTestChannel(t, 1)
	assert.NotEmpty(t, a.Name())
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Equal(t, 1, a.Cap())
}

func TestOrderedDrainArbitraryChunks(t *testing.T) {
	for _, capacity := range []int{1, 3, 7, 40, 64, 1024} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			ch := newTestChannel(t, capacity, ringchan.WithPartialReads(true))
			rng := rand.New(rand.NewPCG(uint64(capacity), 42))

			data := testBytes(uint64(capacity), 10*1024)
			var (
				wg       sync.WaitGroup
				writeErr error
			)
			wg.Go(func() {
				defer ch.Close()
				wrng := rand.New(rand.NewPCG(uint64(capacity), 7))
				for off := 0; off < len(data); {
					end := min(off+1+wrng.IntN(97), len(data))
					if _, err := ch.Write(context.Background(), data[off:end]); err != nil {
						writeErr = err
						return
					}
					off = end
				}
			})

			var got bytes.Buffer
			for {
				buf := make([]byte, 1+rng.IntN(113))
				n, err := ch.Read(context.Background(), buf)
				got.Write(buf[:n])
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
			}

			wg.Wait()
			require.NoError(t, writeErr)
			assert.Equal(t, data, got.Bytes())
		})
	}
}

func newTestChannel(t *testing.T, size int, opts ...ringchan.Option) *ringchan.Channel {
	t.Helper()
	ch, err := ringchan.New(size, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ch.Close()
	})
	return ch
}

func mustWrite(t *testing.T, ch *ringchan.Channel, data []byte) {
	t.Helper()
	n, err := ch.Write(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func mustRead(t *testing.T, ch *ringchan.Channel, expected []byte) {
	t.Helper()
	buf := make([]byte, len(expected))
	n, err := ch.Read(context.Background(), buf)
	require.NoError(t, err)
	require.Equal(t, len(expected), n)
	require.Equal(t, expected, buf)
}

func expectEOF(t *testing.T, ch *ringchan.Channel) {
	t.Helper()
	n, err := ch.Read(context.Background(), make([]byte, 1))
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
}

// testBytes returns n deterministic pseudo-random bytes.
func testBytes(seed uint64, n int) []byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.Uint32())
	}
	return b
}
