package ringchan

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Channel is a bounded byte FIFO shared by any number of writers and readers.
//
// Write blocks until every byte has been admitted. Read blocks until its
// buffer is full, unless partial reads are enabled, in which case it returns
// once the channel runs dry after copying at least one byte. Close is
// one-way: later writes fail with ErrClosed, while reads drain whatever is
// still buffered and then return io.EOF.
//
// Calls of the same kind are serialised, so the bytes of one Write appear
// contiguously in the stream and one Read never interleaves with another.
type Channel struct {
	logger            *zap.Logger
	name              string
	stallTimeout      time.Duration
	allowPartialReads bool

	readerWait sync.Cond
	writerWait sync.Cond

	store     *ringStore
	lastRead  time.Time
	lastWrite time.Time
	mu        sync.Mutex

	closed  bool
	writing bool
	reading bool

	// updated under mu, read without it
	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
}

// New creates a channel holding at most capacity bytes.
func New(capacity int, opts ...Option) (*Channel, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "got %d", capacity)
	}

	o := options{
		logger:       zap.NewNop(),
		stallTimeout: DefaultStallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = uuid.NewString()
	}

	c := &Channel{
		logger:            o.logger,
		name:              o.name,
		stallTimeout:      o.stallTimeout,
		allowPartialReads: o.allowPartialReads,
		store:             newRingStore(capacity),
	}
	c.readerWait.L = &c.mu
	c.writerWait.L = &c.mu
	return c, nil
}

// Name returns the channel name used in logs and errors.
func (c *Channel) Name() string {
	return c.name
}

// Cap returns the fixed capacity in bytes.
func (c *Channel) Cap() int {
	return c.store.capacity()
}

// Len returns the number of buffered, unread bytes.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// BytesWritten returns the total number of bytes admitted so far. It does
// not take the channel lock, so it never waits behind a blocked call.
func (c *Channel) BytesWritten() int64 {
	return c.bytesWritten.Load()
}

// BytesRead returns the total number of bytes handed to readers so far,
// without taking the channel lock.
func (c *Channel) BytesRead() int64 {
	return c.bytesRead.Load()
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Write copies p into the channel, blocking while it is full.
//
// It returns ErrClosed if the channel is or becomes closed before all of p is
// admitted, ErrCancelled if ctx ends while waiting, and ErrStalled if the
// channel stays full without read progress for the stall timeout. In every
// case n reports how many bytes were admitted.
//
// An empty or nil p is not an error: Write returns 0, nil without blocking,
// unless the channel is closed.
func (c *Channel) Write(ctx context.Context, p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, c.closedErr()
	}
	if len(p) == 0 {
		return 0, nil
	}

	w := c.newWaiter(ctx)
	defer w.release()

	for c.writing {
		if err := w.wait(&c.writerWait); err != nil {
			return 0, err
		}
		if c.closed {
			return 0, c.closedErr()
		}
	}
	c.writing = true
	defer func() {
		c.writing = false
		c.writerWait.Broadcast()
	}()

	for n < len(p) {
		if err := c.waitForWritableLocked(w, len(p)-n); err != nil {
			return n, err
		}
		wrote := c.store.copyIn(p[n:])
		n += wrote
		c.lastWrite = time.Now()
		c.bytesWritten.Add(int64(wrote))
		c.readerWait.Broadcast()
	}
	return n, nil
}

// Read copies buffered bytes into p, blocking while the channel is empty.
//
// Without partial reads it returns only once p is full, or once the channel
// is closed and drained. It returns 0, io.EOF when the channel is closed and
// nothing was copied, and ErrCancelled if ctx ends while waiting.
//
// As with io.Reader, an empty or nil p is not an error: Read returns 0, nil
// without blocking, even on a closed channel.
func (c *Channel) Read(ctx context.Context, p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.newWaiter(ctx)
	defer w.release()

	for c.reading {
		if err := w.wait(&c.readerWait); err != nil {
			return 0, err
		}
	}
	c.reading = true
	defer func() {
		c.reading = false
		c.readerWait.Broadcast()
	}()

	for n < len(p) {
		if c.store.empty() {
			if n > 0 && (c.allowPartialReads || c.closed) {
				return n, nil
			}
			if c.closed {
				return 0, io.EOF
			}
			if err := w.wait(&c.readerWait); err != nil {
				return n, err
			}
			continue
		}

		got := c.store.copyOut(p[n:])
		n += got
		c.lastRead = time.Now()
		c.bytesRead.Add(int64(got))
		c.writerWait.Broadcast()
	}
	return n, nil
}

// Close marks the channel closed and wakes every blocked caller. It is safe
// to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.readerWait.Broadcast()
	c.writerWait.Broadcast()
	c.logger.Debug("channel closed",
		zap.String("channel", c.name),
		zap.Int("buffered", c.store.len()),
	)
	return nil
}

// Stats is a point-in-time view of a channel.
type Stats struct {
	Name         string
	Capacity     int
	Buffered     int
	Closed       bool
	BytesWritten int64
	BytesRead    int64
	LastWrite    time.Time
	LastRead     time.Time
}

// Stats returns a snapshot of the channel state.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:         c.name,
		Capacity:     c.store.capacity(),
		Buffered:     c.store.len(),
		Closed:       c.closed,
		BytesWritten: c.bytesWritten.Load(),
		BytesRead:    c.bytesRead.Load(),
		LastWrite:    c.lastWrite,
		LastRead:     c.lastRead,
	}
}

func (c *Channel) closedErr() error {
	return errors.Wrapf(ErrClosed, "channel %s", c.name)
}

// waitForWritableLocked returns once the store has free space. A stall is
// measured from the later of the wait start and the last read.
func (c *Channel) waitForWritableLocked(w *waiter, pending int) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	started := time.Now()
	for {
		if c.closed {
			return c.closedErr()
		}
		if !c.store.full() {
			return nil
		}

		if c.stallTimeout > 0 {
			progress := started
			if c.lastRead.After(progress) {
				progress = c.lastRead
			}
			idle := time.Since(progress)
			if idle >= c.stallTimeout {
				c.logger.Warn("write stalled on full channel",
					zap.String("channel", c.name),
					zap.Duration("idle", idle),
					zap.Time("last_read", c.lastRead),
					zap.Bool("reader_active", c.reading),
					zap.Int("pending", pending),
				)
				return errors.Wrapf(ErrStalled, "channel %s: no read progress for %s", c.name, idle)
			}
			if timer == nil {
				timer = time.AfterFunc(c.stallTimeout-idle, c.wakeWriters)
			} else {
				timer.Reset(c.stallTimeout - idle)
			}
		}

		if err := w.wait(&c.writerWait); err != nil {
			return err
		}
	}
}

func (c *Channel) wakeWriters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writerWait.Broadcast()
}

func (c *Channel) wakeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readerWait.Broadcast()
	c.writerWait.Broadcast()
}

// waiter ties a single call's condition waits to its context.
type waiter struct {
	c    *Channel
	ctx  context.Context
	stop func() bool
}

func (c *Channel) newWaiter(ctx context.Context) *waiter {
	if ctx == nil {
		ctx = context.Background()
	}
	return &waiter{c: c, ctx: ctx}
}

// wait blocks on cond until woken. It must be called with the channel lock
// held, and fails once the context is done.
func (w *waiter) wait(cond *sync.Cond) error {
	if err := w.ctx.Err(); err != nil {
		return &cancelError{cause: err}
	}
	if w.stop == nil && w.ctx.Done() != nil {
		w.stop = context.AfterFunc(w.ctx, w.c.wakeAll)
	}
	cond.Wait()
	if err := w.ctx.Err(); err != nil {
		return &cancelError{cause: err}
	}
	return nil
}

func (w *waiter) release() {
	if w.stop != nil {
		w.stop()
	}
}
