// Package linecap captures line-oriented output, such as a child process's
// stdout and stderr, from byte streams.
package linecap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// MaxLineSize bounds a single captured line.
const MaxLineSize = 1024 * 1024

// Consumer receives captured lines without their trailing newline.
type Consumer interface {
	Line(line string)
	ErrorLine(line string)
}

// Capture reads r line by line and passes each line to emit until r returns
// io.EOF or ctx is done.
func Capture(ctx context.Context, r io.Reader, emit func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for sc.Scan() {
		emit(sc.Text())
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return errors.Wrap(sc.Err(), "linecap: scan")
}

// Pump captures stdout and stderr concurrently into c. Either reader may be
// nil.
func Pump(ctx context.Context, stdout, stderr io.Reader, c Consumer) error {
	g, ctx := errgroup.WithContext(ctx)
	if stdout != nil {
		g.Go(func() error {
			return Capture(ctx, stdout, c.Line)
		})
	}
	if stderr != nil {
		g.Go(func() error {
			return Capture(ctx, stderr, c.ErrorLine)
		})
	}
	return g.Wait()
}

// Collector keeps captured lines in memory. A combined collector folds
// error lines into the standard log.
type Collector struct {
	mu       sync.Mutex
	std      strings.Builder
	err      strings.Builder
	combined bool
}

// NewCollector returns a Collector. If combined is true, error lines are
// appended to the standard log.
func NewCollector(combined bool) *Collector {
	return &Collector{combined: combined}
}

// Line appends line to the standard log.
func (c *Collector) Line(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.std.WriteString(line)
	c.std.WriteByte('\n')
}

// ErrorLine appends line to the error log, or to the standard log when
// combined.
func (c *Collector) ErrorLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &c.err
	if c.combined {
		b = &c.std
	}
	b.WriteString(line)
	b.WriteByte('\n')
}

// Log returns the standard log.
func (c *Collector) Log() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.std.String()
}

// ErrorLog returns the error log. ok is false for a combined collector.
func (c *Collector) ErrorLog() (log string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.combined {
		return "", false
	}
	return c.err.String(), true
}

// Combined reports whether error lines are folded into the standard log.
func (c *Collector) Combined() bool {
	return c.combined
}

// String returns the standard log, like Log.
func (c *Collector) String() string {
	return c.Log()
}

// Printer writes lines to Out and Err, defaulting to os.Stdout and
// os.Stderr.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// Line writes line and a newline to Out.
func (p Printer) Line(line string) {
	w := p.Out
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintln(w, line)
}

// ErrorLine writes line and a newline to Err.
func (p Printer) ErrorLine(line string) {
	w := p.Err
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, line)
}
