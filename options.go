package ringchan

import (
	"time"

	"go.uber.org/zap"
)

// DefaultStallTimeout is how long a full channel may go without read
// progress before a blocked Write gives up with ErrStalled.
const DefaultStallTimeout = 10 * time.Minute

type options struct {
	logger            *zap.Logger
	name              string
	stallTimeout      time.Duration
	allowPartialReads bool
}

// Option configures a Channel.
type Option func(*options)

// WithPartialReads lets Read return as soon as the channel runs dry after at
// least one byte was copied, instead of blocking until the buffer is full.
func WithPartialReads(allow bool) Option {
	return func(o *options) {
		o.allowPartialReads = allow
	}
}

// WithStallTimeout sets the write stall timeout. Zero disables it.
func WithStallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.stallTimeout = max(d, 0)
	}
}

// WithLogger sets the logger used for stall and close diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName names the channel in log records and errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
