package ringchan

import (
	"context"
	"io"
)

var (
	_ io.Reader     = (*Source)(nil)
	_ io.ByteReader = (*Source)(nil)
	_ io.WriterTo   = (*Source)(nil)
	_ io.Closer     = (*Source)(nil)
	_ io.Writer     = (*Sink)(nil)
	_ io.ByteWriter = (*Sink)(nil)
	_ io.ReaderFrom = (*Sink)(nil)
	_ io.Closer     = (*Sink)(nil)
)

// Pipe creates a channel and returns its read and write halves.
func Pipe(capacity int, opts ...Option) (*Source, *Sink, error) {
	ch, err := New(capacity, opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewSource(ch), NewSink(ch), nil
}

// Source is the read half of a channel.
type Source struct {
	ch  *Channel
	ctx context.Context
}

// NewSource returns a Source reading from ch.
func NewSource(ch *Channel) *Source {
	return &Source{ch: ch, ctx: context.Background()}
}

// WithContext returns a copy of s whose blocking reads end with ctx.
func (s *Source) WithContext(ctx context.Context) *Source {
	return &Source{ch: s.ch, ctx: ctx}
}

// Channel returns the underlying channel.
func (s *Source) Channel() *Channel {
	return s.ch
}

// Read implements io.Reader.
func (s *Source) Read(b []byte) (int, error) {
	return s.ch.Read(s.ctx, b)
}

// ReadByte implements io.ByteReader.
func (s *Source) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := s.ch.Read(s.ctx, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteTo implements io.WriterTo by reading from the channel and writing to
// w until EOF or an error occurs.
func (s *Source) WriteTo(w io.Writer) (n int64, err error) {
	return copyBuffered(s.Read, w.Write, defaultCopySize)
}

// Close closes the underlying channel.
func (s *Source) Close() error {
	return s.ch.Close()
}

// Sink is the write half of a channel.
type Sink struct {
	ch  *Channel
	ctx context.Context
}

// NewSink returns a Sink writing to ch.
func NewSink(ch *Channel) *Sink {
	return &Sink{ch: ch, ctx: context.Background()}
}

// WithContext returns a copy of s whose blocking writes end with ctx.
func (s *Sink) WithContext(ctx context.Context) *Sink {
	return &Sink{ch: s.ch, ctx: ctx}
}

// Channel returns the underlying channel.
func (s *Sink) Channel() *Channel {
	return s.ch
}

// Write implements io.Writer.
func (s *Sink) Write(b []byte) (int, error) {
	return s.ch.Write(s.ctx, b)
}

// WriteByte implements io.ByteWriter.
func (s *Sink) WriteByte(c byte) error {
	_, err := s.ch.Write(s.ctx, []byte{c})
	return err
}

// WriteString implements io.StringWriter.
func (s *Sink) WriteString(str string) (int, error) {
	return s.ch.Write(s.ctx, []byte(str))
}

// ReadFrom implements io.ReaderFrom by reading from r and writing to the
// channel until EOF or an error occurs.
func (s *Sink) ReadFrom(r io.Reader) (n int64, err error) {
	return copyBuffered(r.Read, s.Write, defaultCopySize)
}

// Close closes the underlying channel.
func (s *Sink) Close() error {
	return s.ch.Close()
}
