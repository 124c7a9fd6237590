// Package ringchan provides a bounded, thread-safe byte channel backed by a
// fixed-size ring buffer.
//
// Writers block while the ring is full and readers block while it is empty.
// Closing the channel wakes every blocked caller: pending and future writes
// fail with ErrClosed, and reads drain what is left before returning io.EOF.
// Every blocking call takes a context so a single caller can give up without
// disturbing the others.
//
// Source and Sink adapt a Channel to the io.Reader and io.Writer family so
// it can sit between ordinary stream producers and consumers.
package ringchan
