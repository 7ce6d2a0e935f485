// Copyright 2023 The Gxmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlstream

import (
	"errors"
	"io"
	"time"
)

const (
	// maxRecvBuf is the most bytes pulled from the transport per read.
	maxRecvBuf = 65536

	// maxQueue is the capacity of the stanza event queue.
	maxQueue = 512
)

// ErrQueueOverflow is returned by Next when stanzas arrive faster than the
// caller consumes them and the event queue fills. It indicates a programming
// error in the consumer, not a recoverable wire condition.
var ErrQueueOverflow = errors.New("xmlstream: event queue overflow")

type qevent struct {
	el  *Element
	end bool
	err error
}

// A Reader layers a bounded event queue over a Stream so that a caller can
// drive the stream with a single read loop instead of implementing a
// Handler. Next reads from the transport, feeds the parser, and returns
// stanzas one at a time.
type Reader struct {
	s      *Stream
	rw     io.ReadWriter
	buf    []byte
	events chan qevent

	// Written on the parser goroutine, read after Feed returns.
	root     *Element
	overflow bool
}

// NewReader returns a Reader over the given transport. The transport's Read
// end feeds the parser; Send writes to its Write end.
func NewReader(rw io.ReadWriter) *Reader {
	r := &Reader{
		rw:     rw,
		buf:    make([]byte, maxRecvBuf),
		events: make(chan qevent, maxQueue),
	}
	r.s = New(r)
	return r
}

// Root returns the stream's root element, or nil before the stream opens.
func (r *Reader) Root() *Element { return r.root }

// Next returns the next stanza of the stream, reading from the transport as
// needed. It returns io.EOF once the peer closes the stream (either the
// root element or the transport), the parse error if the stream breaks, and
// ErrQueueOverflow if the event queue ever filled. A timeout greater than
// zero bounds each individual transport read when the transport supports
// read deadlines.
func (r *Reader) Next(timeout time.Duration) (*Element, error) {
	type deadlineReader interface {
		SetReadDeadline(t time.Time) error
	}
	for {
		if r.overflow {
			return nil, ErrQueueOverflow
		}
		select {
		case ev := <-r.events:
			switch {
			case ev.err != nil:
				return nil, ev.err
			case ev.end:
				return nil, io.EOF
			default:
				return ev.el, nil
			}
		default:
		}

		if timeout > 0 {
			if dc, ok := r.rw.(deadlineReader); ok {
				if err := dc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
					return nil, err
				}
			}
		}
		n, err := r.rw.Read(r.buf)
		if n > 0 {
			if ferr := r.s.Feed(r.buf[:n]); ferr != nil {
				return nil, ferr
			}
		}
		if err != nil {
			if err == io.EOF {
				r.s.Close()
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// Send writes p to the transport.
func (r *Reader) Send(p []byte) error {
	_, err := r.rw.Write(p)
	return err
}

// Close tears down the parser. The transport is not closed; that remains
// the caller's responsibility.
func (r *Reader) Close() error {
	return r.s.Close()
}

// HandleStreamStart implements Handler.
func (r *Reader) HandleStreamStart(root *Element) { r.root = root }

// HandleElement implements Handler.
func (r *Reader) HandleElement(stanza *Element) { r.enqueue(qevent{el: stanza}) }

// HandleStreamEnd implements Handler.
func (r *Reader) HandleStreamEnd() { r.enqueue(qevent{end: true}) }

// HandleParseError implements Handler.
func (r *Reader) HandleParseError(err error) { r.enqueue(qevent{err: err}) }

// HandleClose implements Handler.
func (r *Reader) HandleClose() {}

func (r *Reader) enqueue(ev qevent) {
	select {
	case r.events <- ev:
	default:
		r.overflow = true
	}
}
