package logstream

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// ErrEnded is returned by Write after End has been called
var ErrEnded = errors.New("log stream already ended")

// message is one unit of pump work. Exactly one field is meaningful.
type message struct {
	data    []byte
	attach  io.Writer
	release bool
	end     bool
}

// Stream is the ordered transcript of one task run. It starts held:
// everything written buffers in order until Release, so the header can
// be written the moment the run is claimed without racing consumers
// that attach during the linking and created phases. After Release,
// writes pass straight through.
//
// A single pump goroutine applies every operation in submission order,
// which is what makes the delivery guarantee cheap: End resolves only
// after each byte written before it has reached every consumer.
type Stream struct {
	mu     sync.Mutex
	msgCh  chan message
	ended  bool
	closed bool // release enqueued

	endDone chan struct{}
	endErr  error
}

// consumer wraps an attached writer. A consumer that fails a write is
// marked dead and skipped from then on; one stuck artifact uploader
// must not abort the transcript for the rest.
type consumer struct {
	w      io.Writer
	failed bool
}

// New creates a held Stream and starts its pump
func New() *Stream {
	s := &Stream{
		msgCh:   make(chan message, 128),
		endDone: make(chan struct{}),
	}
	go s.run()
	return s
}

// Attach adds a consumer. Consumers attached before Release receive the
// held buffer in full; later consumers receive only subsequent writes.
// Attaching after End is a no-op.
func (s *Stream) Attach(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.msgCh <- message{attach: w}
}

// Write appends p to the transcript. While the stream is held the
// bytes buffer; afterwards they flow to every consumer in write order.
// Write never loses data: when consumers are slow it blocks rather
// than drops.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return 0, ErrEnded
	}

	// The pump owns p after the send, so take a copy.
	data := make([]byte, len(p))
	copy(data, p)
	s.msgCh <- message{data: data}
	return len(p), nil
}

// Release flushes the held buffer to the attached consumers in order
// and switches the stream to pass-through. Idempotent.
func (s *Stream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.closed {
		return
	}
	s.closed = true
	s.msgCh <- message{release: true}
}

// End seals the stream. It blocks until every byte written before it
// has been delivered to every live consumer, closes consumers that
// implement io.Closer, and returns the first delivery error seen over
// the stream's lifetime. Safe to call more than once.
func (s *Stream) End() error {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.msgCh <- message{end: true}
	}
	s.mu.Unlock()

	<-s.endDone
	return s.endErr
}

// run is the pump. It is the only goroutine that touches the consumer
// list and the held buffer, so total order needs no further locking.
func (s *Stream) run() {
	held := true
	var buffer bytes.Buffer
	var consumers []*consumer

	deliver := func(data []byte) {
		for _, c := range consumers {
			if c.failed {
				continue
			}
			if _, err := c.w.Write(data); err != nil {
				c.failed = true
				if s.endErr == nil {
					s.endErr = err
				}
			}
		}
	}

	for msg := range s.msgCh {
		switch {
		case msg.attach != nil:
			consumers = append(consumers, &consumer{w: msg.attach})

		case msg.release:
			if held {
				held = false
				if buffer.Len() > 0 {
					deliver(buffer.Bytes())
					buffer.Reset()
				}
			}

		case msg.end:
			// End before Release still delivers the held lines.
			if held && buffer.Len() > 0 {
				deliver(buffer.Bytes())
			}
			for _, c := range consumers {
				if closer, ok := c.w.(io.Closer); ok && !c.failed {
					if err := closer.Close(); err != nil && s.endErr == nil {
						s.endErr = err
					}
				}
			}
			close(s.endDone)
			return

		default:
			if held {
				buffer.Write(msg.data)
			} else {
				deliver(msg.data)
			}
		}
	}
}
