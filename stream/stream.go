// Package stream implements the throughput phase of a measurement: the
// active endpoint sends fixed-size chunks, and the passive endpoint
// acknowledges every complete chunk with a single byte.
//
// The per-chunk acknowledgment is the only flow control in the protocol: the
// sender never runs more than one chunk ahead of the receiver. Chunks carry
// no header, so both ends must use the same ChunkSize.
package stream

import (
	"fmt"
	"io"
	"time"

	"github.com/m-lab/iperfer/protocol"
)

// Session holds the counters of one throughput phase.
type Session struct {
	// TotalBytes is the number of payload bytes transferred, including any
	// partial chunk.
	TotalBytes int64
	// WindowBytes is the part of TotalBytes transferred by End. A trailing
	// partial chunk the receiver never acknowledged is not included.
	WindowBytes int64
	// Start is the time of the first successful transfer of the phase.
	Start time.Time
	// End is the time of the last successful chunk boundary, or the time
	// the phase terminated.
	End time.Time
	// ChunkSize is the chunk size used during the phase.
	ChunkSize int
	// Chunks is the number of complete chunks transferred.
	Chunks int64
}

// Elapsed returns End-Start, or zero when the phase never started or never
// reached a boundary.
func (s Session) Elapsed() time.Duration {
	if s.Start.IsZero() || s.End.IsZero() || s.End.Before(s.Start) {
		return 0
	}
	return s.End.Sub(s.Start)
}

// Sender streams chunks for Duration. The zero values of ChunkSize and Clock
// select protocol.ChunkSize and time.Now.
type Sender struct {
	ChunkSize int
	Duration  time.Duration
	Clock     protocol.Clock
}

// Receiver consumes chunks until the peer goes away. The zero values of
// ChunkSize and Clock select protocol.ChunkSize and time.Now.
type Receiver struct {
	ChunkSize int
	Clock     protocol.Clock
}

func chunkSizeOrDefault(n int) int {
	if n <= 0 {
		return protocol.ChunkSize
	}
	return n
}

func clockOrDefault(c protocol.Clock) protocol.Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// Run transmits chunks over rw until the duration has elapsed or I/O fails.
//
// The duration is only checked at whole-chunk boundaries, so the phase may
// overshoot by up to one chunk's transfer time. When the duration elapses
// right after a chunk, that chunk's ack is not awaited. A failed write ends
// the phase immediately, counting only the bytes actually written. A failed
// ack read ends the phase with End at the last chunk boundary.
//
// The returned outcome is protocol.OK when the duration elapsed. Any other
// outcome comes with the error that ended the phase; such errors are local
// to the phase and the Session is still meaningful.
func (s *Sender) Run(rw io.ReadWriter) (Session, protocol.Outcome, error) {
	now := clockOrDefault(s.Clock)
	sess := Session{ChunkSize: chunkSizeOrDefault(s.ChunkSize)}
	chunk := make([]byte, sess.ChunkSize)
	ack := make([]byte, 1)
	for {
		if err := s.writeChunk(rw, chunk, &sess, now); err != nil {
			sess.End = now()
			sess.WindowBytes = sess.TotalBytes
			return sess, protocol.OutcomeOf(err), fmt.Errorf("send chunk %d: %w", sess.Chunks, err)
		}
		sess.Chunks++
		checked := now()
		sess.End = checked
		sess.WindowBytes = sess.TotalBytes
		if checked.Sub(sess.Start) >= s.Duration {
			return sess, protocol.OK, nil
		}
		if _, err := io.ReadFull(rw, ack); err != nil {
			return sess, protocol.OutcomeOf(err), fmt.Errorf("receive ack for chunk %d: %w", sess.Chunks-1, err)
		}
	}
}

// writeChunk writes all of chunk, retrying partial writes with the remaining
// slice. Every byte accepted by rw is added to sess.TotalBytes, and
// sess.Start is set from the first write that makes progress.
func (s *Sender) writeChunk(w io.Writer, chunk []byte, sess *Session, now protocol.Clock) error {
	for off := 0; off < len(chunk); {
		t := now()
		n, err := w.Write(chunk[off:])
		if n > 0 {
			if sess.Start.IsZero() {
				sess.Start = t
			}
			off += n
			sess.TotalBytes += int64(n)
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// Run receives chunks from rw, acknowledging each complete chunk, until the
// peer closes the connection or I/O fails. End-of-stream is the normal way
// for this phase to terminate and yields protocol.PeerClosed; the returned
// error is nil in that case.
//
// Start is the time the first byte arrived and End the time of the last
// acknowledged chunk, so a trailing partial chunk does not extend the
// measured interval. Its bytes are counted in TotalBytes but not in
// WindowBytes.
func (r *Receiver) Run(rw io.ReadWriter) (Session, protocol.Outcome, error) {
	now := clockOrDefault(r.Clock)
	sess := Session{ChunkSize: chunkSizeOrDefault(r.ChunkSize)}
	buf := make([]byte, sess.ChunkSize)
	ack := []byte{protocol.Ack}
	for {
		if err := r.readChunk(rw, buf, &sess, now); err != nil {
			outcome := protocol.OutcomeOf(err)
			if outcome == protocol.PeerClosed {
				return sess, outcome, nil
			}
			return sess, outcome, fmt.Errorf("receive chunk %d: %w", sess.Chunks, err)
		}
		if _, err := rw.Write(ack); err != nil {
			return sess, protocol.OutcomeOf(err), fmt.Errorf("send ack for chunk %d: %w", sess.Chunks, err)
		}
		sess.Chunks++
		sess.End = now()
		sess.WindowBytes = sess.TotalBytes
	}
}

// readChunk fills buf from r, looping over partial reads.
func (r *Receiver) readChunk(rd io.Reader, buf []byte, sess *Session, now protocol.Clock) error {
	for off := 0; off < len(buf); {
		n, err := rd.Read(buf[off:])
		if n > 0 {
			if sess.Start.IsZero() {
				sess.Start = now()
			}
			off += n
			sess.TotalBytes += int64(n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
