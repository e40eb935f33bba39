package stream

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Session is one server-streaming call. Recv yields decoded messages until
// io.EOF (clean close) or an error. The sequence cannot be restarted.
//
// Cancel may be called any number of times and concurrently with Recv; a
// blocked Recv then returns a cancelled error instead of hanging.
type Session[T any] interface {
	Recv() (T, error)
	Cancel()
}

// Factory opens a new session. The context is scoped to that session alone.
type Factory[T any] func(ctx context.Context) (Session[T], error)

// NewSession adapts a receive function into a Session. cancel must release
// the underlying call; it runs at most once. After Cancel every error from
// recv other than io.EOF is reported as ErrCancelled so callers see a
// uniform condition regardless of how the transport surfaced the abort.
func NewSession[T any](recv func() (T, error), cancel func()) Session[T] {
	return &funcSession[T]{recv: recv, cancel: cancel}
}

type funcSession[T any] struct {
	recv      func() (T, error)
	cancel    func()
	once      sync.Once
	cancelled atomic.Bool
}

func (s *funcSession[T]) Recv() (T, error) {
	msg, err := s.recv()
	if err != nil && err != io.EOF && s.cancelled.Load() {
		var zero T
		return zero, ErrCancelled
	}
	return msg, err
}

func (s *funcSession[T]) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// ChannelSession is an in-memory Session fed by Send. It backs tests and
// in-process sources.
type ChannelSession[T any] struct {
	msgs   chan T
	errs   chan error
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

// NewChannelSession creates a session with the given message buffer.
func NewChannelSession[T any](buffer int) *ChannelSession[T] {
	return &ChannelSession[T]{
		msgs: make(chan T, buffer),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
}

// Send queues a message. It returns false once the session is cancelled.
func (s *ChannelSession[T]) Send(msg T) bool {
	select {
	case <-s.done:
		return false
	case s.msgs <- msg:
		return true
	}
}

// Close ends the sequence after the queued messages with err, or io.EOF when
// err is nil.
func (s *ChannelSession[T]) Close(err error) {
	if err == nil {
		err = io.EOF
	}
	if s.closed.CompareAndSwap(false, true) {
		s.errs <- err
	}
}

func (s *ChannelSession[T]) Recv() (T, error) {
	var zero T
	// queued messages win over a pending close
	select {
	case msg := <-s.msgs:
		return msg, nil
	default:
	}
	select {
	case msg := <-s.msgs:
		return msg, nil
	case err := <-s.errs:
		select {
		case msg := <-s.msgs:
			s.errs <- err
			return msg, nil
		default:
		}
		s.errs <- err
		return zero, err
	case <-s.done:
		return zero, ErrCancelled
	}
}

func (s *ChannelSession[T]) Cancel() {
	s.once.Do(func() { close(s.done) })
}

// Cancelled reports whether Cancel was called.
func (s *ChannelSession[T]) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
