package bridge

import (
	"sync"

	"github.com/midiview/midiview/internal/protocol"
)

// pipeBuffer bounds in-flight messages per direction; the real boundary
// applies backpressure the same way.
const pipeBuffer = 64

// Pipe returns two connected in-memory channel ends. Messages sent on
// one end arrive on the other in order, at most once.
func Pipe() (Channel, Channel) {
	ab := make(chan protocol.Message, pipeBuffer)
	ba := make(chan protocol.Message, pipeBuffer)
	adone := make(chan struct{})
	bdone := make(chan struct{})

	a := &pipeEnd{in: ba, out: ab, done: adone, peerDone: bdone}
	b := &pipeEnd{in: ab, out: ba, done: bdone, peerDone: adone}
	return a, b
}

type pipeEnd struct {
	in       <-chan protocol.Message
	out      chan<- protocol.Message
	done     chan struct{}
	peerDone <-chan struct{}
	once     sync.Once
}

func (p *pipeEnd) Send(msg protocol.Message) error {
	select {
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	}
}

func (p *pipeEnd) Receive() (protocol.Message, error) {
	// Drain buffered messages before reporting closure so a peer that
	// sent then closed still gets its messages through.
	select {
	case msg := <-p.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return protocol.Message{}, ErrClosed
	case <-p.peerDone:
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return protocol.Message{}, ErrClosed
		}
	}
}

func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
