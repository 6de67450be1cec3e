// Package base wires the transport to the send-discipline rules: which
// packets bypass the outbound queue, when the queue drains, and how
// acknowledgements pace that drain.
package base

import (
	"container/list"
	"sync"
	"time"

	"github.com/op/go-logging"

	"github.com/joecharamut/mx240a-driver/internal/config"
	"github.com/joecharamut/mx240a-driver/internal/packet"
)

// wireTransport is the subset of *transport.Transport this package
// needs; narrowing it to an interface lets tests substitute a fake
// without reaching into transport's unexported fields.
type wireTransport interface {
	WriteFrame(data []byte) error
	ReadFrame() ([]byte, error)
	Ack() error
	Close() error
}

// Base owns the transport and the single-producer/single-consumer
// outbound queue; Queued packets accumulate here until a Polling send
// drains them.
type Base struct {
	transport wireTransport
	log       *logging.Logger

	queueMu     sync.Mutex
	queue       *list.List
	lastAckTime time.Time
}

// New wraps an already-opened Transport.
func New(t wireTransport, log *logging.Logger) *Base {
	return &Base{
		transport: t,
		log:       log,
		queue:     list.New(),
	}
}

// Close sends BaseShutdown and releases the transport.
func (b *Base) Close() error {
	return b.transport.Close()
}

// Read blocks up to the transport's read timeout for one frame and
// decodes it. It returns nil, nil if no frame arrived.
func (b *Base) Read() (packet.Packet, error) {
	frame, err := b.transport.ReadFrame()
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, nil
	}
	p := packet.Decode(frame)
	if _, isAck := p.(packet.ACK); isAck {
		b.recordAck()
	}
	return p, nil
}

// Ack acknowledges a message frame ending in the continuation marker,
// telling the base station it may send the rest of the message.
func (b *Base) Ack() error {
	return b.transport.Ack()
}

func (b *Base) recordAck() {
	b.queueMu.Lock()
	b.lastAckTime = time.Now()
	b.queueMu.Unlock()
}

// Write submits an outbound packet. Immediate packets go straight to
// the wire; everything else waits on the queue until the next Polling
// send drains it.
func (b *Base) Write(p packet.Outbound) error {
	if p.Immediate() {
		if err := b.send(p); err != nil {
			return err
		}
		if _, isPoll := p.(packet.Polling); isPoll {
			return b.drainQueue()
		}
		return nil
	}

	b.queueMu.Lock()
	b.queue.PushBack(p)
	b.queueMu.Unlock()
	return nil
}

func (b *Base) send(p packet.Outbound) error {
	for _, frame := range p.Encode() {
		if err := b.transport.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// drainQueue flushes every queued packet, pacing sends by 150ms unless
// an acknowledgement has been observed within the last 500ms.
func (b *Base) drainQueue() error {
	for {
		b.queueMu.Lock()
		front := b.queue.Front()
		if front == nil {
			b.queueMu.Unlock()
			return nil
		}
		b.queue.Remove(front)
		sinceAck := time.Since(b.lastAckTime)
		b.queueMu.Unlock()

		if sinceAck > config.AckPacingWindow {
			time.Sleep(config.QueueGap)
		}

		if err := b.send(front.Value.(packet.Outbound)); err != nil {
			return err
		}
	}
}
