package mqtt

import "go.uber.org/zap"

// message is a serialized publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds at most limit messages while the broker is unreachable,
// discarding the oldest when full. Not safe for concurrent use.
type outbox struct {
	queue   []message
	limit   int
	dropped int // since the last flush
	logger  *zap.Logger
}

func newOutbox(limit int, logger *zap.Logger) *outbox {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &outbox{queue: make([]message, 0, limit), limit: limit, logger: logger}
}

func (o *outbox) enqueue(m message) {
	if len(o.queue) == o.limit {
		if o.dropped == 0 {
			o.logger.Warn("mqtt outbox full, dropping oldest", zap.Int("limit", o.limit))
		}
		o.dropped++
		copy(o.queue, o.queue[1:])
		o.queue[len(o.queue)-1] = m
		return
	}
	o.queue = append(o.queue, m)
}

// flush returns the queued messages oldest first and empties the outbox.
func (o *outbox) flush() []message {
	if len(o.queue) == 0 {
		return nil
	}
	out := make([]message, len(o.queue))
	copy(out, o.queue)
	if o.dropped > 0 {
		o.logger.Warn("mqtt messages lost while disconnected", zap.Int("dropped", o.dropped))
	}
	o.queue = o.queue[:0]
	o.dropped = 0
	return out
}

func (o *outbox) size() int {
	return len(o.queue)
}
