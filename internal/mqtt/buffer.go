package mqtt

// outMsg is a serialized message waiting for the broker.
type outMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds messages published while the broker is unreachable, oldest
// first, up to limit. A retained message replaces an older retained message
// on the same topic; the broker would only keep the last one anyway.
// Not safe for concurrent use.
type backlog struct {
	msgs    []outMsg
	limit   int
	dropped int
}

func newBacklog(limit int) *backlog {
	return &backlog{limit: limit}
}

// add queues msg, dropping the oldest message when full. It returns true on
// the first drop since the last take.
func (b *backlog) add(msg outMsg) bool {
	if msg.retained {
		for i, m := range b.msgs {
			if m.retained && m.topic == msg.topic {
				b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
				break
			}
		}
	}

	first := false
	if len(b.msgs) >= b.limit {
		b.msgs = b.msgs[1:]
		b.dropped++
		first = b.dropped == 1
	}
	b.msgs = append(b.msgs, msg)
	return first
}

// take empties the backlog, returning its messages oldest first and the
// number dropped since the previous take.
func (b *backlog) take() ([]outMsg, int) {
	msgs, dropped := b.msgs, b.dropped
	b.msgs, b.dropped = nil, 0
	return msgs, dropped
}

func (b *backlog) len() int {
	return len(b.msgs)
}
