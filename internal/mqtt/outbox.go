package mqtt

// pendingMsg is a serialized message waiting for the broker.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable, oldest
// first. A retained message replaces any earlier retained message on the
// same topic, so an outage replays one status snapshot instead of one per
// cycle. Not safe for concurrent use.
type outbox struct {
	msgs     []pendingMsg
	capacity int
	dropped  int // since the last flush
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{capacity: capacity}
}

// add queues msg, dropping the oldest message when full. It reports true
// for the first drop since the last flush.
func (o *outbox) add(msg pendingMsg) bool {
	if msg.retained {
		for i, m := range o.msgs {
			if m.retained && m.topic == msg.topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	o.msgs = append(o.msgs, msg)
	if len(o.msgs) <= o.capacity {
		return false
	}
	n := copy(o.msgs, o.msgs[1:])
	o.msgs = o.msgs[:n]
	o.dropped++
	return o.dropped == 1
}

// flush empties the outbox, returning the queued messages and how many were
// dropped since the last flush.
func (o *outbox) flush() ([]pendingMsg, int) {
	msgs, dropped := o.msgs, o.dropped
	o.msgs = nil
	o.dropped = 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
