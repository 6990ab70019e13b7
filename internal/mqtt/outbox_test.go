package mqtt

import (
	"testing"
)

func payloads(msgs []pendingMsg) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.payload)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOutboxEmptyFlush(t *testing.T) {
	o := newOutbox(10)
	msgs, dropped := o.flush()
	if msgs != nil || dropped != 0 {
		t.Errorf("empty flush: got %d msgs, %d dropped", len(msgs), dropped)
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(10)
	for _, p := range []string{"a", "b", "c"} {
		o.add(pendingMsg{topic: "coop/alerts", payload: []byte(p), qos: 1})
	}
	if o.len() != 3 {
		t.Errorf("len: got %d, want 3", o.len())
	}

	msgs, dropped := o.flush()
	if got := payloads(msgs); !equal(got, []string{"a", "b", "c"}) {
		t.Errorf("payloads: got %v, want [a b c]", got)
	}
	if dropped != 0 {
		t.Errorf("dropped: got %d, want 0", dropped)
	}
	if o.len() != 0 {
		t.Errorf("len after flush: got %d, want 0", o.len())
	}
}

func TestOutboxRetainedSupersedes(t *testing.T) {
	o := newOutbox(10)
	o.add(pendingMsg{topic: "coop/status", payload: []byte("s1"), retained: true})
	o.add(pendingMsg{topic: "coop/alerts", payload: []byte("a1"), qos: 1})
	o.add(pendingMsg{topic: "coop/status", payload: []byte("s2"), retained: true})
	o.add(pendingMsg{topic: "coop/system", payload: []byte("hb"), qos: 1})
	o.add(pendingMsg{topic: "coop/status", payload: []byte("s3"), retained: true})

	msgs, _ := o.flush()
	if got := payloads(msgs); !equal(got, []string{"a1", "hb", "s3"}) {
		t.Errorf("payloads: got %v, want [a1 hb s3]", got)
	}
}

func TestOutboxNonRetainedNeverSuperseded(t *testing.T) {
	o := newOutbox(10)
	o.add(pendingMsg{topic: "coop/alerts", payload: []byte("a1")})
	o.add(pendingMsg{topic: "coop/alerts", payload: []byte("a2")})

	msgs, _ := o.flush()
	if len(msgs) != 2 {
		t.Errorf("got %d messages, want 2", len(msgs))
	}
}

func TestOutboxOverflowDropsOldest(t *testing.T) {
	o := newOutbox(3)
	var reports int
	for _, p := range []string{"a", "b", "c", "d", "e"} {
		if o.add(pendingMsg{topic: "coop/alerts", payload: []byte(p)}) {
			reports++
		}
	}
	if reports != 1 {
		t.Errorf("overflow reports: got %d, want 1", reports)
	}

	msgs, dropped := o.flush()
	if got := payloads(msgs); !equal(got, []string{"c", "d", "e"}) {
		t.Errorf("payloads: got %v, want [c d e]", got)
	}
	if dropped != 2 {
		t.Errorf("dropped: got %d, want 2", dropped)
	}

	// The report resets after a flush.
	for _, p := range []string{"f", "g", "h", "i"} {
		if o.add(pendingMsg{topic: "coop/alerts", payload: []byte(p)}) {
			reports++
		}
	}
	if reports != 2 {
		t.Errorf("overflow reports after flush: got %d, want 2", reports)
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(1)
	o.add(pendingMsg{topic: "coop/system", payload: []byte(`{"system":{}}`), qos: 1, retained: true})

	msgs, _ := o.flush()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.topic != "coop/system" || m.qos != 1 || !m.retained || string(m.payload) != `{"system":{}}` {
		t.Errorf("message: got %+v", m)
	}
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.add(pendingMsg{topic: "coop/alerts", payload: []byte("a")})
	o.add(pendingMsg{topic: "coop/alerts", payload: []byte("b")})
	msgs, dropped := o.flush()
	if got := payloads(msgs); !equal(got, []string{"b"}) || dropped != 1 {
		t.Errorf("got %v with %d dropped, want [b] with 1", got, dropped)
	}
}
