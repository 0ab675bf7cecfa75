package migration

// maxEvents bounds the migration event log. Eviction is FIFO: once the log is
// full, appending drops the oldest entry.
const maxEvents = 100

// eventLog is a bounded append-only log of migration events. Events are
// appended in the order operations complete, which may differ from the order
// they were issued; callers must not rely on issue-order.
//
// Not safe for concurrent use; the owning Controller serializes access.
type eventLog struct {
	events []Event
}

func newEventLog() *eventLog {
	return &eventLog{events: make([]Event, 0, maxEvents)}
}

// append adds an event, evicting the oldest entry if the log is full.
func (l *eventLog) append(e Event) {
	if len(l.events) == maxEvents {
		copy(l.events, l.events[1:])
		l.events[maxEvents-1] = e
		return
	}
	l.events = append(l.events, e)
}

// len returns the number of events currently held.
func (l *eventLog) len() int {
	return len(l.events)
}

// countByType returns how many events of the given type are currently held.
func (l *eventLog) countByType(t EventType) int {
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// snapshot returns a copy of the current events, oldest first.
func (l *eventLog) snapshot() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
