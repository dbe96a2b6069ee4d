package matchmaking

import (
	"sync"
	"time"
)

// departureTTL bounds how long a matched delivery may trail the candidate's
// disconnect and still release the partner
const departureTTL = time.Minute

// departures remembers sessions that disconnected while waiting. A waiting
// session may already have been popped by a pairing whose matched delivery
// has not reached it yet; that delivery then finds no session, and the
// departure record tells Apply to release the partner instead.
type departures struct {
	mu  sync.Mutex
	ttl time.Duration
	at  map[string]time.Time
}

func newDepartures(ttl time.Duration) *departures {
	return &departures{ttl: ttl, at: make(map[string]time.Time)}
}

// add records sessionID and prunes expired records
func (d *departures) add(sessionID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.at {
		if now.Sub(at) > d.ttl {
			delete(d.at, id)
		}
	}
	d.at[sessionID] = now
}

// take removes sessionID and reports whether it departed within the TTL
func (d *departures) take(sessionID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.at[sessionID]
	if !ok {
		return false
	}
	delete(d.at, sessionID)
	return now.Sub(at) <= d.ttl
}

func (d *departures) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.at)
}
