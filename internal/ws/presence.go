package ws

import (
	"sort"
	"sync"
)

// Presence tracks which users currently hold a live connection. One entry
// per user; a new connection for the same user supersedes the old one.
type Presence struct {
	mu      sync.Mutex
	entries map[int]presenceEntry
	nextGen uint64
}

type presenceEntry struct {
	client *Client
	gen    uint64
}

// NewPresence creates an empty tracker.
func NewPresence() *Presence {
	return &Presence{entries: map[int]presenceEntry{}}
}

// Connect registers the user's connection and returns a generation token.
// Any prior entry for the user is overwritten (last connection wins).
func (p *Presence) Connect(userID int, client *Client) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextGen++
	p.entries[userID] = presenceEntry{client: client, gen: p.nextGen}
	return p.nextGen
}

// Disconnect removes the user's entry when the generation still matches the
// one handed out at connect time. A stale disconnect from a superseded
// connection must not evict the newer one, so it reports false and changes
// nothing.
func (p *Presence) Disconnect(userID int, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[userID]
	if !ok || entry.gen != gen {
		return false
	}
	delete(p.entries, userID)
	return true
}

// Snapshot returns the sorted ids of online users.
func (p *Presence) Snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]int, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
