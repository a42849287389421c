package dist

import (
	"sort"
	"sync"

	glerrors "github.com/glera/glera/errors"
)

// NewLocalGroup creates an in-process group of n ranks connected through
// shared memory. It returns one Comm per rank; each is used by exactly one
// goroutine acting as that rank.
//
// Message payloads are copied on send, so a blocking Send completes
// immediately and the sender's buffer is reusable right away.
func NewLocalGroup(n int) []Comm {
	if n <= 0 {
		return nil
	}
	g := &localGroup{size: n}
	g.boxes = make([][]*mailbox, n)
	for from := 0; from < n; from++ {
		g.boxes[from] = make([]*mailbox, n)
		for to := 0; to < n; to++ {
			g.boxes[from][to] = newMailbox()
		}
	}
	g.barrier.cond.L = &g.barrier.mu
	g.split.cond.L = &g.split.mu
	comms := make([]Comm, n)
	for rank := 0; rank < n; rank++ {
		comms[rank] = &localComm{group: g, rank: rank}
	}
	return comms
}

type localGroup struct {
	size    int
	boxes   [][]*mailbox // boxes[from][to]
	barrier groupBarrier
	split   splitState
}

type message struct {
	tag  int
	data []byte
}

// mailbox is the FIFO queue of one directed rank pair. Messages with the
// same tag keep their send order; Recv may take a later message with a
// different tag first.
type mailbox struct {
	mu    sync.Mutex
	cond  sync.Cond
	queue []message
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond.L = &b.mu
	return b
}

func (b *mailbox) put(tag int, data []byte) {
	owned := make([]byte, len(data))
	copy(owned, data)
	b.mu.Lock()
	b.queue = append(b.queue, message{tag: tag, data: owned})
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *mailbox) take(tag int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for i, m := range b.queue {
			if m.tag == tag {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				return m.data
			}
		}
		b.cond.Wait()
	}
}

type localComm struct {
	group *localGroup
	rank  int
}

var _ Comm = (*localComm)(nil)

func (c *localComm) Rank() int { return c.rank }

func (c *localComm) Size() int { return c.group.size }

func (c *localComm) checkPeer(peer int) error {
	if peer < 0 || peer >= c.group.size {
		return glerrors.CommunicationErrorf("rank %d out of range for group of %d", peer, c.group.size)
	}
	return nil
}

func (c *localComm) Send(to, tag int, data []byte) error {
	if err := c.checkPeer(to); err != nil {
		return err
	}
	c.group.boxes[c.rank][to].put(tag, data)
	return nil
}

func (c *localComm) Recv(from, tag int, data []byte) error {
	if err := c.checkPeer(from); err != nil {
		return err
	}
	got := c.group.boxes[from][c.rank].take(tag)
	if len(got) != len(data) {
		return glerrors.DimensionMismatchf(
			"recv of %d bytes from rank %d (tag %d), message has %d bytes",
			len(data), from, tag, len(got))
	}
	copy(data, got)
	return nil
}

type doneRequest struct{ err error }

func (r doneRequest) Wait() error { return r.err }

type chanRequest struct{ ch chan error }

func (r chanRequest) Wait() error { return <-r.ch }

func (c *localComm) ISend(to, tag int, data []byte) (Request, error) {
	// Send copies the payload, so it never blocks on the receiver; the
	// request is complete on return.
	return doneRequest{err: c.Send(to, tag, data)}, nil
}

func (c *localComm) IRecv(from, tag int, data []byte) (Request, error) {
	if err := c.checkPeer(from); err != nil {
		return nil, err
	}
	r := chanRequest{ch: make(chan error, 1)}
	go func() { r.ch <- c.Recv(from, tag, data) }()
	return r, nil
}

// groupBarrier is a reusable generation barrier.
type groupBarrier struct {
	mu         sync.Mutex
	cond       sync.Cond
	waiting    int
	generation uint64
}

func (c *localComm) Barrier() error {
	b := &c.group.barrier
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.generation
	b.waiting++
	if b.waiting == c.group.size {
		b.waiting = 0
		b.generation++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.generation {
		b.cond.Wait()
	}
	return nil
}

// splitState coordinates one Split call across all ranks of the group.
type splitState struct {
	mu      sync.Mutex
	cond    sync.Cond
	entries map[int]splitEntry
	results map[int]Comm

	// remaining counts the ranks that have not yet collected their result,
	// including ranks that opted out and collect a nil Comm. The results map
	// cannot stand in for it: opted-out ranks never have an entry there.
	remaining int
	ready     bool
}

type splitEntry struct {
	color, key int
}

func (c *localComm) Split(color, key int) (Comm, error) {
	st := &c.group.split
	st.mu.Lock()
	defer st.mu.Unlock()
	for st.ready {
		// A previous split is still being collected by its ranks.
		st.cond.Wait()
	}
	if st.entries == nil {
		st.entries = make(map[int]splitEntry, c.group.size)
	}
	if _, dup := st.entries[c.rank]; dup {
		return nil, glerrors.CommunicationErrorf("rank %d called Split twice in one collective", c.rank)
	}
	st.entries[c.rank] = splitEntry{color: color, key: key}
	if len(st.entries) == c.group.size {
		st.results = buildSplitGroups(st.entries)
		st.entries = nil
		st.remaining = c.group.size
		st.ready = true
		st.cond.Broadcast()
	} else {
		for !st.ready {
			st.cond.Wait()
		}
	}
	result := st.results[c.rank]
	delete(st.results, c.rank)
	st.remaining--
	if st.remaining == 0 {
		st.results = nil
		st.ready = false
		st.cond.Broadcast()
	}
	return result, nil
}

// buildSplitGroups creates one fresh local group per color, ordering members
// by (key, original rank). Negative colors map to no group.
func buildSplitGroups(entries map[int]splitEntry) map[int]Comm {
	byColor := make(map[int][]int)
	for rank, e := range entries {
		if e.color < 0 {
			continue
		}
		byColor[e.color] = append(byColor[e.color], rank)
	}
	results := make(map[int]Comm, len(entries))
	for _, ranks := range byColor {
		sort.Slice(ranks, func(i, j int) bool {
			ei, ej := entries[ranks[i]], entries[ranks[j]]
			if ei.key != ej.key {
				return ei.key < ej.key
			}
			return ranks[i] < ranks[j]
		})
		comms := NewLocalGroup(len(ranks))
		for newRank, oldRank := range ranks {
			results[oldRank] = comms[newRank]
		}
	}
	return results
}
