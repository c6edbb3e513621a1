package primitives

import (
	"errors"
	"fmt"

	"github.com/comalice/activex/internal/invariant"
)

// MaxPools bounds the number of pools in a PoolSet; pool ids fit in a byte
// and id 0 is reserved for static events.
const MaxPools = 15

var (
	ErrPoolOrder    = errors.New("pool block sizes must be strictly increasing")
	ErrPoolSize     = errors.New("pool block size and block count must be positive")
	ErrTooManyPools = errors.New("too many event pools")
)

// PoolConfig sizes one pool.
type PoolConfig struct {
	BlockSize int `json:"block_size" yaml:"block_size"`
	Blocks    int `json:"blocks" yaml:"blocks"`
}

// PoolStats is a read-only view of a pool's occupancy.
type PoolStats struct {
	ID        uint8 `json:"id" yaml:"id"`
	BlockSize int   `json:"blockSize" yaml:"blockSize"`
	Total     int   `json:"total" yaml:"total"`
	Free      int   `json:"free" yaml:"free"`
	MinFree   int   `json:"minFree" yaml:"minFree"`
}

// Pool is a fixed-block arena. Blocks are addressed by integer handles into a
// single backing buffer; the free list is a stack of handles.
type Pool struct {
	id        uint8
	blockSize int
	buf       []byte
	events    []Event
	inUse     []bool
	free      []uint32
	minFree   int
}

// NewPool allocates the backing storage for blocks blocks of blockSize bytes.
func NewPool(id uint8, blockSize, blocks int) (*Pool, error) {
	if blockSize <= 0 || blocks <= 0 {
		return nil, fmt.Errorf("pool %d: %w", id, ErrPoolSize)
	}
	p := &Pool{
		id:        id,
		blockSize: blockSize,
		buf:       make([]byte, blockSize*blocks),
		events:    make([]Event, blocks),
		inUse:     make([]bool, blocks),
		free:      make([]uint32, 0, blocks),
		minFree:   blocks,
	}
	// Push in reverse so handle 0 is handed out first.
	for i := blocks - 1; i >= 0; i-- {
		p.free = append(p.free, uint32(i))
	}
	return p, nil
}

// Get takes a block and returns it as an event with a size-byte payload.
// An empty pool is a contract violation; Get returns nil if the installed
// executor does not stop the process.
func (p *Pool) Get(sig Signal, size int) *Event {
	if size > p.blockSize {
		invariant.Violatef("pool %d: requested %d bytes exceeds block size %d", p.id, size, p.blockSize)
		return nil
	}
	if len(p.free) == 0 {
		invariant.Violatef("pool %d exhausted: all %d blocks of %d bytes in use", p.id, len(p.events), p.blockSize)
		return nil
	}

	h := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	if len(p.free) < p.minFree {
		p.minFree = len(p.free)
	}
	p.inUse[h] = true

	off := int(h) * p.blockSize
	block := p.buf[off : off+size : off+size]
	clear(block)

	e := &p.events[h]
	*e = Event{Sig: sig, data: block, poolID: p.id, handle: h}
	return e
}

// Put returns an event's block to the free list.
func (p *Pool) Put(e *Event) {
	if e.poolID != p.id || int(e.handle) >= len(p.events) || &p.events[e.handle] != e {
		invariant.Violatef("pool %d: %v does not belong to this pool", p.id, e)
		return
	}
	if !p.inUse[e.handle] {
		invariant.Violatef("pool %d: double release of block %d", p.id, e.handle)
		return
	}
	p.inUse[e.handle] = false
	e.refs = 0
	e.data = nil
	p.free = append(p.free, e.handle)
}

func (p *Pool) ID() uint8 { return p.id }
func (p *Pool) BlockSize() int { return p.blockSize }
func (p *Pool) Total() int { return len(p.events) }
func (p *Pool) Free() int { return len(p.free) }
func (p *Pool) MinFree() int { return p.minFree }

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		ID:        p.id,
		BlockSize: p.blockSize,
		Total:     len(p.events),
		Free:      len(p.free),
		MinFree:   p.minFree,
	}
}

// PoolSet is the ordered set of pools of a runtime, smallest blocks first.
type PoolSet struct {
	pools []*Pool
}

// NewPoolSet builds the pools in order. Block sizes must be strictly
// increasing so that allocation can pick the first pool that fits.
func NewPoolSet(cfgs ...PoolConfig) (*PoolSet, error) {
	if len(cfgs) > MaxPools {
		return nil, fmt.Errorf("%d pools configured, at most %d: %w", len(cfgs), MaxPools, ErrTooManyPools)
	}
	s := &PoolSet{pools: make([]*Pool, 0, len(cfgs))}
	for i, cfg := range cfgs {
		if i > 0 && cfg.BlockSize <= cfgs[i-1].BlockSize {
			return nil, fmt.Errorf("pool %d block size %d after %d: %w", i+1, cfg.BlockSize, cfgs[i-1].BlockSize, ErrPoolOrder)
		}
		p, err := NewPool(uint8(i+1), cfg.BlockSize, cfg.Blocks)
		if err != nil {
			return nil, err
		}
		s.pools = append(s.pools, p)
	}
	return s, nil
}

// New allocates from the smallest pool whose block size covers size.
// There is no fall-through: if that pool is empty the runtime is undersized.
func (s *PoolSet) New(sig Signal, size int) *Event {
	for _, p := range s.pools {
		if size <= p.blockSize {
			return p.Get(sig, size)
		}
	}
	invariant.Violatef("no event pool with blocks of at least %d bytes", size)
	return nil
}

// Retain adds one reference. Static events are not counted.
func (s *PoolSet) Retain(e *Event) {
	if e.Pooled() {
		e.refs++
	}
}

// Release drops one reference and recycles the block when none remain. An
// event that was allocated but never delivered is recycled directly.
func (s *PoolSet) Release(e *Event) {
	if !e.Pooled() {
		return
	}
	if e.refs > 1 {
		e.refs--
		return
	}
	idx := int(e.poolID) - 1
	if idx < 0 || idx >= len(s.pools) {
		invariant.Violatef("%v refers to unknown pool", e)
		return
	}
	s.pools[idx].Put(e)
}

// Len returns the number of pools.
func (s *PoolSet) Len() int {
	return len(s.pools)
}

// Outstanding returns the number of blocks currently allocated across pools.
func (s *PoolSet) Outstanding() int {
	n := 0
	for _, p := range s.pools {
		n += p.Total() - p.Free()
	}
	return n
}

func (s *PoolSet) Stats() []PoolStats {
	stats := make([]PoolStats, len(s.pools))
	for i, p := range s.pools {
		stats[i] = p.Stats()
	}
	return stats
}
