package storage

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

type memEntry struct {
	key    types.CompleteKey
	signed *record.Signed
}

// Memory 内存记录存储
//
// 记录受 LRU 容量限制，水位单独保存不参与淘汰。
type Memory struct {
	mu     sync.Mutex
	cache  *lru.Cache[types.V256, memEntry]
	index  map[types.V256]map[types.V256]struct{}
	marks  map[types.V256]Watermark
	closed bool
}

// NewMemory 创建容量为 size 的内存存储
func NewMemory(size int) (*Memory, error) {
	m := &Memory{
		index: make(map[types.V256]map[types.V256]struct{}),
		marks: make(map[types.V256]Watermark),
	}
	cache, err := lru.NewWithEvict[types.V256, memEntry](size, m.unindex)
	if err != nil {
		return nil, err
	}
	m.cache = cache
	return m, nil
}

// unindex 淘汰与删除回调，调用时持有 m.mu
//
// 被移出的记录留下 updated_at 水位，删除随后会用墓碑覆盖它。
func (m *Memory) unindex(hash types.V256, e memEntry) {
	if rec, err := e.signed.Decode(); err == nil {
		old, ok := m.marks[hash]
		m.marks[hash] = raise(old, ok, Watermark{At: rec.UpdatedAt})
	}
	for _, combo := range e.key.Partial().HashCombinations() {
		set := m.index[combo]
		delete(set, hash)
		if len(set) == 0 {
			delete(m.index, combo)
		}
	}
}

// Get 实现 Store
func (m *Memory) Get(key types.PartialKey) (*record.Signed, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	set := m.index[key.Hash()]
	found := make([]*record.Signed, 0, len(set))
	for hash := range set {
		if e, ok := m.cache.Get(hash); ok {
			found = append(found, e.signed)
		}
	}
	return pick(key, found)
}

// Put 实现 Store
func (m *Memory) Put(key types.CompleteKey, signed *record.Signed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	hash := key.Hash()
	m.cache.Add(hash, memEntry{key: key, signed: signed})
	for _, combo := range key.Partial().HashCombinations() {
		set, ok := m.index[combo]
		if !ok {
			set = make(map[types.V256]struct{}, 1)
			m.index[combo] = set
		}
		set[hash] = struct{}{}
	}
	return nil
}

// Delete 实现 Store
func (m *Memory) Delete(key types.CompleteKey, tomb *record.Tombstone) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	hash := key.Hash()
	existed := m.cache.Remove(hash)
	old, ok := m.marks[hash]
	m.marks[hash] = raise(old, ok, Watermark{At: tomb.DeletedAt, Tombstone: tomb})
	return existed, nil
}

// Watermark 实现 Store
func (m *Memory) Watermark(key types.CompleteKey) (Watermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Watermark{}, ErrClosed
	}
	wm, ok := m.marks[key.Hash()]
	if !ok {
		return Watermark{}, ErrNotFound
	}
	return wm, nil
}

// Len 实现 Store
func (m *Memory) Len() int {
	return m.cache.Len()
}

// Close 实现 Store
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*Memory)(nil)
