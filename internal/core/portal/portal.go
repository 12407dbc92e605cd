// Package portal 提供请求与响应之间的会合点
//
// 两种原语：
//   - Manager：按请求 ID 登记等待方，响应到达时投递；一次性条目在首个响应或
//     截止时间后移除，流式条目在首个响应后解除截止时间并保持登记
//   - Stream：有界、无丢失的多项通道，溢出时以 ErrSubscriberSlow 关闭
package portal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Sink 接收响应或终止错误
type Sink[T any] func(v T, err error)

type entry[T any] struct {
	peer   types.V256
	stream bool
	sink   Sink[T]
	timer  *clock.Timer
}

// Manager 请求会合表
type Manager[T any] struct {
	clk     clock.Clock
	next    atomic.Uint64
	mu      sync.Mutex
	entries map[uint64]*entry[T]
}

// NewManager 创建会合表
func NewManager[T any](clk clock.Clock) *Manager[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager[T]{clk: clk, entries: make(map[uint64]*entry[T])}
}

// NextID 分配新的请求 ID
func (m *Manager[T]) NextID() uint64 {
	return m.next.Add(1)
}

// Register 登记等待方
//
// deadline 到期仍无响应时以 ErrTimeout 终止。deadline <= 0 表示不设截止。
func (m *Manager[T]) Register(id uint64, peer types.V256, deadline time.Duration, stream bool, sink Sink[T]) {
	e := &entry[T]{peer: peer, stream: stream, sink: sink}
	m.mu.Lock()
	m.entries[id] = e
	if deadline > 0 {
		e.timer = m.clk.AfterFunc(deadline, func() { m.Fail(id, types.ErrTimeout) })
	}
	m.mu.Unlock()
}

// Resolve 投递响应，未登记或已终止的 ID 返回 false（迟到的响应被丢弃）
func (m *Manager[T]) Resolve(id uint64, v T) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if !e.stream {
		delete(m.entries, id)
	}
	m.mu.Unlock()

	e.sink(v, nil)
	return true
}

// Fail 以错误终止并移除
func (m *Manager[T]) Fail(id uint64, err error) bool {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok {
		delete(m.entries, id)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.mu.Unlock()

	if ok {
		var zero T
		e.sink(zero, err)
	}
	return ok
}

// Remove 静默移除
func (m *Manager[T]) Remove(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(m.entries, id)
	}
	return ok
}

// FailPeer 终止发往指定节点的所有条目
func (m *Manager[T]) FailPeer(peer types.V256, err error) int {
	m.mu.Lock()
	var ids []uint64
	for id, e := range m.entries {
		if e.peer == peer {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if m.Fail(id, err) {
			n++
		}
	}
	return n
}

// FailAll 终止所有条目
func (m *Manager[T]) FailAll(err error) int {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	n := 0
	for _, id := range ids {
		if m.Fail(id, err) {
			n++
		}
	}
	return n
}

// Peer 返回条目对应的节点
func (m *Manager[T]) Peer(id uint64) (types.V256, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return types.V256{}, false
	}
	return e.peer, true
}

// Len 当前登记数
func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ============================================================================
//                              一次性会合
// ============================================================================

// Result 一次性结果
type Result[T any] struct {
	Value T
	Err   error
}

// OneShot 返回只接受首个结果的 Sink 及其读取端
func OneShot[T any]() (Sink[T], <-chan Result[T]) {
	ch := make(chan Result[T], 1)
	var once sync.Once
	return func(v T, err error) {
		once.Do(func() { ch <- Result[T]{Value: v, Err: err} })
	}, ch
}

// ============================================================================
//                              Stream
// ============================================================================

// Stream 有界多项通道
type Stream[T any] struct {
	ch     chan T
	done   chan struct{}
	mu     sync.Mutex
	closed bool
	err    error
}

// NewStream 创建容量为 size 的通道
func NewStream[T any](size int) *Stream[T] {
	if size <= 0 {
		size = 1
	}
	return &Stream[T]{ch: make(chan T, size), done: make(chan struct{})}
}

// Push 非阻塞写入，通道已满时以 ErrSubscriberSlow 关闭
func (s *Stream[T]) Push(v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err
	}
	select {
	case s.ch <- v:
		return nil
	default:
		s.closeLocked(types.ErrSubscriberSlow)
		return types.ErrSubscriberSlow
	}
}

// C 读取端，关闭后 Err 给出原因
func (s *Stream[T]) C() <-chan T {
	return s.ch
}

// Done 关闭信号
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// CloseWithError 关闭通道，err 为 nil 表示正常关闭
func (s *Stream[T]) CloseWithError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(err)
}

func (s *Stream[T]) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
}

// Err 关闭原因
func (s *Stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
