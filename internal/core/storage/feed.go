package storage

import (
	"sync"

	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// PutEvent 本地写入事件
type PutEvent struct {
	Key    types.CompleteKey
	Signed *record.Signed
}

// Feed 在 Store 之上投递本地写入事件
type Feed struct {
	Store

	mu   sync.Mutex
	subs map[uint64]*feedSub
	next uint64
}

// WithFeed 包装存储
func WithFeed(s Store) *Feed {
	return &Feed{Store: s, subs: make(map[uint64]*feedSub)}
}

// Put 写入成功后通知订阅方
func (f *Feed) Put(key types.CompleteKey, signed *record.Signed) error {
	if err := f.Store.Put(key, signed); err != nil {
		return err
	}
	f.publish(PutEvent{Key: key, Signed: signed})
	return nil
}

// Subscribe 订阅本地写入，返回的函数取消订阅并关闭通道
func (f *Feed) Subscribe() (<-chan PutEvent, func()) {
	sub := &feedSub{
		signal: make(chan struct{}, 1),
		out:    make(chan PutEvent),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = sub
	f.mu.Unlock()

	go sub.pump()

	return sub.out, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		sub.stop()
	}
}

func (f *Feed) publish(ev PutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		sub.push(ev)
	}
}

// Close 关闭所有订阅与底层存储
func (f *Feed) Close() error {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[uint64]*feedSub)
	f.mu.Unlock()
	for _, sub := range subs {
		sub.stop()
	}
	return f.Store.Close()
}

// feedSub 单个订阅的无界队列
type feedSub struct {
	mu     sync.Mutex
	queue  []PutEvent
	signal chan struct{}
	out    chan PutEvent
	done   chan struct{}
	once   sync.Once
}

func (s *feedSub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *feedSub) push(ev PutEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *feedSub) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = PutEvent{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
