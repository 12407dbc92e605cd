package swarm

import (
	"sync"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Class 出站消息类别
type Class uint8

const (
	// ClassNormal 请求与响应，队满时可被丢弃
	ClassNormal Class = iota

	// ClassSubscription 订阅推送，不会被丢弃
	ClassSubscription
)

// Outgoing 出站消息
//
// Tag 由调用方设置，消息被丢弃时原样交还。
type Outgoing struct {
	Data  []byte
	Class Class
	Tag   uint64
}

// outQueue 有界出站队列
type outQueue struct {
	mu     sync.Mutex
	items  []Outgoing
	limit  int
	closed bool
	signal chan struct{}
}

func newOutQueue(limit int) *outQueue {
	return &outQueue{limit: limit, signal: make(chan struct{}, 1)}
}

// push 入队，队满时丢弃最早的普通消息并返回它
func (q *outQueue) push(o Outgoing) (*Outgoing, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, types.ErrPeerClosed
	}

	var dropped *Outgoing
	if len(q.items) >= q.limit {
		idx := -1
		for i, it := range q.items {
			if it.Class == ClassNormal {
				idx = i
				break
			}
		}
		if idx < 0 {
			if o.Class == ClassSubscription {
				return nil, types.ErrSubscriberSlow
			}
			return nil, types.ErrOverloaded
		}
		d := q.items[idx]
		dropped = &d
		q.items = append(q.items[:idx], q.items[idx+1:]...)
	}
	q.items = append(q.items, o)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return dropped, nil
}

// pop 非阻塞出队
func (q *outQueue) pop() (Outgoing, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Outgoing{}, false
	}
	o := q.items[0]
	q.items[0] = Outgoing{}
	q.items = q.items[1:]
	return o, true
}

// close 关闭队列并返回剩余消息
func (q *outQueue) close() []Outgoing {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *outQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
