package subfield

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dep2p/go-subfield/internal/protocol/engine"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// Subscription 订阅句柄
//
// C 按服务端本地写入的提交顺序给出记录。句柄关闭或订阅被服务端终止后
// C 关闭，Err 给出原因。
type Subscription struct {
	id    uuid.UUID
	inner *engine.Subscription
	out   chan *record.Signed

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// Subscribe 订阅完整键的后续写入，经本地路由表中节点最少的字段路由
func (s *Subfield) Subscribe(ctx context.Context, key types.CompleteKey) (*Subscription, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	f, err := s.engine.LeastLoadedField(ctx, key)
	if err != nil {
		return nil, err
	}
	inner, err := s.engine.Subscribe(ctx, key.RoutingKey(f))
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		id:      uuid.New(),
		inner:   inner,
		out:     make(chan *record.Signed),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go sub.pump()
	logger.Debug("订阅已建立", "sub", sub.id.String(), "key", key.String(), "field", f.String())
	return sub, nil
}

func (sub *Subscription) pump() {
	defer close(sub.done)
	defer close(sub.out)
	for resp := range sub.inner.C() {
		if resp.Record == nil {
			continue
		}
		select {
		case sub.out <- resp.Record:
		case <-sub.closing:
			return
		}
	}
	if err := sub.inner.Err(); err != nil {
		logger.Debug("订阅被终止", "sub", sub.id.String(), "error", err)
	}
}

// ID 句柄标识
func (sub *Subscription) ID() uuid.UUID {
	return sub.id
}

// Key 订阅的完整键
func (sub *Subscription) Key() types.CompleteKey {
	return sub.inner.Key()
}

// C 推送的记录
func (sub *Subscription) C() <-chan *record.Signed {
	return sub.out
}

// Done C 关闭后关闭
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Err 终止原因，调用方主动取消时为 nil
func (sub *Subscription) Err() error {
	return sub.inner.Err()
}

// Unsubscribe 取消订阅并等待服务端确认
func (sub *Subscription) Unsubscribe(ctx context.Context) error {
	sub.stop()
	return sub.inner.Unsubscribe(ctx)
}

// Close 取消订阅，不等待确认
func (sub *Subscription) Close() error {
	sub.stop()
	return sub.inner.Close()
}

func (sub *Subscription) stop() {
	sub.closeOnce.Do(func() {
		close(sub.closing)
		logger.Debug("取消订阅", "sub", log.TruncateID(sub.id.String(), 8))
	})
}
