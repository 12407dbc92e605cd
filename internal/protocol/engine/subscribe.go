package engine

import (
	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

func (e *Engine) bind(b bindingID, sub *binding) {
	e.unbind(b)
	subs, ok := e.bindings[sub.key]
	if !ok {
		subs = make(map[bindingID]*binding)
		e.bindings[sub.key] = subs
	}
	subs[b] = sub
	e.bound[b] = sub
	e.metrics.SetSubscriptions(len(e.bound))
}

func (e *Engine) unbind(b bindingID) bool {
	sub, ok := e.bound[b]
	if !ok {
		return false
	}
	delete(e.bound, b)
	if subs := e.bindings[sub.key]; subs != nil {
		delete(subs, b)
		if len(subs) == 0 {
			delete(e.bindings, sub.key)
		}
	}
	e.metrics.SetSubscriptions(len(e.bound))
	return true
}

// publish 把本地写入推送给该键的所有订阅者
func (e *Engine) publish(ev storage.PutEvent) {
	for _, sub := range e.bindings[ev.Key] {
		rk := sub.rk
		sub.sink(&wire.Response{
			Type:       wire.TypeGetRecord,
			OK:         true,
			Record:     ev.Signed,
			RoutingKey: &rk,
		}, nil)
	}
}

// unsubscribe 取消订阅
//
// 订阅已转发到下游时向下游发送 Unsubscribe 并转交其响应；
// 本地绑定直接解除；都不存在时返回 NotFound。
func (e *Engine) unsubscribe(b bindingID, sink portal.Sink[*wire.Response]) {
	if r, ok := e.relays[b]; ok {
		delete(e.relays, b)
		peer, ok := e.portals.Peer(r.fid)
		e.portals.Remove(r.fid)
		if !ok {
			sink(wire.Success(wire.TypeUnsubscribe), nil)
			return
		}
		rk := r.rk
		e.request(peer, &wire.Request{
			Type:           wire.TypeUnsubscribe,
			Hops:           e.cfg.HopLimit,
			RoutingKey:     &rk,
			SubscriptionID: r.fid,
		}, sink)
		return
	}
	if e.unbind(b) {
		logger.Debug("订阅已解除", "subscriber", log.TruncateID(b.peer.String(), 8))
		sink(wire.Success(wire.TypeUnsubscribe), nil)
		return
	}
	sink(wire.Failure(wire.TypeUnsubscribe, types.ErrNotFound), nil)
}

// forgetRelay 下游订阅已终止
func (e *Engine) forgetRelay(b bindingID, fid uint64) {
	if r, ok := e.relays[b]; ok && r.fid == fid {
		delete(e.relays, b)
	}
}

// dropPeer 解除断开节点的所有订阅与转发
func (e *Engine) dropPeer(p types.V256) {
	for b := range e.bound {
		if b.peer == p {
			e.unbind(b)
		}
	}
	for b := range e.relays {
		if b.peer == p {
			e.unsubscribe(b, discard)
		}
	}
}
