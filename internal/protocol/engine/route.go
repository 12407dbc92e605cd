package engine

import (
	"errors"
	"sync"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/core/swarm"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
//                              收发
// ============================================================================

// send 编码并放入对端出站队列
//
// 被挤出的消息若带有等待方标签，等待方以 Overloaded 终止。
func (e *Engine) send(peer types.V256, env *wire.Envelope, class swarm.Class, tag uint64) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	dropped, err := e.swarm.Send(peer, swarm.Outgoing{Data: data, Class: class, Tag: tag})
	if dropped != nil {
		e.metrics.Dropped(metrics.DropOverloaded)
		if dropped.Tag != 0 {
			e.portals.Fail(dropped.Tag, types.ErrOverloaded)
		}
	}
	return err
}

// replySink 返回把响应送回上游的 Sink
//
// 首个响应以 Response 发送，之后的订阅推送以 Publish 发送。
func (e *Engine) replySink(peer types.V256, id uint64, typ wire.RequestType) portal.Sink[*wire.Response] {
	var (
		mu       sync.Mutex
		answered bool
	)
	return func(resp *wire.Response, err error) {
		if err != nil {
			resp = wire.Failure(typ, err)
		}
		mu.Lock()
		kind, class := wire.KindResponse, swarm.ClassNormal
		if answered {
			kind, class = wire.KindPublish, swarm.ClassSubscription
		}
		answered = true
		mu.Unlock()

		serr := e.send(peer, &wire.Envelope{ID: id, Kind: kind, Response: resp}, class, 0)
		if serr == nil {
			return
		}
		logger.Debug("响应发送失败",
			"peer", log.TruncateID(peer.String(), 8),
			"type", typ.String(),
			"error", serr)
		if kind == wire.KindPublish {
			if errors.Is(serr, types.ErrSubscriberSlow) {
				e.metrics.Dropped(metrics.DropSubscriberSlow)
			}
			b := bindingID{peer, id}
			e.post(func() { e.unsubscribe(b, discard) })
		}
	}
}

func discard(*wire.Response, error) {}

// handleMessage 处理入站消息
func (e *Engine) handleMessage(msg swarm.Message) {
	env, err := wire.Decode(msg.Data)
	if err != nil {
		logger.Debug("丢弃无法解码的消息", "peer", log.TruncateID(msg.From.String(), 8), "error", err)
		return
	}
	if env.Kind == wire.KindRequest {
		req := env.Request
		e.route(msg.From, env.ID, req, e.replySink(msg.From, env.ID, req.Type))
		return
	}
	if !e.portals.Resolve(env.ID, env.Response) {
		e.metrics.Dropped(metrics.DropLateResponse)
		logger.Debug("丢弃迟到的响应", "peer", log.TruncateID(msg.From.String(), 8), "id", env.ID)
	}
}

// ============================================================================
//                              路由步骤
// ============================================================================

// route 对请求执行一次路由步骤
//
// from 为上游节点（本地调用方为本地标识），id 为其请求 ID。
func (e *Engine) route(from types.V256, id uint64, req *wire.Request, sink portal.Sink[*wire.Response]) {
	if err := req.Validate(); err != nil {
		e.finish(req, wire.Failure(req.Type, err), sink)
		return
	}
	switch req.Type {
	case wire.TypeUnsubscribe:
		e.unsubscribe(bindingID{from, req.SubscriptionID}, sink)
		return
	case wire.TypeFindClosest:
		e.finish(req, e.handleFindClosest(req), sink)
		return
	}

	key, _ := req.Key()
	for {
		res := e.table.Nearest(key)
		switch res.Kind {
		case kad.SelfIsNearest:
			resp := e.handleLocal(from, id, req, sink)
			if from == e.local && e.shouldFallback(req, resp) && e.fallback(req, otherFields(req.RoutingKey.Field), sink) {
				return
			}
			e.finish(req, resp, sink)
			return
		case kad.NoneFound:
			e.finish(req, wire.Failure(req.Type, types.ErrNoRoute), sink)
			return
		}

		if req.Hops == 0 {
			e.finish(req, wire.Failure(req.Type, types.ErrHopLimit), sink)
			return
		}
		err := e.forward(res.Node.ID, from, id, req, sink)
		if errors.Is(err, swarm.ErrNoConnection) {
			// 路由表中的节点已断开，移除后重新选择
			e.table.TryRemove(res.Node.ID)
			continue
		}
		if err != nil {
			e.finish(req, wire.Failure(req.Type, err), sink)
		}
		return
	}
}

// finish 记录本地处理结果并交给 sink
func (e *Engine) finish(req *wire.Request, resp *wire.Response, sink portal.Sink[*wire.Response]) {
	outcome := "ok"
	if !resp.OK {
		outcome = resp.Failure.String()
	}
	e.metrics.Request(req.Type.String(), outcome)
	sink(resp, nil)
}

// forward 跳数减一后转发给 next
func (e *Engine) forward(next, from types.V256, id uint64, req *wire.Request, sink portal.Sink[*wire.Response]) error {
	fwd := req.Clone()
	fwd.Hops--

	fid := e.portals.NextID()
	stream := req.Type == wire.TypeSubscribe
	if stream {
		b := bindingID{from, id}
		inner := sink
		sink = func(resp *wire.Response, err error) {
			if err != nil || (!resp.OK && resp.Type == wire.TypeSubscribe) {
				e.post(func() { e.forgetRelay(b, fid) })
			}
			inner(resp, err)
		}
	}

	e.portals.Register(fid, next, e.cfg.RequestTimeout, stream, sink)
	if err := e.send(next, &wire.Envelope{ID: fid, Kind: wire.KindRequest, Request: fwd}, swarm.ClassNormal, fid); err != nil {
		e.portals.Remove(fid)
		return err
	}
	if stream {
		e.relays[bindingID{from, id}] = relay{fid: fid, rk: *req.RoutingKey}
	}
	e.metrics.Forwarded(req.Type.String())
	logger.Debug("转发请求",
		"type", req.Type.String(),
		"next", log.TruncateID(next.String(), 8),
		"hops", fwd.Hops)
	return nil
}

// request 直接向 peer 发送请求，不经路由
func (e *Engine) request(peer types.V256, req *wire.Request, sink portal.Sink[*wire.Response]) {
	id := e.portals.NextID()
	e.portals.Register(id, peer, e.cfg.RequestTimeout, false, sink)
	if err := e.send(peer, &wire.Envelope{ID: id, Kind: wire.KindRequest, Request: req}, swarm.ClassNormal, id); err != nil {
		e.portals.Fail(id, err)
	}
}

// ============================================================================
//                              Get 回退
// ============================================================================

func (e *Engine) shouldFallback(req *wire.Request, resp *wire.Response) bool {
	return e.cfg.GetFallback &&
		req.Type == wire.TypeGetRecord &&
		resp.Failure == wire.FailureNotFound
}

// otherFields 按扇出顺序返回除 f 以外的字段
func otherFields(f types.RoutingField) []types.RoutingField {
	out := make([]types.RoutingField, 0, 2)
	for _, o := range types.AllFields {
		if o != f {
			out = append(out, o)
		}
	}
	return out
}

// fallback 改用其他字段向远端查询
//
// 仅尝试最近节点为远端的字段，远端也未命中时继续下一个字段。
// 最终回复经 finish 计入请求指标。没有可尝试的字段时返回 false。
func (e *Engine) fallback(req *wire.Request, fields []types.RoutingField, sink portal.Sink[*wire.Response]) bool {
	for i, f := range fields {
		v, ok := req.RoutingKey.Key.Get(f)
		if !ok {
			continue
		}
		res := e.table.Nearest(v)
		if res.Kind != kad.Found || req.Hops == 0 {
			continue
		}

		alt := req.Clone()
		rk := types.RoutingKey{Field: f, Key: req.RoutingKey.Key}
		alt.RoutingKey = &rk
		rest := fields[i+1:]

		err := e.forward(res.Node.ID, e.local, 0, alt, func(resp *wire.Response, err error) {
			switch {
			case err != nil:
				sink(resp, err)
			case resp.Failure == wire.FailureNotFound && len(rest) > 0:
				e.post(func() {
					if !e.fallback(alt, rest, sink) {
						e.finish(alt, resp, sink)
					}
				})
			default:
				e.finish(alt, resp, sink)
			}
		})
		if err == nil {
			logger.Debug("本地未命中，改用其他字段查询", "field", f.String())
			return true
		}
	}
	return false
}
