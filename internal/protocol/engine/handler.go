package engine

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// handleLocal 本节点为最近节点时处理请求
func (e *Engine) handleLocal(from types.V256, id uint64, req *wire.Request, sink portal.Sink[*wire.Response]) *wire.Response {
	switch req.Type {
	case wire.TypeEcho:
		resp := wire.Success(wire.TypeEcho)
		resp.Message = req.Message
		return resp
	case wire.TypePing:
		resp := wire.Success(wire.TypePing)
		resp.Timestamp = e.clk.Now().UnixMilli()
		if resp.Timestamp < req.Timestamp {
			resp.Timestamp = req.Timestamp
		}
		return resp
	case wire.TypePutRecord:
		return e.handlePut(req)
	case wire.TypeGetRecord:
		return e.handleGet(req)
	case wire.TypeDeleteRecord:
		return e.handleDelete(req)
	case wire.TypeSubscribe:
		return e.handleSubscribe(from, id, req, sink)
	case wire.TypeFindClosest:
		return e.handleFindClosest(req)
	}
	return wire.Failure(req.Type, fmt.Errorf("%w: unknown request type", types.ErrSerialization))
}

// watermark 返回键的水位，没有时 ok 为假
func (e *Engine) watermark(key types.CompleteKey) (wm storage.Watermark, ok bool, err error) {
	wm, err = e.store.Watermark(key)
	switch {
	case errors.Is(err, types.ErrNotFound):
		return wm, false, nil
	case err != nil:
		return wm, false, err
	}
	return wm, true, nil
}

// handlePut 校验并写入记录
//
// 与已存字节相同的重复写入直接成功，不写存储也不推送。
// updated_at 不晚于墓碑或淘汰水位的记录视为过期。
func (e *Engine) handlePut(req *wire.Request) *wire.Response {
	rec, err := req.Record.Validate(req.RoutingKey)
	if err != nil {
		return wire.Failure(wire.TypePutRecord, err)
	}

	stored, err := e.store.Get(rec.Key.Partial())
	switch {
	case errors.Is(err, types.ErrNotFound):
		stored = nil
	case err != nil:
		return wire.Failure(wire.TypePutRecord, err)
	}

	if stored != nil && bytes.Equal(stored.RecordBytes, req.Record.RecordBytes) {
		return wire.Success(wire.TypePutRecord)
	}
	if !req.Record.NewerThan(rec, stored) {
		return wire.Failure(wire.TypePutRecord,
			fmt.Errorf("%w: updated_at %s", types.ErrOutdated, rec.UpdatedAt))
	}
	wm, ok, err := e.watermark(rec.Key)
	if err != nil {
		return wire.Failure(wire.TypePutRecord, err)
	}
	if ok && !rec.UpdatedAt.After(wm.At) {
		return wire.Failure(wire.TypePutRecord,
			fmt.Errorf("%w: updated_at %s not after watermark %s", types.ErrOutdated, rec.UpdatedAt, wm.At))
	}
	if err := e.store.Put(rec.Key, req.Record); err != nil {
		return wire.Failure(wire.TypePutRecord, err)
	}
	logger.Debug("记录已写入", "key", rec.Key.String(), "field", req.RoutingKey.Field.String())
	return wire.Success(wire.TypePutRecord)
}

// handleGet 返回与部分键匹配的最新记录
func (e *Engine) handleGet(req *wire.Request) *wire.Response {
	signed, err := e.store.Get(req.RoutingKey.Key)
	if err != nil {
		return wire.Failure(wire.TypeGetRecord, err)
	}
	resp := wire.Success(wire.TypeGetRecord)
	resp.Record = signed
	rk := *req.RoutingKey
	resp.RoutingKey = &rk
	return resp
}

// handleDelete 校验作者签名后删除并留下墓碑
//
// deleted_at 早于已存记录或水位时视为过期，重放的旧删除无法删除之后写入的记录。
// 不存在的键同样成功，墓碑照常保留。
func (e *Engine) handleDelete(req *wire.Request) *wire.Response {
	key, err := types.CompleteKeyFromPartial(req.RoutingKey.Key)
	if err != nil {
		return wire.Failure(wire.TypeDeleteRecord, err)
	}
	tomb := req.Tombstone
	if err := record.VerifyDelete(key, tomb); err != nil {
		return wire.Failure(wire.TypeDeleteRecord, err)
	}

	stored, err := e.store.Get(key.Partial())
	switch {
	case errors.Is(err, types.ErrNotFound):
	case err != nil:
		return wire.Failure(wire.TypeDeleteRecord, err)
	default:
		if rec, err := stored.Decode(); err == nil && !tomb.Covers(rec) {
			return wire.Failure(wire.TypeDeleteRecord,
				fmt.Errorf("%w: deleted_at %s before updated_at %s", types.ErrOutdated, tomb.DeletedAt, rec.UpdatedAt))
		}
	}

	wm, ok, err := e.watermark(key)
	if err != nil {
		return wire.Failure(wire.TypeDeleteRecord, err)
	}
	if ok && wm.At.After(tomb.DeletedAt) {
		if wm.Tombstone != nil {
			// 已有更晚的删除
			return wire.Success(wire.TypeDeleteRecord)
		}
		return wire.Failure(wire.TypeDeleteRecord,
			fmt.Errorf("%w: deleted_at %s before watermark %s", types.ErrOutdated, tomb.DeletedAt, wm.At))
	}

	removed, err := e.store.Delete(key, tomb)
	if err != nil {
		return wire.Failure(wire.TypeDeleteRecord, err)
	}
	if removed {
		logger.Debug("记录已删除", "key", key.String(), "deleted_at", tomb.DeletedAt)
	}
	return wire.Success(wire.TypeDeleteRecord)
}

// handleSubscribe 绑定订阅者与完整键
func (e *Engine) handleSubscribe(from types.V256, id uint64, req *wire.Request, sink portal.Sink[*wire.Response]) *wire.Response {
	key, err := types.CompleteKeyFromPartial(req.RoutingKey.Key)
	if err != nil {
		return wire.Failure(wire.TypeSubscribe, err)
	}
	e.bind(bindingID{from, id}, &binding{key: key, rk: *req.RoutingKey, sink: sink})
	logger.Debug("订阅已绑定",
		"subscriber", log.TruncateID(from.String(), 8),
		"key", key.String())
	return wire.Success(wire.TypeSubscribe)
}

// handleFindClosest 返回路由表中距目标最近的节点
//
// 路由表不足 count 个节点时本节点作为额外候选一并返回。
func (e *Engine) handleFindClosest(req *wire.Request) *wire.Response {
	count := req.Count
	if count > e.cfg.Kad.K {
		count = e.cfg.Kad.K
	}
	res := e.table.NearestN(*req.Target, count)

	resp := wire.Success(wire.TypeFindClosest)
	resp.Peers = make([]types.PeerInfo, 0, len(res.Nodes)+1)
	for _, n := range res.Nodes {
		resp.Peers = append(resp.Peers, n.Info())
	}
	if res.Kind != kad.Found {
		resp.Peers = append(resp.Peers, e.selfInfo())
	}
	return resp
}

// selfInfo 本节点标识与监听地址
func (e *Engine) selfInfo() types.PeerInfo {
	addrs := e.swarm.ListenAddrs()
	info := types.PeerInfo{ID: e.local, Addrs: make([]string, 0, len(addrs))}
	for _, a := range addrs {
		info.Addrs = append(info.Addrs, a.String())
	}
	return info
}
