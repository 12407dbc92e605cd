package subfield

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
//                              诊断请求
// ============================================================================

// Echo 把 msg 路由到距 target 最近的节点并取回
func (s *Subfield) Echo(ctx context.Context, target types.V256, msg string) (string, error) {
	if err := s.running(); err != nil {
		return "", err
	}
	resp, err := s.engine.Request(ctx, &wire.Request{
		Type:    wire.TypeEcho,
		Target:  &target,
		Message: msg,
	})
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Ping 向距 target 最近的节点发送当前时间戳（毫秒）
//
// 返回应答方的时间戳，不早于请求中的时间戳。
func (s *Subfield) Ping(ctx context.Context, target types.V256) (int64, error) {
	if err := s.running(); err != nil {
		return 0, err
	}
	resp, err := s.engine.Request(ctx, &wire.Request{
		Type:      wire.TypePing,
		Target:    &target,
		Timestamp: s.clk.Now().UnixMilli(),
	})
	if err != nil {
		return 0, err
	}
	return resp.Timestamp, nil
}

// ============================================================================
//                              记录操作
// ============================================================================

// Put 把签名记录写入键的三个字段目的地
//
// 任一字段失败时返回 *FanoutError，列出每个字段的结果。
func (s *Subfield) Put(ctx context.Context, signed *record.Signed) error {
	if err := s.running(); err != nil {
		return err
	}
	rec, err := signed.Decode()
	if err != nil {
		return err
	}
	return s.fanout(ctx, "put", rec.Key, func(rk types.RoutingKey) *wire.Request {
		return &wire.Request{Type: wire.TypePutRecord, RoutingKey: &rk, Record: signed}
	})
}

// Get 按路由键读取最新记录
//
// 返回的记录已校验签名且与路由键的已知字段一致。
func (s *Subfield) Get(ctx context.Context, rk types.RoutingKey) (*record.Signed, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	resp, err := s.engine.Request(ctx, &wire.Request{Type: wire.TypeGetRecord, RoutingKey: &rk})
	if err != nil {
		return nil, err
	}
	if resp.Record == nil {
		return nil, fmt.Errorf("%w: get response without record", types.ErrSerialization)
	}
	if _, err := resp.Record.Validate(&rk); err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// GetKey 读取完整键的记录，经本地路由表中节点最少的字段路由
func (s *Subfield) GetKey(ctx context.Context, key types.CompleteKey) (*record.Signed, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	f, err := s.engine.LeastLoadedField(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key.RoutingKey(f))
}

// Delete 以作者签名删除键在三个字段目的地的记录
//
// kp 必须是 key.Signer 的密钥对。记录不存在同样视为成功。
// 删除时间取当前时钟，各目的地保留墓碑，不晚于该时间的记录不能再写入。
func (s *Subfield) Delete(ctx context.Context, kp *crypto.Keypair, key types.CompleteKey) error {
	if err := s.running(); err != nil {
		return err
	}
	if kp.ID() != key.Signer {
		return types.ErrKeypairNotSigner
	}
	tomb := record.SignDelete(kp, key, s.clk.Now())
	return s.fanout(ctx, "delete", key, func(rk types.RoutingKey) *wire.Request {
		return &wire.Request{Type: wire.TypeDeleteRecord, RoutingKey: &rk, Tombstone: tomb}
	})
}

// fanout 并发向三个字段目的地发送请求并汇总结果
func (s *Subfield) fanout(ctx context.Context, op string, key types.CompleteKey, build func(types.RoutingKey) *wire.Request) error {
	outcomes := make([]FieldOutcome, len(types.AllFields))

	var g errgroup.Group
	for i, f := range types.AllFields {
		i, f := i, f
		outcomes[i].Field = f
		g.Go(func() error {
			_, outcomes[i].Err = s.engine.Request(ctx, build(key.RoutingKey(f)))
			return nil
		})
	}
	_ = g.Wait()

	if err := fanoutErr(op, outcomes); err != nil {
		logger.Debug("扇出失败", "op", op, "key", key.String(), "error", err)
		return err
	}
	return nil
}

// ============================================================================
//                              节点查找
// ============================================================================

// ClosestGlobal 迭代查询网络，返回已知距 key 最近的节点，可能是本节点
func (s *Subfield) ClosestGlobal(ctx context.Context, key types.V256) (types.PeerInfo, error) {
	if err := s.running(); err != nil {
		return types.PeerInfo{}, err
	}
	return s.engine.ClosestGlobal(ctx, key)
}
