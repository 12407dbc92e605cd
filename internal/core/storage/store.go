package storage

import (
	"bytes"
	"time"

	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

//go:generate mockgen -destination=mocks/store.go -package=mocks github.com/dep2p/go-subfield/internal/core/storage Store

var logger = log.Logger("core/storage")

// Watermark 键的单调水位
//
// 记录被删除或从内存存储中淘汰后仍然保留，updated_at 不晚于 At 的写入
// 应被拒绝。由删除产生时 Tombstone 非空。
type Watermark struct {
	At        time.Time
	Tombstone *record.Tombstone
}

// Store 记录存储
//
// Put 无条件覆盖同一完整键下的记录，单调性检查由调用方结合 Get 与
// Watermark 完成。水位不受容量淘汰影响。
type Store interface {
	// Get 返回与部分键匹配的记录，没有时返回 ErrNotFound
	Get(key types.PartialKey) (*record.Signed, error)

	// Put 写入记录
	Put(key types.CompleteKey, signed *record.Signed) error

	// Delete 删除记录并保留墓碑，返回记录此前是否存在
	//
	// 已有更晚的水位时保留原水位。
	Delete(key types.CompleteKey, tomb *record.Tombstone) (bool, error)

	// Watermark 返回键的水位，没有时返回 ErrNotFound
	Watermark(key types.CompleteKey) (Watermark, error)

	// Len 记录数
	Len() int

	// Close 关闭存储
	Close() error
}

// New 按配置创建存储
func New(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeBadger:
		return NewBadger(cfg)
	default:
		return NewMemory(cfg.CacheSize)
	}
}

// raise 返回 old 与 wm 中较高的水位，时间相同时墓碑优先
func raise(old Watermark, ok bool, wm Watermark) Watermark {
	if !ok || wm.At.After(old.At) {
		return wm
	}
	if wm.At.Equal(old.At) && old.Tombstone == nil {
		return wm
	}
	return old
}

// candidate 部分键查询的候选记录
type candidate struct {
	signed *record.Signed
	rec    *record.Record
}

// better 报告 a 是否应优先于 b 返回
func better(a, b candidate) bool {
	if b.rec == nil {
		return true
	}
	if !a.rec.UpdatedAt.Equal(b.rec.UpdatedAt) {
		return a.rec.UpdatedAt.After(b.rec.UpdatedAt)
	}
	return bytes.Compare(a.signed.RecordBytes, b.signed.RecordBytes) > 0
}

// pick 从候选中选出一条，没有可解码的候选时返回 ErrNotFound
func pick(key types.PartialKey, signed []*record.Signed) (*record.Signed, error) {
	var best candidate
	for _, s := range signed {
		rec, err := s.Decode()
		if err != nil {
			logger.Warn("跳过无法解码的记录", "error", err)
			continue
		}
		if !key.Matches(rec.Key) {
			continue
		}
		c := candidate{signed: s, rec: rec}
		if better(c, best) {
			best = c
		}
	}
	if best.signed == nil {
		return nil, ErrNotFound
	}
	return best.signed, nil
}
