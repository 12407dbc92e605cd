package record

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Type 记录类型
type Type uint8

const (
	// TypeData 通用数据记录
	TypeData Type = 1
)

// Record 存储记录
type Record struct {
	Type        Type              `cbor:"type"`
	Key         types.CompleteKey `cbor:"key"`
	IsEncrypted bool              `cbor:"is_encrypted"`
	HashSeed    types.VBytes      `cbor:"hash_seed"`
	Data        types.VBytes      `cbor:"data"`
	CreatedAt   time.Time         `cbor:"created_at"`
	UpdatedAt   time.Time         `cbor:"updated_at"`
}

// New 创建数据记录，created_at 与 updated_at 取当前 UTC 时间
func New(key types.CompleteKey, data []byte) *Record {
	now := time.Now().UTC().Round(0)
	return &Record{
		Type:      TypeData,
		Key:       key,
		HashSeed:  types.NewVBytes(nil),
		Data:      types.NewVBytes(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WithData 返回携带新数据与 updated_at 的副本
func (r *Record) WithData(data []byte, at time.Time) *Record {
	cp := *r
	cp.Data = types.NewVBytes(data)
	cp.UpdatedAt = at.UTC().Round(0)
	return &cp
}

// Validate 检查记录自身的一致性
func (r *Record) Validate() error {
	if r.Type != TypeData {
		return fmt.Errorf("%w: unknown record type %d", types.ErrSerialization, r.Type)
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return fmt.Errorf("%w: updated_at before created_at", types.ErrSerialization)
	}
	return nil
}

// Encode 编码为 record_bytes
func (r *Record) Encode() ([]byte, error) {
	return Marshal(r)
}

// Decode 从 record_bytes 解码
func Decode(recordBytes []byte) (*Record, error) {
	var r Record
	if err := Unmarshal(recordBytes, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Compare 比较两条同键记录的新旧
//
// 返回 >0 表示 a 更新。updated_at 相同时按 record_bytes 字典序。
func Compare(a *Record, aBytes []byte, b *Record, bBytes []byte) int {
	switch {
	case a.UpdatedAt.After(b.UpdatedAt):
		return 1
	case a.UpdatedAt.Before(b.UpdatedAt):
		return -1
	}
	return bytes.Compare(aBytes, bBytes)
}
