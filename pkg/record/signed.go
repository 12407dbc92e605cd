package record

import (
	"bytes"
	"fmt"

	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/types"
)

// Signed 线上记录形式
type Signed struct {
	RecordBytes []byte `cbor:"record_bytes" json:"record_bytes"`
	Signature   []byte `cbor:"signature" json:"signature"`
}

// Sign 编码记录并用给定密钥签名
//
// 不检查密钥是否为 key.signer，校验在接收方进行。
func Sign(kp *crypto.Keypair, r *Record) (*Signed, error) {
	b, err := r.Encode()
	if err != nil {
		return nil, err
	}
	return &Signed{RecordBytes: b, Signature: kp.Sign(b)}, nil
}

// Decode 解码记录内容
func (s *Signed) Decode() (*Record, error) {
	return Decode(s.RecordBytes)
}

// Equal 字节级相等
func (s *Signed) Equal(o *Signed) bool {
	return o != nil && bytes.Equal(s.RecordBytes, o.RecordBytes) && bytes.Equal(s.Signature, o.Signature)
}

// Validate 按接收顺序校验记录
//
//  1. 解码 record_bytes
//  2. 路由键中已存在的字段必须与记录键一致
//  3. 用 key.signer 校验签名
func (s *Signed) Validate(rk *types.RoutingKey) (*Record, error) {
	r, err := s.Decode()
	if err != nil {
		return nil, err
	}
	if rk != nil {
		if signer, ok := rk.Key.Get(types.FieldSigner); ok && signer != r.Key.Signer {
			return nil, fmt.Errorf("%w: declared %s", types.ErrKeypairNotSigner, signer.ShortString())
		}
		if !rk.Key.Matches(r.Key) {
			return nil, types.ErrKeyMismatch
		}
	}
	if err := crypto.VerifyErr(r.Key.Signer, s.RecordBytes, s.Signature); err != nil {
		return nil, err
	}
	return r, nil
}

// NewerThan 报告 s（已解码为 rec）是否比 stored 更新
//
// stored 为 nil 或无法解码时恒为真。
func (s *Signed) NewerThan(rec *Record, stored *Signed) bool {
	if stored == nil {
		return true
	}
	old, err := stored.Decode()
	if err != nil {
		return true
	}
	return Compare(rec, s.RecordBytes, old, stored.RecordBytes) > 0
}
