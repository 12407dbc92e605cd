package record

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/types"
)

// deleteDomain 删除签名的域分隔前缀
const deleteDomain = "subfield-delete:"

// Tombstone 作者签名的删除标记
//
// 删除后由存储保留。updated_at 不晚于 DeletedAt 的记录不再被接受，
// 签名覆盖 DeletedAt，旧的删除请求无法删除之后写入的记录。
type Tombstone struct {
	DeletedAt time.Time `cbor:"deleted_at" json:"deleted_at"`
	Signature []byte    `cbor:"signature" json:"signature"`
}

// DeletePayload 删除签名的内容：域前缀 || key.hash() || deleted_at（Unix 纳秒，大端）
func DeletePayload(key types.CompleteKey, at time.Time) []byte {
	h := key.Hash()
	b := make([]byte, 0, len(deleteDomain)+len(h.Payload)+8)
	b = append(b, deleteDomain...)
	b = append(b, h.Payload[:]...)
	return binary.BigEndian.AppendUint64(b, uint64(at.UnixNano()))
}

// SignDelete 签署 at 时刻对 key 的删除
func SignDelete(kp *crypto.Keypair, key types.CompleteKey, at time.Time) *Tombstone {
	at = at.UTC().Round(0)
	return &Tombstone{DeletedAt: at, Signature: kp.Sign(DeletePayload(key, at))}
}

// VerifyDelete 校验删除签名，仅接受 key.signer 的签名
func VerifyDelete(key types.CompleteKey, t *Tombstone) error {
	if t == nil || len(t.Signature) == 0 || t.DeletedAt.IsZero() {
		return fmt.Errorf("%w: incomplete tombstone", types.ErrSerialization)
	}
	return crypto.VerifyErr(key.Signer, DeletePayload(key, t.DeletedAt), t.Signature)
}

// Covers 报告 rec 是否被该删除覆盖
func (t *Tombstone) Covers(rec *Record) bool {
	return !rec.UpdatedAt.After(t.DeletedAt)
}
