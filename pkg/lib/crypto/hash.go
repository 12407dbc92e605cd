package crypto

import (
	"crypto/subtle"

	"lukechampine.com/blake3"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Hash 计算 BLAKE3-256
func Hash(msg []byte) types.V256 {
	return types.NewV256(blake3.Sum256(msg))
}

// VerifyHash 常量时间比较消息哈希
func VerifyHash(msg []byte, expected types.V256) bool {
	h := blake3.Sum256(msg)
	return subtle.ConstantTimeCompare(h[:], expected.Payload[:]) == 1
}
