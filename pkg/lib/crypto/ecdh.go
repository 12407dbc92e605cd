package crypto

import (
	"golang.org/x/crypto/curve25519"

	"github.com/dep2p/go-subfield/pkg/types"
)

// SharedSecret 使用本地密钥对与对端 Ed25519 公钥计算 X25519 共享密钥
func SharedSecret(local *Keypair, other types.V256) ([32]byte, error) {
	mont, err := MontgomeryPublic(other)
	if err != nil {
		return [32]byte{}, err
	}
	return SharedSecretMontgomery(local.MontgomeryPrivate(), mont)
}

// SharedSecretMontgomery 直接使用 X25519 标量与 u 坐标
func SharedSecretMontgomery(scalar, point [32]byte) ([32]byte, error) {
	var out [32]byte
	secret, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return out, newError("x25519", ErrInvalidKey, err)
	}
	copy(out[:], secret)
	return out, nil
}
