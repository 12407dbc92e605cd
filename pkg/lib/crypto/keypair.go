package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"

	"github.com/dep2p/go-subfield/pkg/types"
)

// 密钥长度常量
const (
	PublicKeySize = ed25519.PublicKeySize
	SignatureSize = ed25519.SignatureSize
	SeedSize      = ed25519.SeedSize
)

// Keypair Ed25519 密钥对
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair 生成新的密钥对
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, newError("generate", ErrInvalidKey, err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed 由 32 字节种子恢复密钥对
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, newError("from seed", ErrInvalidKey, types.ErrInvalidLength)
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromHex 由十六进制种子恢复密钥对（配置文件格式）
func KeypairFromHex(s string) (*Keypair, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, newError("from hex", ErrInvalidKey, err)
	}
	return KeypairFromSeed(seed)
}

// Seed 返回私钥种子
func (k *Keypair) Seed() []byte {
	return k.priv.Seed()
}

// SeedHex 返回十六进制种子
func (k *Keypair) SeedHex() string {
	return hex.EncodeToString(k.priv.Seed())
}

// PublicKey 返回 Ed25519 公钥
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey) //nolint:errcheck // 类型固定
}

// ID 返回公钥作为 V256 标识
func (k *Keypair) ID() types.V256 {
	var id types.V256
	copy(id.Payload[:], k.PublicKey())
	return id
}

// Sign 对消息签名，返回 64 字节签名
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// MontgomeryPrivate 派生 X25519 标量：SHA-512(seed) 前 32 字节并钳位
func (k *Keypair) MontgomeryPrivate() [32]byte {
	h := sha512.Sum512(k.priv.Seed())
	var out [32]byte
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}

// Verify 使用 V256 形式的公钥校验签名
func Verify(pub types.V256, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(pub.Payload[:], msg, sig)
}

// VerifyErr 校验签名，失败时返回 *Error
func VerifyErr(pub types.V256, msg, sig []byte) error {
	if !Verify(pub, msg, sig) {
		return newError("verify", ErrInvalidSignature, nil)
	}
	return nil
}

// MontgomeryPublic Ed25519 公钥转 Curve25519 u 坐标
func MontgomeryPublic(pub types.V256) ([32]byte, error) {
	var out [32]byte
	p, err := new(edwards25519.Point).SetBytes(pub.Payload[:])
	if err != nil {
		return out, newError("to montgomery", ErrInvalidKey, err)
	}
	copy(out[:], p.BytesMontgomery())
	return out, nil
}

// EdwardsFromMontgomery Curve25519 u 坐标转 Ed25519 公钥
//
// u 坐标不携带 x 的符号，由 negative 指定。y = (u - 1) / (u + 1)。
func EdwardsFromMontgomery(u [32]byte, negative bool) (types.V256, error) {
	uf, err := new(field.Element).SetBytes(u[:])
	if err != nil {
		return types.V256{}, newError("from montgomery", ErrInvalidKey, err)
	}
	one := new(field.Element).One()
	den := new(field.Element).Add(uf, one)
	if den.Equal(new(field.Element).Zero()) == 1 {
		return types.V256{}, newError("from montgomery", ErrInvalidKey, errors.New("u = -1"))
	}
	num := new(field.Element).Subtract(uf, one)
	y := new(field.Element).Multiply(num, new(field.Element).Invert(den))

	var id types.V256
	copy(id.Payload[:], y.Bytes())
	if negative {
		id.Payload[31] |= 0x80
	}
	if _, err := new(edwards25519.Point).SetBytes(id.Payload[:]); err != nil {
		return types.V256{}, newError("from montgomery", ErrInvalidKey, err)
	}
	return id, nil
}
