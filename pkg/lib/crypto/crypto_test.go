package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/pkg/types"
)

func mustKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	return kp
}

// ============================================================================
// 签名测试
// ============================================================================

// TestSignature_Closure 测试签名闭包性
func TestSignature_Closure(t *testing.T) {
	k := mustKeypair(t)
	other := mustKeypair(t)

	for _, msg := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte{0xab}, 4096)} {
		sig := k.Sign(msg)
		assert.Len(t, sig, SignatureSize)
		assert.True(t, Verify(k.ID(), msg, sig))
		assert.False(t, Verify(k.ID(), msg, other.Sign(msg)), "其他密钥签名不应通过")
	}

	err := VerifyErr(k.ID(), []byte("m"), other.Sign([]byte("m")))
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.False(t, Verify(k.ID(), []byte("m"), []byte("short")))

	t.Log("✅ 签名闭包性正确")
}

// TestKeypair_Seed 测试种子恢复
func TestKeypair_Seed(t *testing.T) {
	k := mustKeypair(t)

	back, err := KeypairFromHex(k.SeedHex())
	require.NoError(t, err)
	assert.Equal(t, k.ID(), back.ID())

	_, err = KeypairFromSeed([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// ============================================================================
// Montgomery 转换与 ECDH 测试
// ============================================================================

// TestECDH_Symmetry 测试共享密钥对称性
func TestECDH_Symmetry(t *testing.T) {
	a := mustKeypair(t)
	b := mustKeypair(t)

	ab, err := SharedSecret(a, b.ID())
	require.NoError(t, err)
	ba, err := SharedSecret(b, a.ID())
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.NotEqual(t, [32]byte{}, ab)

	t.Log("✅ ECDH 对称")
}

// TestMontgomery_RoundTrip 测试 Edwards 与 Montgomery 公钥互转
func TestMontgomery_RoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		k := mustKeypair(t)
		id := k.ID()

		u, err := MontgomeryPublic(id)
		require.NoError(t, err)

		back, err := EdwardsFromMontgomery(u, id.Payload[31]&0x80 != 0)
		require.NoError(t, err)
		assert.Equal(t, id, back)
	}
}

// TestMontgomery_InvalidPoint 测试 u = -1 无法映射
func TestMontgomery_InvalidPoint(t *testing.T) {
	// p - 1 = 2^255 - 20，小端编码
	var u [32]byte
	for i := range u {
		u[i] = 0xff
	}
	u[0] = 0xec
	u[31] = 0x7f

	_, err := EdwardsFromMontgomery(u, false)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// ============================================================================
// AEAD 与哈希测试
// ============================================================================

// TestAEAD_RoundTrip 测试加解密往返
func TestAEAD_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	msg := []byte("subfield")

	ct1, err := Encrypt(key, msg)
	require.NoError(t, err)
	ct2, err := Encrypt(key, msg)
	require.NoError(t, err)

	assert.Len(t, ct1, NonceSize+len(msg)+Overhead)
	assert.NotEqual(t, ct1[:NonceSize], ct2[:NonceSize], "nonce 应随机")

	pt, err := Decrypt(key, ct1)
	require.NoError(t, err)
	assert.Equal(t, msg, pt)

	ct1[len(ct1)-1] ^= 1
	_, err = Decrypt(key, ct1)
	assert.ErrorIs(t, err, ErrFailedToDecrypt)

	_, err = Encrypt([]byte("short"), msg)
	assert.ErrorIs(t, err, ErrFailedToEncrypt)
}

// TestHash_Verify 测试 BLAKE3 校验
func TestHash_Verify(t *testing.T) {
	h := Hash([]byte("abc"))

	assert.True(t, VerifyHash([]byte("abc"), h))
	assert.False(t, VerifyHash([]byte("abd"), h))
	assert.Equal(t, types.HashOf([]byte("abc")), h)
}
