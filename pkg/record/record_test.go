package record

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/types"
)

func newKey(t *testing.T) (*crypto.Keypair, types.CompleteKey) {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	return kp, types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
}

// ============================================================================
// 编码测试
// ============================================================================

// TestRecord_EncodeDeterministic 测试编码确定且往返精确
func TestRecord_EncodeDeterministic(t *testing.T) {
	_, key := newKey(t)
	r := New(key, []byte("x"))

	b1, err := r.Encode()
	require.NoError(t, err)
	b2, err := r.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)

	back, err := Decode(b1)
	require.NoError(t, err)
	assert.Equal(t, key, back.Key)
	assert.Equal(t, []byte("x"), back.Data.Bytes)
	assert.True(t, r.UpdatedAt.Equal(back.UpdatedAt))

	b3, err := back.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b3, "解码后重新编码应得到相同字节")

	t.Log("✅ 记录编码确定")
}

// TestRecord_DecodeErrors 测试非法输入
func TestRecord_DecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, types.ErrSerialization)

	_, key := newKey(t)
	r := New(key, nil)
	r.UpdatedAt = r.CreatedAt.Add(-time.Second)
	b, err := r.Encode()
	require.NoError(t, err)
	_, err = Decode(b)
	assert.ErrorIs(t, err, types.ErrSerialization)
}

// ============================================================================
// 签名校验测试
// ============================================================================

// TestSigned_Validate 测试接收校验顺序
func TestSigned_Validate(t *testing.T) {
	kp, key := newKey(t)
	other, _ := newKey(t)
	r := New(key, []byte("x"))

	good, err := Sign(kp, r)
	require.NoError(t, err)

	t.Run("通过", func(t *testing.T) {
		for _, rk := range key.RoutingKeys() {
			rk := rk
			_, err := good.Validate(&rk)
			assert.NoError(t, err)
		}
	})

	t.Run("错误签名者", func(t *testing.T) {
		bad, err := Sign(other, r)
		require.NoError(t, err)
		rk := key.RoutingKey(types.FieldSigner)
		_, err = bad.Validate(&rk)
		assert.ErrorIs(t, err, types.ErrInvalidSignature)
	})

	t.Run("声明签名者不一致", func(t *testing.T) {
		wrong := other.ID()
		rk := types.RoutingKey{Field: types.FieldSigner, Key: types.PartialKey{Signer: &wrong}}
		_, err := good.Validate(&rk)
		assert.ErrorIs(t, err, types.ErrKeypairNotSigner)
	})

	t.Run("键不一致", func(t *testing.T) {
		tg := types.RandomV256()
		rk := types.RoutingKey{Field: types.FieldTangent, Key: types.PartialKey{Tangent: &tg}}
		_, err := good.Validate(&rk)
		assert.ErrorIs(t, err, types.ErrKeyMismatch)
	})

	t.Run("解码失败", func(t *testing.T) {
		_, err := (&Signed{RecordBytes: []byte("junk"), Signature: good.Signature}).Validate(nil)
		assert.ErrorIs(t, err, types.ErrSerialization)
	})
}

// ============================================================================
// 单调性测试
// ============================================================================

// TestSigned_NewerThan 测试更新规则与平局裁决
func TestSigned_NewerThan(t *testing.T) {
	kp, key := newKey(t)
	base := New(key, []byte("a"))
	t1 := base.CreatedAt.Add(time.Second)
	t2 := t1.Add(time.Second)

	r1 := base.WithData([]byte("one"), t1)
	r2 := base.WithData([]byte("two"), t2)
	s1, err := Sign(kp, r1)
	require.NoError(t, err)
	s2, err := Sign(kp, r2)
	require.NoError(t, err)

	assert.True(t, s1.NewerThan(r1, nil))
	assert.True(t, s2.NewerThan(r2, s1))
	assert.False(t, s1.NewerThan(r1, s2))
	assert.False(t, s1.NewerThan(r1, s1), "相同字节不算更新")

	// 相同 updated_at 时字节较大者胜出
	ra := base.WithData([]byte("aaa"), t1)
	rb := base.WithData([]byte("bbb"), t1)
	sa, err := Sign(kp, ra)
	require.NoError(t, err)
	sb, err := Sign(kp, rb)
	require.NoError(t, err)
	if bytes.Compare(sa.RecordBytes, sb.RecordBytes) > 0 {
		assert.True(t, sa.NewerThan(ra, sb))
		assert.False(t, sb.NewerThan(rb, sa))
	} else {
		assert.True(t, sb.NewerThan(rb, sa))
		assert.False(t, sa.NewerThan(ra, sb))
	}
}

// TestDeleteSignature 测试删除签名仅接受作者且覆盖删除时间
func TestDeleteSignature(t *testing.T) {
	kp, key := newKey(t)
	other, _ := newKey(t)
	at := time.Now()

	tomb := SignDelete(kp, key, at)
	assert.NoError(t, VerifyDelete(key, tomb))
	assert.ErrorIs(t, VerifyDelete(key, SignDelete(other, key, at)), types.ErrInvalidSignature)

	// 改写删除时间后签名失效
	moved := *tomb
	moved.DeletedAt = tomb.DeletedAt.Add(time.Hour)
	assert.ErrorIs(t, VerifyDelete(key, &moved), types.ErrInvalidSignature)

	// 同一签名不能用于其他键
	_, otherKey := newKey(t)
	otherKey.Signer = key.Signer
	assert.ErrorIs(t, VerifyDelete(otherKey, tomb), types.ErrInvalidSignature)

	assert.ErrorIs(t, VerifyDelete(key, nil), types.ErrSerialization)
	assert.ErrorIs(t, VerifyDelete(key, &Tombstone{DeletedAt: at}), types.ErrSerialization)

	t.Log("✅ 删除签名测试通过")
}

// TestTombstone_Covers 测试删除覆盖不晚于删除时间的记录
func TestTombstone_Covers(t *testing.T) {
	kp, key := newKey(t)
	at := time.Now()
	tomb := SignDelete(kp, key, at)

	r := New(key, []byte("x"))
	r.UpdatedAt = tomb.DeletedAt
	assert.True(t, tomb.Covers(r))
	r.UpdatedAt = tomb.DeletedAt.Add(-time.Second)
	assert.True(t, tomb.Covers(r))
	r.UpdatedAt = tomb.DeletedAt.Add(time.Nanosecond)
	assert.False(t, tomb.Covers(r))

	// CBOR 往返保留纳秒精度，签名仍然有效
	b, err := Marshal(tomb)
	require.NoError(t, err)
	var back Tombstone
	require.NoError(t, Unmarshal(b, &back))
	assert.True(t, back.DeletedAt.Equal(tomb.DeletedAt))
	assert.NoError(t, VerifyDelete(key, &back))
}
