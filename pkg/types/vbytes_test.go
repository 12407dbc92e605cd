package types

import (
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// V256 编码测试
// ============================================================================

// TestV256_StringRoundTrip 测试 base32 往返
func TestV256_StringRoundTrip(t *testing.T) {
	for i := 0; i < 64; i++ {
		v := RandomV256()
		s := v.String()

		assert.Equal(t, strings.ToLower(s), s, "输出应为小写")
		assert.NotContains(t, s, "=", "不应包含填充")

		parsed, err := ParseV256(s)
		require.NoError(t, err)
		assert.Equal(t, v, parsed)
	}

	t.Log("✅ V256 字符串往返正确")
}

// TestV256_ParseCaseInsensitive 测试大小写不敏感解析
func TestV256_ParseCaseInsensitive(t *testing.T) {
	v := RandomV256()

	parsed, err := ParseV256(strings.ToUpper(v.String()))
	require.NoError(t, err)
	assert.Equal(t, v, parsed)

	t.Log("✅ 大写输入解析正确")
}

// TestV256_ParseErrors 测试解析错误分类
func TestV256_ParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"非法字符", "!!!!", ErrInvalidBase32},
		{"长度错误", encodeVersioned(make([]byte, 16), 0), ErrInvalidLength},
		{"未知版本", encodeVersioned(make([]byte, 32), 7), ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseV256(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestV256_ArrayRoundTrip 测试数组往返
func TestV256_ArrayRoundTrip(t *testing.T) {
	var arr [32]byte
	for i := range arr {
		arr[i] = byte(i * 7)
	}

	assert.Equal(t, arr, NewV256(arr).Array())

	v, err := V256FromBytes(arr[:])
	require.NoError(t, err)
	assert.Equal(t, arr, v.Array())

	_, err = V256FromBytes(arr[:31])
	assert.ErrorIs(t, err, ErrInvalidLength)
}

// TestV256_CBOR 测试 CBOR 编码为定长字节串
func TestV256_CBOR(t *testing.T) {
	v := RandomV256()

	data, err := cbor.Marshal(v)
	require.NoError(t, err)

	var raw []byte
	require.NoError(t, cbor.Unmarshal(data, &raw))
	assert.Len(t, raw, 36)

	var back V256
	require.NoError(t, cbor.Unmarshal(data, &back))
	assert.Equal(t, v, back)
}

// ============================================================================
// 距离度量测试
// ============================================================================

// TestXorLeadingZeros 测试前导零计数
func TestXorLeadingZeros(t *testing.T) {
	a := RandomV256()
	assert.Equal(t, uint32(256), XorLeadingZeros(a, a))

	b := a
	b.Payload[0] ^= 0x80
	assert.Equal(t, uint32(0), XorLeadingZeros(a, b))

	c := a
	c.Payload[31] ^= 0x01
	assert.Equal(t, uint32(255), XorLeadingZeros(a, c))

	d := a
	d.Payload[2] ^= 0x10
	assert.Equal(t, uint32(19), XorLeadingZeros(a, d))

	t.Log("✅ 前导零计数正确")
}

// TestCloserTo 测试严格更近比较
func TestCloserTo(t *testing.T) {
	target := ZeroV256
	near := ZeroV256
	near.Payload[31] = 1
	far := ZeroV256
	far.Payload[0] = 1

	assert.True(t, CloserTo(target, near, far))
	assert.False(t, CloserTo(target, far, near))
	assert.False(t, CloserTo(target, near, near))
}

// TestV256_BigInt 测试大端整数解释
func TestV256_BigInt(t *testing.T) {
	v := ZeroV256
	v.Payload[30] = 0x01
	v.Payload[31] = 0x02

	assert.Equal(t, int64(258), v.BigInt().Int64())
}

// ============================================================================
// V96 / V512 / VBytes 测试
// ============================================================================

// TestOtherWidths_RoundTrip 测试其他宽度的往返
func TestOtherWidths_RoundTrip(t *testing.T) {
	var n V96
	n.Payload[3] = 9
	parsedN, err := ParseV96(n.String())
	require.NoError(t, err)
	assert.Equal(t, n, parsedN)

	var s V512
	s.Payload[63] = 1
	parsedS, err := ParseV512(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsedS)

	_, err = ParseV512(n.String())
	assert.ErrorIs(t, err, ErrInvalidLength)
}

// TestVBytes_CBOR 测试变长字节的数组编码
func TestVBytes_CBOR(t *testing.T) {
	v := NewVBytes([]byte("x"))

	data, err := cbor.Marshal(v)
	require.NoError(t, err)

	var back VBytes
	require.NoError(t, cbor.Unmarshal(data, &back))
	assert.True(t, v.Equal(back))
}
