package types

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"lukechampine.com/blake3"
)

// CurrentVersion 当前唯一支持的版本标签
const CurrentVersion uint32 = 0

// versionLen 版本后缀长度（小端 uint32）
const versionLen = 4

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodeVersioned 编码 payload || version_le 为小写 base32
func encodeVersioned(payload []byte, version uint32) string {
	buf := make([]byte, len(payload)+versionLen)
	copy(buf, payload)
	binary.LittleEndian.PutUint32(buf[len(payload):], version)
	return strings.ToLower(b32.EncodeToString(buf))
}

// decodeVersioned 解码 base32 并校验 payload 宽度与版本
func decodeVersioned(s string, width int) ([]byte, uint32, error) {
	raw, err := b32.DecodeString(strings.ToUpper(s))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidBase32, err)
	}
	return splitVersioned(raw, width)
}

func splitVersioned(raw []byte, width int) ([]byte, uint32, error) {
	if len(raw) != width+versionLen {
		return nil, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(raw), width+versionLen)
	}
	version := binary.LittleEndian.Uint32(raw[width:])
	if version != CurrentVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	return raw[:width], version, nil
}

func wireBytes(payload []byte, version uint32) []byte {
	buf := make([]byte, len(payload)+versionLen)
	copy(buf, payload)
	binary.LittleEndian.PutUint32(buf[len(payload):], version)
	return buf
}

// ============================================================================
//                              V256
// ============================================================================

// V256 版本化 256 位标识
//
// 公钥、键字段、哈希值都使用 V256 表示。
type V256 struct {
	Version uint32
	Payload [32]byte
}

// Field 复合键中的一个字段
type Field = V256

// ZeroV256 全零值，同时作为缺失字段的哈希占位
var ZeroV256 V256

// NewV256 由 32 字节数组构造 V256
func NewV256(payload [32]byte) V256 {
	return V256{Version: CurrentVersion, Payload: payload}
}

// V256FromBytes 由字节切片构造 V256
func V256FromBytes(b []byte) (V256, error) {
	if len(b) != 32 {
		return V256{}, fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidLength, len(b))
	}
	var v V256
	copy(v.Payload[:], b)
	return v, nil
}

// RandomV256 使用密码学安全随机数生成 V256
func RandomV256() V256 {
	var v V256
	if _, err := rand.Read(v.Payload[:]); err != nil {
		panic(fmt.Sprintf("types: crypto/rand failed: %v", err))
	}
	return v
}

// HashOf 计算 BLAKE3 哈希并包装为 V256
func HashOf(msg []byte) V256 {
	return NewV256(blake3.Sum256(msg))
}

// ParseV256 从 base32 字符串解析 V256
func ParseV256(s string) (V256, error) {
	payload, version, err := decodeVersioned(s, 32)
	if err != nil {
		return V256{}, err
	}
	v := V256{Version: version}
	copy(v.Payload[:], payload)
	return v, nil
}

// String 返回小写 base32 表示
func (v V256) String() string {
	return encodeVersioned(v.Payload[:], v.Version)
}

// ShortString 返回用于日志的短表示
func (v V256) ShortString() string {
	s := v.String()
	return s[:8]
}

// Bytes 返回 payload 副本
func (v V256) Bytes() []byte {
	b := make([]byte, 32)
	copy(b, v.Payload[:])
	return b
}

// Array 返回 payload 数组
func (v V256) Array() [32]byte {
	return v.Payload
}

// IsZero 检查是否为全零
func (v V256) IsZero() bool {
	return v == ZeroV256
}

// Equal 版本与 payload 都相等
func (v V256) Equal(o V256) bool {
	return v == o
}

// Compare 按 payload 字典序比较
func (v V256) Compare(o V256) int {
	return bytes.Compare(v.Payload[:], o.Payload[:])
}

// Xor 返回两个 payload 的异或
func (v V256) Xor(o V256) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = v.Payload[i] ^ o.Payload[i]
	}
	return out
}

// XorLeadingZeros 异或距离的前导零位数，相等时为 256
func XorLeadingZeros(a, b V256) uint32 {
	for i := 0; i < 32; i++ {
		if x := a.Payload[i] ^ b.Payload[i]; x != 0 {
			return uint32(i*8 + bits.LeadingZeros8(x))
		}
	}
	return 256
}

// CloserTo 报告 a 是否比 b 更接近 target（严格）
func CloserTo(target, a, b V256) bool {
	for i := 0; i < 32; i++ {
		da := a.Payload[i] ^ target.Payload[i]
		db := b.Payload[i] ^ target.Payload[i]
		if da != db {
			return da < db
		}
	}
	return false
}

// BigInt 将 payload 解释为大端无符号整数，仅用于展示
func (v V256) BigInt() *big.Int {
	return new(big.Int).SetBytes(v.Payload[:])
}

// MarshalText 实现 encoding.TextMarshaler
func (v V256) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (v *V256) UnmarshalText(text []byte) error {
	parsed, err := ParseV256(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalCBOR 编码为 36 字节字节串 payload || version_le
func (v V256) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(wireBytes(v.Payload[:], v.Version))
}

// UnmarshalCBOR 从字节串解码
func (v *V256) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	payload, version, err := splitVersioned(raw, 32)
	if err != nil {
		return err
	}
	v.Version = version
	copy(v.Payload[:], payload)
	return nil
}

// ============================================================================
//                              V96 / V512
// ============================================================================

// V96 版本化 96 位值（AEAD nonce 宽度）
type V96 struct {
	Version uint32
	Payload [12]byte
}

// String 返回小写 base32 表示
func (v V96) String() string {
	return encodeVersioned(v.Payload[:], v.Version)
}

// ParseV96 从 base32 字符串解析 V96
func ParseV96(s string) (V96, error) {
	payload, version, err := decodeVersioned(s, 12)
	if err != nil {
		return V96{}, err
	}
	v := V96{Version: version}
	copy(v.Payload[:], payload)
	return v, nil
}

// V512 版本化 512 位值（签名宽度）
type V512 struct {
	Version uint32
	Payload [64]byte
}

// V512FromBytes 由字节切片构造 V512
func V512FromBytes(b []byte) (V512, error) {
	if len(b) != 64 {
		return V512{}, fmt.Errorf("%w: got %d bytes, want 64", ErrInvalidLength, len(b))
	}
	var v V512
	copy(v.Payload[:], b)
	return v, nil
}

// String 返回小写 base32 表示
func (v V512) String() string {
	return encodeVersioned(v.Payload[:], v.Version)
}

// ParseV512 从 base32 字符串解析 V512
func ParseV512(s string) (V512, error) {
	payload, version, err := decodeVersioned(s, 64)
	if err != nil {
		return V512{}, err
	}
	v := V512{Version: version}
	copy(v.Payload[:], payload)
	return v, nil
}

// ============================================================================
//                              VBytes
// ============================================================================

// VBytes 版本化变长字节，用于记录的 hash_seed 与 data
type VBytes struct {
	_       struct{} `cbor:",toarray"`
	Version uint32
	Bytes   []byte
}

// NewVBytes 以当前版本包装字节
func NewVBytes(b []byte) VBytes {
	return VBytes{Version: CurrentVersion, Bytes: b}
}

// String 返回小写 base32 表示
func (v VBytes) String() string {
	return encodeVersioned(v.Bytes, v.Version)
}

// Equal 版本与内容都相等
func (v VBytes) Equal(o VBytes) bool {
	return v.Version == o.Version && bytes.Equal(v.Bytes, o.Bytes)
}
