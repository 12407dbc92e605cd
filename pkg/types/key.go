package types

import (
	"fmt"

	"lukechampine.com/blake3"
)

// ============================================================================
//                              RoutingField
// ============================================================================

// RoutingField 复合键字段标签
type RoutingField uint8

const (
	// FieldSigner 作者公钥字段
	FieldSigner RoutingField = iota
	// FieldCosigner 协签字段
	FieldCosigner
	// FieldTangent 切面字段
	FieldTangent
)

// AllFields 扇出顺序
var AllFields = [3]RoutingField{FieldSigner, FieldCosigner, FieldTangent}

// String 返回字段名
func (f RoutingField) String() string {
	switch f {
	case FieldSigner:
		return "signer"
	case FieldCosigner:
		return "cosigner"
	case FieldTangent:
		return "tangent"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Valid 检查标签是否已定义
func (f RoutingField) Valid() bool {
	return f <= FieldTangent
}

// ============================================================================
//                              CompleteKey
// ============================================================================

// CompleteKey 三字段复合键，所有字段必须存在
type CompleteKey struct {
	Signer   Field `cbor:"signer"`
	Cosigner Field `cbor:"cosigner"`
	Tangent  Field `cbor:"tangent"`
}

// Field 返回指定标签的字段
func (k CompleteKey) Field(f RoutingField) Field {
	switch f {
	case FieldCosigner:
		return k.Cosigner
	case FieldTangent:
		return k.Tangent
	default:
		return k.Signer
	}
}

// Partial 转换为所有字段都存在的部分键
func (k CompleteKey) Partial() PartialKey {
	s, c, t := k.Signer, k.Cosigner, k.Tangent
	return PartialKey{Signer: &s, Cosigner: &c, Tangent: &t}
}

// Hash 复合键哈希
func (k CompleteKey) Hash() V256 {
	return k.Partial().Hash()
}

// RoutingKey 构造以指定字段路由的路由键
func (k CompleteKey) RoutingKey(f RoutingField) RoutingKey {
	return RoutingKey{Field: f, Key: k.Partial()}
}

// RoutingKeys 返回三个扇出目标
func (k CompleteKey) RoutingKeys() [3]RoutingKey {
	var out [3]RoutingKey
	for i, f := range AllFields {
		out[i] = k.RoutingKey(f)
	}
	return out
}

// String 返回 signer/cosigner/tangent 形式
func (k CompleteKey) String() string {
	return k.Signer.String() + "/" + k.Cosigner.String() + "/" + k.Tangent.String()
}

// CompleteKeyFromPartial 部分键所有字段都存在时转换为完整键
func CompleteKeyFromPartial(p PartialKey) (CompleteKey, error) {
	if p.Signer == nil || p.Cosigner == nil || p.Tangent == nil {
		return CompleteKey{}, ErrIncompleteKey
	}
	return CompleteKey{Signer: *p.Signer, Cosigner: *p.Cosigner, Tangent: *p.Tangent}, nil
}

// ============================================================================
//                              PartialKey
// ============================================================================

// PartialKey 部分键，至少一个字段存在
type PartialKey struct {
	Signer   *Field `cbor:"signer,omitempty"`
	Cosigner *Field `cbor:"cosigner,omitempty"`
	Tangent  *Field `cbor:"tangent,omitempty"`
}

// Get 返回指定字段，缺失时 ok 为 false
func (p PartialKey) Get(f RoutingField) (Field, bool) {
	var ptr *Field
	switch f {
	case FieldSigner:
		ptr = p.Signer
	case FieldCosigner:
		ptr = p.Cosigner
	case FieldTangent:
		ptr = p.Tangent
	}
	if ptr == nil {
		return Field{}, false
	}
	return *ptr, true
}

// Validate 至少一个字段存在
func (p PartialKey) Validate() error {
	if p.Signer == nil && p.Cosigner == nil && p.Tangent == nil {
		return ErrEmptyKey
	}
	return nil
}

// Matches 报告完整键是否与所有已存在字段相等
func (p PartialKey) Matches(k CompleteKey) bool {
	for _, f := range AllFields {
		if v, ok := p.Get(f); ok && v != k.Field(f) {
			return false
		}
	}
	return true
}

// HashConcat 按 signer||cosigner||tangent 拼接 payload，缺失字段以 32 字节零填充
func (p PartialKey) HashConcat() []byte {
	buf := make([]byte, 0, 96)
	for _, f := range AllFields {
		v, _ := p.Get(f)
		buf = append(buf, v.Payload[:]...)
	}
	return buf
}

// Hash 部分键哈希
func (p PartialKey) Hash() V256 {
	return NewV256(blake3.Sum256(p.HashConcat()))
}

// subset 按位掩码选取字段（bit0=signer, bit1=cosigner, bit2=tangent）
func (p PartialKey) subset(mask int) PartialKey {
	var out PartialKey
	if mask&1 != 0 {
		out.Signer = p.Signer
	}
	if mask&2 != 0 {
		out.Cosigner = p.Cosigner
	}
	if mask&4 != 0 {
		out.Tangent = p.Tangent
	}
	return out
}

// HashCombinations 枚举已存在字段的所有非空子集的哈希
//
// 完整键产生 7 个不同的哈希。
func (p PartialKey) HashCombinations() []V256 {
	out := make([]V256, 0, 7)
	for mask := 1; mask < 8; mask++ {
		// 子集中有字段缺失于 p 时跳过，避免重复
		if (mask&1 != 0 && p.Signer == nil) ||
			(mask&2 != 0 && p.Cosigner == nil) ||
			(mask&4 != 0 && p.Tangent == nil) {
			continue
		}
		out = append(out, p.subset(mask).Hash())
	}
	return out
}

// ============================================================================
//                              RoutingKey
// ============================================================================

// RoutingKey 标记了路由字段的部分键视图
type RoutingKey struct {
	Field RoutingField `cbor:"field"`
	Key   PartialKey   `cbor:"key"`
}

// NewRoutingKey 构造路由键，标记字段必须存在
func NewRoutingKey(f RoutingField, key PartialKey) (RoutingKey, error) {
	rk := RoutingKey{Field: f, Key: key}
	if _, err := rk.RoutingField(); err != nil {
		return RoutingKey{}, err
	}
	return rk, nil
}

// RoutingField 返回承担路由职责的字段
func (r RoutingKey) RoutingField() (Field, error) {
	if !r.Field.Valid() {
		return Field{}, fmt.Errorf("%w: unknown tag %d", ErrMissingField, r.Field)
	}
	v, ok := r.Key.Get(r.Field)
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrMissingField, r.Field)
	}
	return v, nil
}

// String 返回 field:hash 形式
func (r RoutingKey) String() string {
	return r.Field.String() + ":" + r.Key.Hash().ShortString()
}
