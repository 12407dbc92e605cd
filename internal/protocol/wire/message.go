package wire

import (
	"fmt"

	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// RequestType 请求类型
type RequestType uint8

// 请求类型
const (
	TypeEcho RequestType = iota + 1
	TypePing
	TypePutRecord
	TypeGetRecord
	TypeDeleteRecord
	TypeSubscribe
	TypeUnsubscribe
	TypeFindClosest
)

func (t RequestType) String() string {
	switch t {
	case TypeEcho:
		return "echo"
	case TypePing:
		return "ping"
	case TypePutRecord:
		return "put-record"
	case TypeGetRecord:
		return "get-record"
	case TypeDeleteRecord:
		return "delete-record"
	case TypeSubscribe:
		return "subscribe"
	case TypeUnsubscribe:
		return "unsubscribe"
	case TypeFindClosest:
		return "find-closest"
	default:
		return fmt.Sprintf("request(%d)", uint8(t))
	}
}

// Keyed 报告该类型是否由 RoutingKey 路由
func (t RequestType) Keyed() bool {
	switch t {
	case TypePutRecord, TypeGetRecord, TypeDeleteRecord, TypeSubscribe, TypeUnsubscribe:
		return true
	}
	return false
}

// Routed 报告该类型是否逐跳转发
//
// Unsubscribe 由直接收到对应 Subscribe 的节点处理，FindClosest 由接收方应答。
func (t RequestType) Routed() bool {
	return t != TypeFindClosest && t != TypeUnsubscribe
}

// Kind 信封类型
type Kind uint8

// 信封类型
const (
	KindRequest Kind = iota + 1
	KindResponse
	KindPublish
)

// Envelope 安全流上的一条消息
type Envelope struct {
	ID       uint64    `cbor:"id"`
	Kind     Kind      `cbor:"kind"`
	Request  *Request  `cbor:"request,omitempty"`
	Response *Response `cbor:"response,omitempty"`
}

// Request 请求
type Request struct {
	Type RequestType `cbor:"type"`
	Hops uint8       `cbor:"hops"`

	// RoutingKey 记录类请求的路由键
	RoutingKey *types.RoutingKey `cbor:"routing_key,omitempty"`

	// Target Echo、Ping、FindClosest 的目标
	Target *types.V256 `cbor:"target,omitempty"`

	Message   string         `cbor:"message,omitempty"`
	Timestamp int64          `cbor:"timestamp,omitempty"`
	Record    *record.Signed `cbor:"record,omitempty"`

	// Tombstone 作者签名的删除标记
	Tombstone *record.Tombstone `cbor:"tombstone,omitempty"`

	// SubscriptionID Unsubscribe 指向的 Subscribe 请求 ID
	SubscriptionID uint64 `cbor:"subscription_id,omitempty"`

	// Count FindClosest 返回的节点数
	Count int `cbor:"count,omitempty"`
}

// Response 响应
type Response struct {
	Type    RequestType `cbor:"type"`
	OK      bool        `cbor:"ok"`
	Failure FailureKind `cbor:"failure,omitempty"`
	Detail  string      `cbor:"detail,omitempty"`

	Message    string            `cbor:"message,omitempty"`
	Timestamp  int64             `cbor:"timestamp,omitempty"`
	Record     *record.Signed    `cbor:"record,omitempty"`
	RoutingKey *types.RoutingKey `cbor:"routing_key,omitempty"`
	Peers      []types.PeerInfo  `cbor:"peers,omitempty"`
}

// Success 构造成功响应
func Success(t RequestType) *Response {
	return &Response{Type: t, OK: true}
}

// Failure 由本地错误构造失败响应
func Failure(t RequestType, err error) *Response {
	return &Response{Type: t, Failure: FailureFor(err), Detail: err.Error()}
}

// Err 失败响应转为错误，成功时返回 nil
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	kind := r.Failure
	if kind == FailureNone {
		kind = FailureInternal
	}
	return &RemoteError{Type: r.Type, Kind: kind, Detail: r.Detail}
}

// Key 返回请求的路由目标
func (r *Request) Key() (types.V256, error) {
	if r.Type.Keyed() {
		if r.RoutingKey == nil {
			return types.V256{}, fmt.Errorf("%w: routing key", types.ErrMissingField)
		}
		return r.RoutingKey.RoutingField()
	}
	if r.Target == nil {
		return types.V256{}, fmt.Errorf("%w: target", types.ErrMissingField)
	}
	return *r.Target, nil
}

// Validate 检查请求的必需字段
func (r *Request) Validate() error {
	if _, err := r.Key(); err != nil {
		return err
	}
	switch r.Type {
	case TypeEcho, TypePing, TypeGetRecord, TypeSubscribe, TypeUnsubscribe:
	case TypePutRecord:
		if r.Record == nil {
			return fmt.Errorf("%w: record", types.ErrMissingField)
		}
	case TypeDeleteRecord:
		if r.Tombstone == nil || len(r.Tombstone.Signature) == 0 {
			return fmt.Errorf("%w: tombstone", types.ErrMissingField)
		}
		if _, err := types.CompleteKeyFromPartial(r.RoutingKey.Key); err != nil {
			return err
		}
	case TypeFindClosest:
		if r.Count <= 0 {
			return fmt.Errorf("%w: count", types.ErrMissingField)
		}
	default:
		return fmt.Errorf("%w: unknown request type %d", types.ErrSerialization, r.Type)
	}
	return nil
}

// Clone 返回可独立修改 Hops 的副本
func (r *Request) Clone() *Request {
	cp := *r
	return &cp
}

// Encode 编码信封
func Encode(env *Envelope) ([]byte, error) {
	return record.Marshal(env)
}

// Decode 解码信封
func Decode(b []byte) (*Envelope, error) {
	var env Envelope
	if err := record.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindRequest:
		if env.Request == nil {
			return nil, fmt.Errorf("%w: request envelope without request", types.ErrSerialization)
		}
	case KindResponse, KindPublish:
		if env.Response == nil {
			return nil, fmt.Errorf("%w: response envelope without response", types.ErrSerialization)
		}
	default:
		return nil, fmt.Errorf("%w: unknown envelope kind %d", types.ErrSerialization, env.Kind)
	}
	return &env, nil
}
