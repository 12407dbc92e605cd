package types

import "errors"

// ============================================================================
//                              编码错误
// ============================================================================

var (
	// ErrInvalidBase32 base32 字符串无法解码
	ErrInvalidBase32 = errors.New("encoding: invalid base32")

	// ErrInvalidLength 字节长度与声明宽度不符
	ErrInvalidLength = errors.New("encoding: invalid length")

	// ErrInvalidVersion 未知的版本标签
	ErrInvalidVersion = errors.New("encoding: unknown version")
)

// ============================================================================
//                              密码学错误
// ============================================================================

var (
	// ErrInvalidSignature 签名校验失败
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrInvalidKey 密钥格式错误
	ErrInvalidKey = errors.New("crypto: invalid key")

	// ErrFailedToEncrypt AEAD 加密失败
	ErrFailedToEncrypt = errors.New("crypto: failed to encrypt")

	// ErrFailedToDecrypt AEAD 解密失败
	ErrFailedToDecrypt = errors.New("crypto: failed to decrypt")

	// ErrHandshake 握手失败
	ErrHandshake = errors.New("crypto: handshake failed")
)

// ============================================================================
//                              键错误
// ============================================================================

var (
	// ErrEmptyKey 部分键没有任何字段
	ErrEmptyKey = errors.New("key: no field present")

	// ErrIncompleteKey 需要完整键但缺少字段
	ErrIncompleteKey = errors.New("key: incomplete key")

	// ErrMissingField 路由键缺少其标记的字段
	ErrMissingField = errors.New("key: routing field missing")

	// ErrKeypairNotSigner 记录的 signer 与声明的签名者不一致
	ErrKeypairNotSigner = errors.New("key: keypair is not the signer")

	// ErrKeyMismatch 路由键字段与记录键不一致
	ErrKeyMismatch = errors.New("key: key mismatch")
)

// ============================================================================
//                              记录错误
// ============================================================================

var (
	// ErrSerialization 记录或消息反序列化失败
	ErrSerialization = errors.New("record: serialization error")

	// ErrOutdated 记录不比已存储的版本新
	ErrOutdated = errors.New("record: outdated")

	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record: not found")
)

// ============================================================================
//                              路由错误
// ============================================================================

var (
	// ErrNoRoute 没有可用路由
	ErrNoRoute = errors.New("routing: no route")

	// ErrHopLimit 跳数耗尽
	ErrHopLimit = errors.New("routing: hop limit exhausted")

	// ErrSelfIsClosest 本节点即最近节点（内部使用）
	ErrSelfIsClosest = errors.New("routing: self is closest")
)

// ============================================================================
//                              传输错误
// ============================================================================

var (
	// ErrStreamOpen 打开流失败
	ErrStreamOpen = errors.New("transport: stream open failed")

	// ErrFraming 帧格式错误
	ErrFraming = errors.New("transport: framing error")

	// ErrMessageTooLarge 消息超过最大长度
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrPeerClosed 对端已关闭
	ErrPeerClosed = errors.New("transport: peer closed")
)

// ============================================================================
//                              资源错误
// ============================================================================

var (
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("resource: timeout")

	// ErrOverloaded 出站队列溢出
	ErrOverloaded = errors.New("resource: overloaded")

	// ErrSubscriberSlow 订阅者消费过慢
	ErrSubscriberSlow = errors.New("resource: subscriber slow")
)
