package noise

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/types"
)

// bindingPrefix 身份绑定签名前缀
const bindingPrefix = "subfield-noise-binding:"

// handshakeFrameMax Noise 握手消息上限
const handshakeFrameMax = 65535

// DefaultMaxMessageSize 默认单条消息明文上限
const DefaultMaxMessageSize = 1 << 20

// Conn 安全流所需的底层流能力
type Conn interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Hello 身份消息（握手消息 3 及其应答）
type Hello struct {
	PublicKey types.V256 `cbor:"public_key"`
	Signature []byte     `cbor:"signature"`
	Addrs     []string   `cbor:"addrs,omitempty"`
}

// SecureStream 已认证的加密消息流
type SecureStream struct {
	conn    Conn
	br      *bufio.Reader
	sess    *Session
	remote  types.PeerInfo
	maxSize int

	rmu    sync.Mutex
	wmu    sync.Mutex
	closed atomic.Bool
}

// Handshake 在流上完成握手与身份交换
//
// ctx 的截止时间作用于整个握手过程。失败时关闭 conn。
func Handshake(ctx context.Context, conn Conn, kp *crypto.Keypair, addrs []string, initiator bool, maxSize int) (*SecureStream, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
		defer conn.SetDeadline(time.Time{}) //nolint:errcheck
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	s, err := handshake(conn, kp, addrs, initiator, maxSize)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, handshakeErr("deadline", ctx.Err())
		}
		return nil, err
	}
	return s, nil
}

func handshake(conn Conn, kp *crypto.Keypair, addrs []string, initiator bool, maxSize int) (*SecureStream, error) {
	sess, err := NewSession(initiator)
	if err != nil {
		return nil, err
	}
	s := &SecureStream{conn: conn, br: bufio.NewReader(conn), sess: sess, maxSize: maxSize}

	if initiator {
		msg1, err := sess.WriteMessage(nil)
		if err != nil {
			return nil, err
		}
		if err := writeFrame(conn, msg1); err != nil {
			return nil, handshakeErr("send message 1", err)
		}
		msg2, err := readFrame(s.br, handshakeFrameMax)
		if err != nil {
			return nil, handshakeErr("receive message 2", err)
		}
		if _, err := sess.ReadMessage(msg2); err != nil {
			return nil, err
		}
		if err := s.sendHello(kp, addrs); err != nil {
			return nil, handshakeErr("send message 3", err)
		}
		if err := s.recvHello(); err != nil {
			return nil, err
		}
		return s, nil
	}

	msg1, err := readFrame(s.br, handshakeFrameMax)
	if err != nil {
		return nil, handshakeErr("receive message 1", err)
	}
	if _, err := sess.ReadMessage(msg1); err != nil {
		return nil, err
	}
	msg2, err := sess.WriteMessage(nil)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, msg2); err != nil {
		return nil, handshakeErr("send message 2", err)
	}
	if err := s.recvHello(); err != nil {
		return nil, err
	}
	if err := s.sendHello(kp, addrs); err != nil {
		return nil, handshakeErr("send hello", err)
	}
	return s, nil
}

func bindingPayload(hash []byte) []byte {
	return append([]byte(bindingPrefix), hash...)
}

func (s *SecureStream) sendHello(kp *crypto.Keypair, addrs []string) error {
	h := Hello{
		PublicKey: kp.ID(),
		Signature: kp.Sign(bindingPayload(s.sess.HandshakeHash())),
		Addrs:     addrs,
	}
	b, err := cbor.Marshal(&h)
	if err != nil {
		return err
	}
	return s.WriteMessage(b)
}

func (s *SecureStream) recvHello() error {
	b, err := s.ReadMessage()
	if err != nil {
		return handshakeErr("receive hello", err)
	}
	var h Hello
	if err := cbor.Unmarshal(b, &h); err != nil {
		return handshakeErr("decode hello", fmt.Errorf("%w: %v", types.ErrSerialization, err))
	}
	if err := crypto.VerifyErr(h.PublicKey, bindingPayload(s.sess.HandshakeHash()), h.Signature); err != nil {
		return handshakeErr("verify hello", err)
	}
	s.remote = types.PeerInfo{ID: h.PublicKey, Addrs: h.Addrs}
	return nil
}

// Remote 对端身份与其声明的监听地址
func (s *SecureStream) Remote() types.PeerInfo {
	return s.remote
}

// MaxMessageSize 单条消息明文上限
func (s *SecureStream) MaxMessageSize() int {
	return s.maxSize
}

// WriteMessage 加密并写出一条消息
//
// 超过上限的消息返回 ErrMessageTooLarge，流保持可用。
func (s *SecureStream) WriteMessage(msg []byte) error {
	if s.closed.Load() {
		return types.ErrPeerClosed
	}
	if len(msg) > s.maxSize {
		return fmt.Errorf("%w: %d > %d", types.ErrMessageTooLarge, len(msg), s.maxSize)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	ct, err := s.sess.EncryptRecord(msg)
	if err != nil {
		return err
	}
	if err := writeFrame(s.conn, ct); err != nil {
		_ = s.Close()
		return fmt.Errorf("%w: %v", types.ErrPeerClosed, err)
	}
	return nil
}

// ReadMessage 读取并解密下一条消息
//
// 帧错误与解密失败会关闭流。
func (s *SecureStream) ReadMessage() ([]byte, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	ct, err := readFrame(s.br, CiphertextLimit(s.maxSize))
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	msg, err := s.sess.DecryptRecord(ct)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return msg, nil
}

// Close 关闭底层流
func (s *SecureStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}

// IsClosed 是否已关闭
func (s *SecureStream) IsClosed() bool {
	return s.closed.Load()
}

// ============================================================================
// 帧读写
// ============================================================================

func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(payload)))+len(payload))
	buf = append(buf, varint.ToUvarint(uint64(len(payload)))...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

func readFrame(r *bufio.Reader, max int) ([]byte, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return nil, types.ErrPeerClosed
		}
		return nil, fmt.Errorf("%w: %v", types.ErrFraming, err)
	}
	if n > uint64(max) {
		return nil, fmt.Errorf("%w: frame %d > %d", types.ErrMessageTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrPeerClosed, err)
	}
	return buf, nil
}
