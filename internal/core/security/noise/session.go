package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"

	"github.com/dep2p/go-subfield/pkg/types"
)

// 分块常量
const (
	// ChunkPlaintext 每块明文长度
	ChunkPlaintext = 1008
	// TagSize AEAD 标签长度
	TagSize = 16
	// ChunkCiphertext 每块密文长度
	ChunkCiphertext = ChunkPlaintext + TagSize
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// Session Noise_NN 握手状态机与传输密码
//
// 握手期间只能由单个 goroutine 驱动；进入传输模式后，
// EncryptRecord 与 DecryptRecord 可分别由写、读 goroutine 并发调用。
type Session struct {
	hs        *noise.HandshakeState
	initiator bool
	step      int

	send *noise.CipherState
	recv *noise.CipherState
	hash []byte
}

// NewSession 创建新的 NN 会话
func NewSession(initiator bool) (*Session, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNN,
		Initiator:   initiator,
	})
	if err != nil {
		return nil, handshakeErr("init", err)
	}
	return &Session{hs: hs, initiator: initiator}, nil
}

// Initiator 是否为发起者
func (s *Session) Initiator() bool {
	return s.initiator
}

// Done 是否已进入传输模式
func (s *Session) Done() bool {
	return s.send != nil
}

// HandshakeHash 握手完成后的通道绑定值
func (s *Session) HandshakeHash() []byte {
	return s.hash
}

// WriteMessage 写出下一条握手消息
func (s *Session) WriteMessage(payload []byte) ([]byte, error) {
	if s.Done() {
		return nil, handshakeErr("write", errors.New("handshake already complete"))
	}
	if s.initiator != (s.step%2 == 0) {
		return nil, handshakeErr("write", fmt.Errorf("not our turn at step %d", s.step+1))
	}
	msg, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, handshakeErr(fmt.Sprintf("write message %d", s.step+1), err)
	}
	s.step++
	s.finish(cs1, cs2)
	return msg, nil
}

// ReadMessage 读入对端握手消息
func (s *Session) ReadMessage(msg []byte) ([]byte, error) {
	if s.Done() {
		return nil, handshakeErr("read", errors.New("handshake already complete"))
	}
	if s.initiator == (s.step%2 == 0) {
		return nil, handshakeErr("read", fmt.Errorf("not their turn at step %d", s.step+1))
	}
	payload, cs1, cs2, err := s.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, handshakeErr(fmt.Sprintf("read message %d", s.step+1), err)
	}
	s.step++
	s.finish(cs1, cs2)
	return payload, nil
}

// finish cs1 为发起者到响应者方向，cs2 为反方向
func (s *Session) finish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	if s.initiator {
		s.send, s.recv = cs1, cs2
	} else {
		s.send, s.recv = cs2, cs1
	}
	s.hash = s.hs.ChannelBinding()
}

// EncryptRecord 分块加密任意长度消息
//
// 空消息加密为单个仅含标签的块。
func (s *Session) EncryptRecord(plaintext []byte) ([]byte, error) {
	if !s.Done() {
		return nil, fmt.Errorf("%w: handshake incomplete", types.ErrFailedToEncrypt)
	}
	chunks := (len(plaintext) + ChunkPlaintext - 1) / ChunkPlaintext
	if chunks == 0 {
		chunks = 1
	}
	out := make([]byte, 0, len(plaintext)+chunks*TagSize)
	for i := 0; i < chunks; i++ {
		end := (i + 1) * ChunkPlaintext
		if end > len(plaintext) {
			end = len(plaintext)
		}
		var err error
		out, err = s.send.Encrypt(out, nil, plaintext[i*ChunkPlaintext:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrFailedToEncrypt, err)
		}
	}
	return out, nil
}

// DecryptRecord 分块解密
func (s *Session) DecryptRecord(ciphertext []byte) ([]byte, error) {
	if !s.Done() {
		return nil, fmt.Errorf("%w: handshake incomplete", types.ErrFailedToDecrypt)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", types.ErrFailedToDecrypt)
	}
	out := make([]byte, 0, len(ciphertext))
	for off := 0; off < len(ciphertext); off += ChunkCiphertext {
		end := off + ChunkCiphertext
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		if end-off < TagSize {
			return nil, fmt.Errorf("%w: short chunk", types.ErrFailedToDecrypt)
		}
		var err error
		out, err = s.recv.Decrypt(out, nil, ciphertext[off:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrFailedToDecrypt, err)
		}
	}
	return out, nil
}

// CiphertextLimit 明文上限对应的密文帧上限
func CiphertextLimit(maxPlaintext int) int {
	chunks := (maxPlaintext + ChunkPlaintext - 1) / ChunkPlaintext
	if chunks == 0 {
		chunks = 1
	}
	return maxPlaintext + chunks*TagSize
}
