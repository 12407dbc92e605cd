package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize ChaCha20-Poly1305 nonce 长度
const NonceSize = chacha20poly1305.NonceSize

// Overhead AEAD 标签长度
const Overhead = chacha20poly1305.Overhead

// Encrypt 加密消息，输出 nonce || ciphertext，nonce 每次随机采样
func Encrypt(key, msg []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, newError("encrypt", ErrFailedToEncrypt, err)
	}
	out := make([]byte, NonceSize, NonceSize+len(msg)+Overhead)
	if _, err := rand.Read(out); err != nil {
		return nil, newError("encrypt", ErrFailedToEncrypt, err)
	}
	return aead.Seal(out, out[:NonceSize], msg, nil), nil
}

// Decrypt 解密 nonce || ciphertext
func Decrypt(key, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, newError("decrypt", ErrFailedToDecrypt, err)
	}
	if len(data) < NonceSize+Overhead {
		return nil, newError("decrypt", ErrFailedToDecrypt, errors.New("ciphertext too short"))
	}
	msg, err := aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, newError("decrypt", ErrFailedToDecrypt, err)
	}
	return msg, nil
}
