package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	ma "github.com/multiformats/go-multiaddr"
)

// ErrNoTransport 没有可处理该地址的传输
var ErrNoTransport = errors.New("transport: no transport for address")

// ErrClosed 传输已关闭
var ErrClosed = errors.New("transport: closed")

// Conn 原始连接
type Conn interface {
	net.Conn
	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr
}

// Listener 监听器
type Listener interface {
	Accept() (Conn, error)
	Multiaddr() ma.Multiaddr
	Close() error
}

// Transport 传输接口
type Transport interface {
	Dial(ctx context.Context, addr ma.Multiaddr) (Conn, error)
	Listen(addr ma.Multiaddr) (Listener, error)
	CanDial(addr ma.Multiaddr) bool
	Protocols() []string
	Close() error
}

// conn 为 net.Conn 附加 multiaddr
type conn struct {
	net.Conn
	local, remote ma.Multiaddr
}

func (c *conn) LocalMultiaddr() ma.Multiaddr  { return c.local }
func (c *conn) RemoteMultiaddr() ma.Multiaddr { return c.remote }

// WrapConn 包装 net.Conn
func WrapConn(c net.Conn, local, remote ma.Multiaddr) Conn {
	return &conn{Conn: c, local: local, remote: remote}
}

// Set 按注册顺序选择传输
type Set []Transport

// For 返回第一个能处理 addr 的传输
func (s Set) For(addr ma.Multiaddr) (Transport, error) {
	for _, t := range s {
		if t.CanDial(addr) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, addr)
}

// Dial 使用匹配的传输拨号
func (s Set) Dial(ctx context.Context, addr ma.Multiaddr) (Conn, error) {
	t, err := s.For(addr)
	if err != nil {
		return nil, err
	}
	return t.Dial(ctx, addr)
}

// Listen 使用匹配的传输监听
func (s Set) Listen(addr ma.Multiaddr) (Listener, error) {
	t, err := s.For(addr)
	if err != nil {
		return nil, err
	}
	return t.Listen(addr)
}

// Close 关闭所有传输
func (s Set) Close() error {
	var errs []error
	for _, t := range s {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HasProtocol 报告地址是否包含指定协议
func HasProtocol(addr ma.Multiaddr, code int) bool {
	for _, p := range addr.Protocols() {
		if p.Code == code {
			return true
		}
	}
	return false
}
