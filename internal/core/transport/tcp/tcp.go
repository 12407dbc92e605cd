// Package tcp 提供基于 TCP 的传输实现
package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/pkg/lib/log"
)

var logger = log.Logger("core/transport/tcp")

// Transport TCP 传输
type Transport struct {
	keepAlive time.Duration

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 TCP 传输
func New() *Transport {
	return &Transport{keepAlive: 30 * time.Second, listeners: make(map[*listener]struct{})}
}

// CanDial 纯 TCP 地址（不含 /ws）
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.HasProtocol(addr, ma.P_TCP) && !transport.HasProtocol(addr, ma.P_WS)
}

// Protocols 支持的协议
func (t *Transport) Protocols() []string {
	return []string{"tcp"}
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, addr ma.Multiaddr) (transport.Conn, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	network, host, err := manet.DialArgs(addr)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{KeepAlive: t.keepAlive}
	c, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	local, _ := manet.FromNetAddr(c.LocalAddr())
	return transport.WrapConn(c, local, addr), nil
}

// Listen 监听入站连接
func (t *Transport) Listen(addr ma.Multiaddr) (transport.Listener, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	network, host, err := manet.DialArgs(addr)
	if err != nil {
		return nil, err
	}
	nl, err := net.Listen(network, host)
	if err != nil {
		return nil, err
	}
	bound, err := manet.FromNetAddr(nl.Addr())
	if err != nil {
		_ = nl.Close()
		return nil, err
	}
	l := &listener{nl: nl, addr: bound, owner: t}
	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()
	logger.Debug("TCP 监听", "addr", bound.String())
	return l, nil
}

// Close 关闭所有监听器
func (t *Transport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	ls := make([]*listener, 0, len(t.listeners))
	for l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		_ = l.Close()
	}
	return nil
}

type listener struct {
	nl     net.Listener
	addr   ma.Multiaddr
	owner  *Transport
	closed atomic.Bool
}

func (l *listener) Accept() (transport.Conn, error) {
	c, err := l.nl.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}
	remote, err := manet.FromNetAddr(c.RemoteAddr())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return transport.WrapConn(c, l.addr, remote), nil
}

func (l *listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

func (l *listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.owner.mu.Lock()
	delete(l.owner.listeners, l)
	l.owner.mu.Unlock()
	return l.nl.Close()
}
