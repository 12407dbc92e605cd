// Package websocket 提供基于 WebSocket 的传输实现
//
// 地址格式 /ip4/<ip>/tcp/<port>/ws，每个 WebSocket 二进制消息承载一段字节流。
package websocket

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/pkg/lib/log"
)

var logger = log.Logger("core/transport/websocket")

var wsComponent = ma.StringCast("/ws")

// Transport WebSocket 传输
type Transport struct {
	dialer   *ws.Dialer
	upgrader ws.Upgrader

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

// New 创建 WebSocket 传输
func New() *Transport {
	return &Transport{
		dialer: &ws.Dialer{HandshakeTimeout: 10 * time.Second},
		upgrader: ws.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		listeners: make(map[*listener]struct{}),
	}
}

// CanDial 以 /tcp/<port>/ws 结尾的地址
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.HasProtocol(addr, ma.P_TCP) && transport.HasProtocol(addr, ma.P_WS)
}

// Protocols 支持的协议
func (t *Transport) Protocols() []string {
	return []string{"ws"}
}

// Dial 建立出站连接
func (t *Transport) Dial(ctx context.Context, addr ma.Multiaddr) (transport.Conn, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	_, host, err := manet.DialArgs(addr.Decapsulate(wsComponent))
	if err != nil {
		return nil, err
	}
	c, _, err := t.dialer.DialContext(ctx, "ws://"+host+"/", nil)
	if err != nil {
		return nil, err
	}
	nc := newConn(c)
	local, _ := manet.FromNetAddr(c.LocalAddr())
	if local != nil {
		local = local.Encapsulate(wsComponent)
	}
	return transport.WrapConn(nc, local, addr), nil
}

// Listen 在 TCP 端口上提供 WebSocket 升级
func (t *Transport) Listen(addr ma.Multiaddr) (transport.Listener, error) {
	if t.closed.Load() {
		return nil, transport.ErrClosed
	}
	network, host, err := manet.DialArgs(addr.Decapsulate(wsComponent))
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
	l := &listener{
		owner:    t,
		addr:     bound.Encapsulate(wsComponent),
		incoming: make(chan transport.Conn),
		done:     make(chan struct{}),
	}
	l.srv = &http.Server{Handler: l, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("WebSocket 服务退出", "addr", l.addr.String(), "err", err)
		}
	}()

	t.mu.Lock()
	t.listeners[l] = struct{}{}
	t.mu.Unlock()
	logger.Debug("WebSocket 监听", "addr", l.addr.String())
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

// ============================================================================
//                              listener
// ============================================================================

type listener struct {
	owner    *Transport
	srv      *http.Server
	addr     ma.Multiaddr
	incoming chan transport.Conn
	done     chan struct{}
	once     sync.Once
}

func (l *listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := l.owner.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	remote, _ := manet.FromNetAddr(c.RemoteAddr())
	if remote != nil {
		remote = remote.Encapsulate(wsComponent)
	}
	select {
	case l.incoming <- transport.WrapConn(newConn(c), l.addr, remote):
	case <-l.done:
		_ = c.Close()
	}
}

func (l *listener) Accept() (transport.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.done:
		return nil, transport.ErrClosed
	}
}

func (l *listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

func (l *listener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.srv.Close()
		l.owner.mu.Lock()
		delete(l.owner.listeners, l)
		l.owner.mu.Unlock()
	})
	return err
}

// ============================================================================
//                              conn
// ============================================================================

// conn 将消息式 WebSocket 适配为字节流
type conn struct {
	ws     *ws.Conn
	reader io.Reader
	rmu    sync.Mutex
	wmu    sync.Mutex
}

func newConn(c *ws.Conn) *conn {
	return &conn{ws: c}
}

func (c *conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if ws.IsCloseError(err, ws.CloseNormalClosure) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != ws.BinaryMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(ws.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *conn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}

func (c *conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
