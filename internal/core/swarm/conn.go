package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-subfield/internal/core/muxer"
	"github.com/dep2p/go-subfield/internal/core/muxer/yamux"
	"github.com/dep2p/go-subfield/internal/core/security/noise"
	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

// Conn 到单个对端的已认证连接
type Conn struct {
	swarm    *Swarm
	raw      transport.Conn
	session  muxer.Session
	secure   *noise.SecureStream
	remote   types.PeerInfo
	outbound bool
	rtt      time.Duration
	opened   time.Time

	queue      *outQueue
	lastActive atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
	retired   atomic.Bool
}

// Remote 对端信息
func (c *Conn) Remote() types.PeerInfo {
	return c.remote
}

// RemoteMultiaddr 底层连接的对端地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr {
	return c.raw.RemoteMultiaddr()
}

// Outbound 是否由本地发起
func (c *Conn) Outbound() bool {
	return c.outbound
}

// initiator 发起方 ID
func (c *Conn) initiator() types.V256 {
	if c.outbound {
		return c.swarm.local
	}
	return c.remote.ID
}

func (c *Conn) touch() {
	c.lastActive.Store(c.swarm.clk.Now().UnixNano())
}

func (c *Conn) idleSince() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// upgrade 在原始连接上建立多路复用会话与安全流
func (s *Swarm) upgrade(ctx context.Context, raw transport.Conn, outbound bool) (*Conn, error) {
	var (
		sess   *yamux.Session
		stream muxer.Stream
		err    error
	)
	if outbound {
		if sess, err = yamux.Client(raw, nil); err != nil {
			_ = raw.Close()
			return nil, err
		}
		stream, err = sess.OpenStream(ctx)
	} else {
		if sess, err = yamux.Server(raw, nil); err != nil {
			_ = raw.Close()
			return nil, err
		}
		stream, err = acceptStream(ctx, sess)
	}
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	secure, err := noise.Handshake(ctx, stream, s.kp, s.advertised(), outbound, s.cfg.MaxMessageSize)
	if err != nil {
		_ = sess.Close()
		return nil, err
	}

	rtt, err := sess.Ping()
	if err != nil {
		_ = secure.Close()
		_ = sess.Close()
		return nil, fmt.Errorf("ping after handshake: %w", err)
	}

	remote := secure.Remote()
	if len(remote.Addrs) == 0 && outbound {
		remote.Addrs = []string{raw.RemoteMultiaddr().String()}
	}

	c := &Conn{
		swarm:    s,
		raw:      raw,
		session:  sess,
		secure:   secure,
		remote:   remote,
		outbound: outbound,
		rtt:      rtt,
		opened:   s.clk.Now(),
		queue:    newOutQueue(s.cfg.QueueSize),
		closed:   make(chan struct{}),
	}
	c.touch()
	return c, nil
}

// acceptStream 等待对端打开第一条流
func acceptStream(ctx context.Context, sess *yamux.Session) (muxer.Stream, error) {
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()
	st, err := sess.AcceptStream()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStreamOpen, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", types.ErrStreamOpen, err)
	}
	return st, nil
}

// start 启动读写 goroutine
func (c *Conn) start() {
	c.swarm.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	go func() {
		select {
		case <-c.session.CloseChan():
			c.close(types.ErrPeerClosed)
		case <-c.closed:
		}
	}()
}

func (c *Conn) readLoop() {
	defer c.swarm.wg.Done()
	for {
		data, err := c.secure.ReadMessage()
		if err != nil {
			c.close(err)
			return
		}
		c.touch()
		if c.swarm.bw != nil {
			c.swarm.bw.LogRecv(c.remote.ID, len(data))
		}
		select {
		case c.swarm.inbound <- Message{From: c.remote.ID, Data: data}:
		case <-c.closed:
			return
		case <-c.swarm.done:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.swarm.wg.Done()
	for {
		select {
		case <-c.queue.signal:
		case <-c.closed:
			return
		}
		for {
			o, ok := c.queue.pop()
			if !ok {
				break
			}
			if err := c.secure.WriteMessage(o.Data); err != nil {
				if errors.Is(err, types.ErrMessageTooLarge) {
					logger.Warn("丢弃超长消息", "peer", log.TruncateID(c.remote.ID.String(), 8), "size", len(o.Data))
					continue
				}
				c.close(err)
				return
			}
			c.touch()
			if c.swarm.bw != nil {
				c.swarm.bw.LogSent(c.remote.ID, len(o.Data))
			}
		}
	}
}

// close 关闭连接并从 Swarm 注销
func (c *Conn) close(reason error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.queue.close()
		_ = c.secure.Close()
		_ = c.session.Close()
		_ = c.raw.Close()
		c.swarm.removeConn(c, reason)
	})
}

// retire 被重复连接替换后关闭，剩余消息由调用方转移
func (c *Conn) retire() []Outgoing {
	c.retired.Store(true)
	rest := c.queue.close()
	c.close(nil)
	return rest
}
