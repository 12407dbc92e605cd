package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

var logger = log.Logger("core/swarm")

// EventKind 连接事件类型
type EventKind uint8

const (
	// PeerConnected 新的对端连接就绪
	PeerConnected EventKind = iota + 1

	// PeerDisconnected 对端连接关闭
	PeerDisconnected
)

// Event 连接事件
type Event struct {
	Kind     EventKind
	Peer     types.PeerInfo
	RTT      time.Duration
	Outbound bool
	Err      error
}

// Message 入站消息
type Message struct {
	From types.V256
	Data []byte
}

// Swarm 连接群管理
type Swarm struct {
	kp         *crypto.Keypair
	local      types.V256
	cfg        Config
	transports transport.Set
	clk        clock.Clock
	bw         *metrics.Bandwidth
	limiter    *rate.Limiter
	dials      singleflight.Group

	mu        sync.RWMutex
	conns     map[types.V256]*Conn
	listeners []transport.Listener

	inbound chan Message
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New 创建 Swarm
func New(kp *crypto.Keypair, transports transport.Set, cfg Config, opts ...Option) (*Swarm, error) {
	if kp == nil {
		return nil, fmt.Errorf("%w: keypair is nil", ErrInvalidConfig)
	}
	if len(transports) == 0 {
		return nil, fmt.Errorf("%w: no transports", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Swarm{
		kp:         kp,
		local:      kp.ID(),
		cfg:        cfg,
		transports: transports,
		clk:        clock.New(),
		limiter:    cfg.limiter(),
		conns:      make(map[types.V256]*Conn),
		inbound:    make(chan Message, cfg.InboundBuffer),
		events:     make(chan Event, cfg.EventBuffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LocalPeer 本地节点 ID
func (s *Swarm) LocalPeer() types.V256 {
	return s.local
}

// Inbound 入站消息
func (s *Swarm) Inbound() <-chan Message {
	return s.inbound
}

// Events 连接事件
func (s *Swarm) Events() <-chan Event {
	return s.events
}

func (s *Swarm) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ============================================================================
//                              监听
// ============================================================================

// Listen 监听指定地址，至少一个成功即返回 nil
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if len(addrs) == 0 {
		return ErrNoAddresses
	}

	var errs []error
	for _, addr := range addrs {
		l, err := s.transports.Listen(addr)
		if err != nil {
			logger.Warn("监听地址失败", "addr", addr.String(), "error", err)
			errs = append(errs, fmt.Errorf("listen %s: %w", addr, err))
			continue
		}
		s.mu.Lock()
		s.listeners = append(s.listeners, l)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.acceptLoop(l)
		logger.Info("监听成功", "addr", l.Multiaddr().String())
	}

	if len(errs) == len(addrs) {
		return errors.Join(errs...)
	}
	return nil
}

// ListenAddrs 监听地址，未指定的 IP 展开为本机接口地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	bound := make([]ma.Multiaddr, 0, len(s.listeners))
	for _, l := range s.listeners {
		bound = append(bound, l.Multiaddr())
	}
	s.mu.RUnlock()

	ifaces, err := manet.InterfaceMultiaddrs()
	if err != nil {
		return bound
	}
	resolved, err := manet.ResolveUnspecifiedAddresses(bound, ifaces)
	if err != nil {
		return bound
	}
	return resolved
}

// advertised 握手中通告的地址
func (s *Swarm) advertised() []string {
	addrs := s.ListenAddrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func (s *Swarm) acceptLoop(l transport.Listener) {
	defer s.wg.Done()
	for {
		raw, err := l.Accept()
		if err != nil {
			if !s.closed.Load() {
				logger.Warn("接受连接失败，停止监听", "addr", l.Multiaddr().String(), "error", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleInbound(raw)
		}()
	}
}

func (s *Swarm) handleInbound(raw transport.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	c, err := s.upgrade(ctx, raw, false)
	if err != nil {
		logger.Debug("入站连接升级失败", "remote", raw.RemoteMultiaddr().String(), "error", err)
		return
	}
	if c.remote.ID == s.local {
		c.close(ErrDialToSelf)
		return
	}
	if _, err := s.addConn(c); err != nil {
		logger.Debug("入站连接注册失败", "error", err)
	}
}

// ============================================================================
//                              拨号
// ============================================================================

// Connect 拨号到地址，返回对端信息
//
// 对端身份由握手确定。已有到同一对端的连接时保留其中一条。
func (s *Swarm) Connect(ctx context.Context, addr ma.Multiaddr) (types.PeerInfo, error) {
	if s.closed.Load() {
		return types.PeerInfo{}, ErrSwarmClosed
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return types.PeerInfo{}, err
	}

	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	raw, err := s.transports.Dial(dctx, addr)
	if err != nil {
		return types.PeerInfo{}, err
	}
	c, err := s.upgrade(dctx, raw, true)
	if err != nil {
		return types.PeerInfo{}, err
	}
	if c.remote.ID == s.local {
		c.close(ErrDialToSelf)
		return types.PeerInfo{}, ErrDialToSelf
	}
	kept, err := s.addConn(c)
	if err != nil {
		return types.PeerInfo{}, err
	}
	return kept.remote, nil
}

// DialPeer 确保到对端的连接存在，依次尝试其地址
func (s *Swarm) DialPeer(ctx context.Context, info types.PeerInfo) error {
	if info.ID == s.local {
		return ErrDialToSelf
	}
	if s.Connected(info.ID) {
		return nil
	}

	_, err, _ := s.dials.Do(info.ID.String(), func() (interface{}, error) {
		if s.Connected(info.ID) {
			return nil, nil
		}
		derr := &DialError{Peer: info.ID}
		for _, a := range info.Addrs {
			addr, err := ma.NewMultiaddr(a)
			if err != nil {
				derr.Errors = append(derr.Errors, fmt.Errorf("%s: %w", a, err))
				continue
			}
			remote, err := s.Connect(ctx, addr)
			if err != nil {
				derr.Errors = append(derr.Errors, fmt.Errorf("%s: %w", a, err))
				continue
			}
			if remote.ID != info.ID {
				derr.Errors = append(derr.Errors, fmt.Errorf("%s: %w: got %s", a, ErrPeerMismatch, remote.ID.ShortString()))
				continue
			}
			return nil, nil
		}
		return nil, derr
	})
	return err
}

// ============================================================================
//                              连接表
// ============================================================================

// preferred 在两条到同一对端的连接中选出保留者
func preferred(old, c *Conn) *Conn {
	if c.initiator().Compare(old.initiator()) < 0 {
		return c
	}
	return old
}

// addConn 注册连接，返回最终保留的连接
func (s *Swarm) addConn(c *Conn) (*Conn, error) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		c.close(ErrSwarmClosed)
		return nil, ErrSwarmClosed
	}

	old, exists := s.conns[c.remote.ID]
	if !exists {
		s.conns[c.remote.ID] = c
		s.mu.Unlock()

		c.start()
		logger.Info("对端已连接",
			"peer", log.TruncateID(c.remote.ID.String(), 8),
			"outbound", c.outbound,
			"rtt", c.rtt)
		s.emit(Event{Kind: PeerConnected, Peer: c.remote, RTT: c.rtt, Outbound: c.outbound})
		return c, nil
	}

	if preferred(old, c) == old {
		s.mu.Unlock()
		c.retired.Store(true)
		c.close(nil)
		return old, nil
	}

	s.conns[c.remote.ID] = c
	s.mu.Unlock()

	for _, o := range old.retire() {
		_, _ = c.queue.push(o)
	}
	c.start()
	logger.Debug("替换重复连接", "peer", log.TruncateID(c.remote.ID.String(), 8))
	return c, nil
}

// removeConn 连接关闭回调
func (s *Swarm) removeConn(c *Conn, reason error) {
	s.mu.Lock()
	current, ok := s.conns[c.remote.ID]
	if ok && current == c {
		delete(s.conns, c.remote.ID)
	}
	s.mu.Unlock()

	if !ok || current != c || c.retired.Load() {
		return
	}
	if s.bw != nil {
		s.bw.Forget(c.remote.ID)
	}
	logger.Info("对端已断开", "peer", log.TruncateID(c.remote.ID.String(), 8), "reason", reason)
	s.emit(Event{Kind: PeerDisconnected, Peer: c.remote, Outbound: c.outbound, Err: reason})
}

func (s *Swarm) conn(p types.V256) *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[p]
}

// Connected 是否有到该节点的连接
func (s *Swarm) Connected(p types.V256) bool {
	return s.conn(p) != nil
}

// Peers 已连接的对端
func (s *Swarm) Peers() []types.PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PeerInfo, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c.remote)
	}
	return out
}

// PeerInfo 返回已连接对端的信息
func (s *Swarm) PeerInfo(p types.V256) (types.PeerInfo, bool) {
	c := s.conn(p)
	if c == nil {
		return types.PeerInfo{}, false
	}
	return c.remote, true
}

// ============================================================================
//                              收发
// ============================================================================

// Send 将消息放入对端出站队列，不阻塞
//
// 队满时返回被挤出的消息。
func (s *Swarm) Send(p types.V256, o Outgoing) (*Outgoing, error) {
	if len(o.Data) > s.cfg.MaxMessageSize {
		return nil, types.ErrMessageTooLarge
	}
	c := s.conn(p)
	if c == nil {
		return nil, ErrNoConnection
	}
	return c.queue.push(o)
}

// QueueLen 对端出站队列长度
func (s *Swarm) QueueLen(p types.V256) int {
	c := s.conn(p)
	if c == nil {
		return 0
	}
	return c.queue.len()
}

// Ping 通过多路复用会话测量往返时间
func (s *Swarm) Ping(ctx context.Context, p types.V256) (time.Duration, error) {
	c := s.conn(p)
	if c == nil {
		return 0, ErrNoConnection
	}
	type result struct {
		rtt time.Duration
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rtt, err := c.session.Ping()
		ch <- result{rtt, err}
	}()
	select {
	case r := <-ch:
		return r.rtt, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: ping %s", types.ErrTimeout, p.ShortString())
	}
}

// ClosePeer 异步关闭到对端的连接
//
// 断开事件经 Events 通道送达，调用方可能正是事件的消费者，因此不等待关闭完成。
func (s *Swarm) ClosePeer(p types.V256) bool {
	c := s.conn(p)
	if c == nil {
		return false
	}
	go c.close(types.ErrPeerClosed)
	return true
}

// CloseIdle 关闭空闲超过 IdleTimeout 且 keep 返回 false 的连接
func (s *Swarm) CloseIdle(keep func(types.V256) bool) int {
	if s.cfg.IdleTimeout <= 0 {
		return 0
	}
	deadline := s.clk.Now().Add(-s.cfg.IdleTimeout)

	s.mu.RLock()
	var idle []*Conn
	for id, c := range s.conns {
		if c.idleSince().Before(deadline) && (keep == nil || !keep(id)) {
			idle = append(idle, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range idle {
		logger.Debug("关闭空闲连接", "peer", log.TruncateID(c.remote.ID.String(), 8))
		go c.close(types.ErrPeerClosed)
	}
	return len(idle)
}

// Close 关闭所有监听与连接
func (s *Swarm) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		_ = l.Close()
	}
	for _, c := range conns {
		c.close(ErrSwarmClosed)
	}
	err := s.transports.Close()
	s.wg.Wait()
	return err
}
