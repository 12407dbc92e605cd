package subfield

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/dep2p/go-subfield/config"
	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/core/swarm"
	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/internal/core/transport/tcp"
	"github.com/dep2p/go-subfield/internal/core/transport/websocket"
	"github.com/dep2p/go-subfield/internal/discovery/bootstrap"
	"github.com/dep2p/go-subfield/internal/protocol/engine"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

var logger = log.Logger("subfield")

// Subfield 节点实例
//
// 由外部进程持有；同一进程可以创建多个互不影响的实例。
type Subfield struct {
	cfg     config.Config
	kp      *crypto.Keypair
	clk     clock.Clock
	metrics *metrics.Metrics
	bw      *metrics.Bandwidth
	swarm   *swarm.Swarm
	engine  *engine.Engine
	boot    *bootstrap.Bootstrapper

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 按配置创建节点，不监听也不拨号
//
// cfg.Keypair 为空时生成新的身份。
func New(cfg config.Config, opts ...Option) (*Subfield, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{clk: clock.New()}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	kp, err := loadKeypair(cfg.Keypair)
	if err != nil {
		return nil, err
	}

	m := metrics.New(o.registry)
	bw := metrics.NewBandwidth(o.clk, m)

	transports := o.transports
	if len(transports) == 0 {
		transports = transport.Set{tcp.New(), websocket.New()}
	}

	scfg := swarm.DefaultConfig()
	scfg.MaxMessageSize = cfg.MaxMessageSize
	scfg.QueueSize = cfg.OutboundQueueSize
	scfg.IdleTimeout = cfg.IdleConnectionTimeout.Duration()
	scfg.DialTimeout = cfg.RequestTimeout.Duration()
	scfg.DialRate = cfg.DialRate
	sw, err := swarm.New(kp, transports, scfg, swarm.WithClock(o.clk), swarm.WithBandwidth(bw))
	if err != nil {
		return nil, fmt.Errorf("create swarm: %w", err)
	}

	store := o.store
	if store == nil {
		if store, err = storage.New(cfg.Store); err != nil {
			_ = sw.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	ecfg := engine.DefaultConfig()
	ecfg.Kad = cfg.Kad
	ecfg.HopLimit = cfg.HopLimit
	ecfg.RequestTimeout = cfg.RequestTimeout.Duration()
	ecfg.GetFallback = cfg.GetFallback
	ecfg.ProbeInterval = cfg.ProbeInterval.Duration()
	ecfg.SubscriptionBuffer = cfg.SubscriptionBuffer
	eng, err := engine.New(sw, store, ecfg, engine.WithClock(o.clk), engine.WithMetrics(m))
	if err != nil {
		_ = store.Close()
		_ = sw.Close()
		return nil, err
	}

	bcfg := bootstrap.DefaultConfig()
	bcfg.Multiaddrs = cfg.BootstrapMultiaddrs
	bcfg.URLs = cfg.BootstrapURLs
	bcfg.MaxBackoff = cfg.BootstrapMaxBackoff.Duration()

	return &Subfield{
		cfg:     cfg,
		kp:      kp,
		clk:     o.clk,
		metrics: m,
		bw:      bw,
		swarm:   sw,
		engine:  eng,
		boot:    bootstrap.New(bcfg, bootstrap.WithClock(o.clk)),
	}, nil
}

func loadKeypair(seed string) (*crypto.Keypair, error) {
	if seed == "" {
		return crypto.GenerateKeypair()
	}
	return crypto.KeypairFromHex(seed)
}

// Start 监听配置的地址，启动事件循环与引导
func (s *Subfield) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	addrs, err := config.ParseMultiaddrs(s.cfg.ListenAddresses)
	if err != nil {
		return err
	}
	if err := s.swarm.Listen(addrs...); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := s.engine.Start(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.boot.Run(runCtx, s.swarm.Connect, s.swarm.Connected)
	}()

	logger.Info("节点已启动",
		"id", log.TruncateID(s.ID().String(), 8),
		"listen", len(s.swarm.ListenAddrs()))
	return nil
}

// Close 停止引导与事件循环，关闭所有连接与存储
func (s *Subfield) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	err := multierr.Combine(s.engine.Close(), s.swarm.Close())
	logger.Info("节点已关闭", "id", log.TruncateID(s.ID().String(), 8))
	return err
}

func (s *Subfield) running() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

// ============================================================================
//                              节点信息
// ============================================================================

// ID 节点标识，即 Ed25519 公钥
func (s *Subfield) ID() types.V256 {
	return s.kp.ID()
}

// Keypair 节点身份密钥
func (s *Subfield) Keypair() *crypto.Keypair {
	return s.kp
}

// Config 节点配置
func (s *Subfield) Config() config.Config {
	return s.cfg
}

// Addrs 实际监听地址
func (s *Subfield) Addrs() []ma.Multiaddr {
	return s.swarm.ListenAddrs()
}

// Peers 已连接的节点
func (s *Subfield) Peers() []types.PeerInfo {
	return s.swarm.Peers()
}

// Bandwidth 与对端之间的流量统计
func (s *Subfield) Bandwidth(p types.V256) metrics.Stats {
	return s.bw.ForPeer(p)
}

// Registry 指标 Registry
func (s *Subfield) Registry() *prometheus.Registry {
	return s.metrics.Registry()
}

// Nodes 路由表快照
func (s *Subfield) Nodes(ctx context.Context) ([]types.PeerInfo, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	nodes, err := s.engine.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.PeerInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Info())
	}
	return out, nil
}

// Connect 直接拨号到 addr，返回对端信息
func (s *Subfield) Connect(ctx context.Context, addr ma.Multiaddr) (types.PeerInfo, error) {
	if err := s.running(); err != nil {
		return types.PeerInfo{}, err
	}
	return s.swarm.Connect(ctx, addr)
}
