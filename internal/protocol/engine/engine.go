package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/core/swarm"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

var logger = log.Logger("protocol/engine")

// bindingID 订阅或转发条目，由上游节点与其请求 ID 确定
type bindingID struct {
	peer types.V256
	id   uint64
}

// binding 订阅绑定
type binding struct {
	key  types.CompleteKey
	rk   types.RoutingKey
	sink portal.Sink[*wire.Response]
}

// relay 已转发到下游的订阅
type relay struct {
	fid uint64
	rk  types.RoutingKey
}

// Engine 协议引擎
type Engine struct {
	cfg     Config
	local   types.V256
	swarm   *swarm.Swarm
	store   *storage.Feed
	table   *kad.Table
	portals *portal.Manager[*wire.Response]
	metrics *metrics.Metrics
	clk     clock.Clock

	calls chan func()

	pmu     sync.Mutex
	pending []func()
	wake    chan struct{}

	// 以下字段仅由事件循环访问
	bindings map[types.CompleteKey]map[bindingID]*binding
	bound    map[bindingID]*binding
	relays   map[bindingID]relay
	probing  bool

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	cancelFeed func()
	started    atomic.Bool
	closeOnce  sync.Once
}

// New 创建引擎
//
// 引擎接管 store 的关闭，不接管 sw。
func New(sw *swarm.Swarm, store storage.Store, cfg Config, opts ...Option) (*Engine, error) {
	if sw == nil || store == nil {
		return nil, fmt.Errorf("%w: swarm and store are required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		local:    sw.LocalPeer(),
		swarm:    sw,
		store:    storage.WithFeed(store),
		clk:      clock.New(),
		calls:    make(chan func(), cfg.CallQueue),
		wake:     make(chan struct{}, 1),
		bindings: make(map[types.CompleteKey]map[bindingID]*binding),
		bound:    make(map[bindingID]*binding),
		relays:   make(map[bindingID]relay),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	e.table = kad.NewTable(e.local, cfg.Kad)
	e.portals = portal.NewManager[*wire.Response](e.clk)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// Local 本地节点标识
func (e *Engine) Local() types.V256 {
	return e.local
}

// Config 引擎配置
func (e *Engine) Config() Config {
	return e.cfg
}

// Store 带写入事件的记录存储
func (e *Engine) Store() *storage.Feed {
	return e.store
}

// Start 启动事件循环
func (e *Engine) Start() error {
	if e.ctx.Err() != nil {
		return ErrClosed
	}
	if e.started.Swap(true) {
		return ErrAlreadyStarted
	}
	feed, cancel := e.store.Subscribe()
	e.cancelFeed = cancel
	go e.loop(feed)
	logger.Info("协议引擎已启动", "local", log.TruncateID(e.local.String(), 8))
	return nil
}

// Close 停止事件循环，终止所有等待方并关闭存储
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		if e.started.Load() {
			<-e.done
			e.cancelFeed()
		}
		e.portals.FailAll(ErrClosed)
		for b, sub := range e.bound {
			if b.peer == e.local {
				sub.sink(nil, ErrClosed)
			}
		}
		err = e.store.Close()
		logger.Info("协议引擎已关闭")
	})
	return err
}

// ============================================================================
//                              事件循环
// ============================================================================

func (e *Engine) loop(feed <-chan storage.PutEvent) {
	defer close(e.done)

	ticker := e.clk.Ticker(e.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.swarm.Events():
			e.handleEvent(ev)
		case msg := <-e.swarm.Inbound():
			e.handleMessage(msg)
		case fn := <-e.calls:
			fn()
		case <-e.wake:
			e.runPending()
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			e.publish(ev)
		case <-ticker.C:
			e.tick()
		}
	}
}

// post 安排在事件循环中执行，不阻塞，可在循环内调用
func (e *Engine) post(fn func()) {
	e.pmu.Lock()
	e.pending = append(e.pending, fn)
	e.pmu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) runPending() {
	e.pmu.Lock()
	fns := e.pending
	e.pending = nil
	e.pmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// submit 提交调用方请求，队满时阻塞
func (e *Engine) submit(ctx context.Context, fn func()) error {
	select {
	case e.calls <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// do 在事件循环中执行 fn 并等待完成
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := e.submit(ctx, func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrClosed
	}
}

// ============================================================================
//                              连接事件
// ============================================================================

func pingMs(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms < 0:
		return 0
	case ms > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(ms)
}

func (e *Engine) handleEvent(ev swarm.Event) {
	id := ev.Peer.ID
	switch ev.Kind {
	case swarm.PeerConnected:
		res := e.table.TryAdd(kad.Node{ID: id, Addrs: ev.Peer.Addrs, PingMs: pingMs(ev.RTT)})
		logger.Debug("路由表更新",
			"peer", log.TruncateID(id.String(), 8),
			"result", res.Kind.String())
		if res.Evicted != nil {
			logger.Debug("节点被替换出路由表", "peer", log.TruncateID(res.Evicted.ID.String(), 8))
		}
	case swarm.PeerDisconnected:
		e.table.TryRemove(id)
		if n := e.portals.FailPeer(id, types.ErrPeerClosed); n > 0 {
			logger.Debug("终止发往断开节点的请求", "peer", log.TruncateID(id.String(), 8), "count", n)
		}
		e.dropPeer(id)
	}
	e.metrics.SetTableSize(e.table.Size())
	e.metrics.SetPeers(len(e.swarm.Peers()))
}

// keep 报告连接是否仍被使用
func (e *Engine) keep(p types.V256) bool {
	if _, ok := e.table.Get(p); ok {
		return true
	}
	for b := range e.bound {
		if b.peer == p {
			return true
		}
	}
	for b := range e.relays {
		if b.peer == p {
			return true
		}
	}
	return false
}

// tick 关闭空闲连接并探测路由表节点
func (e *Engine) tick() {
	if n := e.swarm.CloseIdle(e.keep); n > 0 {
		logger.Debug("关闭空闲连接", "count", n)
	}
	if e.probing {
		return
	}
	nodes := e.table.Nodes()
	if len(nodes) == 0 {
		return
	}
	e.probing = true
	go e.probe(nodes)
}

type probeResult struct {
	id  types.V256
	rtt time.Duration
	err error
}

// probe 并发 ping 路由表节点，结果交回事件循环
func (e *Engine) probe(nodes []kad.Node) {
	results := make([]probeResult, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, id types.V256) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(e.ctx, e.cfg.ProbeTimeout)
			defer cancel()
			rtt, err := e.swarm.Ping(ctx, id)
			results[i] = probeResult{id: id, rtt: rtt, err: err}
		}(i, n.ID)
	}
	wg.Wait()
	e.post(func() { e.applyProbe(results) })
}

func (e *Engine) applyProbe(results []probeResult) {
	e.probing = false
	for _, r := range results {
		if r.err != nil {
			if e.table.TryRemove(r.id) {
				logger.Info("探测失败，移出路由表", "peer", log.TruncateID(r.id.String(), 8), "error", r.err)
			}
			e.swarm.ClosePeer(r.id)
			continue
		}
		if n, ok := e.table.Get(r.id); ok {
			n.PingMs = pingMs(r.rtt)
			e.table.TryAdd(n)
		}
	}
	e.metrics.SetTableSize(e.table.Size())
}
