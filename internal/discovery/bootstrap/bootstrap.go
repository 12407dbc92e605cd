package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-subfield/internal/discovery/dns"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

var logger = log.Logger("discovery/bootstrap")

// maxResponseSize 引导 URL 响应体上限
const maxResponseSize = 1 << 20

// ErrNoSeeds 所有来源都没有解析出地址
var ErrNoSeeds = errors.New("bootstrap: no seeds resolved")

// Config 引导配置
type Config struct {
	Multiaddrs []string
	URLs       []string

	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	RefreshInterval time.Duration
	TickInterval    time.Duration
	HTTPTimeout     time.Duration

	DNS dns.ResolverConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		InitialBackoff:  time.Second,
		MaxBackoff:      60 * time.Second,
		RefreshInterval: 10 * time.Minute,
		TickInterval:    time.Second,
		HTTPTimeout:     10 * time.Second,
		DNS:             dns.DefaultResolverConfig(),
	}
}

// DialFunc 拨号到引导地址，返回对端信息
type DialFunc func(ctx context.Context, addr ma.Multiaddr) (types.PeerInfo, error)

// ConnectedFunc 报告节点当前是否已连接
type ConnectedFunc func(types.V256) bool

type seed struct {
	addr     ma.Multiaddr
	peer     types.V256
	failures int
	next     time.Time
	inflight bool
}

// Option 选项
type Option func(*Bootstrapper)

// WithClock 设置时钟
func WithClock(clk clock.Clock) Option {
	return func(b *Bootstrapper) { b.clk = clk }
}

// WithHTTPClient 设置 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bootstrapper) { b.http = c }
}

// WithResolver 设置 dnsaddr 解析器
func WithResolver(r *dns.Resolver) Option {
	return func(b *Bootstrapper) { b.resolver = r }
}

// Bootstrapper 引导节点管理
type Bootstrapper struct {
	cfg      Config
	clk      clock.Clock
	http     *http.Client
	resolver *dns.Resolver

	mu              sync.Mutex
	seeds           map[string]*seed
	nextRefresh     time.Time
	refreshFailures int
}

// New 创建引导管理器
func New(cfg Config, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		cfg:   cfg,
		clk:   clock.New(),
		seeds: make(map[string]*seed),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.http == nil {
		b.http = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if b.resolver == nil {
		b.resolver = dns.NewResolver(cfg.DNS, b.clk)
	}
	return b
}

// Empty 没有配置任何来源
func (b *Bootstrapper) Empty() bool {
	return len(b.cfg.Multiaddrs) == 0 && len(b.cfg.URLs) == 0
}

// backoff 第 failures 次失败后的等待时间
func (b *Bootstrapper) backoff(failures int) time.Duration {
	d := b.cfg.InitialBackoff
	for i := 1; i < failures && d < b.cfg.MaxBackoff; i++ {
		d *= 2
	}
	if d > b.cfg.MaxBackoff {
		d = b.cfg.MaxBackoff
	}
	return d
}

// ============================================================================
//                              来源解析
// ============================================================================

// Refresh 解析所有来源并合并到地址列表
func (b *Bootstrapper) Refresh(ctx context.Context) error {
	var (
		found []ma.Multiaddr
		errs  []error
	)

	for _, s := range b.cfg.Multiaddrs {
		addrs, err := b.expand(ctx, s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found = append(found, addrs...)
	}
	for _, u := range b.cfg.URLs {
		list, err := b.fetch(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", u, err))
			continue
		}
		for _, s := range list {
			addrs, err := b.expand(ctx, s)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			found = append(found, addrs...)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()
	for _, a := range found {
		if _, ok := b.seeds[a.String()]; !ok {
			b.seeds[a.String()] = &seed{addr: a, next: now}
		}
	}

	if len(found) == 0 && (len(errs) > 0 || !b.Empty()) {
		b.refreshFailures++
		b.nextRefresh = now.Add(b.backoff(b.refreshFailures))
		return errors.Join(append([]error{ErrNoSeeds}, errs...)...)
	}
	b.refreshFailures = 0
	b.nextRefresh = now.Add(b.cfg.RefreshInterval)
	if len(errs) > 0 {
		logger.Debug("部分引导来源解析失败", "errors", errors.Join(errs...))
	}
	return nil
}

// expand 解析单个地址字符串，/dnsaddr 经 DNS 展开
func (b *Bootstrapper) expand(ctx context.Context, s string) ([]ma.Multiaddr, error) {
	addr, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	domain, err := addr.ValueForProtocol(ma.P_DNSADDR)
	if err != nil {
		return []ma.Multiaddr{addr}, nil
	}
	return b.resolver.Resolve(ctx, domain)
}

// fetch 从 URL 获取地址列表
func (b *Bootstrapper) fetch(ctx context.Context, url string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var list []string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return list, nil
}

// ============================================================================
//                              调度
// ============================================================================

// Due 返回现在应拨号的地址并标记为进行中
func (b *Bootstrapper) Due(connected ConnectedFunc) []ma.Multiaddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clk.Now()

	var out []ma.Multiaddr
	for _, s := range b.seeds {
		if s.inflight || now.Before(s.next) {
			continue
		}
		if !s.peer.IsZero() && connected != nil && connected(s.peer) {
			continue
		}
		s.inflight = true
		out = append(out, s.addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Report 记录拨号结果
func (b *Bootstrapper) Report(addr ma.Multiaddr, peer types.V256, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.seeds[addr.String()]
	if !ok {
		return
	}
	s.inflight = false
	now := b.clk.Now()
	if err == nil {
		s.failures = 0
		s.peer = peer
		s.next = now
		return
	}
	s.failures++
	s.next = now.Add(b.backoff(s.failures))
	logger.Debug("引导节点拨号失败",
		"addr", addr.String(),
		"failures", s.failures,
		"retry_in", s.next.Sub(now),
		"error", err)
}

// Seeds 当前已知的引导地址
func (b *Bootstrapper) Seeds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.seeds))
	for k := range b.seeds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *Bootstrapper) refreshDue() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.clk.Now().Before(b.nextRefresh)
}

// Step 执行一轮：必要时刷新来源，然后并发拨号所有到期地址
func (b *Bootstrapper) Step(ctx context.Context, dial DialFunc, connected ConnectedFunc) {
	if b.refreshDue() {
		if err := b.Refresh(ctx); err != nil {
			logger.Warn("引导来源解析失败", "error", err)
		}
	}

	var wg sync.WaitGroup
	for _, addr := range b.Due(connected) {
		wg.Add(1)
		go func(addr ma.Multiaddr) {
			defer wg.Done()
			info, err := dial(ctx, addr)
			b.Report(addr, info.ID, err)
		}(addr)
	}
	wg.Wait()
}

// Run 周期执行 Step 直到 ctx 取消
func (b *Bootstrapper) Run(ctx context.Context, dial DialFunc, connected ConnectedFunc) {
	if b.Empty() {
		return
	}
	logger.Info("开始引导", "multiaddrs", len(b.cfg.Multiaddrs), "urls", len(b.cfg.URLs))

	ticker := b.clk.Ticker(b.cfg.TickInterval)
	defer ticker.Stop()

	b.Step(ctx, dial, connected)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Step(ctx, dial, connected)
		}
	}
}
