package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mdns "github.com/miekg/dns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-subfield/pkg/lib/log"
)

var logger = log.Logger("discovery/dns")

const (
	// DNSAddrPrefix dnsaddr 记录前缀
	DNSAddrPrefix = "dnsaddr="

	// DNSAddrDomainPrefix dnsaddr 域名前缀
	DNSAddrDomainPrefix = "_dnsaddr."
)

// ResolverConfig 解析器配置
type ResolverConfig struct {
	// Server DNS 服务器地址（"ip:port"），为空时读取 /etc/resolv.conf
	Server string

	// Timeout 单次查询超时
	Timeout time.Duration

	// MaxDepth 最大递归深度
	MaxDepth int

	// CacheTTL 缓存 TTL
	CacheTTL time.Duration
}

// DefaultResolverConfig 默认配置
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Timeout:  5 * time.Second,
		MaxDepth: 3,
		CacheTTL: 5 * time.Minute,
	}
}

type cacheEntry struct {
	addrs     []ma.Multiaddr
	expiresAt time.Time
}

// Resolver dnsaddr 解析器
type Resolver struct {
	cfg    ResolverConfig
	client *mdns.Client
	clk    clock.Clock

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewResolver 创建解析器
func NewResolver(cfg ResolverConfig, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Server == "" {
		if conf, err := mdns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
			cfg.Server = net.JoinHostPort(conf.Servers[0], conf.Port)
		}
	}
	return &Resolver{
		cfg:    cfg,
		client: &mdns.Client{Net: "udp", Timeout: cfg.Timeout},
		clk:    clk,
		cache:  make(map[string]cacheEntry),
	}
}

// Resolve 展开 /dnsaddr/<域名> 为传输地址
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]ma.Multiaddr, error) {
	return r.resolve(ctx, domain, r.cfg.MaxDepth)
}

func (r *Resolver) resolve(ctx context.Context, domain string, depth int) ([]ma.Multiaddr, error) {
	if depth < 0 {
		return nil, ErrMaxDepthExceeded
	}
	domain = normalizeDomain(domain)

	if addrs, ok := r.fromCache(domain); ok {
		return addrs, nil
	}

	records, err := r.lookupTXT(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("resolve TXT records for %s: %w", domain, err)
	}

	var out []ma.Multiaddr
	seen := make(map[string]struct{})
	add := func(a ma.Multiaddr) {
		if _, dup := seen[a.String()]; !dup {
			seen[a.String()] = struct{}{}
			out = append(out, a)
		}
	}

	for _, rec := range records {
		addr, nested, err := ParseDNSAddr(rec)
		if err != nil {
			logger.Debug("跳过无效 dnsaddr 记录", "record", rec, "error", err)
			continue
		}
		if nested == "" {
			add(addr)
			continue
		}
		sub, err := r.resolve(ctx, nested, depth-1)
		if err != nil {
			logger.Debug("嵌套 dnsaddr 解析失败", "domain", nested, "error", err)
			continue
		}
		for _, a := range sub {
			add(a)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecordsFound
	}

	r.setCache(domain, out)
	return out, nil
}

// lookupTXT 查询 TXT 记录
func (r *Resolver) lookupTXT(ctx context.Context, domain string) ([]string, error) {
	if r.cfg.Server == "" {
		return nil, ErrNoServer
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(domain), mdns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.cfg.Server)
	if err != nil {
		return nil, err
	}
	if in.Rcode == mdns.RcodeNameError {
		return nil, ErrNoRecordsFound
	}
	if in.Rcode != mdns.RcodeSuccess {
		return nil, fmt.Errorf("rcode %s", mdns.RcodeToString[in.Rcode])
	}

	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// normalizeDomain 规范化域名
func normalizeDomain(domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if !strings.HasPrefix(domain, DNSAddrDomainPrefix) {
		domain = DNSAddrDomainPrefix + domain
	}
	return domain
}

func (r *Resolver) fromCache(domain string) ([]ma.Multiaddr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[domain]
	if !ok || r.clk.Now().After(entry.expiresAt) {
		return nil, false
	}
	return append([]ma.Multiaddr(nil), entry.addrs...), true
}

func (r *Resolver) setCache(domain string, addrs []ma.Multiaddr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[domain] = cacheEntry{
		addrs:     append([]ma.Multiaddr(nil), addrs...),
		expiresAt: r.clk.Now().Add(r.cfg.CacheTTL),
	}
}

// ClearCache 清除缓存
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheEntry)
}

// ParseDNSAddr 解析一条 TXT 记录
//
// 返回直接地址，或嵌套的域名（记录为 /dnsaddr/<域名> 时）。
func ParseDNSAddr(record string) (ma.Multiaddr, string, error) {
	if !strings.HasPrefix(record, DNSAddrPrefix) {
		return nil, "", ErrInvalidDNSAddr
	}
	addr, err := ma.NewMultiaddr(strings.TrimPrefix(record, DNSAddrPrefix))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDNSAddr, err)
	}
	if nested, err := addr.ValueForProtocol(ma.P_DNSADDR); err == nil {
		if nested == "" {
			return nil, "", fmt.Errorf("%w: empty nested domain", ErrInvalidDNSAddr)
		}
		return nil, nested, nil
	}
	return addr, "", nil
}
