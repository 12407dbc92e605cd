package dns

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer 启动本地 DNS 服务器，records 为域名到 TXT 值的映射
func startServer(t *testing.T, records map[string][]string) (string, *atomic.Int32) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	queries := new(atomic.Int32)
	srv := &mdns.Server{
		PacketConn: pc,
		Handler: mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
			queries.Add(1)
			resp := new(mdns.Msg)
			resp.SetReply(req)
			q := req.Question[0]
			txts, ok := records[q.Name]
			if !ok {
				resp.Rcode = mdns.RcodeNameError
			}
			for _, v := range txts {
				resp.Answer = append(resp.Answer, &mdns.TXT{
					Hdr: mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypeTXT, Class: mdns.ClassINET, Ttl: 60},
					Txt: []string{v},
				})
			}
			_ = w.WriteMsg(resp)
		}),
	}
	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String(), queries
}

// ============================================================================
// 解析测试
// ============================================================================

// TestResolver_Nested 测试嵌套解析与去重
func TestResolver_Nested(t *testing.T) {
	server, _ := startServer(t, map[string][]string{
		"_dnsaddr.seed.example.": {
			"dnsaddr=/ip4/10.0.0.1/tcp/4001",
			"dnsaddr=/dnsaddr/more.example",
			"garbage",
		},
		"_dnsaddr.more.example.": {
			"dnsaddr=/ip4/10.0.0.2/tcp/4001/ws",
			"dnsaddr=/ip4/10.0.0.1/tcp/4001",
		},
	})

	cfg := DefaultResolverConfig()
	cfg.Server = server
	r := NewResolver(cfg, nil)

	addrs, err := r.Resolve(context.Background(), "seed.example")
	require.NoError(t, err)

	var got []string
	for _, a := range addrs {
		got = append(got, a.String())
	}
	assert.ElementsMatch(t, []string{"/ip4/10.0.0.1/tcp/4001", "/ip4/10.0.0.2/tcp/4001/ws"}, got)
}

// TestResolver_Cache 测试缓存与过期
func TestResolver_Cache(t *testing.T) {
	server, queries := startServer(t, map[string][]string{
		"_dnsaddr.seed.example.": {"dnsaddr=/ip4/10.0.0.1/tcp/4001"},
	})

	clk := clock.NewMock()
	cfg := DefaultResolverConfig()
	cfg.Server = server
	r := NewResolver(cfg, clk)

	_, err := r.Resolve(context.Background(), "seed.example")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "seed.example.")
	require.NoError(t, err)
	assert.Equal(t, int32(1), queries.Load())

	clk.Add(cfg.CacheTTL + time.Second)
	_, err = r.Resolve(context.Background(), "seed.example")
	require.NoError(t, err)
	assert.Equal(t, int32(2), queries.Load())
}

// TestResolver_NotFound 测试不存在的域名
func TestResolver_NotFound(t *testing.T) {
	server, _ := startServer(t, nil)
	cfg := DefaultResolverConfig()
	cfg.Server = server
	r := NewResolver(cfg, nil)

	_, err := r.Resolve(context.Background(), "missing.example")
	assert.ErrorIs(t, err, ErrNoRecordsFound)
}

// TestParseDNSAddr 测试记录解析
func TestParseDNSAddr(t *testing.T) {
	addr, nested, err := ParseDNSAddr("dnsaddr=/ip4/1.2.3.4/tcp/1")
	require.NoError(t, err)
	assert.Empty(t, nested)
	assert.Equal(t, "/ip4/1.2.3.4/tcp/1", addr.String())

	addr, nested, err = ParseDNSAddr("dnsaddr=/dnsaddr/sub.example")
	require.NoError(t, err)
	assert.Nil(t, addr)
	assert.Equal(t, "sub.example", nested)

	_, _, err = ParseDNSAddr("/ip4/1.2.3.4/tcp/1")
	assert.ErrorIs(t, err, ErrInvalidDNSAddr)

	_, _, err = ParseDNSAddr("dnsaddr=not-an-addr")
	assert.ErrorIs(t, err, ErrInvalidDNSAddr)
}
