package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-subfield/internal/admin/mocks"
	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
// 测试辅助
// ============================================================================

func newTestServer(t *testing.T, cfg Config) (*mocks.MockNode, *httptest.Server) {
	t.Helper()
	ctrl := gomock.NewController(t)
	node := mocks.NewMockNode(ctrl)
	node.EXPECT().Registry().Return(prometheus.NewRegistry()).AnyTimes()

	ts := httptest.NewServer(New(cfg, node).Handler())
	t.Cleanup(ts.Close)
	return node, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func recordPath(key types.CompleteKey) string {
	return fmt.Sprintf("/records/%s/%s/%s", key.Signer, key.Cosigner, key.Tangent)
}

// ============================================================================
// 状态码映射
// ============================================================================

// TestStatusFor 测试错误到 HTTP 状态码的映射
func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrInvalidSignature, http.StatusForbidden},
		{types.ErrKeypairNotSigner, http.StatusForbidden},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{types.ErrOverloaded, http.StatusServiceUnavailable},
		{fmt.Errorf("get failed: %w", types.ErrOverloaded), http.StatusServiceUnavailable},
		{types.ErrInvalidBase32, http.StatusBadRequest},
		{types.ErrIncompleteKey, http.StatusBadRequest},
		{types.ErrNoRoute, http.StatusInternalServerError},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}

	t.Log("✅ StatusFor 测试通过")
}

// ============================================================================
// 端点
// ============================================================================

// TestServer_Bootstrap 测试 /bootstrap 地址过滤
func TestServer_Bootstrap(t *testing.T) {
	addrs := []ma.Multiaddr{
		ma.StringCast("/ip4/0.0.0.0/tcp/4100"),
		ma.StringCast("/ip4/127.0.0.1/tcp/4100"),
		ma.StringCast("/ip4/10.1.2.3/tcp/4100"),
		ma.StringCast("/ip4/8.8.8.8/tcp/4101/ws"),
	}

	t.Run("Public", func(t *testing.T) {
		node, ts := newTestServer(t, Config{})
		node.EXPECT().Addrs().Return(addrs)

		var out []string
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/bootstrap", &out))
		assert.Equal(t, []string{"/ip4/8.8.8.8/tcp/4101/ws"}, out)
	})

	t.Run("DevMode", func(t *testing.T) {
		node, ts := newTestServer(t, Config{DevMode: true})
		node.EXPECT().Addrs().Return(addrs)

		var out []string
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/bootstrap", &out))
		assert.Equal(t, []string{
			"/ip4/127.0.0.1/tcp/4100",
			"/ip4/10.1.2.3/tcp/4100",
			"/ip4/8.8.8.8/tcp/4101/ws",
		}, out)
	})

	t.Run("Empty", func(t *testing.T) {
		node, ts := newTestServer(t, Config{})
		node.EXPECT().Addrs().Return(nil)

		var out []string
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/bootstrap", &out))
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Log("✅ /bootstrap 测试通过")
}

// TestServer_Peers 测试 /peers
func TestServer_Peers(t *testing.T) {
	node, ts := newTestServer(t, Config{})
	p := types.RandomV256()
	node.EXPECT().Peers().Return([]types.PeerInfo{{ID: p, Addrs: []string{"/ip4/8.8.8.8/tcp/4100"}}})
	node.EXPECT().Bandwidth(p).Return(metrics.Stats{TotalIn: 10, TotalOut: 20})

	var out []PeerStatus
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/peers", &out))
	require.Len(t, out, 1)
	assert.Equal(t, p.String(), out[0].ID)
	assert.Equal(t, int64(10), out[0].Bandwidth.TotalIn)
	assert.Equal(t, int64(20), out[0].Bandwidth.TotalOut)

	t.Log("✅ /peers 测试通过")
}

// TestServer_Records 测试 /records 的成功与错误映射
func TestServer_Records(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	signed, err := record.Sign(kp, record.New(key, []byte("x")))
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		node, ts := newTestServer(t, Config{})
		node.EXPECT().GetKey(gomock.Any(), key).Return(signed, nil)

		var view RecordView
		assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+recordPath(key), &view))
		assert.Equal(t, []byte("x"), view.Data)
		assert.Equal(t, key.String(), view.Key)
		require.NotNil(t, view.Signed)
		assert.True(t, signed.Equal(view.Signed))
	})

	errCases := []struct {
		name string
		err  error
		want int
	}{
		{"NotFound", types.ErrNotFound, http.StatusNotFound},
		{"InvalidSignature", types.ErrInvalidSignature, http.StatusForbidden},
		{"Timeout", types.ErrTimeout, http.StatusGatewayTimeout},
		{"Overloaded", types.ErrOverloaded, http.StatusServiceUnavailable},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			node, ts := newTestServer(t, Config{})
			node.EXPECT().GetKey(gomock.Any(), key).Return(nil, tc.err)

			var body errorBody
			assert.Equal(t, tc.want, getJSON(t, ts.URL+recordPath(key), &body))
			assert.Contains(t, body.Error, tc.err.Error())
		})
	}

	t.Run("MalformedKey", func(t *testing.T) {
		_, ts := newTestServer(t, Config{})

		var body errorBody
		path := fmt.Sprintf("/records/%s/not-base32!/%s", key.Signer, key.Tangent)
		assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+path, &body))
		assert.NotEmpty(t, body.Error)
	})

	t.Log("✅ /records 测试通过")
}

// TestServer_Metrics 测试 /metrics 导出节点 Registry
func TestServer_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	node := mocks.NewMockNode(ctrl)
	m := metrics.New(prometheus.NewRegistry())
	m.Request("ping", "success")
	node.EXPECT().Registry().Return(m.Registry())

	ts := httptest.NewServer(New(Config{}, node).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `subfield_requests_total{outcome="success",type="ping"} 1`)

	t.Log("✅ /metrics 测试通过")
}

// TestServer_StartStop 测试监听与关闭
func TestServer_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	node := mocks.NewMockNode(ctrl)
	node.EXPECT().Registry().Return(prometheus.NewRegistry())
	node.EXPECT().Addrs().Return(nil)

	server := New(Config{Addr: "127.0.0.1:0"}, node)
	require.NoError(t, server.Start(context.Background()))
	require.NoError(t, server.Start(context.Background()))
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	var out []string
	assert.Equal(t, http.StatusOK, getJSON(t, "http://"+server.Addr()+"/bootstrap", &out))

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())

	t.Log("✅ 启停测试通过")
}
