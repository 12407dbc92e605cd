package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-subfield/internal/core/metrics"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

var logger = log.Logger("admin")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:8100"

// Node 管理服务需要的节点能力
type Node interface {
	ID() types.V256
	Addrs() []ma.Multiaddr
	Peers() []types.PeerInfo
	Bandwidth(p types.V256) metrics.Stats
	GetKey(ctx context.Context, key types.CompleteKey) (*record.Signed, error)
	Registry() *prometheus.Registry
}

// ============================================================================
//                              配置
// ============================================================================

// Config 服务配置
type Config struct {
	// Addr 监听地址
	Addr string

	// DevMode 允许回环与私有地址出现在 /bootstrap
	DevMode bool

	// RequestTimeout /records 查询超时
	RequestTimeout time.Duration
}

// ============================================================================
//                              Server
// ============================================================================

// Server 管理 HTTP 服务
type Server struct {
	cfg  Config
	node Node

	server   *http.Server
	listener net.Listener
	running  bool

	mu sync.Mutex
}

// New 创建管理服务
func New(cfg Config, node Node) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Server{cfg: cfg, node: node}
}

// Handler 路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bootstrap", s.handleBootstrap)
	mux.HandleFunc("GET /peers", s.handlePeers)
	mux.HandleFunc("GET /records/{signer}/{cosigner}/{tangent}", s.handleRecord)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.node.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("管理服务异常退出", "error", err)
		}
	}()

	s.running = true
	logger.Info("管理服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭管理服务失败", "error", err)
		return err
	}

	s.running = false
	logger.Info("管理服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// PeerStatus /peers 中的一项
type PeerStatus struct {
	ID        string        `json:"id"`
	Addrs     []string      `json:"addrs,omitempty"`
	Bandwidth metrics.Stats `json:"bandwidth"`
}

// RecordView /records 响应
type RecordView struct {
	Key       string         `json:"key"`
	Data      []byte         `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Signed    *record.Signed `json:"signed"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ============================================================================
//                              处理器
// ============================================================================

// handleBootstrap 返回可供其他节点拨号的监听地址
func (s *Server) handleBootstrap(w http.ResponseWriter, _ *http.Request) {
	out := make([]string, 0)
	for _, addr := range s.node.Addrs() {
		if s.advertisable(addr) {
			out = append(out, addr.String())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// advertisable 未指定地址总是排除，回环与私有地址仅在开发模式下保留
func (s *Server) advertisable(addr ma.Multiaddr) bool {
	if manet.IsIPUnspecified(addr) {
		return false
	}
	if s.cfg.DevMode {
		return true
	}
	return !manet.IsIPLoopback(addr) && !manet.IsPrivateAddr(addr)
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	peers := s.node.Peers()
	out := make([]PeerStatus, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerStatus{
			ID:        p.ID.String(),
			Addrs:     p.Addrs,
			Bandwidth: s.node.Bandwidth(p.ID),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var key types.CompleteKey
	for _, f := range []struct {
		name string
		dst  *types.Field
	}{
		{"signer", &key.Signer},
		{"cosigner", &key.Cosigner},
		{"tangent", &key.Tangent},
	} {
		v, err := types.ParseV256(r.PathValue(f.name))
		if err != nil {
			writeError(w, err)
			return
		}
		*f.dst = v
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	signed, err := s.node.GetKey(ctx, key)
	if err != nil {
		logger.Debug("记录查询失败", "key", key.String(), "error", err)
		writeError(w, err)
		return
	}
	rec, err := signed.Decode()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordView{
		Key:       key.String(),
		Data:      rec.Data.Bytes,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Signed:    signed,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("写入响应失败", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorBody{Error: err.Error()})
}
