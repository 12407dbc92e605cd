package yamux

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"github.com/dep2p/go-subfield/internal/core/muxer"
	"github.com/dep2p/go-subfield/pkg/types"
)

// Session 封装 yamux.Session
type Session struct {
	s *yamux.Session
}

var _ muxer.Session = (*Session)(nil)

// Client 在出站连接上创建客户端会话
func Client(conn net.Conn, cfg *yamux.Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s, err := yamux.Client(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("yamux client: %w", err)
	}
	return &Session{s: s}, nil
}

// Server 在入站连接上创建服务端会话
func Server(conn net.Conn, cfg *yamux.Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s, err := yamux.Server(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("yamux server: %w", err)
	}
	return &Session{s: s}, nil
}

// OpenStream 打开新流
//
// yamux 的 OpenStream 不支持 context，在单独的 goroutine 中等待。
func (m *Session) OpenStream(ctx context.Context) (muxer.Stream, error) {
	type result struct {
		stream *yamux.Stream
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := m.s.OpenStream()
		ch <- result{s, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// 孤立的流在打开后立即关闭
			if r := <-ch; r.stream != nil {
				_ = r.stream.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %v", types.ErrStreamOpen, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrStreamOpen, r.err)
		}
		return r.stream, nil
	}
}

// AcceptStream 接受对端打开的流
func (m *Session) AcceptStream() (muxer.Stream, error) {
	s, err := m.s.AcceptStream()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Ping 测量往返时间
func (m *Session) Ping() (time.Duration, error) {
	return m.s.Ping()
}

// CloseChan 会话关闭时关闭的通道
func (m *Session) CloseChan() <-chan struct{} {
	return m.s.CloseChan()
}

// IsClosed 是否已关闭
func (m *Session) IsClosed() bool {
	return m.s.IsClosed()
}

// Close 关闭会话及其所有流
func (m *Session) Close() error {
	return m.s.Close()
}
