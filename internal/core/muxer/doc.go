// Package muxer 定义 Subfield 使用的流多路复用接口
//
// 每个底层连接承载一个多路复用会话，会话上的每条流独立完成 Noise 握手。
// 具体实现见 yamux 子包。
package muxer

import (
	"context"
	"io"
	"time"
)

// Stream 多路复用流
type Stream interface {
	io.ReadWriteCloser
	SetDeadline(t time.Time) error
}

// Session 多路复用会话
type Session interface {
	OpenStream(ctx context.Context) (Stream, error)
	AcceptStream() (Stream, error)
	Ping() (time.Duration, error)
	CloseChan() <-chan struct{}
	IsClosed() bool
	Close() error
}
