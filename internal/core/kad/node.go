package kad

import (
	"time"

	"github.com/dep2p/go-subfield/pkg/types"
)

// Node 远端节点
type Node struct {
	// ID 节点公钥标识
	ID types.V256
	// Addrs 地址簿
	Addrs []string
	// PingMs 最近一次 ping 耗时（毫秒）
	PingMs uint32
	// ObservedSince 首次加入时间
	ObservedSince time.Time
}

// Info 转换为 PeerInfo
func (n Node) Info() types.PeerInfo {
	return types.PeerInfo{ID: n.ID, Addrs: append([]string(nil), n.Addrs...)}
}

// less 桶内排序：ping 升序，其次标识升序
func less(a, b Node) bool {
	if a.PingMs != b.PingMs {
		return a.PingMs < b.PingMs
	}
	return a.ID.Compare(b.ID) < 0
}
