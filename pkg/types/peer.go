package types

// PeerInfo 节点标识与监听地址
//
// 地址为 multiaddr 字符串，核心层不解释其内容。
type PeerInfo struct {
	ID    V256     `cbor:"id" json:"id"`
	Addrs []string `cbor:"addrs,omitempty" json:"addrs,omitempty"`
}
