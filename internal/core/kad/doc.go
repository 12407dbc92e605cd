// Package kad 实现 Subfield 的 Kademlia 路由表
//
// 256 个桶按与本地标识异或距离的前导零位数索引，桶 255 概念上包含本地节点。
// 每个桶最多 k 个节点，按 ping 升序排列，ping 相同时按标识排序。
//
// 路由表不加锁，由事件循环独占访问。
package kad
