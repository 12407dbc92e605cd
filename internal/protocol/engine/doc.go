// Package engine 实现协议引擎与单一事件循环
//
// 事件循环独占路由表、订阅表与转发表，依次处理：
//   - Swarm 连接事件：建立时加入路由表，断开时移除并终止相关等待方
//   - 入站消息：请求走路由步骤，响应按 ID 投递给等待方
//   - 调用方请求：经有界队列提交
//   - 本地写入事件：推送给订阅者
//   - 定时器：探测路由表节点、关闭空闲连接
//
// 路由步骤：取路由字段在路由表中的最近节点，本地最近则本地处理，
// 否则跳数减一后转发；跳数为零返回 HopLimit。
//
// 每个循环迭代只处理一个事件源的一项，任何来源都不会饿死其他来源。
package engine
