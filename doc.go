// Package subfield 提供基于 Kademlia 路由的签名记录网络节点
//
// 每个节点持有一个 Ed25519 身份，节点标识即其公钥。记录以三字段复合键
// (signer, cosigner, tangent) 寻址，写入时按每个字段扇出到三个路由目的地，
// 读取与订阅可经任意字段路由。
//
// # 快速开始
//
//	cfg := config.DefaultConfig()
//	cfg.BootstrapMultiaddrs = []string{"/ip4/203.0.113.7/tcp/4100"}
//
//	node, err := subfield.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	// 写入记录
//	kp, _ := crypto.GenerateKeypair()
//	key := types.CompleteKey{Signer: kp.ID(), Cosigner: cosigner, Tangent: tangent}
//	signed, _ := record.Sign(kp, record.New(key, []byte("x")))
//	err = node.Put(ctx, signed)
//
//	// 读取记录
//	signed, err = node.GetKey(ctx, key)
//
//	// 订阅后续写入
//	sub, err := node.Subscribe(ctx, key)
//	for s := range sub.C() { ... }
//
// # 层次结构
//
//	┌──────────────────────────────────────────────┐
//	│  Subfield    调用方 API、扇出聚合、引导        │
//	├──────────────────────────────────────────────┤
//	│  engine      单一事件循环：路由、转发、订阅    │
//	├──────────────────────────────────────────────┤
//	│  swarm       连接、Noise 安全流、出站队列      │
//	├──────────────────────────────────────────────┤
//	│  transport   tcp / websocket                  │
//	└──────────────────────────────────────────────┘
//
// 多个 Subfield 实例可以在同一进程内独立运行，实例之间没有共享状态。
package subfield
