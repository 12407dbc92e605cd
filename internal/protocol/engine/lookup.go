package engine

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/log"
	"github.com/dep2p/go-subfield/pkg/types"
)

// maxLookupRounds 迭代查找轮数上限
const maxLookupRounds = 32

type candidateState uint8

const (
	statePending candidateState = iota
	stateInflight
	stateQueried
	stateFailed
)

type candidate struct {
	info  types.PeerInfo
	state candidateState
}

// shortlist 迭代查找的候选集合
type shortlist struct {
	target types.V256
	k      int

	mu    sync.Mutex
	cands []*candidate
	seen  map[types.V256]bool
}

func newShortlist(target types.V256, k int, self types.PeerInfo) *shortlist {
	l := &shortlist{target: target, k: k, seen: make(map[types.V256]bool)}
	l.seen[self.ID] = true
	l.cands = append(l.cands, &candidate{info: self, state: stateQueried})
	return l
}

func (l *shortlist) add(peers ...types.PeerInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range peers {
		if p.ID.IsZero() || l.seen[p.ID] {
			continue
		}
		l.seen[p.ID] = true
		l.cands = append(l.cands, &candidate{info: p})
	}
	sort.SliceStable(l.cands, func(i, j int) bool {
		return types.CloserTo(l.target, l.cands[i].info.ID, l.cands[j].info.ID)
	})
}

// next 从最近的 k 个有效候选中取出至多 n 个未查询者
func (l *shortlist) next(n int) []types.PeerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []types.PeerInfo
	live := 0
	for _, c := range l.cands {
		if c.state == stateFailed {
			continue
		}
		if live++; live > l.k {
			break
		}
		if c.state == statePending && len(out) < n {
			c.state = stateInflight
			out = append(out, c.info)
		}
	}
	return out
}

func (l *shortlist) mark(id types.V256, state candidateState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.cands {
		if c.info.ID == id {
			c.state = state
			return
		}
	}
}

func (l *shortlist) infos() []types.PeerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.PeerInfo, 0, len(l.cands))
	for _, c := range l.cands {
		if c.state != stateFailed {
			out = append(out, c.info)
		}
	}
	return out
}

// best 最近的有效候选
func (l *shortlist) best() types.PeerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.cands {
		if c.state != stateFailed {
			return c.info
		}
	}
	return types.PeerInfo{}
}

// ClosestGlobal 迭代查找全网距 key 最近的节点
//
// 从本地路由表出发，每轮向 alpha 个未查询的最近候选发送 FindClosest，
// 直到最近的 k 个候选都已查询。结果可能是本节点。
func (e *Engine) ClosestGlobal(ctx context.Context, key types.V256) (types.PeerInfo, error) {
	k, alpha := e.cfg.Kad.K, e.cfg.Kad.Alpha

	seed, err := e.NearestN(ctx, key, k)
	if err != nil {
		return types.PeerInfo{}, err
	}
	l := newShortlist(key, k, e.selfInfo())
	for _, n := range seed.Nodes {
		l.add(n.Info())
	}

	for round := 0; round < maxLookupRounds; round++ {
		batch := l.next(alpha)
		if len(batch) == 0 {
			break
		}
		var g errgroup.Group
		for _, p := range batch {
			p := p
			g.Go(func() error {
				peers, err := e.findClosest(ctx, p, key, k)
				if err != nil {
					logger.Debug("FindClosest 失败", "peer", log.TruncateID(p.ID.String(), 8), "error", err)
					l.mark(p.ID, stateFailed)
					return nil
				}
				l.mark(p.ID, stateQueried)
				l.add(peers...)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return types.PeerInfo{}, err
		}
	}
	learned := l.infos()
	e.post(func() { e.learn(learned) })
	return l.best(), nil
}

// learn 对桶内仍有空位的新节点发起拨号
func (e *Engine) learn(peers []types.PeerInfo) {
	for _, p := range peers {
		if p.ID == e.local || len(p.Addrs) == 0 || !e.table.HasRoom(p.ID) || e.swarm.Connected(p.ID) {
			continue
		}
		go func(p types.PeerInfo) {
			ctx, cancel := context.WithTimeout(e.ctx, e.cfg.RequestTimeout)
			defer cancel()
			if err := e.swarm.DialPeer(ctx, p); err != nil {
				logger.Debug("拨号新节点失败", "peer", log.TruncateID(p.ID.String(), 8), "error", err)
			}
		}(p)
	}
}

// findClosest 必要时先拨号，再向 p 查询
func (e *Engine) findClosest(ctx context.Context, p types.PeerInfo, key types.V256, count int) ([]types.PeerInfo, error) {
	if err := e.swarm.DialPeer(ctx, p); err != nil {
		return nil, err
	}
	target := key
	resp, err := e.RequestPeer(ctx, p.ID, &wire.Request{
		Type:   wire.TypeFindClosest,
		Target: &target,
		Count:  count,
	})
	if err != nil {
		return nil, err
	}
	return resp.Peers, nil
}
