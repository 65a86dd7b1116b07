package scheduler

import "sync/atomic"

// State 调度器状态。
type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// gate 保证同一时间最多一个扫描周期，进入失败即丢弃，不排队。
type gate struct {
	v atomic.Int32
}

func (g *gate) tryEnter() bool {
	return g.v.CompareAndSwap(int32(Idle), int32(Scanning))
}

func (g *gate) leave() {
	g.v.Store(int32(Idle))
}

func (g *gate) state() State {
	return State(g.v.Load())
}
