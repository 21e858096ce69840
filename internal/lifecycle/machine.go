// internal/lifecycle/machine.go
package lifecycle

import (
	"github.com/Corphon/ScreenplayStudio/internal/models"
)

// Change 一次已提交的状态变更
type Change struct {
	Action   Action   `json:"action"`
	Outcome  Outcome  `json:"outcome"`
	Snapshot Snapshot `json:"snapshot"`
}

// Listener 在每次提交的状态变更后被同步调用一次
type Listener func(change Change)

// Machine 单个剧本会话的状态机。
// 非并发安全：调用方需要保证同一会话的操作串行执行。
type Machine struct {
	snapshot  Snapshot
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewMachine 从给定快照开始
func NewMachine(initial Snapshot) *Machine {
	return &Machine{
		snapshot:  initial.Clone(),
		listeners: make(map[int]Listener),
	}
}

// Snapshot 当前快照的副本
func (m *Machine) Snapshot() Snapshot {
	return m.snapshot.Clone()
}

// State 当前状态
func (m *Machine) State() models.LifecycleState {
	return m.snapshot.State
}

// Flags 当前快照推导出的界面开关
func (m *Machine) Flags() Flags {
	return DeriveFlags(m.snapshot)
}

// OnStateChange 注册监听器，返回取消注册函数
func (m *Machine) OnStateChange(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.order = append(m.order, id)

	return func() {
		delete(m.listeners, id)
		for i, existing := range m.order {
			if existing == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
}

// Apply 执行操作；被拒绝时不改变状态，也不通知监听器
func (m *Machine) Apply(action Action, args Args) Outcome {
	next, outcome := Transition(m.snapshot, action, args)
	if !outcome.Applied {
		return outcome
	}

	m.snapshot = next
	m.notify(Change{Action: action, Outcome: outcome, Snapshot: next.Clone()})
	return outcome
}

func (m *Machine) notify(change Change) {
	// 复制一份，监听器内部可以安全地取消注册
	ids := append([]int(nil), m.order...)
	for _, id := range ids {
		if listener, ok := m.listeners[id]; ok {
			listener(change)
		}
	}
}

// GenerateBeats empty -> beatsLoaded
func (m *Machine) GenerateBeats() Outcome {
	return m.Apply(ActionGenerateBeats, Args{})
}

// GenerateFirstScene beatsLoaded -> firstSceneGenerated
func (m *Machine) GenerateFirstScene(segmentID string) Outcome {
	return m.Apply(ActionGenerateFirstScene, Args{SceneSegmentID: segmentID})
}

// GenerateNextScene firstSceneGenerated|multipleScenes -> multipleScenes
func (m *Machine) GenerateNextScene(segmentID string) Outcome {
	return m.Apply(ActionGenerateNextScene, Args{SceneSegmentID: segmentID})
}

// MarkComplete 任意非终止状态 -> complete
func (m *Machine) MarkComplete() Outcome {
	return m.Apply(ActionMarkComplete, Args{})
}

// ProcessUploadedScript empty|uploaded -> uploaded
func (m *Machine) ProcessUploadedScript(info models.UploadInfo) Outcome {
	return m.Apply(ActionProcessUploadedScript, Args{Upload: &info})
}
