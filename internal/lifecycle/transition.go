// internal/lifecycle/transition.go
package lifecycle

import (
	"fmt"

	"github.com/Corphon/ScreenplayStudio/internal/models"
)

// Action 会改变生命周期状态的操作
type Action string

const (
	ActionGenerateBeats         Action = "generateBeats"
	ActionGenerateFirstScene    Action = "generateFirstScene"
	ActionGenerateNextScene     Action = "generateNextScene"
	ActionMarkComplete          Action = "markComplete"
	ActionProcessUploadedScript Action = "processUploadedScript"
)

// Actions 全部操作
var Actions = []Action{
	ActionGenerateBeats,
	ActionGenerateFirstScene,
	ActionGenerateNextScene,
	ActionMarkComplete,
	ActionProcessUploadedScript,
}

// ParseAction 解析操作名称
func ParseAction(name string) (Action, error) {
	for _, action := range Actions {
		if string(action) == name {
			return action, nil
		}
	}
	return "", fmt.Errorf("unknown lifecycle action %q", name)
}

// Snapshot 某一时刻的状态与上下文，按值传递
type Snapshot struct {
	State   models.LifecycleState `json:"state"`
	Context models.ScriptContext  `json:"context"`
}

// NewSnapshot 新会话的初始快照
func NewSnapshot(scriptID string, method models.CreationMethod) Snapshot {
	if method == "" {
		method = models.CreationFromScratch
	}
	return Snapshot{
		State: models.StateEmpty,
		Context: models.ScriptContext{
			ScriptID:       scriptID,
			CreationMethod: method,
		},
	}
}

// Clone 深拷贝
func (s Snapshot) Clone() Snapshot {
	return Snapshot{State: s.State, Context: s.Context.Clone()}
}

// Args 操作参数
type Args struct {
	// SceneSegmentID 新生成场景片段的标识
	SceneSegmentID string
	// Upload 上传文件信息
	Upload *models.UploadInfo
}

// Outcome 一次操作的结果。Applied 为 false 表示前置条件不满足，状态未变。
type Outcome struct {
	Action  Action                `json:"action"`
	From    models.LifecycleState `json:"from"`
	To      models.LifecycleState `json:"to"`
	Applied bool                  `json:"applied"`
	Reason  string                `json:"reason,omitempty"`
}

// Rejected 操作被前置条件拒绝
func (o Outcome) Rejected() bool {
	return !o.Applied
}

// target 返回操作的目标状态；前置条件不满足时返回拒绝原因
func target(s Snapshot, action Action, args Args) (models.LifecycleState, string) {
	ctx := s.Context
	switch action {
	case ActionGenerateBeats:
		if s.State != models.StateEmpty {
			return "", "beats can only be generated for an empty script"
		}
		if ctx.CreationMethod != models.CreationWithAI {
			return "", "beat generation requires an AI-assisted script"
		}
		return models.StateBeatsLoaded, ""

	case ActionGenerateFirstScene:
		if s.State != models.StateBeatsLoaded {
			return "", "first scene requires loaded beats"
		}
		if !ctx.HasBeats {
			return "", "script has no beats"
		}
		return models.StateFirstSceneGenerated, ""

	case ActionGenerateNextScene:
		switch s.State {
		case models.StateFirstSceneGenerated:
			if ctx.ScenesCount < 1 {
				return "", "no scene has been generated yet"
			}
			return models.StateMultipleScenes, ""
		case models.StateMultipleScenes:
			if ctx.IsComplete {
				return "", "script is complete"
			}
			return models.StateMultipleScenes, ""
		}
		return "", "next scene requires at least one generated scene"

	case ActionMarkComplete:
		if s.State.IsTerminal() {
			return "", "script is already complete"
		}
		return models.StateComplete, ""

	case ActionProcessUploadedScript:
		if s.State != models.StateEmpty && s.State != models.StateUploaded {
			return "", "uploads can only be processed for an empty or uploaded script"
		}
		if ctx.CreationMethod != models.CreationUpload {
			return "", "script was not created by upload"
		}
		if args.Upload == nil {
			return "", "upload info is missing"
		}
		return models.StateUploaded, ""
	}
	return "", fmt.Sprintf("unknown action %q", action)
}

// Allowed 当前快照下操作的前置条件是否满足
func Allowed(s Snapshot, action Action) bool {
	args := Args{}
	if action == ActionProcessUploadedScript {
		args.Upload = &models.UploadInfo{}
	}
	_, reason := target(s, action, args)
	return reason == ""
}

// Transition 纯函数：对快照执行操作，返回新快照和结果。
// 被拒绝时原样返回输入快照。
func Transition(s Snapshot, action Action, args Args) (Snapshot, Outcome) {
	outcome := Outcome{Action: action, From: s.State, To: s.State}

	to, reason := target(s, action, args)
	if reason != "" {
		outcome.Reason = reason
		return s, outcome
	}

	next := s.Clone()
	next.State = to

	switch action {
	case ActionGenerateBeats:
		next.Context.HasBeats = true
	case ActionGenerateFirstScene:
		next.Context.ScenesCount = 1
		next.Context.CurrentSceneSegmentID = args.SceneSegmentID
	case ActionGenerateNextScene:
		next.Context.ScenesCount++
		next.Context.CurrentSceneSegmentID = args.SceneSegmentID
	case ActionMarkComplete:
		next.Context.IsComplete = true
	case ActionProcessUploadedScript:
		info := *args.Upload
		next.Context.UploadInfo = &info
	}

	outcome.To = to
	outcome.Applied = true
	return next, outcome
}
