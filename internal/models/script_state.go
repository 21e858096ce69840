// internal/models/script_state.go
package models

import (
	"time"
)

// LifecycleState 剧本所处的创作阶段
type LifecycleState string

const (
	StateEmpty               LifecycleState = "empty"
	StateBeatsLoaded         LifecycleState = "beatsLoaded"
	StateFirstSceneGenerated LifecycleState = "firstSceneGenerated"
	StateMultipleScenes      LifecycleState = "multipleScenes"
	StateUploaded            LifecycleState = "uploaded"
	StateComplete            LifecycleState = "complete"
)

// AllLifecycleStates 按流程顺序列出全部状态
var AllLifecycleStates = []LifecycleState{
	StateEmpty,
	StateBeatsLoaded,
	StateFirstSceneGenerated,
	StateMultipleScenes,
	StateUploaded,
	StateComplete,
}

// IsValid 检查状态值是否合法
func (s LifecycleState) IsValid() bool {
	for _, known := range AllLifecycleStates {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal complete 是唯一的终止状态
func (s LifecycleState) IsTerminal() bool {
	return s == StateComplete
}

// CreationMethod 剧本的创建方式
type CreationMethod string

const (
	CreationFromScratch CreationMethod = "FROM_SCRATCH"
	CreationWithAI      CreationMethod = "WITH_AI"
	CreationUpload      CreationMethod = "UPLOAD"
)

// ParseCreationMethod 解析创建方式，空值视为 FROM_SCRATCH
func ParseCreationMethod(value string) (CreationMethod, bool) {
	switch CreationMethod(value) {
	case "", CreationFromScratch:
		return CreationFromScratch, true
	case CreationWithAI:
		return CreationWithAI, true
	case CreationUpload:
		return CreationUpload, true
	default:
		return "", false
	}
}

// UploadInfo 上传剧本的文件信息
type UploadInfo struct {
	FileType   string    `json:"file_type"`
	FileName   string    `json:"file_name"`
	UploadDate time.Time `json:"upload_date"`
}

// ScriptContext 与生命周期状态一起维护的会话上下文
type ScriptContext struct {
	ScriptID              string         `json:"script_id"`
	CreationMethod        CreationMethod `json:"creation_method"`
	HasBeats              bool           `json:"has_beats"`
	ScenesCount           int            `json:"scenes_count"`
	IsComplete            bool           `json:"is_complete"`
	CurrentSceneSegmentID string         `json:"current_scene_segment_id,omitempty"`
	UploadInfo            *UploadInfo    `json:"upload_info,omitempty"`
}

// Clone 返回深拷贝，UploadInfo 不与原对象共享
func (c ScriptContext) Clone() ScriptContext {
	clone := c
	if c.UploadInfo != nil {
		info := *c.UploadInfo
		clone.UploadInfo = &info
	}
	return clone
}
