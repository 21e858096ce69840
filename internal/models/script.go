// internal/models/script.go
package models

import (
	"strings"
	"time"
)

// ScriptRecord 后端保存的剧本基本信息
type ScriptRecord struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Subtitle       string         `json:"subtitle,omitempty"`
	Genre          string         `json:"genre,omitempty"`
	Story          string         `json:"story,omitempty"`
	CreationMethod CreationMethod `json:"creation_method"`
	IsComplete     bool           `json:"is_complete"`
	UploadInfo     *UploadInfo    `json:"upload_info,omitempty"`
	Progress       int            `json:"progress"` // 已生成场景的节拍占比（0-100），读取时计算
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Act 节拍所属的幕
type Act string

const (
	Act1  Act = "Act 1"
	Act2A Act = "Act 2A"
	Act2B Act = "Act 2B"
	Act3  Act = "Act 3"
)

// Acts 四幕顺序
var Acts = []Act{Act1, Act2A, Act2B, Act3}

var actWireNames = map[Act]string{
	Act1:  "act_1",
	Act2A: "act_2a",
	Act2B: "act_2b",
	Act3:  "act_3",
}

// WireName 返回接口中使用的幕名称，例如 act_2a
func (a Act) WireName() string {
	return actWireNames[a]
}

// ActFromWire 解析接口中的幕名称，无法识别时归入第一幕
func ActFromWire(value string) Act {
	value = strings.ToLower(strings.TrimSpace(value))
	for act, wire := range actWireNames {
		if wire == value || strings.ToLower(string(act)) == value {
			return act
		}
	}
	return Act1
}

// Beat 故事节拍
type Beat struct {
	ID          string    `json:"beat_id"`
	ScriptID    string    `json:"script_id"`
	Title       string    `json:"beat_title"`
	Description string    `json:"beat_description"`
	Act         Act       `json:"beat_act"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeatUpdate 节拍的可修改字段，空字段保持不变
type BeatUpdate struct {
	Title       string `json:"beat_title"`
	Description string `json:"beat_description"`
	Act         string `json:"beat_act"`
}

// SceneSegment 针对某个节拍生成的一段场景内容
type SceneSegment struct {
	ID               string    `json:"id"`
	ScriptID         string    `json:"script_id"`
	BeatID           string    `json:"beat_id"`
	Position         int       `json:"position"`
	SceneHeading     string    `json:"scene_heading"`
	SceneDescription string    `json:"scene_description"`
	CreatedAt        time.Time `json:"created_at"`
}
