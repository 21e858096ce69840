// internal/lifecycle/flags.go
package lifecycle

import (
	"github.com/Corphon/ScreenplayStudio/internal/models"
)

// Flags 由快照推导出的界面开关，每次读取时重新计算
type Flags struct {
	ShowGenerateBeats     bool `json:"show_generate_beats"`
	ShowGenerateScript    bool `json:"show_generate_script"`
	ShowGenerateNextScene bool `json:"show_generate_next_scene"`
	CanEditBeats          bool `json:"can_edit_beats"`
	CanEditScript         bool `json:"can_edit_script"`
	IsUploadedScript      bool `json:"is_uploaded_script"`
	CanReprocessUpload    bool `json:"can_reprocess_upload"`
}

// DeriveFlags 纯函数
func DeriveFlags(s Snapshot) Flags {
	state := s.State
	ctx := s.Context
	uploaded := ctx.CreationMethod == models.CreationUpload

	return Flags{
		ShowGenerateBeats:  ctx.CreationMethod == models.CreationWithAI && state == models.StateEmpty,
		ShowGenerateScript: state == models.StateBeatsLoaded,
		ShowGenerateNextScene: state == models.StateFirstSceneGenerated ||
			(state == models.StateMultipleScenes && !ctx.IsComplete),
		CanEditBeats:       state == models.StateBeatsLoaded || state == models.StateEmpty,
		CanEditScript:      true,
		IsUploadedScript:   uploaded,
		CanReprocessUpload: uploaded && (state == models.StateEmpty || state == models.StateUploaded),
	}
}
