// internal/lifecycle/initialize.go
package lifecycle

import (
	"context"
	"strings"

	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/models"
)

// Profile 外部系统对一个剧本的描述，用来推导初始状态
type Profile struct {
	CreationMethod        models.CreationMethod
	BeatsCount            int
	ScenesCount           int
	IsComplete            bool
	CurrentSceneSegmentID string
	UploadInfo            *models.UploadInfo
}

// Resolver 根据剧本标识查询 Profile
type Resolver interface {
	Resolve(ctx context.Context, scriptID string) (Profile, error)
}

// ResolverFunc 函数适配器
type ResolverFunc func(ctx context.Context, scriptID string) (Profile, error)

// Resolve 实现 Resolver
func (f ResolverFunc) Resolve(ctx context.Context, scriptID string) (Profile, error) {
	return f(ctx, scriptID)
}

// InitialState 由 Profile 推导起始状态
func InitialState(p Profile) models.LifecycleState {
	switch {
	case p.IsComplete:
		return models.StateComplete
	case p.CreationMethod == models.CreationUpload:
		// 还没有上传过文件的剧本从 empty 开始
		if p.UploadInfo == nil && p.ScenesCount == 0 {
			return models.StateEmpty
		}
		return models.StateUploaded
	case p.ScenesCount > 1:
		return models.StateMultipleScenes
	case p.ScenesCount == 1:
		return models.StateFirstSceneGenerated
	case p.BeatsCount > 0:
		return models.StateBeatsLoaded
	default:
		return models.StateEmpty
	}
}

// Initialize 解析剧本标识，得到会话的起始快照。
// 失败时返回 InitializationError 和停留在 empty 的快照，不会自动重试。
func Initialize(ctx context.Context, scriptID string, resolver Resolver) (Snapshot, error) {
	scriptID = strings.TrimSpace(scriptID)
	fallback := NewSnapshot(scriptID, models.CreationFromScratch)

	if scriptID == "" {
		return fallback, apperrors.NewInitializationError("script identifier is empty", nil)
	}
	if resolver == nil {
		return fallback, apperrors.NewInitializationError("no resolver configured", nil)
	}

	profile, err := resolver.Resolve(ctx, scriptID)
	if err != nil {
		return fallback, apperrors.NewInitializationError("failed to resolve script "+scriptID, err)
	}

	method := profile.CreationMethod
	if method == "" {
		method = models.CreationFromScratch
	}
	scenes := profile.ScenesCount
	if scenes < 0 {
		scenes = 0
	}

	snapshot := Snapshot{
		State: InitialState(profile),
		Context: models.ScriptContext{
			ScriptID:              scriptID,
			CreationMethod:        method,
			HasBeats:              profile.BeatsCount > 0,
			ScenesCount:           scenes,
			IsComplete:            profile.IsComplete,
			CurrentSceneSegmentID: profile.CurrentSceneSegmentID,
		},
	}
	if profile.UploadInfo != nil {
		info := *profile.UploadInfo
		snapshot.Context.UploadInfo = &info
	}
	return snapshot, nil
}

// IdentifierResolver 仅凭标识推断剧本类型：
// 含 "ai" 的为 AI 辅助剧本并已有节拍，另含 "scene" 时已有一个场景；
// 含 "upload" 的为上传剧本。
type IdentifierResolver struct{}

// Resolve 实现 Resolver
func (IdentifierResolver) Resolve(_ context.Context, scriptID string) (Profile, error) {
	id := strings.ToLower(scriptID)
	switch {
	case strings.Contains(id, "ai"):
		p := Profile{CreationMethod: models.CreationWithAI, BeatsCount: 1}
		if strings.Contains(id, "scene") {
			p.ScenesCount = 1
		}
		return p, nil
	case strings.Contains(id, "upload"):
		return Profile{CreationMethod: models.CreationUpload, ScenesCount: 1}, nil
	default:
		return Profile{CreationMethod: models.CreationFromScratch}, nil
	}
}
