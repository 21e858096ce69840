// internal/services/backend_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/storage"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// CreateScriptInput 创建剧本的参数
type CreateScriptInput struct {
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Genre          string `json:"genre"`
	Story          string `json:"story"`
	CreationMethod string `json:"creation_method"`
}

// beatTemplate 每一幕的节拍模板
type beatTemplate struct {
	act   models.Act
	title string
	brief string
}

var beatSheetTemplate = []beatTemplate{
	{models.Act1, "Opening Image", "A snapshot of %s before anything changes."},
	{models.Act1, "Catalyst", "Something arrives that %s cannot ignore."},
	{models.Act1, "Debate", "Doubt: should %s step into the unknown?"},
	{models.Act2A, "Break into Two", "%s commits and crosses into a new world."},
	{models.Act2A, "Fun and Games", "The promise of the premise plays out for %s."},
	{models.Act2A, "Midpoint", "A false victory or false defeat raises the stakes for %s."},
	{models.Act2B, "Bad Guys Close In", "Pressure mounts and the plan of %s unravels."},
	{models.Act2B, "All Is Lost", "The lowest point of %s."},
	{models.Act2B, "Dark Night of the Soul", "%s confronts what really has to change."},
	{models.Act3, "Break into Three", "A new idea gives %s a way forward."},
	{models.Act3, "Finale", "%s applies the lesson and faces the final test."},
	{models.Act3, "Final Image", "The mirror of the opening: %s transformed."},
}

// BackendService 基于文件的剧本后端，按剧本标识返回节拍和生成的场景片段
type BackendService struct {
	store   *storage.ScriptStore
	locks   *LockManager
	limiter *rate.Limiter
	logger  *utils.Logger
	now     func() time.Time
}

// NewBackendService 创建后端服务。interval <= 0 时生成操作不限速。
func NewBackendService(store *storage.ScriptStore, locks *LockManager, interval time.Duration, burst int) *BackendService {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst <= 0 {
		burst = 1
	}

	return &BackendService{
		store:   store,
		locks:   locks,
		limiter: rate.NewLimiter(limit, burst),
		logger:  utils.GetLogger().Named("backend"),
		now:     time.Now,
	}
}

// waitForGeneration 生成类操作的限速
func (s *BackendService) waitForGeneration(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return apperrors.NewRateLimitedError("generation throttled", err)
	}
	return nil
}

func notFoundOr(err error, scriptID string) error {
	if errors.Is(err, storage.ErrScriptNotFound) {
		return apperrors.NewNotFoundError("script "+scriptID+" not found", err)
	}
	return apperrors.NewProcessingError("failed to read script "+scriptID, err)
}

// CreateScript 创建剧本记录
func (s *BackendService) CreateScript(ctx context.Context, input CreateScriptInput) (*models.ScriptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	method, ok := models.ParseCreationMethod(strings.TrimSpace(input.CreationMethod))
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown creation method %q", input.CreationMethod), nil)
	}
	genre := strings.TrimSpace(input.Genre)
	if genre == "" {
		genre = "Unknown"
	}

	now := s.now()
	record := &models.ScriptRecord{
		ID:             uuid.NewString(),
		Title:          title,
		Subtitle:       strings.TrimSpace(input.Subtitle),
		Genre:          genre,
		Story:          strings.TrimSpace(input.Story),
		CreationMethod: method,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.SaveScript(record); err != nil {
		return nil, apperrors.NewProcessingError("failed to save script", err)
	}

	s.logger.Info("script created", map[string]interface{}{
		"script_id": record.ID,
		"method":    method,
	})
	return record, nil
}

// GetScript 读取剧本记录并计算进度
func (s *BackendService) GetScript(ctx context.Context, scriptID string) (*models.ScriptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := s.store.LoadScript(scriptID)
	if err != nil {
		return nil, notFoundOr(err, scriptID)
	}
	s.fillProgress(record)
	return record, nil
}

// ListScripts 列出全部剧本
func (s *BackendService) ListScripts(ctx context.Context) ([]*models.ScriptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.store.ListScripts()
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to list scripts", err)
	}
	for _, record := range records {
		s.fillProgress(record)
	}
	return records, nil
}

// DeleteScript 删除剧本及其节拍、场景
func (s *BackendService) DeleteScript(ctx context.Context, scriptID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.locks.ExecuteWithScriptLock(scriptID, func() error {
		if err := s.store.DeleteScript(scriptID); err != nil {
			return notFoundOr(err, scriptID)
		}
		return nil
	})
}

func (s *BackendService) fillProgress(record *models.ScriptRecord) {
	if record.IsComplete {
		record.Progress = 100
		return
	}
	beats, err := s.store.LoadBeats(record.ID)
	if err != nil || len(beats) == 0 {
		record.Progress = 0
		return
	}
	scenes, err := s.store.LoadScenes(record.ID)
	if err != nil {
		record.Progress = 0
		return
	}
	progress := len(scenes) * 100 / len(beats)
	if progress > 100 {
		progress = 100
	}
	record.Progress = progress
}

// GetBeats 返回剧本的节拍列表
func (s *BackendService) GetBeats(ctx context.Context, scriptID string) ([]models.Beat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.store.ScriptExists(scriptID) {
		return nil, apperrors.NewNotFoundError("script "+scriptID+" not found", nil)
	}
	beats, err := s.store.LoadBeats(scriptID)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to load beats", err)
	}
	return beats, nil
}

// GenerateBeats 按四幕模板生成节拍表。已有节拍时直接返回已有节拍。
func (s *BackendService) GenerateBeats(ctx context.Context, scriptID string) ([]models.Beat, error) {
	if err := s.waitForGeneration(ctx); err != nil {
		return nil, err
	}

	var beats []models.Beat
	err := s.locks.ExecuteWithScriptLock(scriptID, func() error {
		record, err := s.store.LoadScript(scriptID)
		if err != nil {
			return notFoundOr(err, scriptID)
		}

		existing, err := s.store.LoadBeats(scriptID)
		if err != nil {
			return apperrors.NewProcessingError("failed to load beats", err)
		}
		if len(existing) > 0 {
			beats = existing
			return nil
		}

		protagonist := "the protagonist"
		if record.Title != "" {
			protagonist = "the hero of " + record.Title
		}

		now := s.now()
		beats = make([]models.Beat, len(beatSheetTemplate))
		for i, tpl := range beatSheetTemplate {
			beats[i] = models.Beat{
				ID:          uuid.NewString(),
				ScriptID:    scriptID,
				Title:       tpl.title,
				Description: fmt.Sprintf(tpl.brief, protagonist),
				Act:         tpl.act,
				Position:    i + 1,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		if err := s.store.SaveBeats(scriptID, beats); err != nil {
			return apperrors.NewProcessingError("failed to save beats", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("beats generated", map[string]interface{}{
		"script_id": scriptID,
		"count":     len(beats),
	})
	return beats, nil
}

// UpdateBeat 修改节拍的标题、描述或所属幕
func (s *BackendService) UpdateBeat(ctx context.Context, scriptID, beatID string, update models.BeatUpdate) (*models.Beat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var updated models.Beat
	err := s.locks.ExecuteWithScriptLock(scriptID, func() error {
		if !s.store.ScriptExists(scriptID) {
			return apperrors.NewNotFoundError("script "+scriptID+" not found", nil)
		}
		beats, err := s.store.LoadBeats(scriptID)
		if err != nil {
			return apperrors.NewProcessingError("failed to load beats", err)
		}

		idx := -1
		for i := range beats {
			if beats[i].ID == beatID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return apperrors.NewNotFoundError("beat "+beatID+" not found", nil)
		}

		if title := strings.TrimSpace(update.Title); title != "" {
			beats[idx].Title = title
		}
		if desc := strings.TrimSpace(update.Description); desc != "" {
			beats[idx].Description = desc
		}
		if act := strings.TrimSpace(update.Act); act != "" {
			beats[idx].Act = models.ActFromWire(act)
		}
		beats[idx].UpdatedAt = s.now()

		if err := s.store.SaveBeats(scriptID, beats); err != nil {
			return apperrors.NewProcessingError("failed to save beats", err)
		}
		updated = beats[idx]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListScenes 返回已生成的场景片段
func (s *BackendService) ListScenes(ctx context.Context, scriptID string) ([]models.SceneSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.store.ScriptExists(scriptID) {
		return nil, apperrors.NewNotFoundError("script "+scriptID+" not found", nil)
	}
	scenes, err := s.store.LoadScenes(scriptID)
	if err != nil {
		return nil, apperrors.NewProcessingError("failed to load scenes", err)
	}
	return scenes, nil
}

// GenerateScene 为下一个节拍生成场景片段。节拍用完后继续挂在最后一个节拍上。
func (s *BackendService) GenerateScene(ctx context.Context, scriptID string) (*models.SceneSegment, error) {
	if err := s.waitForGeneration(ctx); err != nil {
		return nil, err
	}

	var scene models.SceneSegment
	err := s.locks.ExecuteWithScriptLock(scriptID, func() error {
		if !s.store.ScriptExists(scriptID) {
			return apperrors.NewNotFoundError("script "+scriptID+" not found", nil)
		}
		beats, err := s.store.LoadBeats(scriptID)
		if err != nil {
			return apperrors.NewProcessingError("failed to load beats", err)
		}
		if len(beats) == 0 {
			return apperrors.NewValidationError("script has no beats to generate scenes from", nil)
		}
		scenes, err := s.store.LoadScenes(scriptID)
		if err != nil {
			return apperrors.NewProcessingError("failed to load scenes", err)
		}

		beatIdx := len(scenes)
		if beatIdx >= len(beats) {
			beatIdx = len(beats) - 1
		}
		beat := beats[beatIdx]
		position := len(scenes) + 1

		scene = models.SceneSegment{
			ID:               uuid.NewString(),
			ScriptID:         scriptID,
			BeatID:           beat.ID,
			Position:         position,
			SceneHeading:     sceneHeading(position),
			SceneDescription: fmt.Sprintf("%s (%s): %s", beat.Title, beat.Act, beat.Description),
			CreatedAt:        s.now(),
		}
		scenes = append(scenes, scene)

		if err := s.store.SaveScenes(scriptID, scenes); err != nil {
			return apperrors.NewProcessingError("failed to save scenes", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("scene generated", map[string]interface{}{
		"script_id": scriptID,
		"scene_id":  scene.ID,
		"position":  scene.Position,
	})
	return &scene, nil
}

func sceneHeading(position int) string {
	place := "INT."
	if position%2 == 0 {
		place = "EXT."
	}
	tod := "DAY"
	if position%3 == 0 {
		tod = "NIGHT"
	}
	return fmt.Sprintf("%s LOCATION %d - %s", place, position, tod)
}

// UpdateSceneDescription 修改场景片段的描述
func (s *BackendService) UpdateSceneDescription(ctx context.Context, scriptID, sceneID, description string) (*models.SceneSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, apperrors.NewValidationError("scene description is required", nil)
	}

	var updated models.SceneSegment
	err := s.locks.ExecuteWithScriptLock(scriptID, func() error {
		if !s.store.ScriptExists(scriptID) {
			return apperrors.NewNotFoundError("script "+scriptID+" not found", nil)
		}
		scenes, err := s.store.LoadScenes(scriptID)
		if err != nil {
			return apperrors.NewProcessingError("failed to load scenes", err)
		}
		for i := range scenes {
			if scenes[i].ID != sceneID {
				continue
			}
			scenes[i].SceneDescription = description
			if err := s.store.SaveScenes(scriptID, scenes); err != nil {
				return apperrors.NewProcessingError("failed to save scenes", err)
			}
			updated = scenes[i]
			return nil
		}
		return apperrors.NewNotFoundError("scene "+sceneID+" not found", nil)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkComplete 持久化完成标记
func (s *BackendService) MarkComplete(ctx context.Context, scriptID string) error {
	return s.updateRecord(ctx, scriptID, func(record *models.ScriptRecord) {
		record.IsComplete = true
	})
}

// RecordUpload 保存上传文件信息
func (s *BackendService) RecordUpload(ctx context.Context, scriptID string, info models.UploadInfo) error {
	return s.updateRecord(ctx, scriptID, func(record *models.ScriptRecord) {
		record.UploadInfo = &info
	})
}

func (s *BackendService) updateRecord(ctx context.Context, scriptID string, mutate func(*models.ScriptRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.locks.ExecuteWithScriptLock(scriptID, func() error {
		record, err := s.store.LoadScript(scriptID)
		if err != nil {
			return notFoundOr(err, scriptID)
		}
		mutate(record)
		record.UpdatedAt = s.now()
		if err := s.store.SaveScript(record); err != nil {
			return apperrors.NewProcessingError("failed to save script", err)
		}
		return nil
	})
}

// Resolve 实现 lifecycle.Resolver，根据保存的记录、节拍和场景描述剧本
func (s *BackendService) Resolve(ctx context.Context, scriptID string) (lifecycle.Profile, error) {
	if err := ctx.Err(); err != nil {
		return lifecycle.Profile{}, err
	}

	record, err := s.store.LoadScript(scriptID)
	if err != nil {
		return lifecycle.Profile{}, notFoundOr(err, scriptID)
	}
	beats, err := s.store.LoadBeats(scriptID)
	if err != nil {
		return lifecycle.Profile{}, err
	}
	scenes, err := s.store.LoadScenes(scriptID)
	if err != nil {
		return lifecycle.Profile{}, err
	}

	profile := lifecycle.Profile{
		CreationMethod: record.CreationMethod,
		BeatsCount:     len(beats),
		ScenesCount:    len(scenes),
		IsComplete:     record.IsComplete,
		UploadInfo:     record.UploadInfo,
	}
	if len(scenes) > 0 {
		profile.CurrentSceneSegmentID = scenes[len(scenes)-1].ID
	}
	return profile, nil
}
