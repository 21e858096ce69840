package services

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/config"
	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/storage"
)

func newTestFileStorage(t *testing.T) *storage.FileStorage {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	return fs
}

func newTestLocks(t *testing.T) *LockManager {
	t.Helper()
	locks := NewLockManager(time.Minute)
	t.Cleanup(locks.Stop)
	return locks
}

func newTestBackend(t *testing.T) *BackendService {
	t.Helper()
	return NewBackendService(storage.NewScriptStore(newTestFileStorage(t)), newTestLocks(t), 0, 1)
}

func createTestScript(t *testing.T, b *BackendService, method models.CreationMethod) *models.ScriptRecord {
	t.Helper()
	record, err := b.CreateScript(context.Background(), CreateScriptInput{
		Title:          "Night Diner",
		CreationMethod: string(method),
	})
	if err != nil {
		t.Fatalf("创建剧本失败: %v", err)
	}
	return record
}

// initTestConfig 把配置目录指向临时目录
func initTestConfig(t *testing.T) string {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	dir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	if err := config.InitConfig(filepath.Join(dir, "data")); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	return dir
}

func TestCreateScript(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	record, err := b.CreateScript(ctx, CreateScriptInput{Title: "  Night Diner  ", Subtitle: "a short"})
	if err != nil {
		t.Fatalf("创建剧本失败: %v", err)
	}
	if record.ID == "" || record.Title != "Night Diner" {
		t.Fatalf("剧本记录不正确: %+v", record)
	}
	if record.Genre != "Unknown" {
		t.Errorf("未填写类型时应为 Unknown, 实际 %q", record.Genre)
	}
	if record.CreationMethod != models.CreationFromScratch {
		t.Errorf("默认创建方式应为 FROM_SCRATCH, 实际 %s", record.CreationMethod)
	}

	got, err := b.GetScript(ctx, record.ID)
	if err != nil || got.Subtitle != "a short" {
		t.Fatalf("读取剧本失败: %+v %v", got, err)
	}

	t.Run("缺少标题", func(t *testing.T) {
		_, err := b.CreateScript(ctx, CreateScriptInput{Title: "   "})
		if !apperrors.IsValidationError(err) {
			t.Fatalf("应返回验证错误, 实际 %v", err)
		}
	})

	t.Run("未知的创建方式", func(t *testing.T) {
		_, err := b.CreateScript(ctx, CreateScriptInput{Title: "x", CreationMethod: "TYPEWRITER"})
		if !apperrors.IsValidationError(err) {
			t.Fatalf("应返回验证错误, 实际 %v", err)
		}
	})

	t.Run("不存在的剧本", func(t *testing.T) {
		if _, err := b.GetScript(ctx, "ghost"); !apperrors.IsNotFoundError(err) {
			t.Fatalf("应返回未找到错误, 实际 %v", err)
		}
	})
}

func TestDeleteScript(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)

	if err := b.DeleteScript(ctx, record.ID); err != nil {
		t.Fatalf("删除剧本失败: %v", err)
	}
	if _, err := b.GetScript(ctx, record.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("删除后应找不到剧本, 实际 %v", err)
	}
	if err := b.DeleteScript(ctx, record.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("重复删除应返回未找到错误, 实际 %v", err)
	}
}

func TestGenerateBeats(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)

	beats, err := b.GenerateBeats(ctx, record.ID)
	if err != nil {
		t.Fatalf("生成节拍失败: %v", err)
	}
	if len(beats) != 12 {
		t.Fatalf("应生成 12 个节拍, 实际 %d", len(beats))
	}

	perAct := map[models.Act]int{}
	for i, beat := range beats {
		if beat.Position != i+1 {
			t.Fatalf("节拍位置应从 1 开始连续, 第 %d 个为 %d", i, beat.Position)
		}
		if !strings.Contains(beat.Description, "Night Diner") {
			t.Errorf("节拍描述应包含剧本标题: %q", beat.Description)
		}
		perAct[beat.Act]++
	}
	for _, act := range models.Acts {
		if perAct[act] != 3 {
			t.Errorf("%s 应有 3 个节拍, 实际 %d", act, perAct[act])
		}
	}

	again, err := b.GenerateBeats(ctx, record.ID)
	if err != nil {
		t.Fatalf("再次生成节拍失败: %v", err)
	}
	if len(again) != 12 || again[0].ID != beats[0].ID {
		t.Fatal("已有节拍时应直接返回已有节拍")
	}

	if _, err := b.GenerateBeats(ctx, "ghost"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的剧本应返回未找到错误, 实际 %v", err)
	}
}

func TestUpdateBeat(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)
	beats, _ := b.GenerateBeats(ctx, record.ID)

	updated, err := b.UpdateBeat(ctx, record.ID, beats[0].ID, models.BeatUpdate{
		Title: "Cold Open",
		Act:   "act_2b",
	})
	if err != nil {
		t.Fatalf("修改节拍失败: %v", err)
	}
	if updated.Title != "Cold Open" || updated.Act != models.Act2B {
		t.Fatalf("节拍修改未生效: %+v", updated)
	}
	if updated.Description != beats[0].Description {
		t.Error("空字段应保持不变")
	}

	stored, _ := b.GetBeats(ctx, record.ID)
	if stored[0].Title != "Cold Open" {
		t.Fatal("修改应被持久化")
	}

	if _, err := b.UpdateBeat(ctx, record.ID, "missing", models.BeatUpdate{Title: "x"}); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的节拍应返回未找到错误, 实际 %v", err)
	}
	if _, err := b.UpdateBeat(ctx, "ghost", beats[0].ID, models.BeatUpdate{}); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的剧本应返回未找到错误, 实际 %v", err)
	}
}

func TestGenerateScene(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)

	if _, err := b.GenerateScene(ctx, record.ID); !apperrors.IsValidationError(err) {
		t.Fatalf("没有节拍时应返回验证错误, 实际 %v", err)
	}

	beats, _ := b.GenerateBeats(ctx, record.ID)

	headings := []string{
		"INT. LOCATION 1 - DAY",
		"EXT. LOCATION 2 - DAY",
		"INT. LOCATION 3 - NIGHT",
	}
	for i, want := range headings {
		scene, err := b.GenerateScene(ctx, record.ID)
		if err != nil {
			t.Fatalf("生成场景失败: %v", err)
		}
		if scene.Position != i+1 || scene.SceneHeading != want {
			t.Fatalf("第 %d 场不正确: %+v", i+1, scene)
		}
		if scene.BeatID != beats[i].ID {
			t.Fatalf("第 %d 场应对应第 %d 个节拍", i+1, i+1)
		}
	}

	got, _ := b.GetScript(ctx, record.ID)
	if got.Progress != 25 {
		t.Errorf("3/12 个节拍已有场景, 进度应为 25, 实际 %d", got.Progress)
	}

	// 节拍用完后继续挂在最后一个节拍上
	var last string
	for i := len(headings); i < len(beats)+1; i++ {
		scene, err := b.GenerateScene(ctx, record.ID)
		if err != nil {
			t.Fatalf("生成场景失败: %v", err)
		}
		last = scene.BeatID
	}
	if last != beats[len(beats)-1].ID {
		t.Fatal("超出节拍数量的场景应对应最后一个节拍")
	}

	scenes, _ := b.ListScenes(ctx, record.ID)
	if len(scenes) != 13 {
		t.Fatalf("应有 13 个场景, 实际 %d", len(scenes))
	}
	got, _ = b.GetScript(ctx, record.ID)
	if got.Progress != 100 {
		t.Errorf("进度不应超过 100, 实际 %d", got.Progress)
	}
}

func TestUpdateSceneDescription(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)
	b.GenerateBeats(ctx, record.ID)
	scene, _ := b.GenerateScene(ctx, record.ID)

	updated, err := b.UpdateSceneDescription(ctx, record.ID, scene.ID, " Mara waits. ")
	if err != nil || updated.SceneDescription != "Mara waits." {
		t.Fatalf("修改场景描述失败: %+v %v", updated, err)
	}

	if _, err := b.UpdateSceneDescription(ctx, record.ID, scene.ID, "  "); !apperrors.IsValidationError(err) {
		t.Fatalf("空描述应返回验证错误, 实际 %v", err)
	}
	if _, err := b.UpdateSceneDescription(ctx, record.ID, "missing", "x"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的场景应返回未找到错误, 实际 %v", err)
	}
}

func TestMarkCompleteAndRecordUpload(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationUpload)

	info := models.UploadInfo{FileName: "draft.fdx", FileType: "application/xml", UploadDate: time.Now()}
	if err := b.RecordUpload(ctx, record.ID, info); err != nil {
		t.Fatalf("保存上传信息失败: %v", err)
	}
	if err := b.MarkComplete(ctx, record.ID); err != nil {
		t.Fatalf("标记完成失败: %v", err)
	}

	got, _ := b.GetScript(ctx, record.ID)
	if !got.IsComplete || got.Progress != 100 {
		t.Fatalf("完成的剧本进度应为 100: %+v", got)
	}
	if got.UploadInfo == nil || got.UploadInfo.FileName != "draft.fdx" {
		t.Fatalf("上传信息未保存: %+v", got.UploadInfo)
	}

	if err := b.MarkComplete(ctx, "ghost"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的剧本应返回未找到错误, 实际 %v", err)
	}
}

func TestResolve(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	record := createTestScript(t, b, models.CreationWithAI)
	b.GenerateBeats(ctx, record.ID)
	b.GenerateScene(ctx, record.ID)
	second, _ := b.GenerateScene(ctx, record.ID)

	profile, err := b.Resolve(ctx, record.ID)
	if err != nil {
		t.Fatalf("解析剧本失败: %v", err)
	}
	if profile.CreationMethod != models.CreationWithAI || profile.BeatsCount != 12 || profile.ScenesCount != 2 {
		t.Fatalf("剧本描述不正确: %+v", profile)
	}
	if profile.CurrentSceneSegmentID != second.ID {
		t.Errorf("当前场景应为最后生成的场景")
	}

	if _, err := b.Resolve(ctx, "ghost"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的剧本应返回未找到错误, 实际 %v", err)
	}
}

func TestGenerationThrottle(t *testing.T) {
	store := storage.NewScriptStore(newTestFileStorage(t))
	b := NewBackendService(store, newTestLocks(t), time.Hour, 1)
	record := createTestScript(t, b, models.CreationWithAI)

	if _, err := b.GenerateBeats(context.Background(), record.ID); err != nil {
		t.Fatalf("第一次生成不应被限速: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.GenerateScene(ctx, record.ID); !apperrors.IsRateLimitedError(err) {
		t.Fatalf("超出速率应返回限速错误, 实际 %v", err)
	}

	scenes, _ := b.ListScenes(context.Background(), record.ID)
	if len(scenes) != 0 {
		t.Fatal("被限速的生成不应写入场景")
	}
}
