package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/models"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	return fs
}

func TestSaveAndLoadText(t *testing.T) {
	fs := newTestStorage(t)

	if err := fs.SaveTextFile("a/b", "note.txt", []byte("first")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	got, err := fs.LoadTextFile("a/b", "note.txt")
	if err != nil || string(got) != "first" {
		t.Fatalf("读取结果不正确: %q %v", got, err)
	}
	if fs.CachedFiles() != 1 {
		t.Fatalf("读取后应缓存文件, 实际 %d", fs.CachedFiles())
	}

	// 写入后缓存失效
	if err := fs.SaveTextFile("a/b", "note.txt", []byte("second")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	got, _ = fs.LoadTextFile("a/b", "note.txt")
	if string(got) != "second" {
		t.Fatalf("写入后应读到新内容, 实际 %q", got)
	}

	if _, err := os.Stat(filepath.Join(fs.BaseDir, "a/b", "note.txt.tmp")); !os.IsNotExist(err) {
		t.Fatal("临时文件不应残留")
	}
}

func TestLoadMissingFile(t *testing.T) {
	fs := newTestStorage(t)

	_, err := fs.LoadTextFile("nowhere", "missing.json")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("缺失文件应返回 os.ErrNotExist, 实际 %v", err)
	}

	dirs, err := fs.ListDirs("nowhere")
	if err != nil || len(dirs) != 0 {
		t.Fatalf("不存在的目录应返回空列表: %v %v", dirs, err)
	}
}

func TestDeleteDirClearsCache(t *testing.T) {
	fs := newTestStorage(t)
	fs.SaveJSONFile("scripts/x", "script.json", map[string]string{"id": "x"})

	var v map[string]string
	if err := fs.LoadJSONFile("scripts/x", "script.json", &v); err != nil || v["id"] != "x" {
		t.Fatalf("读取JSON失败: %v %v", v, err)
	}

	if err := fs.DeleteDir("scripts/x"); err != nil {
		t.Fatalf("删除目录失败: %v", err)
	}
	if fs.DirExists("scripts/x") {
		t.Fatal("目录应已删除")
	}
	if fs.CachedFiles() != 0 {
		t.Fatal("删除目录后缓存应被清除")
	}
	if _, err := fs.LoadTextFile("scripts/x", "script.json"); err == nil {
		t.Fatal("删除后不应再读到文件")
	}

	if err := fs.DeleteDir("scripts/x"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("重复删除应返回 os.ErrNotExist, 实际 %v", err)
	}
}

func TestDeleteDirStaysInsideBase(t *testing.T) {
	fs := newTestStorage(t)
	fs.SaveJSONFile("scripts/x", "script.json", map[string]string{"id": "x"})

	for _, dir := range []string{"", ".", "..", "scripts/../..", "../other"} {
		if err := fs.DeleteDir(dir); err == nil {
			t.Fatalf("不应允许删除 %q", dir)
		}
	}
	if !fs.FileExists("scripts/x", "script.json") {
		t.Fatal("拒绝删除后数据应保持不变")
	}
	if _, err := os.Stat(fs.BaseDir); err != nil {
		t.Fatalf("存储目录不应被删除: %v", err)
	}
}

func TestScriptStoreRejectsUnsafeIDs(t *testing.T) {
	fs := newTestStorage(t)
	store := NewScriptStore(fs)
	if err := store.SaveScript(&models.ScriptRecord{ID: "keep", Title: "keep"}); err != nil {
		t.Fatalf("保存剧本失败: %v", err)
	}

	for _, id := range []string{"", ".", "..", "../keep", "a/b", `a\b`} {
		t.Run(id, func(t *testing.T) {
			if err := store.DeleteScript(id); !errors.Is(err, ErrScriptNotFound) {
				t.Fatalf("删除应返回 ErrScriptNotFound, 实际 %v", err)
			}
			if _, err := store.LoadScript(id); !errors.Is(err, ErrScriptNotFound) {
				t.Fatalf("读取应返回 ErrScriptNotFound, 实际 %v", err)
			}
			if err := store.SaveScript(&models.ScriptRecord{ID: id}); err == nil {
				t.Fatal("不应保存非法ID的剧本")
			}
			if err := store.SaveBeats(id, nil); err == nil {
				t.Fatal("不应保存非法ID的节拍")
			}
			if _, err := store.LoadScenes(id); !errors.Is(err, ErrScriptNotFound) {
				t.Fatalf("读取场景应返回 ErrScriptNotFound, 实际 %v", err)
			}
			if store.ScriptExists(id) {
				t.Fatal("非法ID不应存在")
			}
		})
	}

	if !store.ScriptExists("keep") {
		t.Fatal("已有剧本不应受影响")
	}
	if _, err := os.Stat(filepath.Join(fs.BaseDir, "scripts")); err != nil {
		t.Fatalf("scripts 目录不应被删除: %v", err)
	}
}

func TestScriptStoreRecords(t *testing.T) {
	store := NewScriptStore(newTestStorage(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"late", "early", "same-b", "same-a"} {
		created := base.Add(time.Duration(i) * time.Hour)
		switch id {
		case "early":
			created = base.Add(-time.Hour)
		case "same-a", "same-b":
			created = base.Add(10 * time.Hour)
		}
		if err := store.SaveScript(&models.ScriptRecord{ID: id, Title: id, CreatedAt: created}); err != nil {
			t.Fatalf("保存剧本失败: %v", err)
		}
	}

	records, err := store.ListScripts()
	if err != nil {
		t.Fatalf("列出剧本失败: %v", err)
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	want := []string{"early", "late", "same-a", "same-b"}
	if len(ids) != len(want) {
		t.Fatalf("剧本数量不正确: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("剧本应按创建时间和ID排序: %v", ids)
		}
	}

	if err := store.SaveScript(&models.ScriptRecord{}); err == nil {
		t.Fatal("没有ID的剧本不应保存")
	}

	if _, err := store.LoadScript("ghost"); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("不存在的剧本应返回 ErrScriptNotFound, 实际 %v", err)
	}
	if err := store.DeleteScript("ghost"); !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("删除不存在的剧本应返回 ErrScriptNotFound, 实际 %v", err)
	}

	if err := store.DeleteScript("late"); err != nil {
		t.Fatalf("删除剧本失败: %v", err)
	}
	if store.ScriptExists("late") {
		t.Fatal("剧本应已删除")
	}
}

func TestScriptStoreBeatsAndScenes(t *testing.T) {
	store := NewScriptStore(newTestStorage(t))
	store.SaveScript(&models.ScriptRecord{ID: "s1", Title: "s1"})

	beats, err := store.LoadBeats("s1")
	if err != nil || beats == nil || len(beats) != 0 {
		t.Fatalf("尚未生成的节拍应为空列表: %v %v", beats, err)
	}

	store.SaveBeats("s1", []models.Beat{
		{ID: "b2", Position: 2},
		{ID: "b0", Position: 0},
		{ID: "b1", Position: 1},
	})
	beats, _ = store.LoadBeats("s1")
	for i, b := range beats {
		if b.Position != i {
			t.Fatalf("节拍应按位置排序: %+v", beats)
		}
	}

	scenes, err := store.LoadScenes("s1")
	if err != nil || len(scenes) != 0 {
		t.Fatalf("尚未生成的场景应为空列表: %v %v", scenes, err)
	}
	store.SaveScenes("s1", []models.SceneSegment{{ID: "c1", Position: 1}, {ID: "c0", Position: 0}})
	scenes, _ = store.LoadScenes("s1")
	if len(scenes) != 2 || scenes[0].ID != "c0" {
		t.Fatalf("场景应按位置排序: %+v", scenes)
	}
}
