// internal/storage/script_store.go
package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Corphon/ScreenplayStudio/internal/models"
)

const (
	scriptsDir     = "scripts"
	scriptFileName = "script.json"
	beatsFileName  = "beats.json"
	scenesFileName = "scenes.json"
)

// ErrScriptNotFound 剧本不存在
var ErrScriptNotFound = errors.New("script not found")

// ScriptStore 按 <data>/scripts/<id>/ 保存剧本记录、节拍与场景片段
type ScriptStore struct {
	fs *FileStorage
}

// NewScriptStore 创建剧本存储
func NewScriptStore(fs *FileStorage) *ScriptStore {
	return &ScriptStore{fs: fs}
}

// scriptDir 返回剧本目录。id 必须是单个路径段，否则按不存在处理。
func scriptDir(scriptID string) (string, error) {
	if scriptID == "" || scriptID == "." || scriptID == ".." || strings.ContainsAny(scriptID, `/\`) {
		return "", fmt.Errorf("%w: invalid id %q", ErrScriptNotFound, scriptID)
	}
	return path.Join(scriptsDir, scriptID), nil
}

// SaveScript 保存剧本记录
func (s *ScriptStore) SaveScript(record *models.ScriptRecord) error {
	if record == nil {
		return fmt.Errorf("script record is nil")
	}
	dir, err := scriptDir(record.ID)
	if err != nil {
		return err
	}
	return s.fs.SaveJSONFile(dir, scriptFileName, record)
}

// LoadScript 读取剧本记录，不存在时返回 ErrScriptNotFound
func (s *ScriptStore) LoadScript(scriptID string) (*models.ScriptRecord, error) {
	dir, err := scriptDir(scriptID)
	if err != nil {
		return nil, err
	}
	var record models.ScriptRecord
	if err := s.fs.LoadJSONFile(dir, scriptFileName, &record); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, scriptID)
		}
		return nil, err
	}
	return &record, nil
}

// ScriptExists 检查剧本记录是否存在
func (s *ScriptStore) ScriptExists(scriptID string) bool {
	dir, err := scriptDir(scriptID)
	if err != nil {
		return false
	}
	return s.fs.FileExists(dir, scriptFileName)
}

// ListScripts 按创建时间列出所有剧本，无法读取的目录会被跳过
func (s *ScriptStore) ListScripts() ([]*models.ScriptRecord, error) {
	ids, err := s.fs.ListDirs(scriptsDir)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ScriptRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.LoadScript(id)
		if err != nil {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteScript 删除剧本及其全部数据
func (s *ScriptStore) DeleteScript(scriptID string) error {
	dir, err := scriptDir(scriptID)
	if err != nil {
		return err
	}
	if err := s.fs.DeleteDir(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrScriptNotFound, scriptID)
		}
		return err
	}
	return nil
}

// SaveBeats 保存节拍列表
func (s *ScriptStore) SaveBeats(scriptID string, beats []models.Beat) error {
	if beats == nil {
		beats = []models.Beat{}
	}
	dir, err := scriptDir(scriptID)
	if err != nil {
		return err
	}
	return s.fs.SaveJSONFile(dir, beatsFileName, beats)
}

// LoadBeats 读取节拍列表，尚未生成时返回空列表
func (s *ScriptStore) LoadBeats(scriptID string) ([]models.Beat, error) {
	dir, err := scriptDir(scriptID)
	if err != nil {
		return nil, err
	}
	beats := []models.Beat{}
	if err := s.fs.LoadJSONFile(dir, beatsFileName, &beats); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.Beat{}, nil
		}
		return nil, err
	}
	sort.SliceStable(beats, func(i, j int) bool { return beats[i].Position < beats[j].Position })
	return beats, nil
}

// SaveScenes 保存场景片段
func (s *ScriptStore) SaveScenes(scriptID string, scenes []models.SceneSegment) error {
	if scenes == nil {
		scenes = []models.SceneSegment{}
	}
	dir, err := scriptDir(scriptID)
	if err != nil {
		return err
	}
	return s.fs.SaveJSONFile(dir, scenesFileName, scenes)
}

// LoadScenes 读取场景片段，尚未生成时返回空列表
func (s *ScriptStore) LoadScenes(scriptID string) ([]models.SceneSegment, error) {
	dir, err := scriptDir(scriptID)
	if err != nil {
		return nil, err
	}
	scenes := []models.SceneSegment{}
	if err := s.fs.LoadJSONFile(dir, scenesFileName, &scenes); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.SceneSegment{}, nil
		}
		return nil, err
	}
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Position < scenes[j].Position })
	return scenes, nil
}
