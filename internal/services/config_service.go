// internal/services/config_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/config"
	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

// ConfigService 管理排版设置的修改与订阅
type ConfigService struct {
	// 配置变更事件订阅者
	subscribers []FormatSettingsSubscriber

	// 配置历史记录
	changeHistory []ConfigChangeRecord

	mu     sync.RWMutex
	logger *utils.Logger
}

// FormatSettingsSubscriber 排版设置变更订阅者
type FormatSettingsSubscriber interface {
	OnFormatSettingsChanged(oldSettings, newSettings models.FormatSettings)
}

// ConfigChangeRecord 配置变更记录
type ConfigChangeRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	ChangedBy string            `json:"changed_by"`
	Section   string            `json:"section"`
	OldLayout models.PageLayout `json:"old_layout"`
	NewLayout models.PageLayout `json:"new_layout"`
}

const maxChangeHistory = 1000

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		subscribers:   make([]FormatSettingsSubscriber, 0),
		changeHistory: make([]ConfigChangeRecord, 0, 16),
		logger:        utils.GetLogger().Named("config"),
	}
}

// GetFormatSettings 当前排版设置
func (s *ConfigService) GetFormatSettings() models.FormatSettings {
	return config.GetCurrentConfig().FormatSettings
}

// UpdateFormatSettings 保存新的排版设置并同步通知订阅者
func (s *ConfigService) UpdateFormatSettings(settings models.FormatSettings, changedBy string) (models.FormatSettings, error) {
	if settings.PageLayout.Height <= 0 || settings.PageLayout.Width <= 0 {
		return models.FormatSettings{}, apperrors.NewValidationError("page width and height must be positive", nil)
	}
	for elementType := range settings.Elements {
		if !elementType.IsValid() {
			return models.FormatSettings{}, apperrors.NewValidationError("unknown element type "+string(elementType), nil)
		}
	}

	old := config.GetCurrentConfig().FormatSettings
	if err := config.UpdateFormatSettings(settings); err != nil {
		return models.FormatSettings{}, apperrors.NewProcessingError("failed to save format settings", err)
	}
	updated := config.GetCurrentConfig().FormatSettings

	s.recordChange("format_settings", old.PageLayout, updated.PageLayout, changedBy)
	s.logger.Info("format settings updated", map[string]interface{}{
		"changed_by": changedBy,
		"height":     updated.PageLayout.Height,
		"width":      updated.PageLayout.Width,
	})

	s.notifySubscribers(old, updated)
	return updated, nil
}

// SubscribeToChanges 订阅排版设置变更
func (s *ConfigService) SubscribeToChanges(subscriber FormatSettingsSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, subscriber)
}

// UnsubscribeFromChanges 取消订阅
func (s *ConfigService) UnsubscribeFromChanges(subscriber FormatSettingsSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subscribers {
		if sub == subscriber {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

func (s *ConfigService) notifySubscribers(oldSettings, newSettings models.FormatSettings) {
	s.mu.RLock()
	subscribers := make([]FormatSettingsSubscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber.OnFormatSettingsChanged(oldSettings, newSettings)
	}
}

// GetChangeHistory 最近 limit 条变更，limit <= 0 时返回全部
func (s *ConfigService) GetChangeHistory(limit int) []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.changeHistory) {
		limit = len(s.changeHistory)
	}

	history := make([]ConfigChangeRecord, limit)
	copy(history, s.changeHistory[len(s.changeHistory)-limit:])
	return history
}

func (s *ConfigService) recordChange(section string, oldLayout, newLayout models.PageLayout, changedBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if changedBy == "" {
		changedBy = "system"
	}
	if len(s.changeHistory) >= maxChangeHistory {
		s.changeHistory = s.changeHistory[1:]
	}
	s.changeHistory = append(s.changeHistory, ConfigChangeRecord{
		Timestamp: time.Now(),
		ChangedBy: changedBy,
		Section:   section,
		OldLayout: oldLayout,
		NewLayout: newLayout,
	})
}
