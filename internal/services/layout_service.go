// internal/services/layout_service.go
package services

import (
	"sync"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/config"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/pagination"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

// PageResult 一次分页结果及其使用的版式
type PageResult struct {
	ScriptID string            `json:"script_id"`
	Layout   models.PageLayout `json:"layout"`
	pagination.Result
}

// PaginationNotifier 接收分页结果，实现方不能阻塞
type PaginationNotifier interface {
	NotifyPagination(result PageResult)
}

// scriptLayout 一个剧本的分页状态
type scriptLayout struct {
	paginator *pagination.Paginator
	layout    models.PageLayout
	// explicit 为 false 时跟随默认版式
	explicit bool
	elements  []models.RenderedElement
}

// LayoutService 为每个剧本维护一个分页器
type LayoutService struct {
	mu       sync.Mutex
	scripts  map[string]*scriptLayout
	metrics  *utils.StudioMetrics
	notifier PaginationNotifier
}

// NewLayoutService 创建版式服务
func NewLayoutService(metrics *utils.StudioMetrics) *LayoutService {
	if metrics == nil {
		metrics = utils.NewStudioMetrics()
	}
	return &LayoutService{
		scripts: make(map[string]*scriptLayout),
		metrics: metrics,
	}
}

// SetNotifier 设置分页结果的接收方
func (s *LayoutService) SetNotifier(n PaginationNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// DefaultLayout 配置中的默认版式
func (s *LayoutService) DefaultLayout() models.PageLayout {
	return config.GetCurrentConfig().FormatSettings.PageLayout
}

func (s *LayoutService) entry(scriptID string) *scriptLayout {
	sl, ok := s.scripts[scriptID]
	if !ok {
		sl = &scriptLayout{paginator: pagination.NewPaginator(), layout: s.DefaultLayout()}
		s.scripts[scriptID] = sl
	}
	return sl
}

// Recompute 用新的元素高度或版式重新分页。layout 为零值时沿用该剧本上次的版式，
// 没有则使用默认版式。
func (s *LayoutService) Recompute(scriptID string, elements []models.RenderedElement, layout models.PageLayout) PageResult {
	s.mu.Lock()
	sl := s.entry(scriptID)
	if !layout.IsZero() && layout.Height > 0 {
		sl.layout = layout
		sl.explicit = true
	}
	sl.elements = append([]models.RenderedElement(nil), elements...)
	// 在锁内分页，保证最新结果与保存的元素一致
	res := s.run(scriptID, sl.paginator, sl.elements, sl.layout)
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.NotifyPagination(res)
	}
	return res
}

func (s *LayoutService) run(scriptID string, p *pagination.Paginator, elements []models.RenderedElement, layout models.PageLayout) PageResult {
	start := time.Now()
	res := p.Recompute(elements, layout)
	s.metrics.RecordPagination(len(elements), res.PageCount, time.Since(start))
	return PageResult{ScriptID: scriptID, Layout: layout, Result: res}
}

// Latest 最近一次分页结果
func (s *LayoutService) Latest(scriptID string) PageResult {
	s.mu.Lock()
	sl, ok := s.scripts[scriptID]
	s.mu.Unlock()
	if !ok {
		return PageResult{
			ScriptID: scriptID,
			Layout:   s.DefaultLayout(),
			Result:   pagination.NewPaginator().Latest(),
		}
	}

	s.mu.Lock()
	layout := sl.layout
	s.mu.Unlock()
	return PageResult{ScriptID: scriptID, Layout: layout, Result: sl.paginator.Latest()}
}

// OnFormatSettingsChanged 默认版式变化时，重新计算所有跟随默认版式的剧本
func (s *LayoutService) OnFormatSettingsChanged(_, newSettings models.FormatSettings) {
	s.mu.Lock()
	var results []PageResult
	for scriptID, sl := range s.scripts {
		if sl.explicit {
			continue
		}
		sl.layout = newSettings.PageLayout
		results = append(results, s.run(scriptID, sl.paginator, sl.elements, sl.layout))
	}
	notifier := s.notifier
	s.mu.Unlock()

	if notifier == nil {
		return
	}
	for _, res := range results {
		notifier.NotifyPagination(res)
	}
}

// ScriptCount 持有分页状态的剧本数
func (s *LayoutService) ScriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scripts)
}

// Forget 丢弃剧本的分页状态
func (s *LayoutService) Forget(scriptID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scripts, scriptID)
}
