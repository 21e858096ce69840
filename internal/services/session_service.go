// internal/services/session_service.go
package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// 支持上传的剧本格式
var uploadFileTypes = map[string]string{
	".pdf": "application/pdf",
	".fdx": "application/xml",
}

// StateChangeEvent 一次已提交的状态变化
type StateChangeEvent struct {
	ScriptID  string             `json:"script_id"`
	Outcome   lifecycle.Outcome  `json:"outcome"`
	Snapshot  lifecycle.Snapshot `json:"snapshot"`
	Flags     lifecycle.Flags    `json:"flags"`
	Timestamp time.Time          `json:"timestamp"`
}

// StateNotifier 接收状态变化通知，实现方不能阻塞
type StateNotifier interface {
	NotifyStateChange(event StateChangeEvent)
}

// UploadRequest 上传剧本的文件信息
type UploadRequest struct {
	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
}

// ActionRequest 执行操作时附带的参数
type ActionRequest struct {
	Upload *UploadRequest `json:"upload,omitempty"`
}

// SessionView 会话的只读视图
type SessionView struct {
	ScriptID string             `json:"script_id"`
	Snapshot lifecycle.Snapshot `json:"snapshot"`
	Flags    lifecycle.Flags    `json:"flags"`
	OpenedAt time.Time          `json:"opened_at"`
}

// ActionResult 操作结果。Outcome.Applied 为 false 时快照保持不变。
type ActionResult struct {
	Outcome  lifecycle.Outcome    `json:"outcome"`
	Snapshot lifecycle.Snapshot   `json:"snapshot"`
	Flags    lifecycle.Flags      `json:"flags"`
	Beats    []models.Beat        `json:"beats,omitempty"`
	Scene    *models.SceneSegment `json:"scene,omitempty"`
}

// session 一个打开的剧本，状态机只在剧本锁内访问
type session struct {
	scriptID string
	machine  *lifecycle.Machine
	openedAt time.Time
	stop     func()
}

// SessionService 每个打开的剧本对应一个会话，空闲超时后丢弃
type SessionService struct {
	backend  *BackendService
	resolver lifecycle.Resolver
	locks    *LockManager
	sessions *cache.Cache
	opening  singleflight.Group
	metrics  *utils.StudioMetrics
	logger   *utils.Logger

	notifierMu sync.RWMutex
	notifiers  []StateNotifier
}

// NewSessionService 创建会话服务。locks 不能与 BackendService 共用，
// 因为会话在持有剧本锁期间会调用后端。
func NewSessionService(backend *BackendService, locks *LockManager, ttl time.Duration, metrics *utils.StudioMetrics) *SessionService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if metrics == nil {
		metrics = utils.NewStudioMetrics()
	}

	s := &SessionService{
		backend:  backend,
		resolver: backend,
		locks:    locks,
		sessions: cache.New(ttl, ttl/2),
		metrics:  metrics,
		logger:   utils.GetLogger().Named("session"),
	}
	s.sessions.OnEvicted(func(scriptID string, value interface{}) {
		if sess, ok := value.(*session); ok && sess.stop != nil {
			sess.stop()
		}
		s.metrics.SessionClosed()
		s.logger.Info("session closed", map[string]interface{}{"script_id": scriptID})
	})
	return s
}

// SetResolver 替换初始化时使用的解析器
func (s *SessionService) SetResolver(resolver lifecycle.Resolver) {
	s.resolver = resolver
}

// AddNotifier 注册状态变化通知
func (s *SessionService) AddNotifier(n StateNotifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

func (s *SessionService) publish(scriptID string, change lifecycle.Change) {
	event := StateChangeEvent{
		ScriptID:  scriptID,
		Outcome:   change.Outcome,
		Snapshot:  change.Snapshot,
		Flags:     lifecycle.DeriveFlags(change.Snapshot),
		Timestamp: time.Now(),
	}

	s.notifierMu.RLock()
	defer s.notifierMu.RUnlock()
	for _, n := range s.notifiers {
		n.NotifyStateChange(event)
	}
}

// lookup 取出会话并刷新空闲计时
func (s *SessionService) lookup(scriptID string) (*session, bool) {
	value, ok := s.sessions.Get(scriptID)
	if !ok {
		return nil, false
	}
	sess := value.(*session)
	s.sessions.SetDefault(scriptID, sess)
	return sess, true
}

// Open 打开剧本会话；已打开时返回现有会话。同一剧本的并发打开只初始化一次。
func (s *SessionService) Open(ctx context.Context, scriptID string) (SessionView, error) {
	sess, err := s.open(ctx, strings.TrimSpace(scriptID))
	if err != nil {
		return SessionView{}, err
	}
	return s.view(sess), nil
}

func (s *SessionService) open(ctx context.Context, scriptID string) (*session, error) {
	if sess, ok := s.lookup(scriptID); ok {
		return sess, nil
	}

	value, err, _ := s.opening.Do(scriptID, func() (interface{}, error) {
		if sess, ok := s.lookup(scriptID); ok {
			return sess, nil
		}

		snapshot, err := lifecycle.Initialize(ctx, scriptID, s.resolver)
		if err != nil {
			s.metrics.RecordError(string(apperrors.TypeOf(err)), "session")
			return nil, err
		}

		sess := &session{
			scriptID: scriptID,
			machine:  lifecycle.NewMachine(snapshot),
			openedAt: time.Now(),
		}
		sess.stop = sess.machine.OnStateChange(func(change lifecycle.Change) {
			s.publish(scriptID, change)
		})
		s.sessions.SetDefault(scriptID, sess)
		s.metrics.SessionOpened()

		s.logger.Info("session opened", map[string]interface{}{
			"script_id": scriptID,
			"state":     snapshot.State,
		})
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*session), nil
}

// Get 返回已打开会话的当前快照
func (s *SessionService) Get(scriptID string) (SessionView, error) {
	sess, ok := s.lookup(scriptID)
	if !ok {
		return SessionView{}, apperrors.NewNotFoundError("no open session for script "+scriptID, nil)
	}
	return s.view(sess), nil
}

// Close 结束会话
func (s *SessionService) Close(scriptID string) error {
	if _, ok := s.sessions.Get(scriptID); !ok {
		return apperrors.NewNotFoundError("no open session for script "+scriptID, nil)
	}
	s.sessions.Delete(scriptID)
	return nil
}

// ActiveSessions 当前打开的会话数
func (s *SessionService) ActiveSessions() int {
	return s.sessions.ItemCount()
}

func (s *SessionService) view(sess *session) SessionView {
	var snapshot lifecycle.Snapshot
	s.locks.ExecuteWithScriptLock(sess.scriptID, func() error {
		snapshot = sess.machine.Snapshot()
		return nil
	})
	return SessionView{
		ScriptID: sess.scriptID,
		Snapshot: snapshot,
		Flags:    lifecycle.DeriveFlags(snapshot),
		OpenedAt: sess.openedAt,
	}
}

// Perform 执行一个生命周期操作。前置条件不满足时不访问后端，返回原快照和 Applied=false。
// 会话未打开时先打开。
func (s *SessionService) Perform(ctx context.Context, scriptID string, action lifecycle.Action, req ActionRequest) (*ActionResult, error) {
	scriptID = strings.TrimSpace(scriptID)
	if _, err := s.open(ctx, scriptID); err != nil {
		return nil, err
	}

	var args lifecycle.Args
	if action == lifecycle.ActionProcessUploadedScript {
		info, err := validateUpload(req.Upload)
		if err != nil {
			return nil, err
		}
		args.Upload = info
	}

	var result *ActionResult
	err := s.locks.ExecuteWithScriptLock(scriptID, func() error {
		// 等待锁期间会话可能已关闭或过期
		sess, ok := s.lookup(scriptID)
		if !ok {
			return apperrors.NewNotFoundError("session for script "+scriptID+" was closed", nil)
		}
		current := sess.machine.Snapshot()

		if _, outcome := lifecycle.Transition(current, action, args); !outcome.Applied {
			result = &ActionResult{Outcome: outcome, Snapshot: current, Flags: lifecycle.DeriveFlags(current)}
			return nil
		}

		res := &ActionResult{}
		switch action {
		case lifecycle.ActionGenerateBeats:
			beats, err := s.backend.GenerateBeats(ctx, scriptID)
			if err != nil {
				return err
			}
			res.Beats = beats

		case lifecycle.ActionGenerateFirstScene, lifecycle.ActionGenerateNextScene:
			scene, err := s.backend.GenerateScene(ctx, scriptID)
			if err != nil {
				return err
			}
			res.Scene = scene
			args.SceneSegmentID = scene.ID

		case lifecycle.ActionMarkComplete:
			if err := s.backend.MarkComplete(ctx, scriptID); err != nil {
				return err
			}

		case lifecycle.ActionProcessUploadedScript:
			if err := s.backend.RecordUpload(ctx, scriptID, *args.Upload); err != nil {
				return err
			}
		}

		res.Outcome = sess.machine.Apply(action, args)
		res.Snapshot = sess.machine.Snapshot()
		res.Flags = lifecycle.DeriveFlags(res.Snapshot)
		result = res
		return nil
	})
	if err != nil {
		s.metrics.RecordError(string(apperrors.TypeOf(err)), "session")
		s.logger.Warn("action failed", map[string]interface{}{
			"script_id": scriptID,
			"action":    action,
			"error":     err.Error(),
		})
		return nil, err
	}

	s.metrics.RecordTransition(string(action), result.Outcome.Applied)
	s.logger.Debug("action performed", map[string]interface{}{
		"script_id": scriptID,
		"action":    action,
		"applied":   result.Outcome.Applied,
		"state":     result.Snapshot.State,
	})
	return result, nil
}

// validateUpload 只接受 .pdf 与 .fdx 文件
func validateUpload(req *UploadRequest) (*models.UploadInfo, error) {
	if req == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, apperrors.NewValidationError("upload file name is required", nil)
	}

	name := strings.TrimSpace(req.FileName)
	ext := strings.ToLower(filepath.Ext(name))
	defaultType, ok := uploadFileTypes[ext]
	if !ok {
		return nil, apperrors.NewValidationError("unsupported upload format "+ext+", expected PDF or FDX", nil)
	}

	fileType := strings.TrimSpace(req.FileType)
	if fileType == "" {
		fileType = defaultType
	}
	return &models.UploadInfo{
		FileType:   fileType,
		FileName:   name,
		UploadDate: time.Now(),
	}, nil
}

// Stop 关闭所有会话
func (s *SessionService) Stop() {
	for scriptID := range s.sessions.Items() {
		s.sessions.Delete(scriptID)
	}
}
