// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/api"
	"github.com/Corphon/ScreenplayStudio/internal/config"
	"github.com/Corphon/ScreenplayStudio/internal/di"
	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/storage"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

const shutdownTimeout = 30 * time.Second

// 锁管理器在容器中的名称；会话与后端各用一个
const (
	serviceStorage      = "storage"
	serviceBackendLocks = "backend_locks"
	serviceSessionLocks = "session_locks"
)

// httpServer 便于测试替换的服务器接口
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序实例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   httpServer
	stopChan chan os.Signal

	stopReporting context.CancelFunc
}

var (
	instance   *App
	instanceMu sync.Mutex
)

// GetApp 获取应用实例（单例）
func GetApp() *App {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = &App{stopChan: make(chan os.Signal, 1)}
	}
	return instance
}

// Initialize 按顺序初始化配置、日志、服务和路由
func Initialize(dataDir string) error {
	if err := config.InitConfig(dataDir); err != nil {
		return fmt.Errorf("初始化配置失败: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router
	app.server = &http.Server{
		Addr:              ":" + app.config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// initLogger 在 logDir 下创建按日期命名的日志文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("screenplay_%s.log", time.Now().Format("2006-01-02")))
	if err := utils.InitLogger(logFile); err != nil {
		return err
	}

	if IsDebugMode() {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}
	return nil
}

// InitServices 创建所有服务并注册到全局容器。注册顺序即依赖顺序，关闭时逆序。
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	metrics := utils.NewStudioMetrics()
	container.Register(api.ServiceMetrics, metrics)

	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("创建文件存储失败: %w", err)
	}
	container.Register(serviceStorage, fileStorage)

	backendLocks := services.NewLockManager(10 * time.Minute)
	container.Register(serviceBackendLocks, backendLocks)

	backend := services.NewBackendService(
		storage.NewScriptStore(fileStorage),
		backendLocks,
		cfg.GenerationInterval,
		cfg.GenerationBurst,
	)
	container.Register(api.ServiceBackend, backend)

	sessionLocks := services.NewLockManager(10 * time.Minute)
	container.Register(serviceSessionLocks, sessionLocks)

	sessions := services.NewSessionService(backend, sessionLocks, cfg.SessionTTL, metrics)
	if cfg.SessionResolver == config.ResolverIdentifier {
		sessions.SetResolver(lifecycle.IdentifierResolver{})
	}
	container.Register(api.ServiceSession, sessions)

	layout := services.NewLayoutService(metrics)
	container.Register(api.ServiceLayout, layout)

	container.Register(api.ServiceExport, services.NewExportService(fileStorage))

	configService := services.NewConfigService()
	configService.SubscribeToChanges(layout)
	container.Register(api.ServiceConfig, configService)

	hub := api.NewWebSocketManager(metrics.Collector())
	sessions.AddNotifier(hub)
	layout.SetNotifier(hub)
	container.Register(api.ServiceWebSocket, hub)

	utils.GetLogger().Info("services initialized", map[string]interface{}{
		"services": container.GetNames(),
		"data_dir": cfg.DataDir,
		"resolver": cfg.SessionResolver,
	})
	return nil
}

// Run 启动服务器并阻塞到收到停止信号或服务器出错
func Run() error {
	app := GetApp()
	if app.server == nil {
		return errors.New("应用尚未初始化")
	}

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopChan)

	ctx, cancel := context.WithCancel(context.Background())
	app.stopReporting = cancel
	if metrics, err := di.Resolve[*utils.StudioMetrics](di.GetContainer(), api.ServiceMetrics); err == nil {
		metrics.StartReporting(ctx, 5*time.Minute)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	port := ""
	if app.config != nil {
		port = app.config.Port
	}
	utils.GetLogger().Info("server started", map[string]interface{}{"port": port})

	var runErr error
	select {
	case sig := <-app.stopChan:
		utils.GetLogger().Info("shutting down", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		runErr = fmt.Errorf("服务器运行失败: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("服务器关闭失败: %w", err)
	}

	app.cleanup()
	return runErr
}

// cleanup 停止后台任务并逆序关闭容器中的服务
func (a *App) cleanup() {
	if a.stopReporting != nil {
		a.stopReporting()
		a.stopReporting = nil
	}

	if err := di.GetContainer().Shutdown(); err != nil {
		utils.GetLogger().Error("service shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	utils.GetLogger().Info("cleanup finished", nil)
	utils.CloseLogger()
}

// GetConfig 获取应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否为调试模式
func IsDebugMode() bool {
	instanceMu.Lock()
	app := instance
	instanceMu.Unlock()
	return app != nil && app.config != nil && app.config.DebugMode
}
