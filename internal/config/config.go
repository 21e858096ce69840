// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// 会话解析方式
const (
	ResolverBackend    = "backend"
	ResolverIdentifier = "identifier"
)

// Config 从环境变量加载的基础配置
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	DataDir   string `env:"DATA_DIR" envDefault:"data"`
	LogDir    string `env:"LOG_DIR" envDefault:"logs"`
	DebugMode bool   `env:"DEBUG_MODE" envDefault:"true"`

	// 会话空闲多久后被丢弃
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// 打开会话时推断剧本状态的方式: backend 读取剧本记录，identifier 只看剧本ID
	SessionResolver string `env:"SESSION_RESOLVER" envDefault:"backend"`

	// 生成节拍/场景的节流
	GenerationInterval time.Duration `env:"GENERATION_INTERVAL" envDefault:"2s"`
	GenerationBurst    int           `env:"GENERATION_BURST" envDefault:"3"`

	// 每个客户端每分钟的 API 请求数
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// 默认页面版式（英寸）
	PageWidth        float64 `env:"PAGE_WIDTH" envDefault:"8.5"`
	PageHeight       float64 `env:"PAGE_HEIGHT" envDefault:"11"`
	PageMarginTop    float64 `env:"PAGE_MARGIN_TOP" envDefault:"1"`
	PageMarginRight  float64 `env:"PAGE_MARGIN_RIGHT" envDefault:"1"`
	PageMarginBottom float64 `env:"PAGE_MARGIN_BOTTOM" envDefault:"1"`
	PageMarginLeft   float64 `env:"PAGE_MARGIN_LEFT" envDefault:"1.5"`
}

// PageLayout 环境变量中的默认版式
func (c *Config) PageLayout() models.PageLayout {
	return models.PageLayout{
		Width:        c.PageWidth,
		Height:       c.PageHeight,
		MarginTop:    c.PageMarginTop,
		MarginRight:  c.PageMarginRight,
		MarginBottom: c.PageMarginBottom,
		MarginLeft:   c.PageMarginLeft,
	}
}

// AppConfig 包含应用程序的所有配置，其中排版设置会持久化到 config.json
type AppConfig struct {
	Port               string                `json:"port"`
	DataDir            string                `json:"data_dir"`
	LogDir             string                `json:"log_dir"`
	DebugMode          bool                  `json:"debug_mode"`
	SessionTTL         time.Duration         `json:"session_ttl"`
	SessionResolver    string                `json:"session_resolver"`
	GenerationInterval time.Duration         `json:"generation_interval"`
	GenerationBurst    int                   `json:"generation_burst"`
	RateLimitPerMinute int                   `json:"rate_limit_per_minute"`
	FormatSettings     models.FormatSettings `json:"format_settings"`
}

// Load 从 .env 文件和环境变量加载配置
func Load() (*Config, error) {
	// .env 文件是可选的
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PageHeight <= 0 {
		return nil, fmt.Errorf("PAGE_HEIGHT must be positive, got %v", cfg.PageHeight)
	}
	switch cfg.SessionResolver {
	case ResolverBackend, ResolverIdentifier:
	default:
		return nil, fmt.Errorf("SESSION_RESOLVER must be %q or %q, got %q", ResolverBackend, ResolverIdentifier, cfg.SessionResolver)
	}
	if cfg.GenerationBurst <= 0 {
		cfg.GenerationBurst = 1
	}

	ensureDir(cfg.DataDir)
	ensureDir(cfg.LogDir)

	return cfg, nil
}

// ensureDir 确保目录存在
func ensureDir(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}
}

func fromBase(base *Config) *AppConfig {
	settings := models.DefaultFormatSettings()
	settings.PageLayout = base.PageLayout()

	return &AppConfig{
		Port:               base.Port,
		DataDir:            base.DataDir,
		LogDir:             base.LogDir,
		DebugMode:          base.DebugMode,
		SessionTTL:         base.SessionTTL,
		SessionResolver:    base.SessionResolver,
		GenerationInterval: base.GenerationInterval,
		GenerationBurst:    base.GenerationBurst,
		RateLimitPerMinute: base.RateLimitPerMinute,
		FormatSettings:     settings,
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	// 尝试从文件加载已保存的排版设置，其余字段以环境变量为准
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil && saved.FormatSettings.PageLayout.Height > 0 {
			currentConfig.FormatSettings = saved.FormatSettings
			if currentConfig.FormatSettings.Elements == nil {
				currentConfig.FormatSettings.Elements = models.DefaultFormatSettings().Elements
			}
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		// 未初始化时返回基础配置
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", DataDir: "data", LogDir: "logs", PageHeight: 11, SessionResolver: ResolverBackend}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.FormatSettings.Elements = make(map[models.ElementType]models.ElementFormat, len(currentConfig.FormatSettings.Elements))
	for k, v := range currentConfig.FormatSettings.Elements {
		configCopy.FormatSettings.Elements[k] = v
	}
	return &configCopy
}

// UpdateFormatSettings 更新排版设置并保存
func UpdateFormatSettings(settings models.FormatSettings) error {
	if settings.PageLayout.Height <= 0 {
		return fmt.Errorf("page height must be positive")
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	if settings.Elements == nil {
		settings.Elements = currentConfig.FormatSettings.Elements
	}
	currentConfig.FormatSettings = settings

	return saveLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(currentConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

// Reset 清空当前配置，测试使用
func Reset() {
	configMutex.Lock()
	defer configMutex.Unlock()
	currentConfig = nil
	configFile = ""
}
