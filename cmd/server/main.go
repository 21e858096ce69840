// cmd/server/main.go
package main

import (
	"fmt"
	"log"

	"github.com/Corphon/ScreenplayStudio/internal/api"
	"github.com/Corphon/ScreenplayStudio/internal/app"
	"github.com/Corphon/ScreenplayStudio/internal/config"
	"github.com/Corphon/ScreenplayStudio/internal/di"
)

func main() {
	log.Println("🚀 启动 ScreenplayStudio 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 初始化配置、日志、服务和路由
	if err := app.Initialize(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	log.Println("✅ 所有服务初始化完成")

	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 3. 启动服务器，收到 SIGINT/SIGTERM 后优雅关闭
	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 API 地址: http://localhost:%s/api/health", baseConfig.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器异常退出: %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}

// 健康检查函数
func performHealthCheck() error {
	container := di.GetContainer()

	criticalServices := []string{api.ServiceBackend, api.ServiceSession, api.ServiceLayout, api.ServiceConfig}
	for _, serviceName := range criticalServices {
		if !container.Has(serviceName) {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	log.Println("✅ 服务健康检查通过")
	return nil
}
