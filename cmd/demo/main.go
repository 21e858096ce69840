// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Corphon/ScreenplayStudio/internal/api"
	"github.com/Corphon/ScreenplayStudio/internal/app"
	"github.com/Corphon/ScreenplayStudio/internal/config"
	"github.com/Corphon/ScreenplayStudio/internal/di"
	"github.com/Corphon/ScreenplayStudio/internal/lifecycle"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/services"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

const cliBoxMaxWidth = 72

var stdin = bufio.NewScanner(os.Stdin)

func main() {
	fmt.Println("🚀 ScreenplayStudio Console")
	fmt.Println("=================================")

	baseConfig, err := config.Load()
	if err != nil {
		log.Printf("❌ 加载基础配置失败: %v", err)
		return
	}

	logFile := fmt.Sprintf("%s/console_%s.log", baseConfig.LogDir, time.Now().Format("2006-01-02"))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
	}
	defer utils.CloseLogger()

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Printf("❌ 初始化配置系统失败: %v", err)
		return
	}
	if err := app.InitServices(); err != nil {
		log.Printf("❌ 初始化服务失败: %v", err)
		return
	}
	defer di.GetContainer().Shutdown()

	for {
		showMenu()
		switch getUserInput("请选择: ") {
		case "1", "list":
			listScripts()
		case "2", "create":
			createScript()
		case "3", "open":
			workOnScript()
		case "4", "paginate":
			paginateSample()
		case "5", "export":
			exportSample()
		case "6", "services":
			listServices()
		case "0", "quit", "exit":
			fmt.Println("👋 再见")
			return
		default:
			fmt.Println("无效的选择")
		}
		fmt.Println()
	}
}

// 显示菜单
func showMenu() {
	printBox("ScreenplayStudio", strings.Join([]string{
		"1) 剧本列表",
		"2) 创建剧本",
		"3) 打开剧本并推进创作流程",
		"4) 分页示例",
		"5) 导出 Fountain 示例",
		"6) 已注册的服务",
		"0) 退出",
	}, "\n"))
}

// 获取用户输入
func getUserInput(prompt string) string {
	fmt.Print(prompt)
	if !stdin.Scan() {
		return "exit"
	}
	return strings.TrimSpace(stdin.Text())
}

// 获取用户输入 (带默认值)
func getUserInputWithDefault(prompt, defaultValue string) string {
	if defaultValue != "" {
		prompt = fmt.Sprintf("%s [默认: %s]: ", prompt, defaultValue)
	} else {
		prompt += ": "
	}
	if input := getUserInput(prompt); input != "" && input != "exit" {
		return input
	}
	return defaultValue
}

func backend() *services.BackendService {
	svc, err := di.Resolve[*services.BackendService](di.GetContainer(), api.ServiceBackend)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	return svc
}

func sessions() *services.SessionService {
	svc, err := di.Resolve[*services.SessionService](di.GetContainer(), api.ServiceSession)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	return svc
}

// 1. 剧本列表
func listScripts() {
	records, err := backend().ListScripts(context.Background())
	if err != nil {
		fmt.Printf("❌ 读取剧本失败: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("  (暂无剧本)")
		return
	}
	for i, r := range records {
		fmt.Printf("  %d) %s  [%s] %s  进度 %d%%\n", i+1, r.Title, r.CreationMethod, r.ID, r.Progress)
	}
}

// 2. 创建剧本
func createScript() {
	input := services.CreateScriptInput{
		Title:          getUserInputWithDefault("标题", "Untitled"),
		Genre:          getUserInputWithDefault("类型", "Drama"),
		Story:          getUserInputWithDefault("故事梗概", ""),
		CreationMethod: getUserInputWithDefault("创建方式 FROM_SCRATCH/WITH_AI/UPLOAD", "WITH_AI"),
	}

	record, err := backend().CreateScript(context.Background(), input)
	if err != nil {
		fmt.Printf("❌ 创建失败: %v\n", err)
		return
	}
	fmt.Printf("✅ 已创建剧本 %s (%s)\n", record.Title, record.ID)
}

// 3. 打开剧本并执行生命周期操作
func workOnScript() {
	scriptID := getUserInput("剧本ID: ")
	if scriptID == "" {
		return
	}

	view, err := sessions().Open(context.Background(), scriptID)
	if err != nil {
		fmt.Printf("❌ 打开会话失败: %v\n", err)
		return
	}
	printState(view.Snapshot, view.Flags)

	for {
		fmt.Println("操作: b) 生成节拍  f) 生成第一场  n) 生成下一场  c) 完成  u) 上传  q) 返回")
		choice := getUserInput("> ")

		var action lifecycle.Action
		req := services.ActionRequest{}
		switch choice {
		case "b":
			action = lifecycle.ActionGenerateBeats
		case "f":
			action = lifecycle.ActionGenerateFirstScene
		case "n":
			action = lifecycle.ActionGenerateNextScene
		case "c":
			action = lifecycle.ActionMarkComplete
		case "u":
			action = lifecycle.ActionProcessUploadedScript
			req.Upload = &services.UploadRequest{FileName: getUserInputWithDefault("文件名", "draft.fdx")}
		case "q", "exit":
			return
		default:
			fmt.Println("无效的选择")
			continue
		}

		result, err := sessions().Perform(context.Background(), scriptID, action, req)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			continue
		}
		if !result.Outcome.Applied {
			fmt.Printf("⚠️ 操作未执行: %s\n", result.Outcome.Reason)
		}
		if result.Scene != nil {
			fmt.Printf("🎬 %s\n%s\n", result.Scene.SceneHeading, result.Scene.SceneDescription)
		}
		if len(result.Beats) > 0 {
			fmt.Printf("📝 共 %d 个节拍\n", len(result.Beats))
		}
		printState(result.Snapshot, result.Flags)
	}
}

func printState(s lifecycle.Snapshot, f lifecycle.Flags) {
	printBox("状态: "+string(s.State), fmt.Sprintf(
		"节拍: %t  场景数: %d  已完成: %t\n生成节拍: %t  生成剧本: %t  下一场: %t  可重新上传: %t",
		s.Context.HasBeats, s.Context.ScenesCount, s.Context.IsComplete,
		f.ShowGenerateBeats, f.ShowGenerateScript, f.ShowGenerateNextScene, f.CanReprocessUpload))
}

// 4. 分页示例：输入一串元素高度（点）
func paginateSample() {
	raw := getUserInputWithDefault("元素高度，逗号分隔", "300,300,300,100")
	var elements []models.RenderedElement
	for i, part := range strings.Split(raw, ",") {
		h, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			fmt.Printf("❌ 无效的高度: %s\n", part)
			return
		}
		elements = append(elements, models.RenderedElement{ID: fmt.Sprintf("el-%d", i), Height: h})
	}

	layoutService, err := di.Resolve[*services.LayoutService](di.GetContainer(), api.ServiceLayout)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}
	res := layoutService.Recompute("console", elements, models.PageLayout{})
	fmt.Printf("每页高度 %.0f 点，共 %d 页，分页位置 %v\n", res.Budget, res.PageCount, res.Breaks)
}

// 5. 导出示例
func exportSample() {
	elements := []models.ScriptElement{
		{Type: models.ElementSceneHeading, Content: "int. diner - night"},
		{Type: models.ElementAction, Content: "Rain streaks the window."},
		{Type: models.ElementCharacter, Content: "mara"},
		{Type: models.ElementParenthetical, Content: "quietly"},
		{Type: models.ElementDialogue, Content: "We should go."},
		{Type: models.ElementTransition, Content: "cut to"},
	}
	tp := models.TitlePage{Title: getUserInputWithDefault("标题", "Night Diner"), Author: "Console"}
	fmt.Println(services.RenderFountain(tp, elements))
}

// 6. 已注册的服务
func listServices() {
	fmt.Println("📦 已注册的服务:")
	for _, name := range di.GetContainer().GetNames() {
		fmt.Printf("  - %s (%T)\n", name, di.GetContainer().Get(name))
	}
}

func printBox(title, content string) {
	lines := strings.Split(content, "\n")
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range lines {
		if w := utf8.RuneCountInString(line); w > maxWidth {
			maxWidth = w
		}
	}
	if maxWidth > cliBoxMaxWidth {
		maxWidth = cliBoxMaxWidth
	}
	border := strings.Repeat("─", maxWidth+2)
	fmt.Println("┌" + border + "┐")
	if title != "" {
		fmt.Printf("│ %s │\n", padRight(title, maxWidth))
		fmt.Println("├" + border + "┤")
	}
	for _, line := range lines {
		fmt.Printf("│ %s │\n", padRight(line, maxWidth))
	}
	fmt.Println("└" + border + "┘")
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
