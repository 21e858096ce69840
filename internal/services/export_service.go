// internal/services/export_service.go
package services

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/models"
	"github.com/Corphon/ScreenplayStudio/internal/storage"
	"github.com/Corphon/ScreenplayStudio/internal/utils"
)

const fountainFormat = "fountain"

// ExportRequest Fountain 导出参数
type ExportRequest struct {
	ScriptID  string                 `json:"script_id"`
	TitlePage models.TitlePage       `json:"title_page"`
	Elements  []models.ScriptElement `json:"elements"`
	// Save 为 true 时同时写入 <data>/exports/<script_id>/
	Save bool `json:"save"`
}

// ExportService 把剧本元素渲染为 Fountain 文本
type ExportService struct {
	fs     *storage.FileStorage
	logger *utils.Logger
	now    func() time.Time
}

// NewExportService 创建导出服务，fs 为 nil 时不支持保存
func NewExportService(fs *storage.FileStorage) *ExportService {
	return &ExportService{
		fs:     fs,
		logger: utils.GetLogger().Named("export"),
		now:    time.Now,
	}
}

// ExportFountain 渲染 Fountain 文本，可选保存到数据目录
func (s *ExportService) ExportFountain(ctx context.Context, req ExportRequest) (*models.ExportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, el := range req.Elements {
		if !el.Type.IsValid() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("element %d has unknown type %q", i, el.Type), nil)
		}
	}

	content := RenderFountain(req.TitlePage, req.Elements)
	result := &models.ExportResult{
		ScriptID:     req.ScriptID,
		Title:        req.TitlePage.Title,
		Format:       fountainFormat,
		Content:      content,
		FileName:     exportFileName(req.TitlePage.Title),
		FileSize:     int64(len(content)),
		ElementCount: len(req.Elements),
		GeneratedAt:  s.now(),
	}

	if req.Save {
		if s.fs == nil {
			return nil, apperrors.NewProcessingError("export storage is not configured", nil)
		}
		dir := path.Join("exports", safeName(req.ScriptID, "untitled"))
		if err := s.fs.SaveTextFile(dir, result.FileName, []byte(content)); err != nil {
			return nil, apperrors.NewProcessingError("failed to save export", err)
		}
		s.logger.Info("fountain export saved", map[string]interface{}{
			"script_id": req.ScriptID,
			"file":      result.FileName,
			"size":      result.FileSize,
		})
	}

	return result, nil
}

// RenderFountain 封面块后接各元素
func RenderFountain(tp models.TitlePage, elements []models.ScriptElement) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", tp.Title)
	fmt.Fprintf(&b, "Author: %s\n", tp.Author)
	fmt.Fprintf(&b, "Contact: %s\n", tp.Contact)
	fmt.Fprintf(&b, "Date: %s\n", tp.Date)
	fmt.Fprintf(&b, "Draft: %s\n", tp.Draft)
	fmt.Fprintf(&b, "Copyright: %s\n", tp.Copyright)
	b.WriteString("\n===\n\n")

	for _, el := range elements {
		b.WriteString(renderElement(el))
	}
	return b.String()
}

func renderElement(el models.ScriptElement) string {
	switch el.Type {
	case models.ElementSceneHeading:
		return strings.ToUpper(el.Content) + "\n\n"
	case models.ElementCharacter:
		return strings.ToUpper(el.Content) + "\n"
	case models.ElementParenthetical:
		inner := strings.TrimPrefix(el.Content, "(")
		inner = strings.TrimSuffix(inner, ")")
		return "(" + inner + ")\n"
	case models.ElementTransition:
		text := strings.ToUpper(el.Content)
		if !strings.HasSuffix(text, ":") {
			text += ":"
		}
		return "> " + text + "\n\n"
	default:
		return el.Content + "\n\n"
	}
}

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N} _.-]+`)

func safeName(value, fallback string) string {
	name := strings.TrimSpace(unsafeFileChars.ReplaceAllString(value, ""))
	name = strings.Trim(name, ".")
	if name == "" {
		return fallback
	}
	return name
}

func exportFileName(title string) string {
	return safeName(title, "untitled") + "." + fountainFormat
}

// NextElementType 编辑器中按 Tab 时下一个元素的类型
func NextElementType(current models.ElementType) models.ElementType {
	switch current {
	case models.ElementSceneHeading:
		return models.ElementAction
	case models.ElementAction:
		return models.ElementCharacter
	case models.ElementCharacter:
		return models.ElementDialogue
	case models.ElementParenthetical:
		return models.ElementDialogue
	case models.ElementDialogue:
		return models.ElementCharacter
	case models.ElementTransition:
		return models.ElementSceneHeading
	default:
		return models.ElementAction
	}
}

// NextElementOnEnter 按回车时新元素的类型：动作之后仍是动作
func NextElementOnEnter(current models.ElementType) models.ElementType {
	if current == models.ElementAction {
		return models.ElementAction
	}
	return NextElementType(current)
}
