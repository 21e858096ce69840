package services

import (
	"context"
	"testing"

	apperrors "github.com/Corphon/ScreenplayStudio/internal/errors"
	"github.com/Corphon/ScreenplayStudio/internal/models"
)

func sampleElements() []models.ScriptElement {
	return []models.ScriptElement{
		{Type: models.ElementSceneHeading, Content: "int. diner - night"},
		{Type: models.ElementAction, Content: "Rain streaks the window."},
		{Type: models.ElementCharacter, Content: "mara"},
		{Type: models.ElementParenthetical, Content: "(quietly)"},
		{Type: models.ElementDialogue, Content: "We should go."},
		{Type: models.ElementTransition, Content: "cut to"},
	}
}

func TestRenderFountain(t *testing.T) {
	tp := models.TitlePage{Title: "Night Diner", Author: "J. Doe", Draft: "First"}

	want := "Title: Night Diner\n" +
		"Author: J. Doe\n" +
		"Contact: \n" +
		"Date: \n" +
		"Draft: First\n" +
		"Copyright: \n" +
		"\n===\n\n" +
		"INT. DINER - NIGHT\n\n" +
		"Rain streaks the window.\n\n" +
		"MARA\n" +
		"(quietly)\n" +
		"We should go.\n\n" +
		"> CUT TO:\n\n"

	if got := RenderFountain(tp, sampleElements()); got != want {
		t.Fatalf("Fountain 文本不正确:\n%q\n期望:\n%q", got, want)
	}
}

func TestRenderElementEdgeCases(t *testing.T) {
	cases := []struct {
		name string
		el   models.ScriptElement
		want string
	}{
		{"括号补全", models.ScriptElement{Type: models.ElementParenthetical, Content: "beat"}, "(beat)\n"},
		{"转场已有冒号", models.ScriptElement{Type: models.ElementTransition, Content: "Fade out:"}, "> FADE OUT:\n\n"},
		{"空对白", models.ScriptElement{Type: models.ElementDialogue}, "\n\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := renderElement(tc.el); got != tc.want {
				t.Fatalf("renderElement = %q, 期望 %q", got, tc.want)
			}
		})
	}
}

func TestExportFountain(t *testing.T) {
	fs := newTestFileStorage(t)
	svc := NewExportService(fs)
	ctx := context.Background()

	result, err := svc.ExportFountain(ctx, ExportRequest{
		ScriptID:  "s1",
		TitlePage: models.TitlePage{Title: "Night/Diner?"},
		Elements:  sampleElements(),
		Save:      true,
	})
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if result.FileName != "NightDiner.fountain" || result.ElementCount != 6 || result.Format != "fountain" {
		t.Fatalf("导出结果不正确: %+v", result)
	}
	if result.FileSize != int64(len(result.Content)) {
		t.Errorf("文件大小应等于内容长度")
	}

	saved, err := fs.LoadTextFile("exports/s1", "NightDiner.fountain")
	if err != nil || string(saved) != result.Content {
		t.Fatalf("导出文件应写入数据目录: %v", err)
	}

	t.Run("未知元素类型", func(t *testing.T) {
		_, err := svc.ExportFountain(ctx, ExportRequest{
			Elements: []models.ScriptElement{{Type: "shot", Content: "close on"}},
		})
		if !apperrors.IsValidationError(err) {
			t.Fatalf("应返回验证错误, 实际 %v", err)
		}
	})

	t.Run("未配置存储", func(t *testing.T) {
		_, err := NewExportService(nil).ExportFountain(ctx, ExportRequest{Save: true})
		if err == nil {
			t.Fatal("没有存储时保存应失败")
		}
	})

	t.Run("空标题", func(t *testing.T) {
		res, err := svc.ExportFountain(ctx, ExportRequest{})
		if err != nil || res.FileName != "untitled.fountain" {
			t.Fatalf("空标题应使用 untitled: %+v %v", res, err)
		}
	})
}

func TestNextElementType(t *testing.T) {
	tab := map[models.ElementType]models.ElementType{
		models.ElementSceneHeading:  models.ElementAction,
		models.ElementAction:        models.ElementCharacter,
		models.ElementCharacter:     models.ElementDialogue,
		models.ElementParenthetical: models.ElementDialogue,
		models.ElementDialogue:      models.ElementCharacter,
		models.ElementTransition:    models.ElementSceneHeading,
		"unknown":                   models.ElementAction,
	}
	for current, want := range tab {
		if got := NextElementType(current); got != want {
			t.Errorf("NextElementType(%s) = %s, 期望 %s", current, got, want)
		}
	}

	if got := NextElementOnEnter(models.ElementAction); got != models.ElementAction {
		t.Errorf("动作之后回车仍应是动作, 实际 %s", got)
	}
	if got := NextElementOnEnter(models.ElementCharacter); got != models.ElementDialogue {
		t.Errorf("角色之后回车应是对白, 实际 %s", got)
	}
}
