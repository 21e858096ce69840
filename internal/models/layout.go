// internal/models/layout.go
package models

// PointsPerInch 版面单位换算
const PointsPerInch = 72.0

// PageLayout 页面尺寸与边距，单位为英寸
type PageLayout struct {
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	MarginTop    float64 `json:"margin_top"`
	MarginRight  float64 `json:"margin_right"`
	MarginBottom float64 `json:"margin_bottom"`
	MarginLeft   float64 `json:"margin_left"`
}

// HeightBudget 每页可容纳的高度（点）
func (l PageLayout) HeightBudget() float64 {
	return l.Height * PointsPerInch
}

// IsZero 未设置任何尺寸
func (l PageLayout) IsZero() bool {
	return l == PageLayout{}
}

// ElementFormat 单类剧本元素的排版设置
type ElementFormat struct {
	Alignment     string  `json:"alignment"`
	Width         float64 `json:"width"`
	SpacingBefore float64 `json:"spacing_before"`
	SpacingAfter  float64 `json:"spacing_after"`
}

// FormatSettings 全部排版设置
type FormatSettings struct {
	Elements   map[ElementType]ElementFormat `json:"elements"`
	PageLayout PageLayout                    `json:"page_layout"`
}

// DefaultPageLayout US Letter 剧本版式
func DefaultPageLayout() PageLayout {
	return PageLayout{
		Width:        8.5,
		Height:       11,
		MarginTop:    1,
		MarginRight:  1,
		MarginBottom: 1,
		MarginLeft:   1.5,
	}
}

// DefaultFormatSettings 行业标准的元素排版
func DefaultFormatSettings() FormatSettings {
	return FormatSettings{
		Elements: map[ElementType]ElementFormat{
			ElementSceneHeading:  {Alignment: "left", Width: 6, SpacingBefore: 1.5, SpacingAfter: 1},
			ElementAction:        {Alignment: "left", Width: 6, SpacingBefore: 0, SpacingAfter: 1},
			ElementCharacter:     {Alignment: "left", Width: 3.5, SpacingBefore: 1, SpacingAfter: 0},
			ElementParenthetical: {Alignment: "left", Width: 2.5, SpacingBefore: 0, SpacingAfter: 0},
			ElementDialogue:      {Alignment: "left", Width: 3.5, SpacingBefore: 0, SpacingAfter: 1},
			ElementTransition:    {Alignment: "right", Width: 6, SpacingBefore: 1, SpacingAfter: 1},
		},
		PageLayout: DefaultPageLayout(),
	}
}

// RenderedElement 排版完成后测得高度的元素（点）
type RenderedElement struct {
	ID     string  `json:"id"`
	Height float64 `json:"height"`
}

// PageBreakSet 新页面起始的元素下标，升序
type PageBreakSet []int
