// internal/models/element.go
package models

// ElementType 剧本元素类型
type ElementType string

const (
	ElementSceneHeading  ElementType = "scene-heading"
	ElementAction        ElementType = "action"
	ElementCharacter     ElementType = "character"
	ElementParenthetical ElementType = "parenthetical"
	ElementDialogue      ElementType = "dialogue"
	ElementTransition    ElementType = "transition"
)

// IsValid 检查元素类型
func (t ElementType) IsValid() bool {
	switch t {
	case ElementSceneHeading, ElementAction, ElementCharacter,
		ElementParenthetical, ElementDialogue, ElementTransition:
		return true
	}
	return false
}

// ScriptElement 一个格式化的剧本单元
type ScriptElement struct {
	ID      string      `json:"id"`
	Type    ElementType `json:"type"`
	Content string      `json:"content"`
}

// TitlePage 剧本封面
type TitlePage struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	Contact   string `json:"contact"`
	Date      string `json:"date"`
	Draft     string `json:"draft"`
	Copyright string `json:"copyright"`
}
