// internal/models/export.go
package models

import (
	"time"
)

// ExportResult 导出结果
type ExportResult struct {
	ScriptID     string    `json:"script_id,omitempty"`
	Title        string    `json:"title"`
	Format       string    `json:"format"`
	Content      string    `json:"content"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	ElementCount int       `json:"element_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}
