// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"
	ErrorTimeout       = "TIMEOUT"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// 剧本相关错误
	ErrorScriptNotFound     = "SCRIPT_NOT_FOUND"
	ErrorScriptInvalid      = "SCRIPT_INVALID"
	ErrorBeatNotFound       = "BEAT_NOT_FOUND"
	ErrorSceneNotFound      = "SCENE_NOT_FOUND"
	ErrorGenerationThrottle = "GENERATION_THROTTLED"

	// 会话相关错误
	ErrorSessionNotFound      = "SESSION_NOT_FOUND"
	ErrorInitializationFailed = "INITIALIZATION_FAILED"
	ErrorUnknownAction        = "UNKNOWN_ACTION"
	ErrorUploadInvalid        = "UPLOAD_INVALID"

	// 排版相关错误
	ErrorLayoutInvalid = "LAYOUT_INVALID"

	// 导出相关错误
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
)
