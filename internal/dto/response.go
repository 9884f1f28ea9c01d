package dto

// ── 认证 / 用户响应 ──

// LoginResponse 登录成功响应
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresIn   int          `json:"expires_in"` // Access Token 有效期（秒）
	User        UserResponse `json:"user"`
}

// UserResponse 用户信息响应（脱敏）
type UserResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	ClassID   *uint  `json:"class_id"`
	ClassName string `json:"class_name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// UserAdminResponse 管理员视角的用户信息，含最近一次已知密码
type UserAdminResponse struct {
	UserResponse
	ResetPassword string `json:"reset_password"`
}

// ── 导入 ──

// ImportRowError 导入行级错误
type ImportRowError struct {
	Row    int    `json:"row"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ImportPreview 导入预览结果；FilePath 为服务端保留的上传文件标识，确认时原样回传
type ImportPreview struct {
	FilePath string           `json:"file_path"`
	Total    int              `json:"total"`
	Added    int              `json:"added"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors"`
	Rows     []map[string]any `json:"preview"`
}

// ImportResult 导入确认结果
type ImportResult struct {
	Total   int              `json:"total"`
	Success int              `json:"success"`
	Added   int              `json:"inserted"`
	Updated int              `json:"updated"`
	Skipped int              `json:"skipped"`
	Failed  int              `json:"error_count"`
	Errors  []ImportRowError `json:"errors"`
}

// ConfirmImportRequest 导入确认请求
type ConfirmImportRequest struct {
	FilePath string     `json:"file_path" binding:"required"`
	ClassID  OptionalID `json:"class_id"`
}

// Outcome 导入结果对应的响应状态：全部成功 ok，部分成功 partial，全部失败 error
func (r *ImportResult) Outcome() string {
	switch {
	case r.Failed+r.Skipped == 0:
		return "ok"
	case r.Success > 0:
		return "partial"
	default:
		return "error"
	}
}
