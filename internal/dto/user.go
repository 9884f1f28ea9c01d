package dto

// ── 用户模块 DTO ──

// CreateUserRequest 新建用户
type CreateUserRequest struct {
	Username string     `json:"username" binding:"required,min=2,max=32"`
	Password string     `json:"password" binding:"required,min=6,max=64"`
	IsAdmin  bool       `json:"is_admin"`
	ClassID  OptionalID `json:"class_id"`
}

// BatchCreateUsersRequest 批量新建用户
type BatchCreateUsersRequest struct {
	Users []CreateUserRequest `json:"users" binding:"required,min=1,dive"`
}

// UpdateUserRequest 更新用户（仅更新出现的字段）
type UpdateUserRequest struct {
	Username *string    `json:"username" binding:"omitempty,min=2,max=32"`
	Password *string    `json:"password" binding:"omitempty,min=6,max=64"`
	IsAdmin  *bool      `json:"is_admin"`
	ClassID  OptionalID `json:"class_id"`
}

// BatchCreateUsersResult 批量新建结果
type BatchCreateUsersResult struct {
	Created []UserResponse   `json:"created"`
	Errors  []ImportRowError `json:"errors"`
}

// ResetPasswordResponse 重置密码响应
type ResetPasswordResponse struct {
	Username    string `json:"username"`
	NewPassword string `json:"new_password"`
}

// ImportedPassword 导入用户时生成的初始密码
type ImportedPassword struct {
	Username  string `json:"username"`
	ClassName string `json:"class_name"`
	Password  string `json:"password"`
}

// UserImportResult 用户导入确认结果
type UserImportResult struct {
	ImportResult
	Passwords []ImportedPassword `json:"passwords"`
}
