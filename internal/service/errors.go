package service

import (
	"errors"
	"fmt"
)

// ── 认证 / 用户 ──

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUserNotFound       = errors.New("用户不存在")
	ErrUsernameExists     = errors.New("用户名已存在")
	ErrPasswordMismatch   = errors.New("新密码与确认密码不匹配")
	ErrWrongPassword      = errors.New("当前密码不正确")
	ErrUserSelfDelete     = errors.New("不能删除当前登录的用户")
	ErrNoFieldsToUpdate   = errors.New("没有需要更新的字段")
)

// ── 班级 ──

var (
	ErrClassNotFound   = errors.New("班级不存在")
	ErrClassExists     = errors.New("班级名称已存在")
	ErrClassNameEmpty  = errors.New("班级名称不能为空")
	ErrAdminAsTeacher  = errors.New("管理员不能被分配为班主任")
	ErrTeacherNotFound = errors.New("教师不存在")
)

// ── 学生 / 成绩 / 德育 / 评语 ──

var (
	// ErrStudentExists 通过 errors.Is 匹配 *StudentExistsError
	ErrStudentExists      = errors.New("学号已存在")
	ErrTeacherOwnClass    = errors.New("班主任只能添加本班学生")
	ErrInvalidSubject     = errors.New("无效的学科")
	ErrInvalidGrade       = errors.New("无效的成绩")
	ErrNothingUpdated     = errors.New("没有学生记录被更新")
	ErrCommentEmpty       = errors.New("评语内容不能为空")
	ErrStudentIDRequired  = errors.New("缺少学生学号")
	ErrTooManyStudents    = errors.New("导出学生数量超过上限，请按班级导出")
	ErrTodoNotFound       = errors.New("待办不存在")
	ErrTodoTitleRequired  = errors.New("待办标题不能为空")
	ErrInvalidDeadline    = errors.New("截止时间格式无效")
	ErrExportCancelled    = errors.New("导出操作已被用户取消")
	ErrExportNotFound     = errors.New("导出请求不存在或已结束")
	ErrExportUnavailable  = errors.New("导出取消功能不可用")
	ErrExportFileNotFound = errors.New("导出文件不存在")
	ErrNoReportStudents   = errors.New("未找到所选学生数据，或者您没有权限导出这些学生的报告")
)

// ── 导入 ──

var (
	ErrUploadNotFound  = errors.New("上传文件不存在或已过期，请重新上传")
	ErrUploadInvalid   = errors.New("文件格式不支持，请上传 .xlsx 文件")
	ErrImportNoData    = errors.New("Excel文件无数据行（第一行为表头）")
	ErrImportBadHeader = errors.New("Excel表头缺少必要列")
	ErrICSInvalid      = errors.New("日历文件格式无效")
)

// StudentExistsError 学号在目标班级已存在
type StudentExistsError struct {
	ID string
}

func (e *StudentExistsError) Error() string {
	return fmt.Sprintf("学号 %s 已存在", e.ID)
}

// Is 使 errors.Is(err, ErrStudentExists) 成立
func (e *StudentExistsError) Is(target error) bool {
	return target == ErrStudentExists
}

// ── AI 评语 / 设置 ──

var (
	ErrAPIKeyRequired = errors.New("API密钥不能为空")
)
