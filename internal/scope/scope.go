// Package scope 实现班级数据的访问范围规则：
// 管理员可访问全部班级（可选按 class_id 过滤），班主任只能访问本班。
package scope

import "errors"

var (
	// ErrNoClassAssigned 班主任尚未分配班级；调用方按"软拒绝"处理（200 + 空结果 + 提示）
	ErrNoClassAssigned = errors.New("您尚未被分配班级，无法查看学生信息")
	// ErrClassMismatch 班主任显式请求了其他班级
	ErrClassMismatch = errors.New("权限不足，无法访问其他班级的数据")
	// ErrClassRequired 操作必须落在具体班级上，但管理员未指定
	ErrClassRequired = errors.New("请指定班级")
	// ErrStudentNotFound 学生不存在
	ErrStudentNotFound = errors.New("学生不存在")
	// ErrStudentForbidden 学生不属于调用者班级
	ErrStudentForbidden = errors.New("权限不足，无法访问非本班学生")
	// ErrStudentAmbiguous 同一学号存在于多个班级且未指定 class_id
	ErrStudentAmbiguous = errors.New("该学号存在于多个班级，请指定班级")
)

// Caller 当前请求的身份
type Caller struct {
	UserID   uint
	Username string
	IsAdmin  bool
	ClassID  *uint // 班主任所带班级；管理员无意义
}

// Resolve 计算操作的有效 class_id
//
// 管理员：返回显式请求值，nil 表示不限班级。
// 班主任：始终返回本班；显式请求与本班冲突时拒绝，未分配班级时返回 ErrNoClassAssigned。
func (c Caller) Resolve(requested *uint) (*uint, error) {
	if c.IsAdmin {
		return requested, nil
	}
	if c.ClassID == nil {
		return nil, ErrNoClassAssigned
	}
	if requested != nil && *requested != *c.ClassID {
		return nil, ErrClassMismatch
	}
	own := *c.ClassID
	return &own, nil
}

// Require 与 Resolve 相同，但要求结果必须是具体班级
func (c Caller) Require(requested *uint) (uint, error) {
	id, err := c.Resolve(requested)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, ErrClassRequired
	}
	return *id, nil
}

// CanAccess 判断能否访问归属 studentClassID 的学生
func (c Caller) CanAccess(studentClassID *uint) bool {
	if c.IsAdmin {
		return true
	}
	if c.ClassID == nil || studentClassID == nil {
		return false
	}
	return *c.ClassID == *studentClassID
}

// PickStudent 在共享同一学号的多行中选出本次请求指向的那一行
//
// classIDs 为这些行各自的 class_id。返回选中行的下标。
// 无记录 → ErrStudentNotFound；全部越权 → ErrStudentForbidden；
// 管理员未指定班级且命中多行 → ErrStudentAmbiguous。
func (c Caller) PickStudent(classIDs []*uint, requested *uint) (int, error) {
	if len(classIDs) == 0 {
		return -1, ErrStudentNotFound
	}

	var candidates []int
	for i, cid := range classIDs {
		if requested != nil && (cid == nil || *cid != *requested) {
			continue
		}
		if !c.CanAccess(cid) {
			continue
		}
		candidates = append(candidates, i)
	}

	switch {
	case len(candidates) == 1:
		return candidates[0], nil
	case len(candidates) > 1:
		return -1, ErrStudentAmbiguous
	}

	// 没有可访问的行：区分"班级过滤后不存在"与"存在但越权"
	for _, cid := range classIDs {
		if requested == nil || (cid != nil && *cid == *requested) {
			return -1, ErrStudentForbidden
		}
	}
	if !c.IsAdmin {
		return -1, ErrStudentForbidden
	}
	return -1, ErrStudentNotFound
}

// Ptr 返回 v 的指针，0 视为未指定
func Ptr(v uint) *uint {
	if v == 0 {
		return nil
	}
	return &v
}
