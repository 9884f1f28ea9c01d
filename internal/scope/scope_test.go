package scope

import (
	"errors"
	"testing"
)

func u(v uint) *uint { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		caller    Caller
		requested *uint
		want      *uint
		wantErr   error
	}{
		{"管理员不限班级", Caller{IsAdmin: true}, nil, nil, nil},
		{"管理员显式过滤", Caller{IsAdmin: true}, u(3), u(3), nil},
		{"班主任默认本班", Caller{ClassID: u(5)}, nil, u(5), nil},
		{"班主任显式本班", Caller{ClassID: u(5)}, u(5), u(5), nil},
		{"班主任请求他班", Caller{ClassID: u(5)}, u(7), nil, ErrClassMismatch},
		{"班主任未分配班级", Caller{}, nil, nil, ErrNoClassAssigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.caller.Resolve(tt.requested)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("期望错误 %v，实际: %v", tt.wantErr, err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, got)
			}
		})
	}
}

func TestResolve_DoesNotAliasCallerClass(t *testing.T) {
	c := Caller{ClassID: u(5)}
	got, _ := c.Resolve(nil)
	*got = 9
	if *c.ClassID != 5 {
		t.Error("修改返回值不应影响调用者的班级")
	}
}

func TestRequire(t *testing.T) {
	if _, err := (Caller{IsAdmin: true}).Require(nil); !errors.Is(err, ErrClassRequired) {
		t.Errorf("期望 ErrClassRequired，实际: %v", err)
	}
	id, err := (Caller{IsAdmin: true}).Require(u(2))
	if err != nil || id != 2 {
		t.Errorf("期望 2，实际: %d %v", id, err)
	}
	id, err = (Caller{ClassID: u(5)}).Require(nil)
	if err != nil || id != 5 {
		t.Errorf("期望 5，实际: %d %v", id, err)
	}
}

func TestCanAccess(t *testing.T) {
	if !(Caller{IsAdmin: true}).CanAccess(nil) {
		t.Error("管理员应可访问任意学生")
	}
	if !(Caller{ClassID: u(5)}).CanAccess(u(5)) {
		t.Error("班主任应可访问本班学生")
	}
	if (Caller{ClassID: u(5)}).CanAccess(u(7)) {
		t.Error("班主任不应访问他班学生")
	}
	if (Caller{ClassID: u(5)}).CanAccess(nil) {
		t.Error("班主任不应访问未分班学生")
	}
	if (Caller{}).CanAccess(u(5)) {
		t.Error("未分配班级的班主任不应访问任何学生")
	}
}

func TestPickStudent(t *testing.T) {
	tests := []struct {
		name      string
		caller    Caller
		rows      []*uint
		requested *uint
		want      int
		wantErr   error
	}{
		{"无记录", Caller{IsAdmin: true}, nil, nil, -1, ErrStudentNotFound},
		{"班主任访问他班学生", Caller{ClassID: u(5)}, []*uint{u(7)}, nil, -1, ErrStudentForbidden},
		{"班主任命中本班", Caller{ClassID: u(5)}, []*uint{u(7), u(5)}, nil, 1, nil},
		{"管理员唯一命中", Caller{IsAdmin: true}, []*uint{u(7)}, nil, 0, nil},
		{"管理员多班歧义", Caller{IsAdmin: true}, []*uint{u(7), u(5)}, nil, -1, ErrStudentAmbiguous},
		{"管理员指定班级", Caller{IsAdmin: true}, []*uint{u(7), u(5)}, u(5), 1, nil},
		{"管理员指定班级无记录", Caller{IsAdmin: true}, []*uint{u(7)}, u(5), -1, ErrStudentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.caller.PickStudent(tt.rows, tt.requested)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("期望错误 %v，实际: %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("期望下标 %d，实际: %d", tt.want, got)
			}
		})
	}
}

func TestPtr(t *testing.T) {
	if Ptr(0) != nil {
		t.Error("0 应视为未指定")
	}
	if p := Ptr(4); p == nil || *p != 4 {
		t.Errorf("期望 4，实际: %v", p)
	}
}
