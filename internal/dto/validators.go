package dto

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ysxx86/ClassMaster/internal/model"
)

// 自定义校验标签
const (
	subjectTag = "subject"
	gradeTag   = "grade"
)

// RegisterValidators 向 validator 注册业务校验规则
func RegisterValidators(v *validator.Validate) error {
	// 错误信息使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation(subjectTag, func(fl validator.FieldLevel) bool {
		return model.IsSubject(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation(gradeTag, func(fl validator.FieldLevel) bool {
		return model.IsGrade(fl.Field().String())
	})
}

// ValidationMessage 将校验错误转为中文提示
func ValidationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "请求参数格式错误"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return "缺少必填字段: " + fe.Field()
	case subjectTag:
		return fmt.Sprintf("无效的学科: %v", fe.Value())
	case gradeTag:
		return fmt.Sprintf("无效的成绩: %v", fe.Value())
	case "oneof":
		return "字段 " + fe.Field() + " 取值无效"
	case "min", "max":
		return "字段 " + fe.Field() + " 长度不符合要求"
	}
	return "参数校验失败: " + fe.Field()
}
