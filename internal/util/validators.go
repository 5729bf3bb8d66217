package util

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidateNotBlank 验证字符串去除首尾空白后不为空
func ValidateNotBlank(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(s) != ""
}

// RegisterValidators 注册自定义验证规则
func RegisterValidators(v *validator.Validate) {
	v.RegisterValidation("not_blank", ValidateNotBlank)
}

// NewValidator 创建已注册自定义规则的验证器
func NewValidator() *validator.Validate {
	v := validator.New()
	RegisterValidators(v)
	return v
}

// RegisterBindingValidators 在 gin 的绑定引擎上注册自定义规则
func RegisterBindingValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterValidators(v)
	}
}
