package app

import (
	"regexp"
	"strings"

	"lab_lending_tool/ledger"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	phoneRe  = regexp.MustCompile(`^[0-9]{10}$`)
	rollNoRe = regexp.MustCompile(`^[A-Za-z0-9]{4,20}$`)
)

// RegisterValidators 在 gin 的 validator 上注册自定义 tag
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	rules := map[string]validator.Func{
		"phone": func(fl validator.FieldLevel) bool {
			return phoneRe.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
		},
		"rollno": func(fl validator.FieldLevel) bool {
			return rollNoRe.MatchString(fl.Field().String())
		},
		"loanstatus": func(fl validator.FieldLevel) bool {
			_, ok := ledger.NormalizeStatus(fl.Field().String())
			return ok
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return err
		}
	}
	return nil
}
