package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	pkgerrors "eduroots/backend/pkg/errors"
)

// validate 与 gin 共用 binding 标签，使 HTTP 之外的调用方（命令行、内部调用）获得相同的校验
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct 校验请求结构体，失败时返回首个字段的 *ValidationError
func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return pkgerrors.NewValidation(fieldPath(fe.Namespace()), describeTag(fe))
	}
	return pkgerrors.NewValidation("", err.Error())
}

// fieldPath 去掉命名空间中的顶层结构体名，如 CreateAttendanceSheetRequest.records[0].student_id
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "uuid":
		return "必须是合法的 UUID"
	case "datetime":
		return fmt.Sprintf("格式必须为 %s", fe.Param())
	case "min":
		return fmt.Sprintf("不能小于 %s", fe.Param())
	case "max":
		return fmt.Sprintf("不能大于 %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("必须是 [%s] 之一", fe.Param())
	}
	return fmt.Sprintf("校验失败 (%s)", fe.Tag())
}

// parseDay 解析 YYYY-MM-DD 日历日
func parseDay(field, value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, pkgerrors.NewValidation(field, "格式必须为 2006-01-02")
	}
	return t, nil
}
