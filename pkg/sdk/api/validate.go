package api

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/betbot/tradeweb/pkg/sdk/apierr"
)

// 提交前校验，只用于提示；后端仍会再次校验
const (
	msgInvalidUsername = "Invalid username, it should contain only alphanumeric and underscore of length from 3 to 20."
	msgShortPassword   = "Password must be at least 6 characters"
	msgInvalidEmail    = "Invalid email address"
	msgInvalidSymbol   = "Symbol is required"
	msgInvalidSide     = "Side must be B (buy) or S (sell)"
	msgInvalidType     = "Type must be L (limit) or M (market)"
	msgInvalidQuantity = "Quantity must be a positive integer"
	msgInvalidPrice    = "Limit orders require a price greater than 0"
	msgInvalidOrderID  = "Order id must be a positive integer"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// 错误里使用 JSON 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		o := sl.Current().Interface().(NewOrder)
		if o.Type == OrderTypeLimit && !o.Price.IsPositive() {
			sl.ReportError(o.Price, "price", "Price", "limit_price", "")
		}
	}, NewOrder{})

	return v
}

// fieldMessages 字段 -> 提示
var fieldMessages = map[string]string{
	"username":  msgInvalidUsername,
	"password":  msgShortPassword,
	"email":     msgInvalidEmail,
	"symbol_id": msgInvalidSymbol,
	"side":      msgInvalidSide,
	"type":      msgInvalidType,
	"quantity":  msgInvalidQuantity,
	"price":     msgInvalidPrice,
}

// validateStruct 返回第一个失败字段对应的 *apierr.ValidationError
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &apierr.ValidationError{Message: err.Error()}
	}
	fe := fieldErrs[0]
	msg, ok := fieldMessages[fe.Field()]
	if !ok {
		msg = fe.Error()
	}
	return &apierr.ValidationError{Field: fe.Field(), Message: msg}
}

// ValidateUsername 用户名：3-20 位字母、数字、下划线
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return &apierr.ValidationError{Field: "username", Message: msgInvalidUsername}
	}
	return nil
}

// ValidatePassword 密码：至少 6 个字符，不限字符类型
func ValidatePassword(password string) error {
	if err := validate.Var(password, "min=6"); err != nil {
		return &apierr.ValidationError{Field: "password", Message: msgShortPassword}
	}
	return nil
}

// ValidateEmail 简单的 local@domain.tld 形式
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return &apierr.ValidationError{Field: "email", Message: msgInvalidEmail}
	}
	return nil
}

// ValidateUser 校验用户名和密码（登录与注册共用）
func ValidateUser(c Credentials) error {
	return validateStruct(c)
}

// ValidateRegistration 校验注册信息
func ValidateRegistration(r Registration) error {
	return validateStruct(r)
}

// ValidateOrder 校验下单请求
func ValidateOrder(o NewOrder) error {
	return validateStruct(o)
}
