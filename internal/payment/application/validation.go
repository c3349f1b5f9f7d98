package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

type PaymentInput struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Phone       string `json:"phone" validate:"required"`
	ProductName string `json:"productName" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Memo        string `json:"memo"`
	Var1        string `json:"var1" validate:"max=128"`
	Var2        string `json:"var2"`
	OpenPayType string `json:"openpaytype"`
}

type RebillInput struct {
	Amount      int64  `json:"amount" validate:"gt=0"`
	Phone       string `json:"phone" validate:"required"`
	ProductName string `json:"productName" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	Memo        string `json:"memo"`
	CycleType   string `json:"cycleType" validate:"required,oneof=Month Week Day"`
	CycleValue  int    `json:"cycleValue"`
	ExpireDate  string `json:"expireDate" validate:"required"`
	OrderID     string `json:"orderId" validate:"max=128"`
	Var2        string `json:"var2"`
	OpenPayType string `json:"openpaytype"`
}

type CancelInput struct {
	MulNo string `json:"mul_no" validate:"required"`
	Memo  string `json:"cancelmemo"`
}

type RebillControlInput struct {
	RebillNo string `json:"rebill_no" validate:"required"`
	Action   domain.RebillAction
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// checkStruct runs tag validation and reports the first failing field.
func checkStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return apperr.Invalid(fe.Field(), messageForTag(fe.Tag(), fe.Param()))
	}
	return apperr.Invalid("", "invalid request")
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + param
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of " + param
	case "max":
		return "must be at most " + param + " characters"
	default:
		return "is invalid"
	}
}

func (in *PaymentInput) normalize() {
	in.Phone = strings.TrimSpace(in.Phone)
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.Email = strings.TrimSpace(in.Email)
	in.Var1 = strings.TrimSpace(in.Var1)
}

func (in *RebillInput) normalize() {
	in.Phone = strings.TrimSpace(in.Phone)
	in.ProductName = strings.TrimSpace(in.ProductName)
	in.Email = strings.TrimSpace(in.Email)
	in.CycleType = strings.TrimSpace(in.CycleType)
	in.ExpireDate = strings.TrimSpace(in.ExpireDate)
	in.OrderID = strings.TrimSpace(in.OrderID)
}

// validateRebill checks the rules tags cannot express: cycleValue is required
// exactly for Month and Week, and the mandate must expire after today.
func validateRebill(v *validator.Validate, in RebillInput, now time.Time) (time.Time, error) {
	if err := checkStruct(v, in); err != nil {
		return time.Time{}, err
	}

	cycle := domain.CycleType(in.CycleType)
	if cycle.RequiresValue() {
		lo, hi := cycle.ValueRange()
		if in.CycleValue == 0 {
			return time.Time{}, apperr.Invalid("cycleValue", fmt.Sprintf("is required for %s cycles", cycle))
		}
		if in.CycleValue < lo || in.CycleValue > hi {
			return time.Time{}, apperr.Invalid("cycleValue", fmt.Sprintf("must be between %d and %d for %s cycles", lo, hi, cycle))
		}
	} else if in.CycleValue != 0 {
		return time.Time{}, apperr.Invalid("cycleValue", fmt.Sprintf("must be empty for %s cycles", cycle))
	}

	expire, err := time.Parse(domain.DateLayout, in.ExpireDate)
	if err != nil {
		return time.Time{}, apperr.Invalid("expireDate", "must be a date formatted as YYYY-MM-DD")
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if !expire.After(today) {
		return time.Time{}, apperr.Invalid("expireDate", "must be in the future")
	}
	return expire, nil
}
