package intake

import (
	"errors"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"clinic-intake/internal/platform/apperror"
)

// FieldError reports one invalid patient field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidatePatientInfo checks every required field and returns all problems at once.
func ValidatePatientInfo(info PatientInfo, now time.Time) error {
	var result *multierror.Error
	add := func(field, message string) {
		result = multierror.Append(result, &FieldError{Field: field, Message: message})
	}

	if !info.VisitType.Valid() {
		add("visitType", "診療区分を選択してください")
	}
	if !info.Department.Selectable() {
		add("department", "診療科を選択してください")
	}
	if info.Department == DepartmentOther && strings.TrimSpace(info.OtherDepartment) == "" {
		add("otherDepartment", "その他の診療科を入力してください")
	}
	if strings.TrimSpace(info.LastName) == "" {
		add("lastName", "姓を入力してください")
	}
	if strings.TrimSpace(info.FirstName) == "" {
		add("firstName", "名を入力してください")
	}
	if !info.Gender.Valid() {
		add("gender", "性別を選択してください")
	}

	dateComplete := true
	if info.BirthYear <= 0 {
		add("birthYear", "生年を選択してください")
		dateComplete = false
	}
	if info.BirthMonth <= 0 {
		add("birthMonth", "生月を選択してください")
		dateComplete = false
	}
	if info.BirthDay <= 0 {
		add("birthDay", "生日を選択してください")
		dateComplete = false
	}
	if dateComplete {
		if msg := checkBirthDate(info, now); msg != "" {
			add("birthDay", msg)
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, "; ")
	}
	return apperror.WrapValidationError("患者情報を確認してください", result)
}

func checkBirthDate(info PatientInfo, now time.Time) string {
	if info.BirthMonth > 12 {
		return "生年月日が正しくありません"
	}
	birth := info.BirthDate()
	// time.Date normalises overflow, e.g. Feb 30 becomes Mar 2.
	if birth.Year() != info.BirthYear || int(birth.Month()) != info.BirthMonth || birth.Day() != info.BirthDay {
		return "生年月日が正しくありません"
	}
	if birth.After(now) {
		return "生年月日が未来の日付です"
	}
	return ""
}

// FieldErrors extracts the per-field problems from a ValidatePatientInfo error.
func FieldErrors(err error) []FieldError {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return nil
	}
	out := make([]FieldError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var fe *FieldError
		if errors.As(e, &fe) {
			out = append(out, *fe)
		}
	}
	return out
}
