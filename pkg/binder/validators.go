package binder

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	dateRE      = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`)
	companyIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// dateValidator accepts YYYY-MM-DD or the empty string. Pair it with
// `required` when the value can't be blank.
func dateValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return dateRE.MatchString(value)
}

// companyIDValidator accepts a QuickBooks realm id. They are numeric in
// practice but the check only rules out characters that would need escaping.
func companyIDValidator(fl validator.FieldLevel) bool {
	return companyIDRE.MatchString(fl.Field().String())
}
