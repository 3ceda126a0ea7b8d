package validator

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// isDate accepts a real calendar date written as YYYY-MM-DD.
func isDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// isClock accepts a 24-hour HH:MM time of day.
func isClock(fl validator.FieldLevel) bool {
	return clockPattern.MatchString(fl.Field().String())
}
