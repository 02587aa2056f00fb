package services

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = newValidator()

	slugRegex     = regexp.MustCompile(`^[a-z0-9]+(?:[-_.][a-z0-9]+)*$`)
	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}._-]{2,64}$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return IsSlug(fl.Field().String())
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return IsUsername(fl.Field().String())
	})
	return v
}

// IsSlug reports whether s is a lowercase slug such as "user-browse"
func IsSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// IsUsername reports whether s is usable as a login name. Usernames never
// contain "@" so they cannot be mistaken for an email identifier.
func IsUsername(s string) bool {
	return usernameRegex.MatchString(s)
}

// IsEmail reports whether s parses as an email address
func IsEmail(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && validate.Var(s, "email") == nil
}

// validateInput checks struct tags and converts failures into ErrInvalidInput
// with one detail per offending field
func validateInput(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ErrInvalidInput.Wrap(err)
	}

	domainErr := ErrInvalidInput.Wrap(err)
	for _, fe := range fieldErrs {
		domainErr.WithDetail(strings.ToLower(fe.Field()), fe.Tag())
	}
	return domainErr
}
