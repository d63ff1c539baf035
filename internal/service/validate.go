package service

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const forbiddenPasswordSubstring = "password"

// fieldRule pairs a validator tag with the message reported when it fails.
type fieldRule struct {
	tag string
	msg string
}

var (
	nameRules = []fieldRule{
		{"required", "name is required"},
	}
	emailRules = []fieldRule{
		{"required", "email is required"},
		{"email", "email is invalid"},
	}
	ageRules = []fieldRule{
		{"min=0", "age must be a positive number"},
		{"max=150", "age must be at most 150"},
	}
	passwordRules = []fieldRule{
		{"required", "password is required"},
		{"min=7", "password must be at least 7 characters"},
		{"excludes=" + forbiddenPasswordSubstring, `password cannot contain "password"`},
	}
	descriptionRules = []fieldRule{
		{"required", "description is required"},
	}
)

func checkField(value any, rules []fieldRule) error {
	for _, r := range rules {
		if err := validate.Var(value, r.tag); err != nil {
			return invalid(r.msg)
		}
	}
	return nil
}

// profile holds normalized user fields awaiting validation.
// Password is nil when the password is not being set.
type profile struct {
	name     string
	email    string
	age      int
	password *string
}

func normalizeName(s string) string  { return strings.TrimSpace(s) }
func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validateProfile(p profile) error {
	if err := checkField(p.name, nameRules); err != nil {
		return err
	}
	if err := checkField(p.email, emailRules); err != nil {
		return err
	}
	if err := checkField(p.age, ageRules); err != nil {
		return err
	}
	if p.password != nil {
		if err := checkField(*p.password, passwordRules); err != nil {
			return err
		}
	}
	return nil
}
