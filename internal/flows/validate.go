package flows

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Mode mirrors the root FlowMode without importing the root package.
type Mode uint8

const (
	ModeSignIn Mode = iota
	ModeCreateAccount
	ModeForgotPassword
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind uint8

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureEmail
	ValidateFailurePasswordEmpty
	ValidateFailurePasswordMismatch
)

// ValidateInput is one validation pass over the form fields.
type ValidateInput struct {
	Mode            Mode
	Email           string
	Password        string
	ConfirmPassword string
}

// ValidateResult holds the field flags and the first rule that failed.
type ValidateResult struct {
	EmailInvalid    bool
	PasswordInvalid bool
	Failure         ValidateFailureKind
}

// OK reports whether every rule passed.
func (r ValidateResult) OK() bool {
	return r.Failure == ValidateFailureNone
}

type emailField struct {
	Email string `validate:"required,email"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// EmailValid reports whether email is non-empty, passes RFC 5322 shape
// checks, and carries at least one "." in its domain.
func EmailValid(email string) bool {
	if email == "" {
		return false
	}
	if err := fieldValidator().Struct(emailField{Email: email}); err != nil {
		return false
	}

	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// RunValidate applies the field rules in order and stops at the first
// failure. An email failure leaves PasswordInvalid cleared.
func RunValidate(in ValidateInput) ValidateResult {
	if !EmailValid(in.Email) {
		return ValidateResult{EmailInvalid: true, Failure: ValidateFailureEmail}
	}

	if in.Mode != ModeForgotPassword && in.Password == "" {
		return ValidateResult{PasswordInvalid: true, Failure: ValidateFailurePasswordEmpty}
	}

	if in.Mode == ModeCreateAccount && in.ConfirmPassword != in.Password {
		return ValidateResult{PasswordInvalid: true, Failure: ValidateFailurePasswordMismatch}
	}

	return ValidateResult{}
}
