package credflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/credflow/internal/flows"
)

var (
	// ErrEmailInvalid is returned (wrapped in a ValidationError) when the
	// email field is empty or not shaped like local@domain.tld.
	ErrEmailInvalid = errors.New("email empty or malformed")
	// ErrPasswordEmpty is returned when a password is required but empty.
	ErrPasswordEmpty = errors.New("password empty")
	// ErrPasswordMismatch is returned in create-account mode when the
	// confirmation does not equal the password.
	ErrPasswordMismatch = errors.New("password confirmation mismatch")

	// ErrSubmitInFlight rejects a submission while another one is outstanding.
	ErrSubmitInFlight = errors.New("submission already in flight")
	// ErrEngineNotReady is returned by controllers created outside Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrSocialDisabled is returned by SubmitSocial when social sign-in is off
	// or no social gateway is configured.
	ErrSocialDisabled = errors.New("social sign-in disabled")
	// ErrSocialCredentialEmpty is returned by SubmitSocial for an empty
	// provider credential.
	ErrSocialCredentialEmpty = errors.New("social credential empty")
	// ErrUnknownProvider is returned for a provider not listed in Config.Social.
	ErrUnknownProvider = errors.New("unknown social provider")
	// ErrInvalidMode is returned by ParseFlowMode.
	ErrInvalidMode = errors.New("invalid flow mode")
)

// Gateway sentinels. Auth Gateway implementations wrap these (or return an
// *AuthError directly) so the controller can classify failures.
var (
	ErrGatewayInvalidCredentials = errors.New("invalid credentials")
	ErrGatewayEmailInUse         = errors.New("email already in use")
	ErrGatewayInvalidInput       = errors.New("invalid input")
	ErrGatewayAccountNotFound    = errors.New("account not found")
	ErrGatewayRateLimited        = errors.New("rate limited")
	ErrGatewayUnavailable        = errors.New("identity backend unavailable")
)

// ValidationKind names the field rule that rejected an input.
type ValidationKind uint8

const (
	ValidationEmptyOrMalformedEmail ValidationKind = iota + 1
	ValidationEmptyPassword
	ValidationPasswordMismatch
)

func (k ValidationKind) String() string {
	switch k {
	case ValidationEmptyOrMalformedEmail:
		return "empty_or_malformed_email"
	case ValidationEmptyPassword:
		return "empty_password"
	case ValidationPasswordMismatch:
		return "password_mismatch"
	default:
		return "unknown"
	}
}

// ValidationError reports a locally detected field problem. It is never
// produced by the gateway.
type ValidationError struct {
	Kind  ValidationKind
	State ValidationState
}

func (e *ValidationError) Error() string {
	return "credflow: validation failed: " + e.Kind.String()
}

// Unwrap maps the kind to its sentinel so errors.Is works.
func (e *ValidationError) Unwrap() error {
	switch e.Kind {
	case ValidationEmptyOrMalformedEmail:
		return ErrEmailInvalid
	case ValidationEmptyPassword:
		return ErrPasswordEmpty
	case ValidationPasswordMismatch:
		return ErrPasswordMismatch
	default:
		return nil
	}
}

// AuthErrorKind classifies a gateway failure for the presentation layer.
type AuthErrorKind uint8

const (
	AuthErrorUnknown AuthErrorKind = iota
	AuthErrorInvalidCredentials
	AuthErrorEmailInUse
	AuthErrorInvalidInput
	AuthErrorAccountNotFound
	AuthErrorRateLimited
	AuthErrorUnavailable
	AuthErrorTimeout
	AuthErrorInternal
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthErrorInvalidCredentials:
		return "invalid_credentials"
	case AuthErrorEmailInUse:
		return "email_in_use"
	case AuthErrorInvalidInput:
		return "invalid_input"
	case AuthErrorAccountNotFound:
		return "account_not_found"
	case AuthErrorRateLimited:
		return "rate_limited"
	case AuthErrorUnavailable:
		return "unavailable"
	case AuthErrorTimeout:
		return "timeout"
	case AuthErrorInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Gateway operation names carried in AuthError.Op.
const (
	OpSignIn            = "signIn"
	OpSignUp            = "signUp"
	OpSendPasswordReset = "sendPasswordReset"
	OpSocialSignIn      = "socialSignIn"
)

// AuthError is the passthrough of a failed Auth Gateway call.
type AuthError struct {
	Op   string
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credflow: %s failed: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("credflow: %s failed: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError for gateway implementations that know the
// kind up front.
func NewAuthError(op string, kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Op: op, Kind: kind, Err: err}
}

// ClassifyAuthError normalizes any gateway error into an *AuthError for op.
// An *AuthError already in the chain keeps its kind; the Op is overwritten so
// chained sign-in failures are attributed to the call that actually failed.
func ClassifyAuthError(op string, err error) *AuthError {
	if err == nil {
		return nil
	}

	var existing *AuthError
	if errors.As(err, &existing) {
		return &AuthError{Op: op, Kind: existing.Kind, Err: existing.Err}
	}

	return &AuthError{Op: op, Kind: authErrorKindOf(err), Err: err}
}

func authErrorKindOf(err error) AuthErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return AuthErrorTimeout
	case errors.Is(err, flows.ErrGatewayPanic):
		return AuthErrorInternal
	case errors.Is(err, ErrGatewayInvalidCredentials):
		return AuthErrorInvalidCredentials
	case errors.Is(err, ErrGatewayEmailInUse):
		return AuthErrorEmailInUse
	case errors.Is(err, ErrGatewayInvalidInput):
		return AuthErrorInvalidInput
	case errors.Is(err, ErrGatewayAccountNotFound):
		return AuthErrorAccountNotFound
	case errors.Is(err, ErrGatewayRateLimited):
		return AuthErrorRateLimited
	case errors.Is(err, ErrGatewayUnavailable), errors.Is(err, context.Canceled):
		return AuthErrorUnavailable
	default:
		return AuthErrorUnknown
	}
}
