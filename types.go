package credflow

import (
	"context"
	"strings"
	"time"
)

// FlowMode is the form the Login screen is currently presenting.
type FlowMode uint8

const (
	// ModeSignIn is the initial mode.
	ModeSignIn FlowMode = iota
	// ModeCreateAccount shows the confirm-password field.
	ModeCreateAccount
	// ModeForgotPassword is the reset modal shown over the sign-in form.
	ModeForgotPassword
)

func (m FlowMode) String() string {
	switch m {
	case ModeSignIn:
		return "sign_in"
	case ModeCreateAccount:
		return "create_account"
	case ModeForgotPassword:
		return "forgot_password"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the three declared modes.
func (m FlowMode) Valid() bool {
	return m <= ModeForgotPassword
}

// ParseFlowMode accepts the String form of a mode.
func ParseFlowMode(s string) (FlowMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sign_in", "signin":
		return ModeSignIn, nil
	case "create_account", "createaccount", "sign_up", "signup":
		return ModeCreateAccount, nil
	case "forgot_password", "forgotpassword", "reset":
		return ModeForgotPassword, nil
	default:
		return ModeSignIn, ErrInvalidMode
	}
}

// MarshalText lets modes travel as strings in JSON.
func (m FlowMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *FlowMode) UnmarshalText(text []byte) error {
	parsed, err := ParseFlowMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CredentialInput holds the raw field values of one form instance.
type CredentialInput struct {
	Email           string
	Password        string
	ConfirmPassword string
}

// ValidationState is derived from the last validation pass.
type ValidationState struct {
	EmailInvalid    bool `json:"emailInvalid"`
	PasswordInvalid bool `json:"passwordInvalid"`
}

// OK reports whether neither field is flagged.
func (v ValidationState) OK() bool {
	return !v.EmailInvalid && !v.PasswordInvalid
}

// Status is the outstanding-request state of a controller.
type Status struct {
	Loading bool `json:"loading"`
}

// Session is the opaque handle an Auth Gateway returns on sign-in.
type Session struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject,omitempty"`
	Email     string    `json:"email,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// OutcomeKind says which terminal result a successful Submit produced.
type OutcomeKind uint8

const (
	OutcomeNone OutcomeKind = iota
	OutcomeAuthenticated
	OutcomeAccountCreated
	OutcomeResetSent
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeAccountCreated:
		return "account_created"
	case OutcomeResetSent:
		return "reset_sent"
	default:
		return "none"
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SessionOutcome is returned by a successful Submit. Session is set only for
// OutcomeAuthenticated.
type SessionOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Session *Session    `json:"session,omitempty"`
}

// Authenticated reports whether the controller reached its terminal state.
func (o SessionOutcome) Authenticated() bool {
	return o.Kind == OutcomeAuthenticated
}

// State is a read-only snapshot for the presentation layer. Passwords are
// never included.
type State struct {
	Mode            FlowMode        `json:"mode"`
	Email           string          `json:"email"`
	HasPassword     bool            `json:"hasPassword"`
	HasConfirmation bool            `json:"hasConfirmation"`
	Validation      ValidationState `json:"validation"`
	Loading         bool            `json:"loading"`
	PasswordVisible bool            `json:"passwordVisible"`
	ModalOpen       bool            `json:"modalOpen"`
	Authenticated   bool            `json:"authenticated"`
	LastError       string          `json:"lastError,omitempty"`
}

// AuthGateway is the identity backend capability the controller drives.
// Each call blocks until the backend answers or ctx is done.
type AuthGateway interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string) error
	SendPasswordReset(ctx context.Context, email string) error
}

// SocialGateway is the optional social sign-in capability. credential is
// whatever the provider hands the client (an OAuth authorization code for
// Google).
type SocialGateway interface {
	SignInWithProvider(ctx context.Context, provider, credential string) (Session, error)
}

// AuthenticatedHook is notified once a controller reaches the authenticated
// state. It runs after the controller released its lock.
type AuthenticatedHook func(ctx context.Context, session Session)
