package credflow

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/credflow/internal/flows"
	"go.uber.org/zap"
)

// Controller is the state of one Login form: field values, validation flags,
// the current FlowMode and the loading flag. All methods are safe for
// concurrent use. At most one gateway call is outstanding at a time.
type Controller struct {
	engine *Engine

	mu              sync.Mutex
	input           CredentialInput
	mode            FlowMode
	modeGen         uint64
	validation      ValidationState
	loading         bool
	passwordVisible bool
	session         *Session
	lastErr         error
	hooks           []AuthenticatedHook
}

/*
====================================
FIELDS
====================================
*/

func (c *Controller) SetEmail(email string) {
	c.mu.Lock()
	c.input.Email = email
	c.mu.Unlock()
}

func (c *Controller) SetPassword(password string) {
	c.mu.Lock()
	c.input.Password = password
	c.mu.Unlock()
}

// SetConfirmPassword stores the confirmation. It is only kept while the
// controller is in create-account mode.
func (c *Controller) SetConfirmPassword(confirm string) {
	c.mu.Lock()
	if c.mode == ModeCreateAccount {
		c.input.ConfirmPassword = confirm
	}
	c.mu.Unlock()
}

// SetInput replaces all three fields at once, with the same confirm-password
// rule as SetConfirmPassword.
func (c *Controller) SetInput(in CredentialInput) {
	c.mu.Lock()
	c.input.Email = in.Email
	c.input.Password = in.Password
	if c.mode == ModeCreateAccount {
		c.input.ConfirmPassword = in.ConfirmPassword
	} else {
		c.input.ConfirmPassword = ""
	}
	c.mu.Unlock()
}

/*
====================================
MODE & PRESENTATION
====================================
*/

func (c *Controller) Mode() FlowMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ToggleMode switches to target. It is permitted at any time, including while
// a submission is outstanding. Leaving create-account mode discards the
// confirmation field; every other field is retained.
func (c *Controller) ToggleMode(ctx context.Context, target FlowMode) error {
	if !target.Valid() {
		return ErrInvalidMode
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	from := c.mode
	if from == target {
		c.mu.Unlock()
		return nil
	}
	c.setModeLocked(target)
	c.modeGen++
	c.mu.Unlock()

	if c.engine != nil {
		c.engine.metricInc(MetricModeChanged)
		c.engine.emitAudit(ctx, auditEventModeChanged, target, true, "", nil, func() map[string]string {
			return map[string]string{"from": from.String(), "to": target.String()}
		})
	}
	return nil
}

func (c *Controller) setModeLocked(target FlowMode) {
	if c.mode == ModeCreateAccount && target != ModeCreateAccount {
		c.input.ConfirmPassword = ""
	}
	c.mode = target
}

// TogglePasswordVisible flips the password visibility flag and returns the new
// value. With Flow.GuardVisibilityToggle set, the toggle is ignored while the
// password is empty in sign-in mode.
func (c *Controller) TogglePasswordVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil && c.engine.config.Flow.GuardVisibilityToggle &&
		c.mode == ModeSignIn && c.input.Password == "" {
		return c.passwordVisible
	}
	c.passwordVisible = !c.passwordVisible
	return c.passwordVisible
}

// OnAuthenticated registers a hook for this controller only. It runs after the
// engine-wide hooks.
func (c *Controller) OnAuthenticated(hook AuthenticatedHook) {
	if hook == nil {
		return
	}
	c.mu.Lock()
	c.hooks = append(c.hooks, hook)
	c.mu.Unlock()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Loading: c.loading}
}

// Session returns the session of the last successful sign-in.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Snapshot returns the presentation state. Password values are reported only
// as presence flags.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Mode:            c.mode,
		Email:           c.input.Email,
		HasPassword:     c.input.Password != "",
		HasConfirmation: c.input.ConfirmPassword != "",
		Validation:      c.validation,
		Loading:         c.loading,
		PasswordVisible: c.passwordVisible,
		ModalOpen:       c.mode == ModeForgotPassword,
		Authenticated:   c.session != nil,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

/*
====================================
VALIDATION
====================================
*/

// ValidateInput applies the field rules for mode without touching any
// controller. The returned error is a *ValidationError or nil.
func ValidateInput(input CredentialInput, mode FlowMode) (ValidationState, error) {
	res := flows.RunValidate(flows.ValidateInput{
		Mode:            flows.Mode(mode),
		Email:           input.Email,
		Password:        input.Password,
		ConfirmPassword: input.ConfirmPassword,
	})
	state := ValidationState{
		EmailInvalid:    res.EmailInvalid,
		PasswordInvalid: res.PasswordInvalid,
	}
	if res.OK() {
		return state, nil
	}
	return state, &ValidationError{Kind: validationKindOf(res.Failure), State: state}
}

func validationKindOf(f flows.ValidateFailureKind) ValidationKind {
	switch f {
	case flows.ValidateFailureEmail:
		return ValidationEmptyOrMalformedEmail
	case flows.ValidateFailurePasswordEmpty:
		return ValidationEmptyPassword
	case flows.ValidateFailurePasswordMismatch:
		return ValidationPasswordMismatch
	default:
		return 0
	}
}

// Validate runs ValidateInput on the current fields and mode and stores the
// result.
func (c *Controller) Validate() (ValidationState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validateLocked()
}

func (c *Controller) validateLocked() (ValidationState, error) {
	state, err := ValidateInput(c.input, c.mode)
	c.validation = state
	return state, err
}

/*
====================================
SUBMIT
====================================
*/

// Submit validates the fields and dispatches to the gateway call that matches
// the current mode. It returns ErrSubmitInFlight while a previous submission
// is outstanding, a *ValidationError when a field rule fails (the gateway is
// not called), or an *AuthError when the gateway fails. Loading is cleared on
// every return path.
func (c *Controller) Submit(ctx context.Context) (SessionOutcome, error) {
	if c == nil || c.engine == nil {
		return SessionOutcome{}, ErrEngineNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := c.engine

	c.mu.Lock()
	mode := c.mode
	ctx = withMode(ctx, mode)
	if c.loading {
		c.mu.Unlock()
		c.rejectInFlight(ctx, mode)
		return SessionOutcome{}, ErrSubmitInFlight
	}

	if _, err := c.validateLocked(); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		e.metricInc(MetricValidationRejected)
		e.emitAudit(ctx, auditEventValidationRejected, mode, false, "", err, nil)
		return SessionOutcome{}, err
	}

	in := flows.SubmitInput{
		Mode:     flows.Mode(mode),
		Email:    c.input.Email,
		Password: c.input.Password,
	}
	gen := c.beginLocked()
	c.mu.Unlock()
	defer c.release()

	res, err := flows.RunSubmit(ctx, in, e.flows.Submit)
	return c.complete(ctx, mode, gen, res, err)
}

// SubmitSocial signs in through a social provider. It shares the loading
// flag and single-flight rule with Submit but skips field validation.
func (c *Controller) SubmitSocial(ctx context.Context, provider, credential string) (SessionOutcome, error) {
	if c == nil || c.engine == nil {
		return SessionOutcome{}, ErrEngineNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := c.engine

	if !e.config.Social.Enabled || e.social == nil {
		return SessionOutcome{}, ErrSocialDisabled
	}
	if !e.config.providerAllowed(provider) {
		return SessionOutcome{}, ErrUnknownProvider
	}
	if credential == "" {
		return SessionOutcome{}, ErrSocialCredentialEmpty
	}

	c.mu.Lock()
	mode := c.mode
	ctx = withMode(ctx, mode)
	if c.loading {
		c.mu.Unlock()
		c.rejectInFlight(ctx, mode)
		return SessionOutcome{}, ErrSubmitInFlight
	}
	gen := c.beginLocked()
	c.mu.Unlock()
	defer c.release()

	res, err := flows.RunSocialSubmit(ctx, flows.Mode(mode), provider, credential, e.flows.Submit)
	return c.complete(ctx, mode, gen, res, err)
}

func (c *Controller) rejectInFlight(ctx context.Context, mode FlowMode) {
	c.engine.metricInc(MetricSubmitInFlightRejected)
	c.engine.emitAudit(ctx, auditEventSubmitInFlightRejected, mode, false, "", ErrSubmitInFlight, nil)
}

func (c *Controller) beginLocked() uint64 {
	c.loading = true
	c.lastErr = nil
	return c.modeGen
}

// release clears loading. complete already does so; this covers a panic
// unwinding out of the flow.
func (c *Controller) release() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

// complete applies a flow result to the controller. The result mode is only
// applied when the user did not switch modes while the call was outstanding;
// an authenticated result is applied regardless.
func (c *Controller) complete(ctx context.Context, mode FlowMode, gen uint64, res flows.SubmitResult, err error) (SessionOutcome, error) {
	e := c.engine

	var authErr *AuthError
	if err != nil {
		authErr = ClassifyAuthError(opName(res.FailedOp), err)
	}

	c.mu.Lock()
	userToggled := c.modeGen != gen
	if !userToggled || res.Outcome == flows.SubmitOutcomeAuthenticated {
		c.setModeLocked(FlowMode(res.NextMode))
	} else if res.SignedUp && c.mode == ModeCreateAccount {
		c.setModeLocked(ModeSignIn)
	}
	c.loading = false

	var outcome SessionOutcome
	var hooks []AuthenticatedHook
	if authErr != nil {
		c.lastErr = authErr
		if res.FailedOp == flows.GatewayOpSignIn && e.config.Flow.ClearPasswordOnFailure {
			c.input.Password = ""
			c.input.ConfirmPassword = ""
		}
	} else {
		c.lastErr = nil
		outcome.Kind = outcomeKindOf(res.Outcome)
		if outcome.Kind == OutcomeAuthenticated {
			session := fromFlowSession(res.Session)
			c.session = &session
			outcome.Session = &session
			hooks = make([]AuthenticatedHook, 0, len(e.hooks)+len(c.hooks))
			hooks = append(hooks, e.hooks...)
			hooks = append(hooks, c.hooks...)
		}
	}
	c.mu.Unlock()

	if authErr != nil {
		e.logger.Debug("gateway call failed",
			zap.String("op", authErr.Op),
			zap.String("kind", authErr.Kind.String()),
			zap.String("mode", mode.String()),
			zap.Error(authErr.Err),
		)
		return SessionOutcome{}, authErr
	}

	if outcome.Session != nil {
		e.metricInc(MetricAuthenticated)
		e.runHooks(ctx, *outcome.Session, hooks)
	}
	return outcome, nil
}

func opName(op flows.GatewayOp) string {
	switch op {
	case flows.GatewayOpSignIn:
		return OpSignIn
	case flows.GatewayOpSignUp:
		return OpSignUp
	case flows.GatewayOpSendPasswordReset:
		return OpSendPasswordReset
	case flows.GatewayOpSocialSignIn:
		return OpSocialSignIn
	default:
		return "submit"
	}
}

func outcomeKindOf(o flows.SubmitOutcome) OutcomeKind {
	switch o {
	case flows.SubmitOutcomeAuthenticated:
		return OutcomeAuthenticated
	case flows.SubmitOutcomeAccountCreated:
		return OutcomeAccountCreated
	case flows.SubmitOutcomeResetSent:
		return OutcomeResetSent
	default:
		return OutcomeNone
	}
}

// IsAuthError reports whether err carries a gateway failure of kind.
func IsAuthError(err error, kind AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}
