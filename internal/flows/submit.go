package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrGatewayPanic wraps a value recovered from a panicking gateway call.
var ErrGatewayPanic = errors.New("gateway panicked")

// Session mirrors the root Session without importing the root package.
type Session struct {
	Token     string
	Subject   string
	Email     string
	Provider  string
	ExpiresAt time.Time
}

// SubmitOutcome is the terminal result of a successful submission.
type SubmitOutcome uint8

const (
	SubmitOutcomeNone SubmitOutcome = iota
	SubmitOutcomeAuthenticated
	SubmitOutcomeAccountCreated
	SubmitOutcomeResetSent
)

// GatewayOp names the gateway call a failure came from.
type GatewayOp uint8

const (
	GatewayOpNone GatewayOp = iota
	GatewayOpSignIn
	GatewayOpSignUp
	GatewayOpSendPasswordReset
	GatewayOpSocialSignIn
)

type SubmitMetrics struct {
	SignInSuccess        int
	SignInFailure        int
	SignUpSuccess        int
	SignUpFailure        int
	PasswordResetSuccess int
	PasswordResetFailure int
	SocialSignInSuccess  int
	SocialSignInFailure  int
	GatewayTimeout       int
	GatewayLatency       int
}

type SubmitEvents struct {
	SignInSuccess       string
	SignInFailure       string
	SignUpSuccess       string
	SignUpFailure       string
	PasswordResetSent   string
	PasswordResetFailed string
	SocialSignInSuccess string
	SocialSignInFailure string
}

// SubmitDeps carries everything RunSubmit and RunSocialSubmit touch. Nil
// function fields are skipped, except for the gateway call the mode needs.
type SubmitDeps struct {
	ChainSignIn bool
	Timeout     time.Duration
	Now         func() time.Time

	SignIn             func(context.Context, string, string) (Session, error)
	SignUp             func(context.Context, string, string) error
	SendPasswordReset  func(context.Context, string) error
	SignInWithProvider func(context.Context, string, string) (Session, error)

	MetricInc func(int)
	Observe   func(int, time.Duration)
	EmitAudit func(ctx context.Context, event string, success bool, subject string, err error)

	Metrics SubmitMetrics
	Events  SubmitEvents
}

// SubmitInput is the snapshot taken under the controller lock.
type SubmitInput struct {
	Mode     Mode
	Email    string
	Password string
}

// SubmitResult describes where the controller ends up. NextMode is valid on
// both success and failure; FailedOp is set only when err != nil.
type SubmitResult struct {
	Outcome  SubmitOutcome
	Session  Session
	NextMode Mode
	FailedOp GatewayOp
	// SignedUp is true when an account was created, even if the chained
	// sign-in afterwards failed.
	SignedUp bool
}

// RunSubmit dispatches one validated submission to the gateway. It performs
// no retries.
func RunSubmit(ctx context.Context, in SubmitInput, deps SubmitDeps) (SubmitResult, error) {
	switch in.Mode {
	case ModeSignIn:
		return runSignIn(ctx, in.Email, in.Password, deps, SubmitResult{})
	case ModeCreateAccount:
		return runSignUp(ctx, in, deps)
	case ModeForgotPassword:
		return runPasswordReset(ctx, in.Email, deps)
	default:
		return SubmitResult{NextMode: in.Mode}, fmt.Errorf("unknown mode %d", in.Mode)
	}
}

func runSignIn(ctx context.Context, email, password string, deps SubmitDeps, res SubmitResult) (SubmitResult, error) {
	res.NextMode = ModeSignIn
	if deps.SignIn == nil {
		res.FailedOp = GatewayOpSignIn
		return res, errors.New("sign-in gateway not configured")
	}

	session, err := deps.call(ctx, func(callCtx context.Context) (Session, error) {
		return deps.SignIn(callCtx, email, password)
	})
	if err != nil {
		deps.inc(deps.Metrics.SignInFailure)
		deps.emit(ctx, deps.Events.SignInFailure, false, email, err)
		res.FailedOp = GatewayOpSignIn
		return res, err
	}

	deps.inc(deps.Metrics.SignInSuccess)
	deps.emit(ctx, deps.Events.SignInSuccess, true, subjectOf(session, email), nil)
	res.Outcome = SubmitOutcomeAuthenticated
	res.Session = session
	return res, nil
}

func runSignUp(ctx context.Context, in SubmitInput, deps SubmitDeps) (SubmitResult, error) {
	if deps.SignUp == nil {
		return SubmitResult{NextMode: ModeCreateAccount, FailedOp: GatewayOpSignUp}, errors.New("sign-up gateway not configured")
	}

	_, err := deps.call(ctx, func(callCtx context.Context) (Session, error) {
		return Session{}, deps.SignUp(callCtx, in.Email, in.Password)
	})
	if err != nil {
		deps.inc(deps.Metrics.SignUpFailure)
		deps.emit(ctx, deps.Events.SignUpFailure, false, in.Email, err)
		return SubmitResult{NextMode: ModeCreateAccount, FailedOp: GatewayOpSignUp}, err
	}

	deps.inc(deps.Metrics.SignUpSuccess)
	deps.emit(ctx, deps.Events.SignUpSuccess, true, in.Email, nil)

	res := SubmitResult{NextMode: ModeSignIn, SignedUp: true}
	if !deps.ChainSignIn {
		res.Outcome = SubmitOutcomeAccountCreated
		return res, nil
	}
	return runSignIn(ctx, in.Email, in.Password, deps, res)
}

func runPasswordReset(ctx context.Context, email string, deps SubmitDeps) (SubmitResult, error) {
	if deps.SendPasswordReset == nil {
		return SubmitResult{NextMode: ModeForgotPassword, FailedOp: GatewayOpSendPasswordReset}, errors.New("password reset gateway not configured")
	}

	_, err := deps.call(ctx, func(callCtx context.Context) (Session, error) {
		return Session{}, deps.SendPasswordReset(callCtx, email)
	})
	if err != nil {
		deps.inc(deps.Metrics.PasswordResetFailure)
		deps.emit(ctx, deps.Events.PasswordResetFailed, false, email, err)
		return SubmitResult{NextMode: ModeForgotPassword, FailedOp: GatewayOpSendPasswordReset}, err
	}

	deps.inc(deps.Metrics.PasswordResetSuccess)
	deps.emit(ctx, deps.Events.PasswordResetSent, true, email, nil)
	return SubmitResult{NextMode: ModeSignIn, Outcome: SubmitOutcomeResetSent}, nil
}

// RunSocialSubmit signs in through a social provider. The controller mode is
// left as it was on failure and returns to sign-in on success.
func RunSocialSubmit(ctx context.Context, mode Mode, provider, credential string, deps SubmitDeps) (SubmitResult, error) {
	if deps.SignInWithProvider == nil {
		return SubmitResult{NextMode: mode, FailedOp: GatewayOpSocialSignIn}, errors.New("social gateway not configured")
	}

	session, err := deps.call(ctx, func(callCtx context.Context) (Session, error) {
		return deps.SignInWithProvider(callCtx, provider, credential)
	})
	if err != nil {
		deps.inc(deps.Metrics.SocialSignInFailure)
		deps.emit(ctx, deps.Events.SocialSignInFailure, false, provider, err)
		return SubmitResult{NextMode: mode, FailedOp: GatewayOpSocialSignIn}, err
	}

	deps.inc(deps.Metrics.SocialSignInSuccess)
	deps.emit(ctx, deps.Events.SocialSignInSuccess, true, subjectOf(session, provider), nil)
	return SubmitResult{NextMode: ModeSignIn, Outcome: SubmitOutcomeAuthenticated, Session: session}, nil
}

type callResult struct {
	session Session
	err     error
}

// call runs fn under the configured timeout, records latency, and turns a
// panic into an ErrGatewayPanic error. fn runs on its own goroutine so a
// gateway that ignores its context still releases the caller at the deadline.
func (d SubmitDeps) call(ctx context.Context, fn func(context.Context) (Session, error)) (Session, error) {
	callCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	start := d.now()
	done := make(chan callResult, 1)
	go func() {
		var res callResult
		defer func() {
			if r := recover(); r != nil {
				res = callResult{err: fmt.Errorf("%w: %v", ErrGatewayPanic, r)}
			}
			done <- res
		}()
		res.session, res.err = fn(callCtx)
	}()

	var res callResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = callResult{err: callCtx.Err()}
	}

	if d.Observe != nil {
		d.Observe(d.Metrics.GatewayLatency, d.now().Sub(start))
	}
	if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
		d.inc(d.Metrics.GatewayTimeout)
	}
	return res.session, res.err
}

func (d SubmitDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d SubmitDeps) inc(id int) {
	if d.MetricInc != nil {
		d.MetricInc(id)
	}
}

func (d SubmitDeps) emit(ctx context.Context, event string, success bool, subject string, err error) {
	if d.EmitAudit == nil || event == "" {
		return
	}
	d.EmitAudit(ctx, event, success, subject, err)
}

func subjectOf(s Session, fallback string) string {
	if s.Subject != "" {
		return s.Subject
	}
	if s.Email != "" {
		return s.Email
	}
	return fallback
}
