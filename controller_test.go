package credflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGateway struct {
	mu sync.Mutex

	signIn            func(ctx context.Context, email, password string) (Session, error)
	signUp            func(ctx context.Context, email, password string) error
	sendPasswordReset func(ctx context.Context, email string) error

	signInCalls []string
	signUpCalls []string
	resetCalls  []string
}

func (g *fakeGateway) SignIn(ctx context.Context, email, password string) (Session, error) {
	g.mu.Lock()
	g.signInCalls = append(g.signInCalls, email+"|"+password)
	fn := g.signIn
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, email, password)
	}
	return Session{Token: "tok-" + email, Subject: "sub-" + email, Email: email}, nil
}

func (g *fakeGateway) SignUp(ctx context.Context, email, password string) error {
	g.mu.Lock()
	g.signUpCalls = append(g.signUpCalls, email+"|"+password)
	fn := g.signUp
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, email, password)
	}
	return nil
}

func (g *fakeGateway) SendPasswordReset(ctx context.Context, email string) error {
	g.mu.Lock()
	g.resetCalls = append(g.resetCalls, email)
	fn := g.sendPasswordReset
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, email)
	}
	return nil
}

func (g *fakeGateway) calls() (signIn, signUp, reset int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.signInCalls), len(g.signUpCalls), len(g.resetCalls)
}

type fakeSocial struct {
	calls atomic.Int64
	err   error
}

func (s *fakeSocial) SignInWithProvider(_ context.Context, provider, credential string) (Session, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Session{}, s.err
	}
	return Session{Token: "social-" + credential, Provider: provider, Email: "g@example.com"}, nil
}

func buildTestEngine(t *testing.T, cfg Config, gw AuthGateway) *Engine {
	t.Helper()
	engine, err := New().WithConfig(cfg).WithGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newTestController(t *testing.T, gw AuthGateway) *Controller {
	t.Helper()
	return buildTestEngine(t, DefaultConfig(), gw).NewController()
}

func assertNotLoading(t *testing.T, c *Controller) {
	t.Helper()
	if c.Status().Loading {
		t.Fatal("expected loading to be false")
	}
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name     string
		input    CredentialInput
		mode     FlowMode
		wantKind ValidationKind
		want     ValidationState
	}{
		{name: "valid sign in", input: CredentialInput{Email: "a@b.com", Password: "x"}, mode: ModeSignIn},
		{name: "empty email", input: CredentialInput{Password: "x"}, mode: ModeSignIn, wantKind: ValidationEmptyOrMalformedEmail, want: ValidationState{EmailInvalid: true}},
		{name: "no at sign", input: CredentialInput{Email: "ab.com", Password: "x"}, mode: ModeSignIn, wantKind: ValidationEmptyOrMalformedEmail, want: ValidationState{EmailInvalid: true}},
		{name: "domain without dot", input: CredentialInput{Email: "a@b", Password: "x"}, mode: ModeSignIn, wantKind: ValidationEmptyOrMalformedEmail, want: ValidationState{EmailInvalid: true}},
		{name: "email failure masks empty password", input: CredentialInput{Email: "nope"}, mode: ModeSignIn, wantKind: ValidationEmptyOrMalformedEmail, want: ValidationState{EmailInvalid: true}},
		{name: "empty password sign in", input: CredentialInput{Email: "a@b.com"}, mode: ModeSignIn, wantKind: ValidationEmptyPassword, want: ValidationState{PasswordInvalid: true}},
		{name: "empty password create", input: CredentialInput{Email: "a@b.com"}, mode: ModeCreateAccount, wantKind: ValidationEmptyPassword, want: ValidationState{PasswordInvalid: true}},
		{name: "forgot password needs no password", input: CredentialInput{Email: "a@b.com"}, mode: ModeForgotPassword},
		{name: "forgot password empty email", input: CredentialInput{}, mode: ModeForgotPassword, wantKind: ValidationEmptyOrMalformedEmail, want: ValidationState{EmailInvalid: true}},
		{name: "create mismatch", input: CredentialInput{Email: "a@b.com", Password: "x", ConfirmPassword: "y"}, mode: ModeCreateAccount, wantKind: ValidationPasswordMismatch, want: ValidationState{PasswordInvalid: true}},
		{name: "create empty confirmation", input: CredentialInput{Email: "a@b.com", Password: "x"}, mode: ModeCreateAccount, wantKind: ValidationPasswordMismatch, want: ValidationState{PasswordInvalid: true}},
		{name: "create matching", input: CredentialInput{Email: "a@b.com", Password: "x", ConfirmPassword: "x"}, mode: ModeCreateAccount},
		{name: "sign in ignores confirmation", input: CredentialInput{Email: "a@b.com", Password: "x", ConfirmPassword: "y"}, mode: ModeSignIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateInput(tt.input, tt.mode)
			if got != tt.want {
				t.Fatalf("expected state %+v, got %+v", tt.want, got)
			}
			if tt.wantKind == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, verr.Kind)
			}
		})
	}
}

func TestValidationErrorMatchesSentinels(t *testing.T) {
	_, err := ValidateInput(CredentialInput{Email: "a@b.com", Password: "x", ConfirmPassword: "z"}, ModeCreateAccount)
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	_, err = ValidateInput(CredentialInput{Email: "a@b.com"}, ModeSignIn)
	if !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("expected ErrPasswordEmpty, got %v", err)
	}
	_, err = ValidateInput(CredentialInput{}, ModeSignIn)
	if !errors.Is(err, ErrEmailInvalid) {
		t.Fatalf("expected ErrEmailInvalid, got %v", err)
	}
}

func TestControllerValidateStoresState(t *testing.T) {
	c := newTestController(t, &fakeGateway{})
	c.SetEmail("bad")

	state, err := c.Validate()
	if err == nil || !state.EmailInvalid {
		t.Fatalf("expected email invalid, got %+v %v", state, err)
	}
	if !c.Snapshot().Validation.EmailInvalid {
		t.Fatal("expected snapshot to carry validation state")
	}

	c.SetEmail("a@b.com")
	c.SetPassword("x")
	if _, err := c.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if !c.Snapshot().Validation.OK() {
		t.Fatalf("expected flags cleared, got %+v", c.Snapshot().Validation)
	}
}

func TestSubmitInvalidEmailNeverCallsGateway(t *testing.T) {
	for _, mode := range []FlowMode{ModeSignIn, ModeCreateAccount, ModeForgotPassword} {
		for _, email := range []string{"", "plain", "a@b", "@b.com"} {
			gw := &fakeGateway{}
			c := newTestController(t, gw)
			if err := c.ToggleMode(context.Background(), mode); err != nil {
				t.Fatalf("ToggleMode failed: %v", err)
			}
			c.SetInput(CredentialInput{Email: email, Password: "pw", ConfirmPassword: "pw"})

			_, err := c.Submit(context.Background())
			if !errors.Is(err, ErrEmailInvalid) {
				t.Fatalf("mode %s email %q: expected ErrEmailInvalid, got %v", mode, email, err)
			}
			if !c.Snapshot().Validation.EmailInvalid {
				t.Fatalf("mode %s email %q: expected emailInvalid", mode, email)
			}
			if in, up, reset := gw.calls(); in+up+reset != 0 {
				t.Fatalf("mode %s email %q: gateway called", mode, email)
			}
			if c.Mode() != mode {
				t.Fatalf("expected mode %s unchanged, got %s", mode, c.Mode())
			}
			assertNotLoading(t, c)
		}
	}
}

func TestSubmitEmptyPasswordNeverCallsGateway(t *testing.T) {
	for _, mode := range []FlowMode{ModeSignIn, ModeCreateAccount} {
		gw := &fakeGateway{}
		c := newTestController(t, gw)
		_ = c.ToggleMode(context.Background(), mode)
		c.SetEmail("a@b.com")

		_, err := c.Submit(context.Background())
		if !errors.Is(err, ErrPasswordEmpty) {
			t.Fatalf("mode %s: expected ErrPasswordEmpty, got %v", mode, err)
		}
		if !c.Snapshot().Validation.PasswordInvalid {
			t.Fatalf("mode %s: expected passwordInvalid", mode)
		}
		if in, up, _ := gw.calls(); in+up != 0 {
			t.Fatalf("mode %s: gateway called", mode)
		}
		assertNotLoading(t, c)
	}
}

func TestSubmitCreateAccountMismatchRejected(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "a@b.com", Password: "one", ConfirmPassword: "two"})

	_, err := c.Submit(context.Background())
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	if _, up, _ := gw.calls(); up != 0 {
		t.Fatal("sign-up should not be called")
	}
	if c.Mode() != ModeCreateAccount {
		t.Fatalf("expected create-account mode, got %s", c.Mode())
	}
}

func TestSubmitSignInSuccess(t *testing.T) {
	gw := &fakeGateway{}
	engine := buildTestEngine(t, DefaultConfig(), gw)
	c := engine.NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	var hooked atomic.Int64
	c.OnAuthenticated(func(_ context.Context, s Session) {
		if s.Token != "tok-a@b.com" {
			t.Errorf("unexpected hook session %+v", s)
		}
		hooked.Add(1)
	})

	outcome, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !outcome.Authenticated() || outcome.Session == nil || outcome.Session.Token != "tok-a@b.com" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if hooked.Load() != 1 {
		t.Fatalf("expected hook to fire once, got %d", hooked.Load())
	}
	st := c.Snapshot()
	if !st.Authenticated || st.Loading || st.Mode != ModeSignIn {
		t.Fatalf("unexpected state %+v", st)
	}
	if got := engine.MetricsSnapshot().Counters[MetricAuthenticated]; got != 1 {
		t.Fatalf("expected authenticated metric 1, got %d", got)
	}
}

func TestSubmitSignInFailureRetainsFields(t *testing.T) {
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			return Session{}, ErrGatewayInvalidCredentials
		},
	}
	c := newTestController(t, gw)
	c.SetEmail("a@b.com")
	c.SetPassword("wrong")

	_, err := c.Submit(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Op != OpSignIn || authErr.Kind != AuthErrorInvalidCredentials {
		t.Fatalf("unexpected auth error %+v", authErr)
	}
	if !errors.Is(err, ErrGatewayInvalidCredentials) {
		t.Fatal("expected gateway sentinel in chain")
	}

	st := c.Snapshot()
	if st.Loading || st.Mode != ModeSignIn || st.Email != "a@b.com" || !st.HasPassword || st.Authenticated {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.LastError == "" {
		t.Fatal("expected last error in snapshot")
	}

	// The form stays re-submittable.
	gw.mu.Lock()
	gw.signIn = nil
	gw.mu.Unlock()
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if c.Snapshot().LastError != "" {
		t.Fatal("expected last error cleared after success")
	}
}

func TestSubmitSignInFailureClearsPasswordWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.ClearPasswordOnFailure = true
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			return Session{}, ErrGatewayInvalidCredentials
		},
	}
	c := buildTestEngine(t, cfg, gw).NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("wrong")

	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	st := c.Snapshot()
	if st.HasPassword || st.Email != "a@b.com" {
		t.Fatalf("expected password cleared and email kept, got %+v", st)
	}
}

func TestSubmitCreateAccountChainsSignIn(t *testing.T) {
	gw := &fakeGateway{}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "new@b.com", Password: "pw", ConfirmPassword: "pw"})

	outcome, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !outcome.Authenticated() {
		t.Fatalf("expected authenticated outcome, got %+v", outcome)
	}

	gw.mu.Lock()
	signUps, signIns := gw.signUpCalls, gw.signInCalls
	gw.mu.Unlock()
	if len(signUps) != 1 || signUps[0] != "new@b.com|pw" {
		t.Fatalf("unexpected sign-up calls %v", signUps)
	}
	if len(signIns) != 1 || signIns[0] != "new@b.com|pw" {
		t.Fatalf("expected chained sign-in with same credentials, got %v", signIns)
	}

	st := c.Snapshot()
	if st.Mode != ModeSignIn || st.HasConfirmation || st.Loading {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestSubmitCreateAccountWithoutChain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Flow.ChainSignInAfterSignUp = false
	gw := &fakeGateway{}
	c := buildTestEngine(t, cfg, gw).NewController()
	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "new@b.com", Password: "pw", ConfirmPassword: "pw"})

	outcome, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if outcome.Kind != OutcomeAccountCreated || outcome.Session != nil {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if in, _, _ := gw.calls(); in != 0 {
		t.Fatal("sign-in should not be chained")
	}
	if c.Mode() != ModeSignIn {
		t.Fatalf("expected sign-in mode, got %s", c.Mode())
	}
}

func TestSubmitCreateAccountSignUpFailureKeepsMode(t *testing.T) {
	gw := &fakeGateway{
		signUp: func(context.Context, string, string) error {
			return NewAuthError("backend", AuthErrorEmailInUse, errors.New("taken"))
		},
	}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "dup@b.com", Password: "pw", ConfirmPassword: "pw"})

	_, err := c.Submit(context.Background())
	if !IsAuthError(err, AuthErrorEmailInUse) {
		t.Fatalf("expected email in use, got %v", err)
	}
	var authErr *AuthError
	errors.As(err, &authErr)
	if authErr.Op != OpSignUp {
		t.Fatalf("expected op %s, got %s", OpSignUp, authErr.Op)
	}
	st := c.Snapshot()
	if st.Mode != ModeCreateAccount || !st.HasConfirmation || st.Loading {
		t.Fatalf("unexpected state %+v", st)
	}
	if in, _, _ := gw.calls(); in != 0 {
		t.Fatal("sign-in should not run after failed sign-up")
	}
}

func TestSubmitChainedSignInFailure(t *testing.T) {
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			return Session{}, ErrGatewayUnavailable
		},
	}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "new@b.com", Password: "pw", ConfirmPassword: "pw"})

	_, err := c.Submit(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.Op != OpSignIn || authErr.Kind != AuthErrorUnavailable {
		t.Fatalf("unexpected auth error %+v", authErr)
	}
	if c.Mode() != ModeSignIn {
		t.Fatalf("expected sign-in mode after account creation, got %s", c.Mode())
	}
	assertNotLoading(t, c)
}

func TestSubmitForgotPassword(t *testing.T) {
	t.Run("empty email keeps modal open", func(t *testing.T) {
		gw := &fakeGateway{}
		c := newTestController(t, gw)
		_ = c.ToggleMode(context.Background(), ModeForgotPassword)

		_, err := c.Submit(context.Background())
		if !errors.Is(err, ErrEmailInvalid) {
			t.Fatalf("expected ErrEmailInvalid, got %v", err)
		}
		st := c.Snapshot()
		if !st.ModalOpen || !st.Validation.EmailInvalid {
			t.Fatalf("unexpected state %+v", st)
		}
		if _, _, reset := gw.calls(); reset != 0 {
			t.Fatal("gateway should not be called")
		}
	})

	t.Run("success closes modal", func(t *testing.T) {
		gw := &fakeGateway{}
		c := newTestController(t, gw)
		c.SetPassword("kept")
		_ = c.ToggleMode(context.Background(), ModeForgotPassword)
		c.SetEmail("a@b.com")

		outcome, err := c.Submit(context.Background())
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if outcome.Kind != OutcomeResetSent {
			t.Fatalf("unexpected outcome %+v", outcome)
		}
		st := c.Snapshot()
		if st.ModalOpen || st.Mode != ModeSignIn || st.Loading {
			t.Fatalf("unexpected state %+v", st)
		}
		if !st.HasPassword || st.Email != "a@b.com" {
			t.Fatalf("expected shared fields retained, got %+v", st)
		}
	})

	t.Run("failure keeps modal open", func(t *testing.T) {
		gw := &fakeGateway{
			sendPasswordReset: func(context.Context, string) error {
				return ErrGatewayAccountNotFound
			},
		}
		c := newTestController(t, gw)
		_ = c.ToggleMode(context.Background(), ModeForgotPassword)
		c.SetEmail("ghost@b.com")

		_, err := c.Submit(context.Background())
		if !IsAuthError(err, AuthErrorAccountNotFound) {
			t.Fatalf("expected account not found, got %v", err)
		}
		st := c.Snapshot()
		if !st.ModalOpen || st.Loading {
			t.Fatalf("unexpected state %+v", st)
		}
	})
}

func TestSubmitSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			close(entered)
			<-release
			return Session{Token: "t"}, nil
		},
	}
	engine := buildTestEngine(t, DefaultConfig(), gw)
	c := engine.NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()

	<-entered
	if !c.Status().Loading {
		t.Fatal("expected loading while gateway call is outstanding")
	}
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if in, _, _ := gw.calls(); in != 1 {
		t.Fatalf("expected one gateway call, got %d", in)
	}
	assertNotLoading(t, c)
	if got := engine.MetricsSnapshot().Counters[MetricSubmitInFlightRejected]; got != 1 {
		t.Fatalf("expected in-flight rejection metric 1, got %d", got)
	}
}

func TestSubmitConcurrentCallersSingleGatewayCall(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			<-release
			return Session{Token: "t"}, nil
		},
	}
	c := newTestController(t, gw)
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	const callers = 16
	var wg sync.WaitGroup
	var rejected atomic.Int64
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := c.Submit(context.Background()); errors.Is(err, ErrSubmitInFlight) {
				rejected.Add(1)
			}
		}()
	}
	close(start)

	deadline := time.After(2 * time.Second)
	for rejected.Load() < callers-1 {
		select {
		case <-deadline:
			t.Fatalf("expected %d rejections, got %d", callers-1, rejected.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(release)
	wg.Wait()

	if in, _, _ := gw.calls(); in != 1 {
		t.Fatalf("expected exactly one gateway call, got %d", in)
	}
	assertNotLoading(t, c)
}

func TestSubmitTimeoutClearsLoading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Timeout = 100 * time.Millisecond
	gw := &fakeGateway{
		signIn: func(ctx context.Context, _, _ string) (Session, error) {
			<-ctx.Done()
			return Session{}, ctx.Err()
		},
	}
	engine := buildTestEngine(t, cfg, gw)
	c := engine.NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	_, err := c.Submit(context.Background())
	if !IsAuthError(err, AuthErrorTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	assertNotLoading(t, c)
	if got := engine.MetricsSnapshot().Counters[MetricGatewayTimeout]; got != 1 {
		t.Fatalf("expected timeout metric 1, got %d", got)
	}
}

func TestSubmitTimeoutReleasesGatewayIgnoringContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Gateway.Timeout = 100 * time.Millisecond
	block := make(chan struct{})
	defer close(block)
	gw := &fakeGateway{
		signIn: func(context.Context, string, string) (Session, error) {
			<-block
			return Session{}, nil
		},
	}
	engine := buildTestEngine(t, cfg, gw)
	c := engine.NewController()
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !IsAuthError(err, AuthErrorTimeout) {
			t.Fatalf("expected timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submit still blocked after timeout; loading=%v", c.Snapshot().Loading)
	}
	assertNotLoading(t, c)
	if got := engine.MetricsSnapshot().Counters[MetricGatewayTimeout]; got != 1 {
		t.Fatalf("expected timeout metric 1, got %d", got)
	}
}

func TestSubmitGatewayPanicClearsLoading(t *testing.T) {
	gw := &fakeGateway{
		sendPasswordReset: func(context.Context, string) error {
			panic("boom")
		},
	}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeForgotPassword)
	c.SetEmail("a@b.com")

	_, err := c.Submit(context.Background())
	if !IsAuthError(err, AuthErrorInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	assertNotLoading(t, c)
	if !c.Snapshot().ModalOpen {
		t.Fatal("expected modal to stay open")
	}
}

func TestLoadingAlwaysClearedAfterSubmit(t *testing.T) {
	failures := []error{
		nil,
		ErrGatewayInvalidCredentials,
		ErrGatewayRateLimited,
		errors.New("opaque"),
		context.Canceled,
	}
	for _, mode := range []FlowMode{ModeSignIn, ModeCreateAccount, ModeForgotPassword} {
		for _, failure := range failures {
			gw := &fakeGateway{
				signIn: func(context.Context, string, string) (Session, error) {
					return Session{Token: "t"}, failure
				},
				signUp:            func(context.Context, string, string) error { return failure },
				sendPasswordReset: func(context.Context, string) error { return failure },
			}
			c := newTestController(t, gw)
			_ = c.ToggleMode(context.Background(), mode)
			c.SetInput(CredentialInput{Email: "a@b.com", Password: "pw", ConfirmPassword: "pw"})
			_, _ = c.Submit(context.Background())
			if c.Status().Loading {
				t.Fatalf("mode %s failure %v: loading left true", mode, failure)
			}
		}
	}
}

func TestToggleMode(t *testing.T) {
	c := newTestController(t, &fakeGateway{})
	if c.Mode() != ModeSignIn {
		t.Fatalf("expected initial sign-in mode, got %s", c.Mode())
	}

	_ = c.ToggleMode(context.Background(), ModeCreateAccount)
	c.SetInput(CredentialInput{Email: "a@b.com", Password: "pw", ConfirmPassword: "pw"})
	if !c.Snapshot().HasConfirmation {
		t.Fatal("expected confirmation stored in create-account mode")
	}

	_ = c.ToggleMode(context.Background(), ModeSignIn)
	st := c.Snapshot()
	if st.HasConfirmation {
		t.Fatal("expected confirmation discarded when leaving create-account")
	}
	if st.Email != "a@b.com" || !st.HasPassword {
		t.Fatalf("expected other fields retained, got %+v", st)
	}

	_ = c.ToggleMode(context.Background(), ModeForgotPassword)
	if !c.Snapshot().ModalOpen {
		t.Fatal("expected modal open")
	}
	_ = c.ToggleMode(context.Background(), ModeSignIn)
	if c.Snapshot().ModalOpen {
		t.Fatal("expected modal closed after cancel")
	}

	if err := c.ToggleMode(context.Background(), FlowMode(9)); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestToggleModeDuringFlightKeepsUserChoice(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeGateway{
		sendPasswordReset: func(context.Context, string) error {
			close(entered)
			<-release
			return nil
		},
	}
	c := newTestController(t, gw)
	_ = c.ToggleMode(context.Background(), ModeForgotPassword)
	c.SetEmail("a@b.com")

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-entered

	if err := c.ToggleMode(context.Background(), ModeCreateAccount); err != nil {
		t.Fatalf("toggle during flight failed: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if c.Mode() != ModeCreateAccount {
		t.Fatalf("expected user-selected mode to survive completion, got %s", c.Mode())
	}
	assertNotLoading(t, c)
}

func TestTogglePasswordVisible(t *testing.T) {
	c := newTestController(t, &fakeGateway{})
	if c.TogglePasswordVisible() {
		t.Fatal("expected toggle ignored while password empty")
	}
	c.SetPassword("x")
	if !c.TogglePasswordVisible() {
		t.Fatal("expected password visible")
	}
	if c.TogglePasswordVisible() {
		t.Fatal("expected password hidden again")
	}

	cfg := DefaultConfig()
	cfg.Flow.GuardVisibilityToggle = false
	unguarded := buildTestEngine(t, cfg, &fakeGateway{}).NewController()
	if !unguarded.TogglePasswordVisible() {
		t.Fatal("expected unguarded toggle to flip")
	}
}

func TestSubmitSocial(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Social.Enabled = true
	cfg.Social.Providers = []string{"google"}

	social := &fakeSocial{}
	engine, err := New().WithConfig(cfg).WithGateway(&fakeGateway{}).WithSocialGateway(social).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	c := engine.NewController()
	if _, err := c.SubmitSocial(context.Background(), "github", "code"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := c.SubmitSocial(context.Background(), "google", ""); !errors.Is(err, ErrSocialCredentialEmpty) {
		t.Fatalf("expected ErrSocialCredentialEmpty, got %v", err)
	}

	outcome, err := c.SubmitSocial(context.Background(), "google", "code-1")
	if err != nil {
		t.Fatalf("SubmitSocial failed: %v", err)
	}
	if !outcome.Authenticated() || outcome.Session.Provider != "google" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if social.calls.Load() != 1 {
		t.Fatalf("expected one social call, got %d", social.calls.Load())
	}

	social.err = ErrGatewayInvalidCredentials
	_, err = c.SubmitSocial(context.Background(), "google", "code-2")
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.Op != OpSocialSignIn {
		t.Fatalf("expected social auth error, got %v", err)
	}
	assertNotLoading(t, c)
}

func TestSubmitSocialDisabled(t *testing.T) {
	c := newTestController(t, &fakeGateway{})
	if _, err := c.SubmitSocial(context.Background(), "google", "code"); !errors.Is(err, ErrSocialDisabled) {
		t.Fatalf("expected ErrSocialDisabled, got %v", err)
	}
}

func TestAuthenticatedHooksOrderAndPanicRecovery(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) AuthenticatedHook {
		return func(context.Context, Session) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	engine, err := New().
		WithGateway(&fakeGateway{}).
		WithAuthenticatedHook(record("engine")).
		WithAuthenticatedHook(func(context.Context, Session) { panic("hook") }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	c := engine.NewController()
	c.OnAuthenticated(record("controller"))
	c.SetEmail("a@b.com")
	c.SetPassword("x")

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "engine" || order[1] != "controller" {
		t.Fatalf("unexpected hook order %v", order)
	}
}

func TestControllerWithoutEngine(t *testing.T) {
	var c Controller
	if _, err := c.Submit(context.Background()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestClassifyAuthError(t *testing.T) {
	tests := []struct {
		err  error
		want AuthErrorKind
	}{
		{err: context.DeadlineExceeded, want: AuthErrorTimeout},
		{err: context.Canceled, want: AuthErrorUnavailable},
		{err: ErrGatewayRateLimited, want: AuthErrorRateLimited},
		{err: ErrGatewayInvalidInput, want: AuthErrorInvalidInput},
		{err: errors.New("mystery"), want: AuthErrorUnknown},
		{err: NewAuthError(OpSignUp, AuthErrorEmailInUse, nil), want: AuthErrorEmailInUse},
	}
	for _, tt := range tests {
		got := ClassifyAuthError(OpSignIn, tt.err)
		if got.Kind != tt.want || got.Op != OpSignIn {
			t.Fatalf("ClassifyAuthError(%v) = %+v, want kind %s", tt.err, got, tt.want)
		}
	}
	if ClassifyAuthError(OpSignIn, nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}
