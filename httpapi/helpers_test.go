package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/social"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// stubGateway authenticates "user@example.com" / "correct-horse" and knows
// a few magic emails that trigger specific failures.
type stubGateway struct {
	mu      sync.Mutex
	block   chan struct{}
	entered chan struct{}
}

var stubFailures = map[string]error{
	"limited@example.com": credflow.ErrGatewayRateLimited,
	"down@example.com":    credflow.ErrGatewayUnavailable,
	"taken@example.com":   credflow.ErrGatewayEmailInUse,
}

// hold makes gateway calls block until release is called. Each blocked call
// is announced on the returned channel.
func (g *stubGateway) hold() (entered <-chan struct{}, release func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.block = make(chan struct{})
	g.entered = make(chan struct{}, 1)
	block := g.block
	return g.entered, func() { close(block) }
}

func (g *stubGateway) wait(ctx context.Context) error {
	g.mu.Lock()
	block, entered := g.block, g.entered
	g.mu.Unlock()
	if block == nil {
		return nil
	}
	if entered != nil {
		entered <- struct{}{}
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *stubGateway) SignIn(ctx context.Context, email, password string) (credflow.Session, error) {
	if err := g.wait(ctx); err != nil {
		return credflow.Session{}, err
	}
	if err, ok := stubFailures[email]; ok {
		return credflow.Session{}, err
	}
	if password != "correct-horse" {
		return credflow.Session{}, credflow.ErrGatewayInvalidCredentials
	}
	return credflow.Session{
		Token:     "tok-" + email,
		Subject:   "acct-" + email,
		Email:     email,
		Provider:  "password",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (g *stubGateway) SignUp(ctx context.Context, email, password string) error {
	if err, ok := stubFailures[email]; ok {
		return err
	}
	return nil
}

func (g *stubGateway) SendPasswordReset(ctx context.Context, email string) error {
	if err, ok := stubFailures[email]; ok {
		return err
	}
	return nil
}

func (g *stubGateway) SignInWithProvider(ctx context.Context, provider, credential string) (credflow.Session, error) {
	if credential != "good-code" {
		return credflow.Session{}, credflow.ErrGatewayInvalidCredentials
	}
	return credflow.Session{Token: "tok-social", Subject: "acct-social", Email: "social@example.com", Provider: provider}, nil
}

func (g *stubGateway) VerifySession(_ context.Context, token string) (credflow.Session, error) {
	if !strings.HasPrefix(token, "tok-") {
		return credflow.Session{}, credflow.ErrGatewayInvalidCredentials
	}
	email := strings.TrimPrefix(token, "tok-")
	return credflow.Session{Token: token, Subject: "acct-" + email, Email: email}, nil
}

func (g *stubGateway) ConfirmPasswordReset(_ context.Context, token, newPassword string) error {
	if token != "good-token" {
		return fmt.Errorf("%w: reset token unknown", credflow.ErrGatewayInvalidInput)
	}
	return nil
}

type stubStarter struct{}

func (stubStarter) Name() string { return "google" }

func (stubStarter) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

type testServer struct {
	server  *Server
	http    *httptest.Server
	gateway *stubGateway
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	gw := &stubGateway{}
	cfg := credflow.DefaultConfig()
	cfg.Social.Enabled = true
	cfg.Social.Providers = []string{"google"}
	cfg.Gateway.Timeout = 2 * time.Second

	engine, err := credflow.New().WithConfig(cfg).WithGateway(gw).WithSocialGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hcfg := DefaultConfig()
	hcfg.SecureCookie = false
	if mutate != nil {
		mutate(&hcfg)
	}

	srv, err := New(hcfg, Deps{
		Engine:   engine,
		Verifier: gw,
		Social:   []SocialStarter{stubStarter{}},
		States:   social.NewStateStore(rdb, "test", time.Minute),
		Resets:   gw,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("credflow_up 1\n"))
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testServer{server: srv, http: hs, gateway: gw}
}

type stateView struct {
	Mode            string `json:"mode"`
	Email           string `json:"email"`
	HasPassword     bool   `json:"hasPassword"`
	HasConfirmation bool   `json:"hasConfirmation"`
	Validation      struct {
		EmailInvalid    bool `json:"emailInvalid"`
		PasswordInvalid bool `json:"passwordInvalid"`
	} `json:"validation"`
	Loading         bool `json:"loading"`
	PasswordVisible bool `json:"passwordVisible"`
	ModalOpen       bool `json:"modalOpen"`
	Authenticated   bool `json:"authenticated"`
}

type apiResponse struct {
	ID       string    `json:"id"`
	Outcome  string    `json:"outcome"`
	Navigate string    `json:"navigate"`
	State    stateView `json:"state"`
	Session  *struct {
		Subject string `json:"subject"`
		Email   string `json:"email"`
	} `json:"session"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
	OK              bool `json:"ok"`
	PasswordVisible bool `json:"passwordVisible"`
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, out
}

func (ts *testServer) openForm(t *testing.T) string {
	t.Helper()
	resp, out := ts.do(t, http.MethodPost, "/forms", nil)
	if resp.StatusCode != http.StatusCreated || out.ID == "" {
		t.Fatalf("open form: status %d id %q", resp.StatusCode, out.ID)
	}
	return out.ID
}

func (ts *testServer) fill(t *testing.T, id string, fields map[string]string) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPatch, "/forms/"+id+"/fields", fields)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set fields: status %d", resp.StatusCode)
	}
}
