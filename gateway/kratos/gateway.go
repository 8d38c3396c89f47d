package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/credflow"
	ory "github.com/ory/client-go"
	"go.uber.org/zap"
)

// Kratos UI message ids that change how a 400 is classified.
const (
	msgInvalidCredentials   = 4000006
	msgDuplicateIdentifier  = 4000007
	msgDuplicateCredentials = 4000027
)

// ProviderKratos is the Session.Provider of Kratos sessions.
const ProviderKratos = "kratos"

// Config points the gateway at the Kratos public API.
type Config struct {
	PublicURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// EmailTrait is the identity trait holding the email. Defaults to "email".
	EmailTrait string
}

// Gateway implements credflow.AuthGateway on Kratos.
type Gateway struct {
	client     *ory.APIClient
	emailTrait string
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if strings.TrimSpace(cfg.PublicURL) == "" {
		return nil, errors.New("kratos public URL required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.EmailTrait == "" {
		cfg.EmailTrait = "email"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conf := ory.NewConfiguration()
	conf.Servers = ory.ServerConfigurations{
		{
			URL: strings.TrimRight(cfg.PublicURL, "/"),
		},
	}
	conf.HTTPClient = cfg.HTTPClient

	return &Gateway{
		client:     ory.NewAPIClient(conf),
		emailTrait: cfg.EmailTrait,
		logger:     logger.Named("kratos"),
	}, nil
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (credflow.Session, error) {
	flow, resp, err := g.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return credflow.Session{}, g.mapError(ctx, "create login flow", resp, err)
	}

	body := ory.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&ory.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	})
	result, resp, err := g.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		return credflow.Session{}, g.mapError(ctx, "update login flow", resp, err)
	}
	if result.GetSessionToken() == "" {
		return credflow.Session{}, fmt.Errorf("%w: login succeeded without a session token", credflow.ErrGatewayUnavailable)
	}

	session := result.GetSession()
	return g.toSession(result.GetSessionToken(), &session), nil
}

func (g *Gateway) SignUp(ctx context.Context, email, password string) error {
	flow, resp, err := g.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return g.mapError(ctx, "create registration flow", resp, err)
	}

	body := ory.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&ory.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   map[string]interface{}{g.emailTrait: email},
	})
	_, resp, err = g.client.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(body).
		Execute()
	if err != nil {
		return g.mapError(ctx, "update registration flow", resp, err)
	}
	return nil
}

// SendPasswordReset starts a code recovery flow. Kratos answers the same way
// for known and unknown addresses.
func (g *Gateway) SendPasswordReset(ctx context.Context, email string) error {
	flow, resp, err := g.client.FrontendAPI.CreateNativeRecoveryFlow(ctx).Execute()
	if err != nil {
		return g.mapError(ctx, "create recovery flow", resp, err)
	}

	body := ory.UpdateRecoveryFlowWithCodeMethodAsUpdateRecoveryFlowBody(&ory.UpdateRecoveryFlowWithCodeMethod{
		Method: "code",
		Email:  &email,
	})
	_, resp, err = g.client.FrontendAPI.UpdateRecoveryFlow(ctx).
		Flow(flow.GetId()).
		UpdateRecoveryFlowBody(body).
		Execute()
	if err != nil {
		return g.mapError(ctx, "update recovery flow", resp, err)
	}
	return nil
}

// VerifySession resolves a Kratos session token through /sessions/whoami.
func (g *Gateway) VerifySession(ctx context.Context, token string) (credflow.Session, error) {
	session, resp, err := g.client.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		return credflow.Session{}, g.mapError(ctx, "whoami", resp, err)
	}
	if !session.GetActive() {
		return credflow.Session{}, fmt.Errorf("%w: session inactive", credflow.ErrGatewayInvalidCredentials)
	}
	return g.toSession(token, session), nil
}

func (g *Gateway) toSession(token string, s *ory.Session) credflow.Session {
	out := credflow.Session{
		Token:    token,
		Provider: ProviderKratos,
	}
	if s == nil {
		return out
	}
	out.ExpiresAt = s.GetExpiresAt()

	identity := s.GetIdentity()
	out.Subject = identity.GetId()
	if traits, ok := identity.GetTraits().(map[string]interface{}); ok {
		if email, ok := traits[g.emailTrait].(string); ok {
			out.Email = email
		}
	}
	return out
}

/*
====================================
ERROR MAPPING
====================================
*/

type uiText struct {
	ID int64 `json:"id"`
}

// errorBody covers both shapes Kratos answers with: a flow carrying UI
// messages, and a generic {"error": {...}} envelope.
type errorBody struct {
	UI struct {
		Messages []uiText `json:"messages"`
		Nodes    []struct {
			Messages []uiText `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
	Error struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (b errorBody) hasMessage(ids ...int64) bool {
	match := func(list []uiText) bool {
		for _, m := range list {
			for _, id := range ids {
				if m.ID == id {
					return true
				}
			}
		}
		return false
	}
	if match(b.UI.Messages) {
		return true
	}
	for _, n := range b.UI.Nodes {
		if match(n.Messages) {
			return true
		}
	}
	return false
}

func (g *Gateway) mapError(ctx context.Context, step string, resp *http.Response, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: kratos %s: %v", ctxErr, step, err)
	}
	if resp == nil {
		return fmt.Errorf("%w: kratos %s: %v", credflow.ErrGatewayUnavailable, step, err)
	}

	var body errorBody
	var apiErr *ory.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		if decodeErr := json.Unmarshal(apiErr.Body(), &body); decodeErr != nil {
			g.logger.Debug("kratos error body not decoded",
				zap.String("step", step),
				zap.Int("status", resp.StatusCode),
				zap.Error(decodeErr),
			)
		}
	}

	g.logger.Debug("kratos call failed",
		zap.String("step", step),
		zap.Int("status", resp.StatusCode),
		zap.String("error_id", body.Error.ID),
	)

	wrap := func(sentinel error) error {
		return fmt.Errorf("%w: kratos %s: %d", sentinel, step, resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		switch {
		case body.hasMessage(msgInvalidCredentials):
			return wrap(credflow.ErrGatewayInvalidCredentials)
		case body.hasMessage(msgDuplicateIdentifier, msgDuplicateCredentials):
			return wrap(credflow.ErrGatewayEmailInUse)
		default:
			return wrap(credflow.ErrGatewayInvalidInput)
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return wrap(credflow.ErrGatewayInvalidCredentials)
	case http.StatusNotFound:
		return wrap(credflow.ErrGatewayAccountNotFound)
	case http.StatusTooManyRequests:
		return wrap(credflow.ErrGatewayRateLimited)
	default:
		return wrap(credflow.ErrGatewayUnavailable)
	}
}
