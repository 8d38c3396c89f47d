package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/credflow/gateway/local"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Name is the provider key used in routes and SocialConfig.Providers.
const Name = "google"

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	ErrExchange = errors.New("google code exchange failed")
	ErrUserInfo = errors.New("google userinfo failed")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	// HTTPClient is used for the token exchange and userinfo calls when set.
	HTTPClient *http.Client
}

// Provider implements local.IdentityProvider for Google.
type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client id and secret required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("google redirect URL required")
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = google.Endpoint
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

func (p *Provider) Name() string {
	return Name
}

// AuthCodeURL is where the browser is sent to start sign-in.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Identify exchanges an authorization code and reads the account's email.
func (p *Provider) Identify(ctx context.Context, code string) (local.Identity, error) {
	if code == "" {
		return local.Identity{}, fmt.Errorf("%w: empty code", ErrExchange)
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return local.Identity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return local.Identity{}, err
	}
	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return local.Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return local.Identity{}, fmt.Errorf("%w: status %d", ErrUserInfo, resp.StatusCode)
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return local.Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}

	return local.Identity{
		Provider:      Name,
		Subject:       data.ID,
		Email:         data.Email,
		EmailVerified: data.VerifiedEmail,
	}, nil
}
