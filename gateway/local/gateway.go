package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credflow"
	"github.com/MrEthical07/credflow/internal"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/internal/stores"
	"github.com/MrEthical07/credflow/jwt"
	"github.com/MrEthical07/credflow/password"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProviderPassword is the Session.Provider of email/password sign-ins.
const ProviderPassword = "password"

// ErrResetTokenInvalid is returned by ConfirmPasswordReset for unknown,
// expired, already used or malformed tokens. It is wrapped together with
// credflow.ErrGatewayInvalidInput.
var ErrResetTokenInvalid = errors.New("reset token invalid or expired")

// Config tunes the local backend. Zero limits disable the matching throttle.
type Config struct {
	Prefix string

	MaxSignInFailures int
	SignInCooldown    time.Duration
	EnableIPThrottle  bool

	MaxResetRequests   int
	ResetRequestWindow time.Duration
	ResetTTL           time.Duration
	ResetMaxAttempts   int
	// ResetURL is the page the mailed link points at; the token is added as
	// the "token" query parameter.
	ResetURL string
	// RevealUnknownEmail makes SendPasswordReset fail with
	// ErrGatewayAccountNotFound instead of pretending to send.
	RevealUnknownEmail bool
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:             "credflow",
		MaxSignInFailures:  5,
		SignInCooldown:     15 * time.Minute,
		EnableIPThrottle:   false,
		MaxResetRequests:   3,
		ResetRequestWindow: time.Hour,
		ResetTTL:           15 * time.Minute,
		ResetMaxAttempts:   5,
	}
}

func (c Config) Validate() error {
	if c.MaxSignInFailures < 0 || c.MaxResetRequests < 0 {
		return errors.New("throttle limits must be >= 0")
	}
	if c.MaxSignInFailures > 0 && c.SignInCooldown <= 0 {
		return errors.New("SignInCooldown must be > 0 when MaxSignInFailures is set")
	}
	if c.MaxResetRequests > 0 && c.ResetRequestWindow <= 0 {
		return errors.New("ResetRequestWindow must be > 0 when MaxResetRequests is set")
	}
	if c.ResetTTL <= 0 {
		return errors.New("ResetTTL must be > 0")
	}
	if c.ResetMaxAttempts <= 0 {
		return errors.New("ResetMaxAttempts must be > 0")
	}
	return nil
}

// Deps are the collaborators of a Gateway. Redis, Hasher and Tokens are
// required. Accounts defaults to a RedisAccountStore and Mailer to a
// LogMailer.
type Deps struct {
	Redis     redis.UniversalClient
	Accounts  AccountStore
	Hasher    *password.Argon2
	Tokens    *jwt.Manager
	Mailer    Mailer
	Providers []IdentityProvider
	Logger    *zap.Logger
}

// Gateway implements credflow.AuthGateway and credflow.SocialGateway.
type Gateway struct {
	config    Config
	accounts  AccountStore
	hasher    *password.Argon2
	tokens    *jwt.Manager
	limiter   *rate.Limiter
	resets    *stores.PasswordResetStore
	mailer    Mailer
	providers map[string]IdentityProvider
	logger    *zap.Logger
	dummyHash string
	now       func() time.Time
}

func New(cfg Config, deps Deps) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Redis == nil {
		return nil, errors.New("local gateway requires a redis client")
	}
	if deps.Hasher == nil || deps.Tokens == nil {
		return nil, errors.New("local gateway requires a hasher and a token manager")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "credflow"
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("local")

	accounts := deps.Accounts
	if accounts == nil {
		accounts = NewRedisAccountStore(deps.Redis, cfg.Prefix)
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}

	providers := make(map[string]IdentityProvider, len(deps.Providers))
	for _, p := range deps.Providers {
		if p == nil || p.Name() == "" {
			return nil, errors.New("identity provider without a name")
		}
		if _, dup := providers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate identity provider %q", p.Name())
		}
		providers[p.Name()] = p
	}

	dummy, err := deps.Hasher.Hash("credflow-timing-equalizer")
	if err != nil {
		return nil, err
	}

	return &Gateway{
		config:   cfg,
		accounts: accounts,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		limiter: rate.New(deps.Redis, rate.Config{
			Prefix:             cfg.Prefix,
			EnableIPThrottle:   cfg.EnableIPThrottle,
			MaxSignInFailures:  cfg.MaxSignInFailures,
			SignInCooldown:     cfg.SignInCooldown,
			MaxResetRequests:   cfg.MaxResetRequests,
			ResetRequestWindow: cfg.ResetRequestWindow,
		}),
		resets:    stores.NewPasswordResetStore(deps.Redis, cfg.Prefix),
		mailer:    mailer,
		providers: providers,
		logger:    logger,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

/*
====================================
PASSWORD SIGN-IN
====================================
*/

// SignIn verifies email and pass and issues a session token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (g *Gateway) SignIn(ctx context.Context, email, pass string) (credflow.Session, error) {
	email = NormalizeEmail(email)
	ip := credflow.ClientIPFromContext(ctx)

	if err := g.limiter.CheckSignIn(ctx, email, ip); err != nil {
		g.logger.Debug("sign-in throttled", zap.String("email", email), zap.Error(err))
		return credflow.Session{}, mapLimiterError(ctx, err)
	}

	account, err := g.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountMissing) {
		return credflow.Session{}, mapStoreError(ctx, err)
	}

	hash := g.dummyHash
	if account != nil && account.PasswordHash != "" {
		hash = account.PasswordHash
	}
	ok, verr := g.hasher.Verify(pass, hash)
	if account == nil || account.PasswordHash == "" || verr != nil || !ok {
		if rerr := g.limiter.RecordSignInFailure(ctx, email, ip); rerr != nil {
			g.logger.Warn("record sign-in failure", zap.Error(rerr))
		}
		return credflow.Session{}, credflow.ErrGatewayInvalidCredentials
	}

	if err := g.limiter.ResetSignIn(ctx, email, ip); err != nil {
		g.logger.Warn("reset sign-in counter", zap.Error(err))
	}
	g.upgradeHash(ctx, account, pass)

	return g.issue(account, ProviderPassword)
}

func (g *Gateway) upgradeHash(ctx context.Context, account *Account, pass string) {
	stale, err := g.hasher.NeedsUpgrade(account.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := g.hasher.Hash(pass)
	if err != nil {
		return
	}
	if err := g.accounts.UpdatePasswordHash(ctx, account.Email, hash); err != nil {
		g.logger.Warn("password rehash", zap.String("account", account.ID), zap.Error(err))
	}
}

/*
====================================
SIGN-UP
====================================
*/

// SignUp creates a password account. It does not sign the account in.
func (g *Gateway) SignUp(ctx context.Context, email, pass string) error {
	email = NormalizeEmail(email)

	hash, err := g.hasher.Hash(pass)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %w", credflow.ErrGatewayInvalidInput, err)
		}
		return err
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Provider:     ProviderPassword,
	}
	if err := g.accounts.Create(ctx, account); err != nil {
		return mapStoreError(ctx, err)
	}

	g.logger.Info("account created", zap.String("account", account.ID))
	return nil
}

/*
====================================
PASSWORD RESET
====================================
*/

// SendPasswordReset mails a single-use reset link. Unless RevealUnknownEmail
// is set, an unknown email succeeds after a short random delay.
func (g *Gateway) SendPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	if err := g.limiter.AllowResetRequest(ctx, email); err != nil {
		return mapLimiterError(ctx, err)
	}

	account, err := g.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrAccountMissing) {
			return mapStoreError(ctx, err)
		}
		if g.config.RevealUnknownEmail {
			return credflow.ErrGatewayAccountNotFound
		}
		return internal.SleepJitter(ctx, 20*time.Millisecond, 40*time.Millisecond)
	}

	resetID, token, secretHash, err := internal.NewResetChallenge()
	if err != nil {
		return err
	}

	record := &stores.PasswordResetRecord{
		AccountID:  account.ID,
		Email:      account.Email,
		SecretHash: secretHash,
		ExpiresAt:  g.now().Add(g.config.ResetTTL).Unix(),
	}
	if err := g.resets.Save(ctx, resetID, record, g.config.ResetTTL); err != nil {
		return fmt.Errorf("%w: %v", credflow.ErrGatewayUnavailable, err)
	}

	if err := g.mailer.SendPasswordReset(ctx, account.Email, resetLink(g.config.ResetURL, token)); err != nil {
		return fmt.Errorf("%w: mailer: %v", credflow.ErrGatewayUnavailable, err)
	}
	return nil
}

// ConfirmPasswordReset consumes token and sets newPassword. Wrong secrets
// count against the reset's attempt budget.
func (g *Gateway) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	resetID, secret, err := internal.DecodeResetToken(token)
	if err != nil {
		return fmt.Errorf("%w: %w", credflow.ErrGatewayInvalidInput, ErrResetTokenInvalid)
	}

	hash, err := g.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return fmt.Errorf("%w: %w", credflow.ErrGatewayInvalidInput, err)
		}
		return err
	}

	record, err := g.resets.Consume(ctx, resetID, internal.HashResetSecret(secret), g.config.ResetMaxAttempts)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrResetNotFound),
			errors.Is(err, stores.ErrResetSecretMismatch),
			errors.Is(err, stores.ErrResetAttemptsExceeded):
			return fmt.Errorf("%w: %w", credflow.ErrGatewayInvalidInput, ErrResetTokenInvalid)
		default:
			return fmt.Errorf("%w: %v", credflow.ErrGatewayUnavailable, err)
		}
	}

	if err := g.accounts.UpdatePasswordHash(ctx, record.Email, hash); err != nil {
		return mapStoreError(ctx, err)
	}
	if err := g.limiter.ResetSignIn(ctx, record.Email, ""); err != nil {
		g.logger.Warn("reset sign-in counter", zap.Error(err))
	}
	return nil
}

/*
====================================
SOCIAL SIGN-IN
====================================
*/

// SignInWithProvider exchanges credential with the named provider and signs
// in the account owning the verified email, creating it on first use.
func (g *Gateway) SignInWithProvider(ctx context.Context, provider, credential string) (credflow.Session, error) {
	p, ok := g.providers[provider]
	if !ok {
		return credflow.Session{}, fmt.Errorf("%w: %w", credflow.ErrGatewayInvalidInput, credflow.ErrUnknownProvider)
	}

	identity, err := p.Identify(ctx, credential)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return credflow.Session{}, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return credflow.Session{}, fmt.Errorf("%w: %v", credflow.ErrGatewayInvalidCredentials, err)
	}
	if identity.Email == "" || !identity.EmailVerified {
		return credflow.Session{}, fmt.Errorf("%w: provider did not return a verified email", credflow.ErrGatewayInvalidCredentials)
	}

	account, err := g.findOrCreate(ctx, NormalizeEmail(identity.Email), provider)
	if err != nil {
		return credflow.Session{}, mapStoreError(ctx, err)
	}

	return g.issue(account, provider)
}

func (g *Gateway) findOrCreate(ctx context.Context, email, provider string) (*Account, error) {
	account, err := g.accounts.GetByEmail(ctx, email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountMissing) {
		return nil, err
	}

	account = &Account{ID: uuid.NewString(), Email: email, Provider: provider}
	err = g.accounts.Create(ctx, account)
	if errors.Is(err, ErrAccountExists) {
		return g.accounts.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}

	g.logger.Info("account created", zap.String("account", account.ID), zap.String("provider", provider))
	return account, nil
}

/*
====================================
SESSIONS
====================================
*/

// VerifySession checks a token issued by this gateway.
func (g *Gateway) VerifySession(_ context.Context, token string) (credflow.Session, error) {
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return credflow.Session{}, fmt.Errorf("%w: %v", credflow.ErrGatewayInvalidCredentials, err)
	}

	session := credflow.Session{
		Token:    token,
		Subject:  claims.Subject,
		Email:    claims.Email,
		Provider: claims.Provider,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (g *Gateway) issue(account *Account, provider string) (credflow.Session, error) {
	issued, err := g.tokens.Issue(account.ID, account.Email, provider)
	if err != nil {
		return credflow.Session{}, err
	}
	return credflow.Session{
		Token:     issued.Token,
		Subject:   account.ID,
		Email:     account.Email,
		Provider:  provider,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

func mapLimiterError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	if errors.Is(err, rate.ErrRateLimited) {
		return fmt.Errorf("%w: %v", credflow.ErrGatewayRateLimited, err)
	}
	return fmt.Errorf("%w: %v", credflow.ErrGatewayUnavailable, err)
}

func mapStoreError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrAccountExists):
		return credflow.ErrGatewayEmailInUse
	case errors.Is(err, ErrAccountMissing):
		return credflow.ErrGatewayAccountNotFound
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return fmt.Errorf("%w: %v", credflow.ErrGatewayUnavailable, err)
}
