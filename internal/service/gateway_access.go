package service

import (
	"context"
	"fmt"
	"time"

	"settlement-engine/internal/core/domain"
	"settlement-engine/internal/core/ports"
	"settlement-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// tokenExpirySkew is shaved off the gateway's expires_in before caching.
const tokenExpirySkew = 60 * time.Second

// StaticGatewayConfigResolver serves a configuration loaded at startup.
type StaticGatewayConfigResolver struct {
	cfg domain.GatewayConfig
}

// NewStaticGatewayConfigResolver creates a resolver over a fixed configuration.
func NewStaticGatewayConfigResolver(cfg domain.GatewayConfig) *StaticGatewayConfigResolver {
	cfg.Active = true
	return &StaticGatewayConfigResolver{cfg: cfg}
}

// Resolve returns a copy of the static configuration.
func (r *StaticGatewayConfigResolver) Resolve(ctx context.Context) (*domain.GatewayConfig, error) {
	if err := validateGatewayConfig(&r.cfg); err != nil {
		return nil, err
	}
	cfg := r.cfg
	return &cfg, nil
}

// DBGatewayConfigResolver reads the active row of gateway_configs and
// decrypts its secrets. Exactly one row must be active.
type DBGatewayConfigResolver struct {
	repo           ports.GatewayConfigRepository
	encSvc         ports.EncryptionService
	defaultBaseURL string
	log            zerolog.Logger
}

// NewDBGatewayConfigResolver creates a database-backed resolver.
func NewDBGatewayConfigResolver(repo ports.GatewayConfigRepository, encSvc ports.EncryptionService, defaultBaseURL string, log zerolog.Logger) *DBGatewayConfigResolver {
	return &DBGatewayConfigResolver{repo: repo, encSvc: encSvc, defaultBaseURL: defaultBaseURL, log: log}
}

// Resolve loads and decrypts the single active configuration.
func (r *DBGatewayConfigResolver) Resolve(ctx context.Context) (*domain.GatewayConfig, error) {
	rows, err := r.repo.ListActive(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list gateway configs: %w", err))
	}
	switch len(rows) {
	case 0:
		return nil, apperror.ErrGatewayConfig("No active payment gateway configuration")
	case 1:
	default:
		r.log.Error().Int("active", len(rows)).Msg("more than one active gateway configuration")
		return nil, apperror.ErrGatewayConfig("More than one active payment gateway configuration")
	}

	rec := rows[0]
	secret, err := r.encSvc.Decrypt(rec.ConsumerSecretEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt consumer secret: %w", err))
	}
	passkey, err := r.encSvc.Decrypt(rec.PasskeyEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt passkey: %w", err))
	}

	cfg := &domain.GatewayConfig{
		ID:              rec.ID,
		BaseURL:         rec.BaseURL,
		ShortCode:       rec.ShortCode,
		TillNumber:      rec.TillNumber,
		TransactionType: rec.TransactionType,
		ConsumerKey:     rec.ConsumerKey,
		ConsumerSecret:  secret,
		Passkey:         passkey,
		CallbackURL:     rec.CallbackURL,
		Active:          rec.Active,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = r.defaultBaseURL
	}
	if err := validateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateGatewayConfig(cfg *domain.GatewayConfig) error {
	switch {
	case cfg.BaseURL == "":
		return apperror.ErrGatewayConfig("Gateway base URL is not configured")
	case cfg.ConsumerKey == "" || cfg.ConsumerSecret == "":
		return apperror.ErrGatewayConfig("Gateway consumer credentials are not configured")
	case cfg.ShortCode == "" || cfg.Passkey == "":
		return apperror.ErrGatewayConfig("Gateway short code and passkey are required")
	case cfg.CallbackURL == "":
		return apperror.ErrGatewayConfig("Gateway callback URL is not configured")
	case cfg.TransactionType == domain.TransactionTypeBuyGoods && cfg.TillNumber == "":
		return apperror.ErrGatewayConfig("Buy goods transactions require a till number")
	}
	return nil
}

// GatewayTokenProvider hands out gateway access tokens, reusing a cached one
// until shortly before it expires.
type GatewayTokenProvider struct {
	client ports.GatewayClient
	cache  ports.TokenCache
	log    zerolog.Logger
}

// NewGatewayTokenProvider creates a token provider.
func NewGatewayTokenProvider(client ports.GatewayClient, cache ports.TokenCache, log zerolog.Logger) *GatewayTokenProvider {
	return &GatewayTokenProvider{client: client, cache: cache, log: log}
}

// Token returns an access token for cfg. Cache failures fall through to the gateway.
func (p *GatewayTokenProvider) Token(ctx context.Context, cfg *domain.GatewayConfig) (string, error) {
	key := cfg.ShortCode + ":" + cfg.ConsumerKey

	cached, err := p.cache.Get(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Msg("token cache read failed, requesting a fresh token")
	}
	if cached != "" {
		return cached, nil
	}

	token, expiresIn, err := p.client.AccessToken(ctx, cfg)
	if err != nil {
		if apperror.IsKind(err, apperror.KindGatewayTimeout) {
			return "", apperror.ErrGatewayTokenTimeout(err)
		}
		return "", err
	}

	if err := p.cache.Set(ctx, key, token, expiresIn-tokenExpirySkew); err != nil {
		p.log.Warn().Err(err).Msg("token cache write failed")
	}
	return token, nil
}
