package infrastructure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"aidanwoods.dev/go-paseto/v2"
	"github.com/architeacher/svc-event-bus/internal/config"
	"github.com/architeacher/svc-event-bus/internal/ports"
)

const (
	vaultKeyField        = "secret_key"
	vaultKeyVersionField = "version"

	ClaimDeliveryID = "delivery_id"
	ClaimEvent      = "event"
	ClaimBodySHA256 = "body_sha256"
)

var ErrNoSigningKey = errors.New("no webhook signing key configured")

type (
	// PasetoSigningService signs webhook deliveries with a PASETO v4 secret key kept in Vault.
	PasetoSigningService struct {
		config          config.SigningConfig
		secretsRepo     ports.SecretsRepository
		logger          Logger
		cachedKey       *paseto.V4AsymmetricSecretKey
		cachedKeyExpiry time.Time
		mu              sync.RWMutex
	}
)

var (
	_ ports.KeyService    = (*PasetoSigningService)(nil)
	_ ports.PayloadSigner = (*PasetoSigningService)(nil)
)

func NewPasetoSigningService(
	cfg config.SigningConfig,
	secretsRepo ports.SecretsRepository,
	logger Logger,
) *PasetoSigningService {
	return &PasetoSigningService{
		config:      cfg,
		secretsRepo: secretsRepo,
		logger:      logger,
	}
}

// GetSecretKey retrieves the signing key, using cache when valid or loading from Vault.
func (s *PasetoSigningService) GetSecretKey(ctx context.Context) (paseto.V4AsymmetricSecretKey, error) {
	if !s.config.UseVaultKeys || s.secretsRepo == nil {
		return s.loadFallbackKey()
	}

	s.mu.RLock()
	if s.cachedKey != nil && time.Now().Before(s.cachedKeyExpiry) {
		key := *s.cachedKey
		s.mu.RUnlock()

		return key, nil
	}
	s.mu.RUnlock()

	return s.loadKeyFromVault(ctx)
}

func (s *PasetoSigningService) RefreshKey(ctx context.Context) error {
	s.logger.Info().Msg("forcing signing key refresh from Vault")

	s.mu.Lock()
	s.cachedKey = nil
	s.mu.Unlock()

	_, err := s.loadKeyFromVault(ctx)

	return err
}

func (s *PasetoSigningService) Sign(ctx context.Context, claims ports.SignatureClaims, body []byte) (string, error) {
	key, err := s.GetSecretKey(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get signing key: %w", err)
	}

	now := time.Now()
	digest := sha256.Sum256(body)

	token := paseto.NewToken()
	token.SetIssuer(s.config.Issuer)
	token.SetSubject(claims.WebhookID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.config.TokenExpiry))
	token.SetString(ClaimDeliveryID, claims.DeliveryID)
	token.SetString(ClaimEvent, claims.Event)
	token.SetString(ClaimBodySHA256, hex.EncodeToString(digest[:]))

	return token.V4Sign(key, nil), nil
}

func (s *PasetoSigningService) loadKeyFromVault(ctx context.Context) (paseto.V4AsymmetricSecretKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have loaded it while we waited for the lock.
	if s.cachedKey != nil && time.Now().Before(s.cachedKeyExpiry) {
		return *s.cachedKey, nil
	}

	s.logger.Info().
		Str("path", s.config.KeyPath).
		Msg("loading webhook signing key from Vault")

	secret, err := s.secretsRepo.GetSecrets(ctx, s.config.KeyPath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load signing key from Vault, falling back to configured key")

		return s.loadFallbackKey()
	}

	if secret == nil || secret.Data == nil {
		s.logger.Error().Msg("vault secret data is nil, falling back to configured key")

		return s.loadFallbackKey()
	}

	// KV v2 wraps the payload in a "data" field.
	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		s.logger.Error().Msg("vault secret data field is not a map, falling back to configured key")

		return s.loadFallbackKey()
	}

	secretKeyHex, ok := data[vaultKeyField].(string)
	if !ok || secretKeyHex == "" {
		s.logger.Error().Msg("secret_key field not found or empty in Vault, falling back to configured key")

		return s.loadFallbackKey()
	}

	keyVersion, _ := data[vaultKeyVersionField].(string)
	if keyVersion == "" {
		keyVersion = "unknown"
	}

	secretKey, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretKeyHex)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("key_version", keyVersion).
			Msg("failed to parse signing key from Vault, falling back to configured key")

		return s.loadFallbackKey()
	}

	s.cachedKey = &secretKey
	s.cachedKeyExpiry = time.Now().Add(s.config.KeyCacheTTL)

	s.logger.Info().
		Str("key_version", keyVersion).
		Time("expiry", s.cachedKeyExpiry).
		Msg("loaded and cached webhook signing key from Vault")

	return secretKey, nil
}

func (s *PasetoSigningService) loadFallbackKey() (paseto.V4AsymmetricSecretKey, error) {
	if s.config.FallbackKeyHex == "" {
		return paseto.V4AsymmetricSecretKey{}, ErrNoSigningKey
	}

	secretKey, err := paseto.NewV4AsymmetricSecretKeyFromHex(s.config.FallbackKeyHex)
	if err != nil {
		return paseto.V4AsymmetricSecretKey{}, fmt.Errorf("failed to create fallback signing key: %w", err)
	}

	s.logger.Warn().Msg("using fallback webhook signing key")

	return secretKey, nil
}
