package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/kelseyhightower/envconfig"

	"github.com/architeacher/svc-event-bus/internal/ports"
)

const redacted = "******"

// secretBindings maps the flat keys stored in Vault onto the settings they override.
var secretBindings = map[string]func(cfg *ServiceConfig, value string){
	"POSTGRES_USERNAME": func(cfg *ServiceConfig, v string) { cfg.Storage.Username = v },
	"POSTGRES_PASSWORD": func(cfg *ServiceConfig, v string) { cfg.Storage.Password = v },
	"POSTGRES_HOST":     func(cfg *ServiceConfig, v string) { cfg.Storage.Host = v },
	"POSTGRES_DATABASE": func(cfg *ServiceConfig, v string) { cfg.Storage.Database = v },

	"KEYDB_ADDR":     func(cfg *ServiceConfig, v string) { cfg.Cache.Addr = v },
	"KEYDB_PASSWORD": func(cfg *ServiceConfig, v string) { cfg.Cache.Password = v },

	"RABBITMQ_URL":      func(cfg *ServiceConfig, v string) { cfg.Queue.URL = v },
	"RABBITMQ_HOST":     func(cfg *ServiceConfig, v string) { cfg.Queue.Host = v },
	"RABBITMQ_USERNAME": func(cfg *ServiceConfig, v string) { cfg.Queue.Username = v },
	"RABBITMQ_PASSWORD": func(cfg *ServiceConfig, v string) { cfg.Queue.Password = v },

	"WEBHOOK_SIGNING_FALLBACK_KEY_HEX": func(cfg *ServiceConfig, v string) { cfg.Webhook.Signing.FallbackKeyHex = v },
}

// Loader overlays Vault secrets on the environment configuration and keeps them fresh.
type Loader struct {
	cfg          *ServiceConfig
	secretsRepo  ports.SecretsRepository
	signals      chan os.Signal
	reloadErrors chan error
	dumpWriter   io.Writer
	lastVersion  uint
}

func NewLoader(cfg *ServiceConfig, secretsRepo ports.SecretsRepository, initialVersion uint) *Loader {
	return &Loader{
		cfg:          cfg,
		secretsRepo:  secretsRepo,
		signals:      make(chan os.Signal, 1),
		reloadErrors: make(chan error, 1),
		dumpWriter:   os.Stdout,
		lastVersion:  initialVersion,
	}
}

// Init reads the configuration from the environment.
func Init() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("unable to parse service configuration: %w", err)
	}

	if ServiceVersion != "" {
		cfg.AppConfig.ServiceVersion = ServiceVersion
	}

	if CommitSHA != "" {
		cfg.AppConfig.CommitSHA = CommitSHA
	}

	return cfg, nil
}

// WatchConfigSignals reloads secrets on SIGHUP or every poll interval and dumps the configuration
// on SIGUSR1. Reload outcomes are reported on the returned channel, which closes with ctx.
func (l *Loader) WatchConfigSignals(ctx context.Context) <-chan error {
	signal.Notify(l.signals, syscall.SIGHUP, syscall.SIGUSR1)

	var ticker *time.Ticker
	if l.reloadable() && l.cfg.SecretStorage.PollInterval > 0 {
		ticker = time.NewTicker(l.cfg.SecretStorage.PollInterval)
	}

	go func() {
		defer close(l.reloadErrors)
		defer signal.Stop(l.signals)

		var poll <-chan time.Time
		if ticker != nil {
			defer ticker.Stop()

			poll = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				return

			case <-poll:
				l.reload(ctx)

			case sig := <-l.signals:
				switch sig {
				case syscall.SIGHUP:
					l.reload(ctx)
				case syscall.SIGUSR1:
					l.DumpConfig()
				}
			}
		}
	}()

	return l.reloadErrors
}

// DumpConfig writes the configuration as JSON with credentials masked.
func (l *Loader) DumpConfig() {
	masked := *l.cfg
	masked.Storage.Password = mask(masked.Storage.Password)
	masked.Cache.Password = mask(masked.Cache.Password)
	masked.Queue.Password = mask(masked.Queue.Password)
	masked.Queue.URL = mask(masked.Queue.URL)
	masked.SecretStorage.Token = mask(masked.SecretStorage.Token)
	masked.SecretStorage.SecretID = mask(masked.SecretStorage.SecretID)
	masked.Webhook.Signing.FallbackKeyHex = mask(masked.Webhook.Signing.FallbackKeyHex)

	configJSON, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		fmt.Fprintf(l.dumpWriter, "failed to marshal config: %v\n", err)

		return
	}

	fmt.Fprintf(l.dumpWriter, "\n=== Configuration Dump ===\n%s\n=== End Configuration ===\n\n", configJSON)
}

// Load authenticates against Vault, applies the stored secrets to cfg and returns the secret version.
func (l *Loader) Load(ctx context.Context, secretsRepo ports.SecretsRepository, cfg *ServiceConfig) (uint, error) {
	if !cfg.SecretStorage.Enabled || secretsRepo == nil {
		return 0, fmt.Errorf("secret storage is not enabled")
	}

	if err := authenticate(ctx, secretsRepo, cfg.SecretStorage); err != nil {
		return 0, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	data, metadata, err := readSecret(ctx, secretsRepo, cfg.SecretStorage)
	if err != nil {
		return 0, fmt.Errorf("failed to load secrets from Vault: %w", err)
	}

	applySecrets(cfg, data)

	version, err := secretVersion(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to get secret version: %w", err)
	}

	return version, nil
}

func (l *Loader) reloadable() bool {
	return l.cfg.SecretStorage.Enabled && l.secretsRepo != nil
}

// reload applies the secrets again only when Vault reports a newer version.
func (l *Loader) reload(ctx context.Context) {
	if !l.reloadable() {
		return
	}

	_, metadata, err := readSecret(ctx, l.secretsRepo, l.cfg.SecretStorage)
	if err != nil {
		l.report(fmt.Errorf("failed to load secret metadata: %w", err))

		return
	}

	current, err := secretVersion(metadata)
	if err != nil {
		l.report(fmt.Errorf("failed to get secret version: %w", err))

		return
	}

	if current == l.lastVersion {
		return
	}

	version, err := l.Load(ctx, l.secretsRepo, l.cfg)
	if err != nil {
		l.report(err)

		return
	}

	l.lastVersion = version
	l.report(nil)
}

// report never blocks; a status nobody reads is dropped.
func (l *Loader) report(err error) {
	select {
	case l.reloadErrors <- err:
	default:
	}
}

func authenticate(ctx context.Context, repo ports.SecretsRepository, cfg SecretStorageConfig) error {
	switch strings.ToLower(cfg.AuthMethod) {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth method")
		}

		repo.SetToken(cfg.Token)

		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for approle auth method")
		}

		resp, err := repo.WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("failed to authenticate via approle: %w", err)
		}

		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("no auth info returned from Vault")
		}

		repo.SetToken(resp.Auth.ClientToken)

		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// readSecret fetches the KV v2 entry once; its payload carries both the data and metadata maps.
func readSecret(ctx context.Context, repo ports.SecretsRepository, cfg SecretStorageConfig) (map[string]any, map[string]any, error) {
	secret, err := getSecretWithRetry(ctx, repo, cfg)
	if err != nil {
		return nil, nil, err
	}

	if secret == nil || secret.Data == nil {
		return nil, nil, nil
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("invalid secret format at %s: missing data", secretPath(cfg))
	}

	metadata, _ := secret.Data["metadata"].(map[string]any)

	return data, metadata, nil
}

func getSecretWithRetry(ctx context.Context, repo ports.SecretsRepository, cfg SecretStorageConfig) (*api.Secret, error) {
	path := secretPath(cfg)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var (
		secret *api.Secret
		err    error
	)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		secret, err = repo.GetSecrets(ctx, path)
		if err == nil {
			return secret, nil
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to read from path %s: %w", path, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to read from path %s after %d retries: %w", path, cfg.MaxRetries, err)
}

func secretPath(cfg SecretStorageConfig) string {
	return fmt.Sprintf("apps/data/%s", cfg.MountPath)
}

func secretVersion(metadata map[string]any) (uint, error) {
	raw, ok := metadata["current_version"]
	if !ok {
		return 0, nil
	}

	switch v := raw.(type) {
	case float64:
		return uint(v), nil
	case uint:
		return v, nil
	case json.Number:
		version, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to parse version: %w", err)
		}

		return uint(version), nil
	default:
		return 0, fmt.Errorf("unexpected version type: %T", raw)
	}
}

// applySecrets ignores unknown keys and values that are not non-empty strings.
func applySecrets(cfg *ServiceConfig, data map[string]any) {
	for key, value := range data {
		bind, ok := secretBindings[key]
		if !ok {
			continue
		}

		if str, ok := value.(string); ok && str != "" {
			bind(cfg, str)
		}
	}
}

func mask(value string) string {
	if value == "" {
		return ""
	}

	return redacted
}
