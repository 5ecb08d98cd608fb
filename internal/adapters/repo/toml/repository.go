package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/bnema/meetlink/internal/domain"
	"github.com/bnema/meetlink/internal/ports"
)

const (
	configName            = "config"
	configType            = "toml"
	credentialsPathKey    = "credentials.path"
	credentialsFileMode   = 0o600
	credentialsDirMode    = 0o700
	credentialsConfigDir  = ".meetlink"
	credentialsConfigFile = "credentials.toml"
	tempFilePattern       = ".credentials-*.toml.tmp"

	// tokenSecretRef is where token material lives in the secret store.
	tokenSecretRef = "meetlink/tokens"
)

// Repository persists the credential bundle: metadata in a TOML file, token
// material in the secret store. The per-path lock registry keeps concurrent
// repositories over the same file coherent within one process; cross-process
// readers rely on the health validator's periodic re-check instead.
type Repository struct {
	credentialsPath string
	secrets         ports.SecretStore
	mu              *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.CredentialRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper, secrets ports.SecretStore) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if secrets == nil {
		return nil, errors.New("secret store is required")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultPath := filepath.Join(homeDir, credentialsConfigDir, credentialsConfigFile)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, credentialsConfigDir))
	cfg.SetDefault(credentialsPathKey, defaultPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	credentialsPath := cfg.GetString(credentialsPathKey)
	if credentialsPath == "" {
		return nil, errors.New("credentials path is empty")
	}
	credentialsPath, err = normalizeCredentialsPath(credentialsPath)
	if err != nil {
		return nil, err
	}

	return &Repository{
		credentialsPath: credentialsPath,
		secrets:         secrets,
		mu:              lockForPath(credentialsPath),
	}, nil
}

func (r *Repository) Load(ctx context.Context) (domain.CredentialBundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.CredentialBundle{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	file, err := r.readSchema()
	if err != nil {
		return domain.CredentialBundle{}, err
	}
	if file.Credentials == nil {
		return domain.CredentialBundle{}, domain.ErrCredentialUnavailable
	}

	secretRef := file.Credentials.SecretRef
	if secretRef == "" {
		secretRef = tokenSecretRef
	}

	secretValue, err := r.secrets.Get(ctx, secretRef)
	if err != nil {
		return domain.CredentialBundle{}, fmt.Errorf("%w: load token secret: %w", domain.ErrCredentialUnavailable, err)
	}

	tokens, err := decodeTokenSecret(secretValue)
	if err != nil {
		return domain.CredentialBundle{}, err
	}

	return fromSchema(*file.Credentials, tokens)
}

func (r *Repository) Save(ctx context.Context, bundle domain.CredentialBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	secretValue, err := encodeTokenSecret(bundle)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Secret first: a metadata file pointing at a missing secret reads as
	// "no credential", while an orphaned secret is harmless.
	if err := r.secrets.Put(ctx, tokenSecretRef, secretValue); err != nil {
		return fmt.Errorf("store token secret: %w", err)
	}

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()
	file.Credentials = toSchema(bundle, tokenSecretRef)

	return r.writeSchema(file)
}

func (r *Repository) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	secretRef := tokenSecretRef
	if file.Credentials != nil && file.Credentials.SecretRef != "" {
		secretRef = file.Credentials.SecretRef
	}
	file.applyDefaults()
	file.Credentials = nil

	if err := r.writeSchema(file); err != nil {
		return err
	}

	if err := r.secrets.Delete(ctx, secretRef); err != nil {
		return fmt.Errorf("delete token secret: %w", err)
	}

	return nil
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.credentialsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read credentials file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.credentialsPath), credentialsDirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.credentialsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp credentials file: %w", err)
	}

	if err := tempFile.Chmod(credentialsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp credentials file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp credentials file: %w", err)
	}

	if err := os.Rename(tempName, r.credentialsPath); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}

	cleanup = false

	if err := os.Chmod(r.credentialsPath, credentialsFileMode); err != nil {
		return fmt.Errorf("chmod credentials file: %w", err)
	}

	return nil
}

func normalizeCredentialsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve credentials path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
