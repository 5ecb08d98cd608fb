package ports

import "context"

// SecretStore holds token material outside the metadata file. Keys use the
// "meetlink/<name>" form.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
