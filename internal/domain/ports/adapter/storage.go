package adapter

import "context"

// AssetStore persists generated binary assets and returns a durable URL.
type AssetStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
