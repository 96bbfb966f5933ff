package redis

import "fmt"

// Key templates
const (
	KeyTrackRateLimit = "visitor:ratelimit:%s" // visitor:ratelimit:{origin_hash}
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// KeyTrackRateLimit returns the rate limit counter key for an origin hash
func (kb *KeyBuilder) KeyTrackRateLimit(originHash string) string {
	return kb.BuildKey(fmt.Sprintf(KeyTrackRateLimit, originHash))
}
