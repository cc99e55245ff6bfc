package constants

// Redis key naming scheme: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix is the shared application prefix for all keys.
	AppPrefix = "jobmatch"

	// EmbedModulePrefix covers embedding cache entries.
	EmbedModulePrefix = "embed"
	// MatchModulePrefix covers fit-result cache entries.
	MatchModulePrefix = "match"
	// ProfileModulePrefix covers candidate profile vectors.
	ProfileModulePrefix = "profile"

	// KeyEmbeddingCache caches one embedding vector per content hash (STRING, JSON).
	// Format: jobmatch:embed:cache:{model}:{content_hash}
	KeyEmbeddingCache = AppPrefix + ":" + EmbedModulePrefix + ":cache:%s:%s"

	// KeyMatchCache caches one MatchResult (STRING, JSON). The key already
	// carries the profile version and job content hash, so upstream changes
	// invalidate entries without explicit eviction.
	// Format: jobmatch:match:cache:{cache_key_hash}
	KeyMatchCache = AppPrefix + ":" + MatchModulePrefix + ":cache:%s"

	// KeyProfileVector caches the latest candidate profile vector (HASH:
	// vector JSON + model version). Used as the degraded-path fallback when
	// a live profile embedding times out.
	// Format: jobmatch:profile:vector:{candidate_id}
	KeyProfileVector = AppPrefix + ":" + ProfileModulePrefix + ":vector:%s"
)
