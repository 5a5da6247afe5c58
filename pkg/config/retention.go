package config

import "time"

// RetentionConfig controls branch cache retention and cleanup behavior.
type RetentionConfig struct {
	// BranchCacheMaxAge is the maximum age of historical branch cache entries
	// before the cleanup loop evicts them. Commits prune only forward
	// entries, so without eviction a long story accumulates candidates for
	// every page it ever passed.
	BranchCacheMaxAge time.Duration

	// PendingMaxAge is the maximum age of a pending claim before the cleanup
	// loop releases it. On-demand takeover recovers claims for keys readers
	// still ask about; this is the safety net for abandoned ones.
	PendingMaxAge time.Duration

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		BranchCacheMaxAge: 24 * time.Hour,
		PendingMaxAge:     30 * time.Minute,
		CleanupInterval:   time.Hour,
	}
}
