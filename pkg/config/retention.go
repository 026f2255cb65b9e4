package config

import "time"

// RetentionConfig controls data retention and cleanup behavior for the
// workflow's persisted tables.
type RetentionConfig struct {
	// InteractionRetentionDays is how many days to keep SqlInteraction
	// audit rows before deletion.
	InteractionRetentionDays int `yaml:"interaction_retention_days"`

	// CheckpointStaleAfter is the maximum age of a WorkflowCheckpoint row
	// before it's considered an abandoned run and deleted.
	CheckpointStaleAfter time.Duration `yaml:"checkpoint_stale_after"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		InteractionRetentionDays: 90,
		CheckpointStaleAfter:     7 * 24 * time.Hour,
		CleanupInterval:          12 * time.Hour,
	}
}
