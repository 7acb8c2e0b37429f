package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/audiosync/pkg/audiosync"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // e.g. "sync.threshold"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func ValidAlgorithms() []string {
	return []string{audiosync.AlgorithmXCorr, audiosync.AlgorithmGCCPHAT}
}

// Validate checks the Config for invalid values and returns all
// validation errors found
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validateSync()...)
	errs = append(errs, c.validateReference()...)
	errs = append(errs, c.validateLogging()...)
	return errs
}

func (c *Config) validateSync() []ValidationError {
	var errs []ValidationError
	s := c.Sync

	if s.SampleRate < 1000 || s.SampleRate > 384000 {
		errs = append(errs, ValidationError{
			Field:   "sync.sample_rate",
			Value:   s.SampleRate,
			Message: "must be between 1000 and 384000",
		})
	}
	if s.MinDurationMS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sync.min_duration_ms",
			Value:   s.MinDurationMS,
			Message: "must be positive",
		})
	}
	if s.StepMS <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sync.step_ms",
			Value:   s.StepMS,
			Message: "must be positive",
		})
	}
	if s.MaxDurationMS < s.MinDurationMS {
		errs = append(errs, ValidationError{
			Field:   "sync.max_duration_ms",
			Value:   s.MaxDurationMS,
			Message: fmt.Sprintf("must not be less than sync.min_duration_ms (%d)", s.MinDurationMS),
		})
	}
	if s.Threshold < -1 || s.Threshold >= 1 {
		errs = append(errs, ValidationError{
			Field:   "sync.threshold",
			Value:   s.Threshold,
			Message: "must be in [-1, 1)",
		})
	}
	if s.MinOverlap < 0 || s.MinOverlap > 1 {
		errs = append(errs, ValidationError{
			Field:   "sync.min_overlap",
			Value:   s.MinOverlap,
			Message: "must be in [0, 1]",
		})
	}
	if !slices.Contains(ValidAlgorithms(), s.Algorithm) {
		errs = append(errs, ValidationError{
			Field:   "sync.algorithm",
			Value:   s.Algorithm,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidAlgorithms(), ", ")),
		})
	}
	return errs
}

func (c *Config) validateReference() []ValidationError {
	var errs []ValidationError
	r := c.Reference

	if r.YTDLPCommand == "" {
		errs = append(errs, ValidationError{
			Field:   "reference.ytdlp_command",
			Value:   r.YTDLPCommand,
			Message: "must not be empty",
		})
	}
	if r.FFmpegCommand == "" {
		errs = append(errs, ValidationError{
			Field:   "reference.ffmpeg_command",
			Value:   r.FFmpegCommand,
			Message: "must not be empty",
		})
	}
	if r.ResolveTimeoutMS < 0 {
		errs = append(errs, ValidationError{
			Field:   "reference.resolve_timeout_ms",
			Value:   r.ResolveTimeoutMS,
			Message: "must be non-negative",
		})
	}
	if r.CacheSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "reference.cache_size",
			Value:   r.CacheSize,
			Message: "must be non-negative",
		})
	}
	if r.CacheTTLMinutes < 0 {
		errs = append(errs, ValidationError{
			Field:   "reference.cache_ttl_minutes",
			Value:   r.CacheTTLMinutes,
			Message: "must be non-negative",
		})
	}
	return errs
}

func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	var level logger.Level
	if err := level.Set(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: err.Error(),
		})
	}
	if c.Logging.MaxSizeMB <= 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}
	return errs
}

// LogLevel returns the parsed logging.level.
func (c *Config) LogLevel() logger.Level {
	var level logger.Level
	if err := level.Set(c.Logging.Level); err != nil {
		return logger.LevelWarning
	}
	return level
}
