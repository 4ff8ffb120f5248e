package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/identity"
	"mirrorgate/internal/presentation"
	"mirrorgate/internal/store"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	if e.HasErrors() {
		return ErrInvalidConfig
	}
	return nil
}

// ValidateConfig performs comprehensive validation of the configuration.
// It returns nil when only warnings were found; use Check for those.
func ValidateConfig(c *Config) error {
	errs := Check(c)
	if !errs.HasErrors() {
		return nil
	}
	return errs.Errors()
}

// Check returns every validation issue, warnings included.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateIdentity(&c.Identity)...)
	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateSession(&c.Session)...)
	errs = append(errs, validatePresentation(&c.Presentation)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateTelemetry(&c.Telemetry)...)

	return errs
}

func validateIdentity(i *IdentityConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := identity.NewHasher(i.Digest); err != nil {
		errs = append(errs, ValidationError{
			Field:   "identity.digest",
			Message: fmt.Sprintf("unsupported digest: %s (valid: sha256, sha3-256)", i.Digest),
		})
	}
	if strings.TrimSpace(i.StorageKey) == "" {
		errs = append(errs, *RequiredFieldError("identity.storage_key"))
	}

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Type {
	case store.TypeSQLite, store.TypeRedis, store.TypeMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.type",
			Message: fmt.Sprintf("invalid storage type: %s (valid: sqlite, redis, memory)", s.Type),
		})
	}

	if s.Type == store.TypeSQLite {
		if s.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "storage.path",
				Message: "database path is required for sqlite storage",
			})
		} else {
			// A missing parent directory is created on open.
			dir := filepath.Dir(expandPath(s.Path))
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				errs = append(errs, ValidationError{
					Field:   "storage.path",
					Message: fmt.Sprintf("parent path is not a directory: %s", dir),
				})
			}
		}
	}

	if s.Type == store.TypeRedis && s.RedisAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "storage.redis_addr",
			Message: "address is required for redis storage",
		})
	}

	if s.RedisDB < 0 {
		errs = append(errs, *RangeError("storage.redis_db", 0, 15))
	}

	if s.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: "busy timeout cannot be negative",
		})
	}

	return errs
}

func validateSession(s *SessionConfig) ValidationErrors {
	var errs ValidationErrors

	if s.ObserveDwellMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.observe_dwell_ms",
			Message: "observe dwell cannot be negative",
		})
	}
	if s.HashTimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "session.hash_timeout_ms",
			Message: "hash timeout must be positive",
		})
	}
	if s.FrameRate < 1 || s.FrameRate > 240 {
		errs = append(errs, *RangeError("session.frame_rate", 1, 240))
	}
	if s.Screen != "" {
		if _, _, err := environment.ParseResolution(s.Screen); err != nil {
			errs = append(errs, ValidationError{
				Field:   "session.screen",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validatePresentation(p *PresentationConfig) ValidationErrors {
	var errs ValidationErrors

	for name, ms := range p.StageDurationsMs {
		field := "presentation.stage_durations_ms." + name
		if _, err := presentation.ParseStageKind(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("unknown stage %q is ignored", name),
			})
			continue
		}
		if ms < 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "duration cannot be negative",
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateTelemetry(t *TelemetryConfig) ValidationErrors {
	var errs ValidationErrors

	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, *RangeError("telemetry.sample_rate", 0, 1))
	}
	if t.OTLPEndpoint != "" && t.ServiceName == "" {
		errs = append(errs, *RequiredFieldError("telemetry.service_name"))
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	// Unknown stage names are dropped by StageDurations.
	warningFields := []string{
		"presentation.stage_durations_ms",
	}
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) && strings.HasSuffix(e.Message, "is ignored") {
			return true
		}
	}
	return false
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")
