package loader

import "fmt"

// RepositoryError reports an artifact that could not be retrieved or read.
type RepositoryError struct {
	Artifact string
	Repo     string
	Err      error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %s: %v", e.Repo, e.Artifact, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// ConfigError reports a config.json that does not decode into the schema
// the requested architecture expects.
type ConfigError struct {
	Expected string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config.json does not match %s: %v", e.Expected, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
