// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// ConfigError reports an invalid configuration value. It is fatal: the
// engine refuses to construct and the error is never retried.
type ConfigError struct {
	// Path locates the offending field in the config tree, dot-separated
	// (e.g. "retrieval.mmr_lambda").
	Path string

	// Reason explains what is wrong with the value.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

// NewConfigError creates a ConfigError for the given field path.
func NewConfigError(path, format string, args ...any) *ConfigError {
	return &ConfigError{
		Path:   path,
		Reason: fmt.Sprintf(format, args...),
	}
}
