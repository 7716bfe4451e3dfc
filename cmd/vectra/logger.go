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

package main

import (
	"fmt"
	"os"

	"github.com/kadirpekel/vectra/pkg/config"
	"github.com/kadirpekel/vectra/pkg/logger"
)

const (
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
	// DefaultLogFormat is the default log format
	DefaultLogFormat = "text"
)

// initLoggerFromCLI initializes the logger from CLI flags and environment
// variables. Priority: CLI flags > env vars > defaults.
// Returns a cleanup function that closes the log file, if any.
func initLoggerFromCLI(cliLogLevel, cliLogFile, cliLogFormat string) (func(), error) {
	logLevel := cliLogLevel
	if logLevel == "" {
		logLevel = os.Getenv(LogLevelEnvVar)
	}
	if logLevel == "" {
		logLevel = "info"
	}

	logFile := cliLogFile
	if logFile == "" {
		logFile = os.Getenv(LogFileEnvVar)
	}

	logFormat := cliLogFormat
	if logFormat == "" {
		logFormat = os.Getenv(LogFormatEnvVar)
	}
	if logFormat == "" {
		logFormat = DefaultLogFormat
	}

	output := os.Stderr
	var cleanup func()
	if logFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(logFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	}

	logger.Init(logger.ParseLevel(logLevel), output, logFormat)
	return cleanup, nil
}

// loggingOverridden reports whether any CLI flag or environment
// variable customizes logging. When nothing does, the config file's
// logging section takes over after loading.
func (c *CLI) loggingOverridden() bool {
	return c.LogLevel != "" || c.LogFile != "" || c.LogFormat != "" ||
		os.Getenv(LogLevelEnvVar) != "" ||
		os.Getenv(LogFileEnvVar) != "" ||
		os.Getenv(LogFormatEnvVar) != ""
}

// initLoggerFromConfig reinitializes the logger from the config file's
// logging section. Returns a cleanup function that closes the log
// file, if any.
func initLoggerFromConfig(cfg *config.LoggingConfig) (func(), error) {
	var output *os.File
	var cleanup func()
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "file":
		file, cleanupFn, err := logger.OpenLogFile(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		cleanup = cleanupFn
	default:
		output = os.Stderr
	}

	logger.Init(logger.ParseLevel(cfg.Level), output, cfg.Format)
	return cleanup, nil
}
