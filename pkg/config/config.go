/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and watches the towline configuration file.
package config

import (
	"fmt"
	"io/ioutil"

	"sigs.k8s.io/yaml"

	"github.com/towline-dev/towline/pkg/store"
)

// Config is the full configuration surface. Repository-level options are
// seeds: they populate new Repository rows and change nothing for rows
// that already exist.
type Config struct {
	// BotName is the first token of every command line, e.g. "towline".
	BotName string `json:"bot_name"`

	Server ServerConfig `json:"server,omitempty"`

	DefaultMergeStrategy          string `json:"default_merge_strategy,omitempty"`
	DefaultNeededReviewersCount   int    `json:"default_needed_reviewers_count,omitempty"`
	DefaultPRTitleValidationRegex string `json:"default_pr_title_validation_regex,omitempty"`
	DefaultAutomerge              bool   `json:"default_automerge,omitempty"`
	DefaultEnableQA               bool   `json:"default_enable_qa,omitempty"`
	DefaultEnableChecks           bool   `json:"default_enable_checks,omitempty"`

	Gif    GifConfig    `json:"gif,omitempty"`
	GitHub GitHubConfig `json:"github,omitempty"`
	Store  StoreConfig  `json:"store,omitempty"`
	Lock   LockConfig   `json:"lock,omitempty"`
}

// ServerConfig gates webhook-side behavior.
type ServerConfig struct {
	// EnableWelcomeComments posts a greeting on newly opened pull
	// requests.
	EnableWelcomeComments bool `json:"enable_welcome_comments,omitempty"`
}

// GifConfig configures the GIF provider. An empty key disables the gif
// command.
type GifConfig struct {
	TenorAPIKey string `json:"tenor_api_key,omitempty"`
}

// GitHubConfig locates the forge and the app credentials.
type GitHubConfig struct {
	// Endpoint defaults to the public API.
	Endpoint string `json:"endpoint,omitempty"`
	// TokenPath points at a personal access token. Ignored when app
	// credentials are set.
	TokenPath string `json:"token_path,omitempty"`
	// AppID, AppInstallationID and AppPrivateKeyPath authenticate as a
	// GitHub App.
	AppID             string `json:"app_id,omitempty"`
	AppInstallationID int64  `json:"app_installation_id,omitempty"`
	AppPrivateKeyPath string `json:"app_private_key_path,omitempty"`
}

// StoreConfig configures persistence. An empty snapshot path keeps the
// store purely in memory.
type StoreConfig struct {
	SnapshotPath string `json:"snapshot_path,omitempty"`
}

// LockConfig configures the distributed lock service. An empty address
// falls back to in-process locks, which only serialize a single instance.
type LockConfig struct {
	RedisAddress string `json:"redis_address,omitempty"`
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	return parse(b)
}

func parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.validateAndDefault(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validateAndDefault() error {
	if c.BotName == "" {
		return fmt.Errorf("bot_name is required")
	}
	if c.DefaultMergeStrategy == "" {
		c.DefaultMergeStrategy = string(store.StrategyMerge)
	}
	if _, ok := store.ParseMergeStrategy(c.DefaultMergeStrategy); !ok {
		return fmt.Errorf("default_merge_strategy: unknown merge strategy %q", c.DefaultMergeStrategy)
	}
	if c.DefaultNeededReviewersCount < 0 {
		return fmt.Errorf("default_needed_reviewers_count must not be negative")
	}
	return nil
}

// SeedRepository builds the Repository row for a repository seen for the
// first time.
func (c *Config) SeedRepository(owner, name string) store.Repository {
	return store.Repository{
		Owner:                       owner,
		Name:                        name,
		PRTitleValidationRegex:      c.DefaultPRTitleValidationRegex,
		DefaultStrategy:             store.MergeStrategy(c.DefaultMergeStrategy),
		DefaultNeededReviewersCount: c.DefaultNeededReviewersCount,
		DefaultAutomerge:            c.DefaultAutomerge,
		DefaultEnableQA:             c.DefaultEnableQA,
		DefaultEnableChecks:         c.DefaultEnableChecks,
	}
}
