// Copyright 2026 The linux-practice Authors
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

// Package config loads the caller-supplied configuration for the practice
// VM tooling from ~/.practicectl/config.yaml, falling back to defaults.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config represents the practicectl configuration.
type Config struct {
	// LibvirtURI is the hypervisor management endpoint.
	LibvirtURI string `mapstructure:"libvirt_uri"`

	// ChallengeDir is the directory containing challenge definition files.
	ChallengeDir string `mapstructure:"challenge_dir"`

	// StateDir is where suspended challenge sessions are persisted.
	StateDir string `mapstructure:"state_dir"`

	SSH      SSH      `mapstructure:"ssh"`
	Timeouts Timeouts `mapstructure:"timeouts"`
}

// SSH contains the SSH target configuration. The host itself is discovered
// from the hypervisor at runtime, never configured.
type SSH struct {
	User    string `mapstructure:"user"`
	KeyPath string `mapstructure:"key_path"`
	Port    int    `mapstructure:"port"`
}

// Timeouts contains timeout configuration for blocking operations.
type Timeouts struct {
	// SSHReady bounds the whole wait-for-guest readiness gate.
	SSHReady string `mapstructure:"ssh_ready"`

	// SSHPoll is the interval between readiness probes.
	SSHPoll string `mapstructure:"ssh_poll"`

	// Command bounds a single remote command execution.
	Command string `mapstructure:"command"`
}

// SSHReadyTimeout parses the readiness timeout, falling back to the default.
func (t Timeouts) SSHReadyTimeout() time.Duration {
	return parseOrDefault(t.SSHReady, 3*time.Minute)
}

// SSHPollInterval parses the readiness poll interval, falling back to the default.
func (t Timeouts) SSHPollInterval() time.Duration {
	return parseOrDefault(t.SSHPoll, 5*time.Second)
}

// CommandTimeout parses the per-command timeout, falling back to the default.
func (t Timeouts) CommandTimeout() time.Duration {
	return parseOrDefault(t.Command, 30*time.Second)
}

func parseOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Load loads the configuration from ~/.practicectl/config.yaml or returns defaults.
func Load() (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	v := viper.New()
	configDir := filepath.Join(home, ".practicectl")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	setDefaults(v, home)

	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand ~ in the key path so downstream code gets an absolute path
	cfg.SSH.KeyPath, err = homedir.Expand(cfg.SSH.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand ssh key path: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("libvirt_uri", "qemu:///system")
	v.SetDefault("challenge_dir", "challenges")
	v.SetDefault("state_dir", filepath.Join(home, ".practicectl", "sessions"))

	v.SetDefault("ssh.user", "student")
	v.SetDefault("ssh.key_path", "~/.ssh/id_ed25519")
	v.SetDefault("ssh.port", 22)

	v.SetDefault("timeouts.ssh_ready", "3m")
	v.SetDefault("timeouts.ssh_poll", "5s")
	v.SetDefault("timeouts.command", "30s")
}
