// Package config loads clusterlib's connection and tuning parameters.
/*
 * Copyright (c) 2024, clusterlib Authors. All rights reserved.
 */
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	// EnvHosts is the one required environment variable from spec §6: a
	// comma-separated host list of the underlying store.
	EnvHosts = "CLUSTERLIB_STORE_HOSTS"
	// EnvConnectTimeoutMsecs is the one configurable environment
	// variable from spec §6.
	EnvConnectTimeoutMsecs = "CLUSTERLIB_CONNECT_TIMEOUT_MSECS"

	DefaultConnectTimeout  = 10 * time.Second
	DefaultSessionTimeout  = 30 * time.Second
	DefaultMaxHistorySize  = 5
	DefaultRPCWaitTimeout  = 30 * time.Second
	DefaultTakeWaitTimeout = 24 * time.Hour
)

// ClusterlibConfig holds everything needed to stand up a library handle.
type ClusterlibConfig struct {
	StoreHosts     []string      `yaml:"store_hosts"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	MaxHistorySize int           `yaml:"max_history_size"`
	RPCWaitTimeout time.Duration `yaml:"rpc_wait_timeout"`
}

func Default() *ClusterlibConfig {
	return &ClusterlibConfig{
		ConnectTimeout: DefaultConnectTimeout,
		SessionTimeout: DefaultSessionTimeout,
		MaxHistorySize: DefaultMaxHistorySize,
		RPCWaitTimeout: DefaultRPCWaitTimeout,
	}
}

// Load reads a YAML config from path (if non-empty) and layers the
// spec-mandated environment variables on top.
func Load(path string) (*ClusterlibConfig, error) {
	cfg := Default()
	if path != "" {
		b, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *ClusterlibConfig) applyEnv() {
	if hosts := os.Getenv(EnvHosts); hosts != "" {
		parts := strings.Split(hosts, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		c.StoreHosts = out
	}
	if ms := os.Getenv(EnvConnectTimeoutMsecs); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n > 0 {
			c.ConnectTimeout = time.Duration(n) * time.Millisecond
		}
	}
}

func (c *ClusterlibConfig) Validate() error {
	if len(c.StoreHosts) == 0 {
		return errMissingHosts
	}
	if c.MaxHistorySize < 1 {
		c.MaxHistorySize = DefaultMaxHistorySize
	}
	return nil
}

var errMissingHosts = &configError{"no store hosts configured: set " + EnvHosts + " or StoreHosts in config"}

type configError struct{ msg string }

func (e *configError) Error() string { return e.msg }
