// Package config provides configuration management for rules-engine services.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// ServiceConfig holds configuration for the gRPC and HTTP insight service.
type ServiceConfig struct {
	Host           string
	Port           int
	HTTPHost       string
	HTTPPort       int
	RequestTimeout time.Duration
	MaxBatchSize   int

	// RulesFile, when set, is the rule source; otherwise rules are read from
	// the database at DBURL.
	RulesFile  string
	WatchRules bool

	DBURL            string
	MetricsNamespace string
}

// DefaultServiceConfig returns configuration with default values.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:             "0.0.0.0",
		Port:             50051,
		HTTPHost:         "0.0.0.0",
		HTTPPort:         8080,
		RequestTimeout:   30 * time.Second,
		MaxBatchSize:     1000,
		DBURL:            "sqlite://./data/rules.db",
		MetricsNamespace: "rules_engine",
	}
}

// GRPCAddr returns the gRPC listen address.
func (c *ServiceConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HTTPAddr returns the HTTP listen address.
func (c *ServiceConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

// Validate checks port ranges, positive limits and the rule source.
func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.Port == c.HTTPPort && c.Host == c.HTTPHost {
		return fmt.Errorf("port and http_port must differ, both are %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.WatchRules && c.RulesFile == "" {
		return fmt.Errorf("rules.watch requires rules.file")
	}
	if c.RulesFile == "" && c.DBURL == "" {
		return fmt.Errorf("either rules.file or database.url must be set")
	}
	return nil
}

// hasCredentials reports whether a database URL embeds a password.
func hasCredentials(dbURL string) bool {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}
