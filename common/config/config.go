// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type (
	// Routing is the static configuration of the routing layer.
	Routing struct {
		// PreferredRegions is the caller supplied region ordering used to
		// bias routing ahead of the account's own failover order.
		PreferredRegions []string `yaml:"preferredRegions"`
		// EndpointPreference picks which address of a RegionalEndpointPair
		// is tried first: "regional" (default) or "global".
		EndpointPreference string `yaml:"endpointPreference"`
		// TopologyRefreshInterval is the period of the background topology pull.
		TopologyRefreshInterval time.Duration `yaml:"topologyRefreshInterval"`
		// UnavailableEndpointDuration is how long an endpoint stays filtered
		// out after being marked unavailable; doubles on repeated markings.
		UnavailableEndpointDuration time.Duration `yaml:"unavailableEndpointDuration"`
		// UnavailableEndpointMaxDuration caps the marking backoff.
		UnavailableEndpointMaxDuration time.Duration `yaml:"unavailableEndpointMaxDuration"`

		Health Health `yaml:"health"`
		Retry  Retry  `yaml:"retry"`
	}

	// Health configures the per partition circuit breaker.
	Health struct {
		// Disabled turns the partition breaker off entirely: outcomes are
		// still recorded but never influence routing.
		Disabled bool `yaml:"disabled"`
		// ConsecutiveFailureThreshold opens the breaker for reads and for
		// writes on single write accounts.
		ConsecutiveFailureThreshold int `yaml:"consecutiveFailureThreshold"`
		// WriteConsecutiveFailureThreshold opens the write breaker on multi
		// write accounts, where write failover is cheap.
		WriteConsecutiveFailureThreshold int `yaml:"writeConsecutiveFailureThreshold"`
		// FailureRatePercent is the tolerated failure rate over the rolling
		// window before the breaker opens.
		FailureRatePercent float64 `yaml:"failureRatePercent"`
		// MinimumRequestsForFailureRate is how many outcomes the window must
		// hold before the rate check applies.
		MinimumRequestsForFailureRate int `yaml:"minimumRequestsForFailureRate"`
		// FailureWindowSize bounds the rolling outcome window.
		FailureWindowSize int `yaml:"failureWindowSize"`
		// InitialUnavailableDuration is the first recovery backoff; doubles
		// on every relapse.
		InitialUnavailableDuration time.Duration `yaml:"initialUnavailableDuration"`
		// MaxUnavailableDuration caps the recovery backoff.
		MaxUnavailableDuration time.Duration `yaml:"maxUnavailableDuration"`
	}

	// Retry configures the retry policies.
	Retry struct {
		// MaxDiscoveryRetries bounds the endpoint discovery retry policy.
		MaxDiscoveryRetries int `yaml:"maxDiscoveryRetries"`
	}
)

// Endpoint preference values.
const (
	EndpointPreferenceRegional = "regional"
	EndpointPreferenceGlobal   = "global"
)

// Load reads a YAML config file into cfg and fills defaults.
func Load(configPath string, cfg *Routing) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	cfg.FillDefaults()
	return cfg.Validate()
}

// FillDefaults populates unset fields with production defaults.
func (c *Routing) FillDefaults() {
	if c.EndpointPreference == "" {
		c.EndpointPreference = EndpointPreferenceRegional
	}
	if c.TopologyRefreshInterval == 0 {
		c.TopologyRefreshInterval = 5 * time.Minute
	}
	if c.UnavailableEndpointDuration == 0 {
		c.UnavailableEndpointDuration = 5 * time.Minute
	}
	if c.UnavailableEndpointMaxDuration == 0 {
		c.UnavailableEndpointMaxDuration = time.Hour
	}
	if c.Health.ConsecutiveFailureThreshold == 0 {
		c.Health.ConsecutiveFailureThreshold = 10
	}
	if c.Health.WriteConsecutiveFailureThreshold == 0 {
		c.Health.WriteConsecutiveFailureThreshold = 5
	}
	if c.Health.FailureRatePercent == 0 {
		c.Health.FailureRatePercent = 90
	}
	if c.Health.MinimumRequestsForFailureRate == 0 {
		c.Health.MinimumRequestsForFailureRate = 10
	}
	if c.Health.FailureWindowSize == 0 {
		c.Health.FailureWindowSize = 100
	}
	if c.Health.InitialUnavailableDuration == 0 {
		c.Health.InitialUnavailableDuration = time.Second
	}
	if c.Health.MaxUnavailableDuration == 0 {
		c.Health.MaxUnavailableDuration = 5 * time.Minute
	}
	if c.Retry.MaxDiscoveryRetries == 0 {
		c.Retry.MaxDiscoveryRetries = 3
	}
}

// Validate rejects configurations that would disable routing entirely.
func (c *Routing) Validate() error {
	if c.EndpointPreference != EndpointPreferenceRegional && c.EndpointPreference != EndpointPreferenceGlobal {
		return fmt.Errorf("endpointPreference must be %q or %q, got %q",
			EndpointPreferenceRegional, EndpointPreferenceGlobal, c.EndpointPreference)
	}
	if c.Health.FailureRatePercent <= 0 || c.Health.FailureRatePercent > 100 {
		return fmt.Errorf("failureRatePercent must be in (0, 100], got %v", c.Health.FailureRatePercent)
	}
	if c.Health.FailureWindowSize < c.Health.MinimumRequestsForFailureRate {
		return fmt.Errorf("failureWindowSize %d is smaller than minimumRequestsForFailureRate %d",
			c.Health.FailureWindowSize, c.Health.MinimumRequestsForFailureRate)
	}
	return nil
}
