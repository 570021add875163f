/*
 * Copyright 2026 Amazon.com, Inc. or its affiliates. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"). You
 * may not use this file except in compliance with the License. A copy of
 * the License is located at
 *
 * 	http://aws.amazon.com/apache2.0/
 *
 * or in the "license" file accompanying this file. This file is
 * distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF
 * ANY KIND, either express or implied. See the License for the specific
 * language governing permissions and limitations under the License.
 */

package copier

import (
	"time"
)

// RunConfig holds the options of one batch run.
type RunConfig struct {
	// Concurrency is the number of jobs running at the same time.
	Concurrency int
	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int
	// RetryDelay is multiplied by the attempt number before a retry.
	RetryDelay time.Duration
	// PerJobTimeout bounds each attempt. Zero disables the timeout.
	PerJobTimeout time.Duration

	Verify           bool
	FailFast         bool
	ForcePullTagPush bool
	// CreateRepository creates a missing target repository during
	// validation.
	CreateRepository bool
}

// DefaultRunConfig copies one image at a time, without retries, and verifies
// every copy.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Concurrency: 1,
		Verify:      true,
	}
}

// Validate rejects option values the scheduler cannot run with.
func (c RunConfig) Validate() error {
	switch {
	case c.Concurrency < 1:
		return Errorf(ConfigError, "concurrency must be at least 1, got %d", c.Concurrency)
	case c.RetryLimit < 0:
		return Errorf(ConfigError, "retry limit must not be negative, got %d", c.RetryLimit)
	case c.RetryDelay < 0:
		return Errorf(ConfigError, "retry delay must not be negative, got %s", c.RetryDelay)
	case c.PerJobTimeout < 0:
		return Errorf(ConfigError, "per-job timeout must not be negative, got %s", c.PerJobTimeout)
	}
	return nil
}
