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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zendz/ci-copy/copier/internal/redact"
)

const (
	ecrHostInfix   = ".dkr.ecr."
	ecrHostSuffix  = ".amazonaws.com"
	chinaRegionTag = "cn-"
	accountIDLen   = 12
)

// RegistryEndpoint is the registry host images are copied from or to.
type RegistryEndpoint struct {
	URL    string `json:"url"`
	Region string `json:"region"`
}

// EndpointFor returns the ECR registry endpoint of an account in a region.
func EndpointFor(accountID, region string) RegistryEndpoint {
	suffix := ecrHostSuffix
	if strings.HasPrefix(region, chinaRegionTag) {
		suffix += ".cn"
	}
	return RegistryEndpoint{
		URL:    accountID + ecrHostInfix + region + suffix,
		Region: region,
	}
}

// AccountID returns the AWS account that owns an ECR endpoint, or "" when the
// host is not an ECR registry.
func (e RegistryEndpoint) AccountID() string {
	i := strings.Index(e.URL, ecrHostInfix)
	if i != accountIDLen {
		return ""
	}
	account := e.URL[:i]
	if _, err := strconv.ParseUint(account, 10, 64); err != nil {
		return ""
	}
	return account
}

func (e RegistryEndpoint) String() string {
	return e.URL
}

// AuthSpec says how credentials for one side of a copy are obtained. It is
// one of Profile, AssumeRole or Environment.
type AuthSpec interface {
	// Key identifies the credentials source for caching.
	Key() string
	authSpec()
}

// Profile reads credentials from a named shared config profile.
type Profile struct {
	Name string
}

// AssumeRole assumes an IAM role on top of the default credential chain.
type AssumeRole struct {
	ARN         string
	SessionName string
	// Duration of the role session; zero selects the default.
	Duration time.Duration
}

// Environment reads credentials, and optionally a role to assume, from a
// fixed set of environment variables.
type Environment struct{}

func (p Profile) Key() string { return "profile:" + p.Name }
func (a AssumeRole) Key() string { return fmt.Sprintf("role:%s|%s|%s", a.ARN, a.SessionName, a.Duration) }
func (Environment) Key() string { return "environment" }
func (Profile) authSpec() {}
func (AssumeRole) authSpec() {}
func (Environment) authSpec() {}
func (p Profile) String() string { return "profile " + p.Name }
func (a AssumeRole) String() string { return "role " + a.ARN }
func (Environment) String() string { return "environment" }

// EndpointSpec is everything needed to authenticate against one side of a
// copy.
type EndpointSpec struct {
	Auth   AuthSpec
	Region string
	// Registry optionally overrides the endpoint derived from the resolved
	// account, for example to reach another account's registry.
	Registry string
}

// Key identifies the spec for caching.
func (s EndpointSpec) Key() string {
	key := s.Region + "|" + s.Registry
	if s.Auth != nil {
		key = s.Auth.Key() + "|" + key
	}
	return key
}

// Validate rejects specs that cannot be resolved.
func (s EndpointSpec) Validate() error {
	if s.Auth == nil {
		return Errorf(ConfigError, "no credentials configured")
	}
	if s.Region == "" {
		return Errorf(ConfigError, "no region configured for %v", s.Auth)
	}
	if s.Registry != "" && (RegistryEndpoint{URL: s.Registry}).AccountID() == "" {
		return Errorf(ConfigError, "registry %q is not an ECR registry host", s.Registry)
	}
	return nil
}

// CachedToken is a short lived registry credential.
type CachedToken struct {
	Endpoint  RegistryEndpoint
	Username  string
	Password  string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now, keeping margin
// before its expiry.
func (t CachedToken) Valid(now time.Time, margin time.Duration) bool {
	return t.Password != "" && now.Before(t.ExpiresAt.Add(-margin))
}

func (t CachedToken) String() string {
	return fmt.Sprintf("%s@%s (password %s, expires %s)",
		t.Username, t.Endpoint.URL, redact.Secret(t.Password), t.ExpiresAt.Format(time.RFC3339))
}

// Credential is one resolved side of a copy.
type Credential struct {
	Auth   AuthSpec
	Region string
	Token  CachedToken
}

// Endpoint is the registry the credential's token is valid for.
func (c Credential) Endpoint() RegistryEndpoint {
	return c.Token.Endpoint
}

// Reference returns the fully qualified name of image in the credential's
// registry.
func (c Credential) Reference(image ImageRef) string {
	return c.Token.Endpoint.URL + repositoryDelimiter + image.String()
}
