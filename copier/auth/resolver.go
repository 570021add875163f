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

// Package auth resolves the credentials of each side of a copy into Amazon
// ECR authorization tokens.
//
// Sessions are cached per credentials source and region, tokens per
// credentials source and registry endpoint. A token is fetched again once it is within SafetyMargin of its
// expiry. Concurrent requests for the same spec share a single call to AWS.
package auth

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/zendz/ci-copy/copier"
)

const (
	// DefaultSessionName is used for assumed roles without a session name.
	DefaultSessionName = "ci-copy"
	// DefaultRoleDuration is used for assumed roles without a duration.
	DefaultRoleDuration = time.Hour
	MinRoleDuration     = 15 * time.Minute
	MaxRoleDuration     = 12 * time.Hour
	// DefaultSafetyMargin is how long before expiry a token is replaced.
	DefaultSafetyMargin = 5 * time.Minute

	// ECR tokens are valid for 12 hours when the response has no expiry.
	defaultTokenLifetime = 12 * time.Hour
	// resolveTimeout bounds a shared resolution once it no longer depends
	// on the context of the caller that started it.
	resolveTimeout = 2 * time.Minute
)

// Environment variables read for copier.Environment.
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvSessionToken    = "AWS_SESSION_TOKEN"
	EnvRoleARN         = "AWS_ROLE_ARN"
	EnvRoleSessionName = "AWS_ROLE_SESSION_NAME"
)

var sessionNameRe = regexp.MustCompile(`^[\w+=,.@-]{2,64}$`)

// stsAPI contains only the STS APIs called by the resolver.
type stsAPI interface {
	GetCallerIdentityWithContext(aws.Context, *sts.GetCallerIdentityInput, ...request.Option) (*sts.GetCallerIdentityOutput, error)
}

// ecrAPI contains only the ECR APIs called by the resolver.
type ecrAPI interface {
	GetAuthorizationTokenWithContext(aws.Context, *ecr.GetAuthorizationTokenInput, ...request.Option) (*ecr.GetAuthorizationTokenOutput, error)
}

// identity is an opened AWS session and the account it acts in. The account
// is empty when it is not known without a call to STS.
type identity struct {
	provider client.ConfigProvider
	account  string
}

// Resolver implements copier.CredentialResolver on top of the AWS SDK.
type Resolver struct {
	// SafetyMargin defaults to DefaultSafetyMargin.
	SafetyMargin time.Duration
	// Getenv reads the variables of copier.Environment. It defaults to
	// os.Getenv.
	Getenv func(string) string

	mu         sync.Mutex
	identities map[string]identity
	tokens     map[string]copier.CachedToken
	group      singleflight.Group

	open   func(ctx context.Context, auth copier.AuthSpec, region string) (identity, error)
	newSTS func(p client.ConfigProvider, region string) stsAPI
	newECR func(p client.ConfigProvider, region string) ecrAPI
	now    func() time.Time
}

var _ copier.CredentialResolver = (*Resolver)(nil)

// NewResolver returns a Resolver with empty caches.
func NewResolver() *Resolver {
	r := &Resolver{
		identities: map[string]identity{},
		tokens:     map[string]copier.CachedToken{},
		newSTS: func(p client.ConfigProvider, region string) stsAPI {
			return sts.New(p, aws.NewConfig().WithRegion(region))
		},
		newECR: func(p client.ConfigProvider, region string) ecrAPI {
			return ecr.New(p, aws.NewConfig().WithRegion(region))
		},
		now: time.Now,
	}
	r.open = r.openSession
	return r
}

// Resolve returns a token for the registry spec points at, from the cache
// when it is still valid.
func (r *Resolver) Resolve(ctx context.Context, spec copier.EndpointSpec) (copier.CachedToken, error) {
	if err := spec.Validate(); err != nil {
		return copier.CachedToken{}, err
	}
	if token, ok := r.cachedToken(spec); ok {
		return token, nil
	}
	v, err := r.do(ctx, "token|"+spec.Key(), func(ctx context.Context) (interface{}, error) {
		if token, ok := r.cachedToken(spec); ok {
			return token, nil
		}
		id, err := r.identity(ctx, spec.Auth, spec.Region)
		if err != nil {
			return nil, err
		}
		endpoint := endpointOf(spec, id)
		token, err := r.fetchToken(ctx, spec, id, endpoint)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.tokens[tokenKey(spec, endpoint)] = token
		r.mu.Unlock()
		log.G(ctx).
			WithField("endpoint", endpoint.URL).
			WithField("expiresAt", token.ExpiresAt).
			Debug("auth.resolver: token")
		return token, nil
	})
	if err != nil {
		return copier.CachedToken{}, err
	}
	return v.(copier.CachedToken), nil
}

// Provider returns the AWS session for auth in region, opening it on first
// use.
func (r *Resolver) Provider(ctx context.Context, auth copier.AuthSpec, region string) (client.ConfigProvider, error) {
	id, err := r.identity(ctx, auth, region)
	if err != nil {
		return nil, err
	}
	return id.provider, nil
}

func (r *Resolver) cachedToken(spec copier.EndpointSpec) (copier.CachedToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.identities[identityKey(spec.Auth, spec.Region)]
	if !ok {
		return copier.CachedToken{}, false
	}
	token, ok := r.tokens[tokenKey(spec, endpointOf(spec, id))]
	if !ok || !token.Valid(r.now(), r.safetyMargin()) {
		return copier.CachedToken{}, false
	}
	return token, true
}

// identity opens the session of auth in region and learns its account.
func (r *Resolver) identity(ctx context.Context, auth copier.AuthSpec, region string) (identity, error) {
	if auth == nil {
		return identity{}, copier.Errorf(copier.ConfigError, "no credentials configured")
	}
	key := identityKey(auth, region)
	r.mu.Lock()
	id, ok := r.identities[key]
	r.mu.Unlock()
	if ok {
		return id, nil
	}
	v, err := r.do(ctx, "identity|"+key, func(ctx context.Context) (interface{}, error) {
		id, err := r.open(ctx, auth, region)
		if err != nil {
			return nil, err
		}
		if id.account == "" {
			out, err := r.newSTS(id.provider, region).GetCallerIdentityWithContext(ctx, &sts.GetCallerIdentityInput{})
			if err != nil {
				return nil, classify(err, "get caller identity for %v", auth)
			}
			id.account = aws.StringValue(out.Account)
		}
		log.G(ctx).
			WithField("auth", auth).
			WithField("region", region).
			WithField("account", id.account).
			Debug("auth.resolver: identity")
		r.mu.Lock()
		r.identities[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return identity{}, err
	}
	return v.(identity), nil
}

// do runs fn once for all concurrent callers with the same key. fn gets a
// context that outlives the caller that started it, so one caller giving up
// does not fail the others.
func (r *Resolver) do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := r.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "resolve credentials")
	}
}

func (r *Resolver) fetchToken(ctx context.Context, spec copier.EndpointSpec, id identity, endpoint copier.RegistryEndpoint) (copier.CachedToken, error) {
	out, err := r.newECR(id.provider, spec.Region).GetAuthorizationTokenWithContext(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return copier.CachedToken{}, classify(err, "get authorization token for %s", endpoint)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0] == nil {
		return copier.CachedToken{}, copier.Errorf(copier.AuthError, "no authorization data returned for %s", endpoint)
	}
	data := out.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(aws.StringValue(data.AuthorizationToken))
	if err != nil {
		return copier.CachedToken{}, copier.NewError(copier.AuthError, errors.Wrapf(err, "decode authorization token for %s", endpoint))
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || password == "" {
		return copier.CachedToken{}, copier.Errorf(copier.AuthError, "malformed authorization token for %s", endpoint)
	}
	expiresAt := aws.TimeValue(data.ExpiresAt)
	if expiresAt.IsZero() {
		expiresAt = r.now().Add(defaultTokenLifetime)
	}
	return copier.CachedToken{
		Endpoint:  endpoint,
		Username:  username,
		Password:  password,
		ExpiresAt: expiresAt,
	}, nil
}

func (r *Resolver) safetyMargin() time.Duration {
	if r.SafetyMargin > 0 {
		return r.SafetyMargin
	}
	return DefaultSafetyMargin
}

func identityKey(auth copier.AuthSpec, region string) string {
	return auth.Key() + "@" + region
}

// tokenKey keeps tokens of different identities apart even when they are
// for the same registry, since their permissions may differ.
func tokenKey(spec copier.EndpointSpec, endpoint copier.RegistryEndpoint) string {
	return identityKey(spec.Auth, spec.Region) + "|" + endpoint.URL
}

// endpointOf is the registry of spec: its explicit registry, or the ECR
// registry of the resolved account.
func endpointOf(spec copier.EndpointSpec, id identity) copier.RegistryEndpoint {
	if spec.Registry != "" {
		return copier.RegistryEndpoint{URL: spec.Registry, Region: spec.Region}
	}
	return copier.EndpointFor(id.account, spec.Region)
}

// RoleDuration clamps d to the session durations STS accepts. Zero selects
// DefaultRoleDuration.
func RoleDuration(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultRoleDuration
	case d < MinRoleDuration:
		return MinRoleDuration
	case d > MaxRoleDuration:
		return MaxRoleDuration
	}
	return d
}

// classify turns an AWS error into a copier AuthError. Explicit denials carry
// Reason Permission; throttling and transient failures may be retried.
func classify(err error, format string, args ...interface{}) error {
	e := copier.NewError(copier.AuthError, errors.Wrapf(err, format, args...))
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return e
	}
	if strings.HasPrefix(aerr.Code(), "AccessDenied") {
		e = e.WithReason(copier.Permission)
	}
	var reqErr awserr.RequestFailure
	if request.IsErrorThrottle(aerr) || request.IsErrorRetryable(aerr) ||
		(errors.As(err, &reqErr) && reqErr.StatusCode() >= 500) {
		e = e.WithRetryable(true)
	}
	return e
}

// parseRoleARN accepts only IAM role ARNs.
func parseRoleARN(roleARN string) (arn.ARN, error) {
	parsed, err := arn.Parse(roleARN)
	if err != nil {
		return arn.ARN{}, copier.NewError(copier.AuthError, errors.Wrapf(err, "invalid role ARN %q", roleARN))
	}
	if parsed.Service != "iam" || !strings.HasPrefix(parsed.Resource, "role/") {
		return arn.ARN{}, copier.Errorf(copier.AuthError, "%q is not an IAM role ARN", roleARN)
	}
	return parsed, nil
}

func sessionName(name string) (string, error) {
	if name == "" {
		return DefaultSessionName, nil
	}
	if !sessionNameRe.MatchString(name) {
		return "", copier.Errorf(copier.AuthError, "invalid role session name %q", name)
	}
	return name, nil
}
