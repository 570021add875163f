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

package auth

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/containerd/log"

	"github.com/zendz/ci-copy/copier"
)

// openSession opens an AWS session for auth. Credentials are retrieved
// eagerly so that missing or denied credentials fail here rather than on the
// first API call.
func (r *Resolver) openSession(ctx context.Context, auth copier.AuthSpec, region string) (identity, error) {
	switch a := auth.(type) {
	case copier.Profile:
		sess, err := session.NewSessionWithOptions(session.Options{
			Profile:           a.Name,
			SharedConfigState: session.SharedConfigEnable,
			Config:            aws.Config{Region: aws.String(region)},
		})
		if err != nil {
			return identity{}, classify(err, "open profile %q", a.Name)
		}
		if _, err := sess.Config.Credentials.GetWithContext(ctx); err != nil {
			return identity{}, classify(err, "credentials of profile %q", a.Name)
		}
		return identity{provider: sess}, nil

	case copier.AssumeRole:
		parsed, err := parseRoleARN(a.ARN)
		if err != nil {
			return identity{}, err
		}
		base, err := session.NewSessionWithOptions(session.Options{
			SharedConfigState: session.SharedConfigEnable,
			Config:            aws.Config{Region: aws.String(region)},
		})
		if err != nil {
			return identity{}, classify(err, "open default session")
		}
		sess, err := assumeRole(ctx, base, a)
		if err != nil {
			return identity{}, err
		}
		return identity{provider: sess, account: parsed.AccountID}, nil

	case copier.Environment:
		return r.openEnvironment(ctx, region)
	}
	return identity{}, copier.Errorf(copier.ConfigError, "unsupported credentials %T", auth)
}

func (r *Resolver) openEnvironment(ctx context.Context, region string) (identity, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	accessKey, secretKey := getenv(EnvAccessKeyID), getenv(EnvSecretAccessKey)
	if accessKey == "" || secretKey == "" {
		return identity{}, copier.Errorf(copier.AuthError, "%s and %s must both be set", EnvAccessKeyID, EnvSecretAccessKey)
	}
	role := copier.AssumeRole{
		ARN:         getenv(EnvRoleARN),
		SessionName: getenv(EnvRoleSessionName),
	}
	var account string
	if role.ARN != "" {
		parsed, err := parseRoleARN(role.ARN)
		if err != nil {
			return identity{}, err
		}
		account = parsed.AccountID
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config: aws.Config{
			Region:      aws.String(region),
			Credentials: credentials.NewStaticCredentials(accessKey, secretKey, getenv(EnvSessionToken)),
		},
	})
	if err != nil {
		return identity{}, classify(err, "open session from environment")
	}
	if role.ARN == "" {
		return identity{provider: sess}, nil
	}
	assumed, err := assumeRole(ctx, sess, role)
	if err != nil {
		return identity{}, err
	}
	return identity{provider: assumed, account: account}, nil
}

// assumeRole returns a copy of base acting as role. The role credentials are
// refreshed by the SDK when they expire.
func assumeRole(ctx context.Context, base *session.Session, role copier.AssumeRole) (*session.Session, error) {
	name, err := sessionName(role.SessionName)
	if err != nil {
		return nil, err
	}
	duration := RoleDuration(role.Duration)
	if duration != role.Duration && role.Duration != 0 {
		log.G(ctx).
			WithField("requested", role.Duration).
			WithField("duration", duration).
			Warn("auth.session: role duration clamped")
	}
	creds := stscreds.NewCredentials(base, role.ARN, func(p *stscreds.AssumeRoleProvider) {
		p.RoleSessionName = name
		p.Duration = duration
	})
	if _, err := creds.GetWithContext(ctx); err != nil {
		return nil, classify(err, "assume role %s", role.ARN)
	}
	log.G(ctx).WithField("role", role.ARN).WithField("session", name).Debug("auth.session: assumed role")
	return base.Copy(&aws.Config{Credentials: creds}), nil
}
