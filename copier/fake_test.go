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
	"context"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/zendz/ci-copy/copier/internal/testdata"
)

// fakeResolver is a CredentialResolver backed by a function. A nil function
// returns a token for the fixture registry of the spec's profile.
type fakeResolver struct {
	ResolveFn func(context.Context, EndpointSpec) (CachedToken, error)
}

var _ CredentialResolver = (*fakeResolver)(nil)

func (f *fakeResolver) Resolve(ctx context.Context, spec EndpointSpec) (CachedToken, error) {
	if f.ResolveFn != nil {
		return f.ResolveFn(ctx, spec)
	}
	return fixtureToken(spec), nil
}

func fixtureToken(spec EndpointSpec) CachedToken {
	url := testdata.SourceRegistry
	if spec.Auth == targetSpec.Auth {
		url = testdata.TargetRegistry
	}
	return CachedToken{
		Endpoint: RegistryEndpoint{URL: url, Region: spec.Region},
		Username: "AWS",
		Password: "token",
	}
}

// fakeRegistry is a Registry whose checks pass unless a function is set.
type fakeRegistry struct {
	ImageDigestFn func(context.Context, Credential, ImageRef) (digest.Digest, error)
	CheckSourceFn func(context.Context, Credential, ImageRef) error
	CheckTargetFn func(context.Context, Credential, string, bool) error
}

var _ Registry = (*fakeRegistry)(nil)

func (f *fakeRegistry) ImageDigest(ctx context.Context, cred Credential, image ImageRef) (digest.Digest, error) {
	if f.ImageDigestFn != nil {
		return f.ImageDigestFn(ctx, cred, image)
	}
	return testdata.ImageDigest, nil
}

func (f *fakeRegistry) CheckSource(ctx context.Context, cred Credential, image ImageRef) error {
	if f.CheckSourceFn != nil {
		return f.CheckSourceFn(ctx, cred, image)
	}
	return nil
}

func (f *fakeRegistry) CheckTarget(ctx context.Context, cred Credential, repository string, create bool) error {
	if f.CheckTargetFn != nil {
		return f.CheckTargetFn(ctx, cred, repository, create)
	}
	return nil
}

// fakeBackend is a TransferBackend backed by a function. A nil function
// copies successfully with matching digests.
type fakeBackend struct {
	CopyFn func(context.Context, ImageRef, Credential, Credential) (Digests, error)
}

var _ TransferBackend = (*fakeBackend)(nil)

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Copy(ctx context.Context, image ImageRef, source, target Credential) (Digests, error) {
	if f.CopyFn != nil {
		return f.CopyFn(ctx, image, source, target)
	}
	return Digests{Source: testdata.ImageDigest, Target: testdata.ImageDigest}, nil
}

// transitionLog records every transition reported by a Scheduler.
type transitionLog struct {
	mu      sync.Mutex
	byImage map[string][]State
}

func newTransitionLog() *transitionLog {
	return &transitionLog{byImage: map[string][]State{}}
}

func (l *transitionLog) record(job *CopyJob, _, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byImage[job.Image.String()] = append(l.byImage[job.Image.String()], to)
}

func (l *transitionLog) states(image string) []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.byImage[image]...)
}

var (
	sourceSpec = EndpointSpec{Auth: Profile{Name: "source"}, Region: testdata.Region}
	targetSpec = EndpointSpec{Auth: AssumeRole{ARN: testdata.RoleARN}, Region: testdata.Region}
)
