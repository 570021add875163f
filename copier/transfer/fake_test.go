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

package transfer

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/zendz/ci-copy/copier"
	"github.com/zendz/ci-copy/copier/internal/testdata"
)

var (
	testImage  = copier.ImageRef{Repository: "team/svc", Tag: "v1"}
	sourceCred = copier.Credential{
		Auth:   copier.Profile{Name: "source"},
		Region: testdata.Region,
		Token: copier.CachedToken{
			Endpoint: copier.RegistryEndpoint{URL: testdata.SourceRegistry, Region: testdata.Region},
			Username: "AWS",
			Password: "source-password",
		},
	}
	targetCred = copier.Credential{
		Auth:   copier.AssumeRole{ARN: testdata.RoleARN},
		Region: testdata.Region,
		Token: copier.CachedToken{
			Endpoint: copier.RegistryEndpoint{URL: testdata.TargetRegistry, Region: testdata.Region},
			Username: "AWS",
			Password: "target-password",
		},
	}
	sourceRef = testdata.SourceRegistry + "/team/svc:v1"
	targetRef = testdata.TargetRegistry + "/team/svc:v1"
)

// fakeDigests is a DigestSource backed by a function. A nil function
// returns testdata.ImageDigest.
type fakeDigests struct {
	ImageDigestFn func(context.Context, copier.Credential, copier.ImageRef) (digest.Digest, error)
}

var _ copier.DigestSource = (*fakeDigests)(nil)

func (f *fakeDigests) ImageDigest(ctx context.Context, cred copier.Credential, image copier.ImageRef) (digest.Digest, error) {
	if f.ImageDigestFn != nil {
		return f.ImageDigestFn(ctx, cred, image)
	}
	return testdata.ImageDigest, nil
}

// fakeEngine is an Engine that records the calls which change its store.
// Operations succeed and no image is stored unless a function is set.
type fakeEngine struct {
	PingFn   func(context.Context) error
	ExistsFn func(context.Context, string) (bool, error)
	PullFn   func(context.Context, string, Auth) error
	TagFn    func(context.Context, string, string) error
	PushFn   func(context.Context, string, Auth) error
	RemoveFn func(context.Context, string) error

	mu    sync.Mutex
	calls []string
}

var _ Engine = (*fakeEngine)(nil)

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Ping(ctx context.Context) error {
	if f.PingFn != nil {
		return f.PingFn(ctx)
	}
	return nil
}

func (f *fakeEngine) Exists(ctx context.Context, ref string) (bool, error) {
	if f.ExistsFn != nil {
		return f.ExistsFn(ctx, ref)
	}
	return false, nil
}

func (f *fakeEngine) Pull(ctx context.Context, ref string, auth Auth) error {
	f.record("pull " + ref)
	if f.PullFn != nil {
		return f.PullFn(ctx, ref, auth)
	}
	return nil
}

func (f *fakeEngine) Tag(ctx context.Context, source, target string) error {
	f.record("tag " + target)
	if f.TagFn != nil {
		return f.TagFn(ctx, source, target)
	}
	return nil
}

func (f *fakeEngine) Push(ctx context.Context, ref string, auth Auth) error {
	f.record("push " + ref)
	if f.PushFn != nil {
		return f.PushFn(ctx, ref, auth)
	}
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, ref string) error {
	f.record("remove " + ref)
	if f.RemoveFn != nil {
		return f.RemoveFn(ctx, ref)
	}
	return nil
}
