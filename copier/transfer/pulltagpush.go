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
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/zendz/ci-copy/copier"
)

const (
	// PullTagPushName is the Name of the PullTagPush backend.
	PullTagPushName = "pull-tag-push"

	// cleanupTimeout bounds the removal of local images, which also runs
	// after the copy was cancelled.
	cleanupTimeout = 30 * time.Second
)

// Auth is a registry login handed to an Engine.
type Auth struct {
	Username      string
	Password      string
	ServerAddress string
}

func authFor(cred copier.Credential) Auth {
	return Auth{
		Username:      cred.Token.Username,
		Password:      cred.Token.Password,
		ServerAddress: cred.Endpoint().URL,
	}
}

// Engine is a local container engine that can store images.
type Engine interface {
	Name() string
	// Ping fails when the engine is not reachable.
	Ping(ctx context.Context) error
	// Exists reports whether ref is stored locally.
	Exists(ctx context.Context, ref string) (bool, error)
	Pull(ctx context.Context, ref string, auth Auth) error
	Tag(ctx context.Context, source, target string) error
	Push(ctx context.Context, ref string, auth Auth) error
	// Remove deletes a local reference. A missing reference is a not found
	// error in the sense of errdefs.IsNotFound.
	Remove(ctx context.Context, ref string) error
}

// PullTagPush copies an image by pulling it into a local engine, tagging it
// for the target registry and pushing it there. Local references the copy
// created are removed afterwards, whether it succeeded or not. References
// that were already stored before the copy are left in place.
type PullTagPush struct {
	Engine  Engine
	Digests copier.DigestSource

	// locks serializes jobs sharing a source or target reference, so that
	// one job never removes a local reference another one still uses.
	locks *keyedLock
}

var _ copier.TransferBackend = (*PullTagPush)(nil)

// NewPullTagPush returns a PullTagPush using engine.
func NewPullTagPush(engine Engine, digests copier.DigestSource) *PullTagPush {
	return &PullTagPush{Engine: engine, Digests: digests, locks: newKeyedLock()}
}

func (p *PullTagPush) Name() string { return PullTagPushName + " (" + p.Engine.Name() + ")" }

func (p *PullTagPush) Copy(ctx context.Context, image copier.ImageRef, source, target copier.Credential) (copier.Digests, error) {
	sourceRef, err := qualify(source, image)
	if err != nil {
		return copier.Digests{}, err
	}
	targetRef, err := qualify(target, image)
	if err != nil {
		return copier.Digests{}, err
	}

	unlock, err := p.locks.lock(ctx, sourceRef, targetRef)
	if err != nil {
		return copier.Digests{}, transferError(err, "wait for local references of %s", targetRef)
	}
	defer unlock()
	created := p.absent(ctx, sourceRef, targetRef)
	defer p.cleanup(ctx, created...)

	log.G(ctx).WithField("source", sourceRef).WithField("engine", p.Engine.Name()).Debug("transfer.pulltagpush: pull")
	if err := p.Engine.Pull(ctx, sourceRef, authFor(source)); err != nil {
		return copier.Digests{}, transferError(err, "pull %s", sourceRef)
	}
	if err := p.Engine.Tag(ctx, sourceRef, targetRef); err != nil {
		return copier.Digests{}, transferError(err, "tag %s as %s", sourceRef, targetRef)
	}
	log.G(ctx).WithField("target", targetRef).WithField("engine", p.Engine.Name()).Debug("transfer.pulltagpush: push")
	if err := p.Engine.Push(ctx, targetRef, authFor(target)); err != nil {
		return copier.Digests{}, transferError(err, "push %s", targetRef)
	}
	return fetchDigests(ctx, p.Digests, image, source, target), nil
}

// absent returns the refs the engine does not store yet. A ref whose
// presence cannot be determined counts as present, so it is never removed.
func (p *PullTagPush) absent(ctx context.Context, refs ...string) []string {
	var missing []string
	for _, ref := range refs {
		exists, err := p.Engine.Exists(ctx, ref)
		if err != nil {
			log.G(ctx).WithError(err).WithField("ref", ref).Warn("transfer.pulltagpush: cannot tell whether image is stored locally, keeping it")
			continue
		}
		if !exists {
			missing = append(missing, ref)
		}
	}
	return missing
}

// cleanup removes local references after a copy. It runs on its own context
// so that it also happens after cancellation. Failures are logged.
func (p *PullTagPush) cleanup(ctx context.Context, refs ...string) {
	if len(refs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, ref := range refs {
		if err := p.Engine.Remove(ctx, ref); err != nil && !errdefs.IsNotFound(err) {
			log.G(ctx).WithError(err).WithField("ref", ref).Warn("transfer.pulltagpush: cleanup failed")
		}
	}
}
