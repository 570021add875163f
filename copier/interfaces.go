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

	"github.com/opencontainers/go-digest"
)

// CredentialResolver turns an EndpointSpec into a registry token. Tokens are
// cached by the implementation until shortly before they expire.
type CredentialResolver interface {
	Resolve(ctx context.Context, spec EndpointSpec) (CachedToken, error)
}

// DigestSource looks up the manifest digest a registry reports for an image.
type DigestSource interface {
	ImageDigest(ctx context.Context, cred Credential, image ImageRef) (digest.Digest, error)
}

// Registry answers the existence checks made before a transfer.
type Registry interface {
	DigestSource
	// CheckSource fails with a ValidationError when image does not exist
	// behind cred.
	CheckSource(ctx context.Context, cred Credential, image ImageRef) error
	// CheckTarget fails with a ValidationError when the registry behind cred
	// is unreachable or repository does not exist and cannot be created.
	CheckTarget(ctx context.Context, cred Credential, repository string, create bool) error
}

// TransferBackend moves one image from the source to the target registry.
type TransferBackend interface {
	Name() string
	// Copy returns the digests reported by the registries after the copy.
	// Either digest may be empty when the registry could not be queried.
	Copy(ctx context.Context, image ImageRef, source, target Credential) (Digests, error)
}

// Digests are the manifest digests of the source and the copied image.
type Digests struct {
	Source digest.Digest
	Target digest.Digest
}
