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

// Package transfer moves images between registries. DirectCopy streams an
// image from registry to registry with skopeo; PullTagPush goes through a
// local container engine. One of them is chosen per run with Select, based on
// what Prober.Detect finds on the host.
package transfer

import (
	"context"

	"github.com/containerd/log"
	"github.com/distribution/reference"
	"github.com/pkg/errors"

	"github.com/zendz/ci-copy/copier"
)

// qualify returns the fully qualified, tagged reference of image in the
// registry of cred.
func qualify(cred copier.Credential, image copier.ImageRef) (string, error) {
	named, err := reference.ParseNormalizedNamed(cred.Reference(image))
	if err != nil {
		return "", copier.NewError(copier.TransferError, errors.Wrapf(err, "reference for %s", image)).WithRetryable(false)
	}
	if _, ok := named.(reference.Tagged); !ok {
		return "", copier.Errorf(copier.TransferError, "reference %s has no tag", named).WithRetryable(false)
	}
	return named.String(), nil
}

// fetchDigests asks both registries for the manifest digest of image after a
// copy. A failed lookup leaves its digest empty so verification reports it
// as missing.
func fetchDigests(ctx context.Context, digests copier.DigestSource, image copier.ImageRef, source, target copier.Credential) copier.Digests {
	var result copier.Digests
	if digests == nil {
		return result
	}
	var err error
	if result.Source, err = digests.ImageDigest(ctx, source, image); err != nil {
		log.G(ctx).WithError(err).WithField("registry", source.Endpoint().URL).Warn("transfer: source digest lookup failed")
		result.Source = ""
	}
	if result.Target, err = digests.ImageDigest(ctx, target, image); err != nil {
		log.G(ctx).WithError(err).WithField("registry", target.Endpoint().URL).Warn("transfer: target digest lookup failed")
		result.Target = ""
	}
	return result
}

func transferError(err error, format string, args ...interface{}) error {
	return copier.NewError(copier.TransferError, errors.Wrapf(err, format, args...))
}
