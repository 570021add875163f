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
	"github.com/opencontainers/go-digest"
)

// Verify compares the manifest digests of a copied image. A missing or
// malformed digest fails with Reason Missing, unequal digests with Mismatch.
func Verify(source, target digest.Digest) error {
	if err := checkDigest("source", source); err != nil {
		return err
	}
	if err := checkDigest("target", target); err != nil {
		return err
	}
	if source != target {
		return Errorf(VerificationError, "target digest %s does not match source digest %s", target, source).
			WithReason(Mismatch)
	}
	return nil
}

func checkDigest(side string, d digest.Digest) error {
	if d == "" {
		return Errorf(VerificationError, "%s digest is missing", side).WithReason(Missing)
	}
	if err := d.Validate(); err != nil {
		return Errorf(VerificationError, "%s digest %q: %w", side, d, err).WithReason(Missing)
	}
	return nil
}
