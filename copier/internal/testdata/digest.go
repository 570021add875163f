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

// Package testdata holds fixtures shared by the copier tests.
package testdata

import "github.com/opencontainers/go-digest"

var (
	// ImageDigest is a well formed manifest digest for an image in tests.
	ImageDigest = digest.FromString("ci-copy image manifest")
	// OtherImageDigest is a second, different manifest digest.
	OtherImageDigest = digest.FromString("ci-copy other image manifest")
)

const (
	// InsignificantDigest is an arbitrary value for placeholder use cases. It
	// does not validate.
	InsignificantDigest digest.Digest = "insignificant-digest"
)
