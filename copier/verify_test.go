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
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"

	"github.com/zendz/ci-copy/copier/internal/testdata"
)

func TestVerify(t *testing.T) {
	testCases := []struct {
		Name   string
		Source digest.Digest
		Target digest.Digest
		Reason Reason
	}{
		{Name: "Equal", Source: testdata.ImageDigest, Target: testdata.ImageDigest},
		{Name: "Mismatch", Source: testdata.ImageDigest, Target: testdata.OtherImageDigest, Reason: Mismatch},
		{Name: "MissingTarget", Source: testdata.ImageDigest, Reason: Missing},
		{Name: "MissingSource", Target: testdata.ImageDigest, Reason: Missing},
		{Name: "MalformedTarget", Source: testdata.ImageDigest, Target: testdata.InsignificantDigest, Reason: Missing},
	}
	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			err := Verify(testCase.Source, testCase.Target)
			if testCase.Reason == NoReason {
				assert.NoError(t, err)
				return
			}
			var e *Error
			if assert.ErrorAs(t, err, &e) {
				assert.Equal(t, VerificationError, e.Kind)
				assert.Equal(t, testCase.Reason, e.Reason)
				assert.True(t, e.Retryable)
			}
		})
	}
}
