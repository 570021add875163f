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

// Package redact removes credentials from values before they are logged or
// returned in errors.
package redact

import (
	"errors"
	"net/url"
	"strings"
)

const (
	redacted      = "redacted"
	visibleSuffix = 4
)

// URLError returns err with the URL of the first *url.Error in its chain
// redacted. Wrapping messages are rewritten too, since they were formatted
// while the URL still carried its secrets. err itself is not modified.
func URLError(err error) error {
	var urlErr *url.Error
	if err == nil || !errors.As(err, &urlErr) {
		return err
	}
	clean := &url.Error{Op: urlErr.Op, URL: URL(urlErr.URL), Err: urlErr.Err}
	if err == error(urlErr) {
		return clean
	}
	return &redactedError{
		msg: strings.ReplaceAll(err.Error(), urlErr.Error(), clean.Error()),
		err: clean,
	}
}

// redactedError keeps a wrapped message while unwrapping to the redacted
// *url.Error.
type redactedError struct {
	msg string
	err *url.Error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// URL replaces query values and userinfo passwords in rawURL. Presigned S3
// layer URLs and registry URLs with basic auth both carry secrets there.
func URL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil {
		return rawURL
	}
	if query := u.Query(); len(query) > 0 {
		for k := range query {
			query.Set(k, redacted)
		}
		u.RawQuery = query.Encode()
	}
	return u.Redacted()
}

// Secret masks all but the last few characters of s.
func Secret(s string) string {
	if len(s) <= visibleSuffix*2 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", 8) + s[len(s)-visibleSuffix:]
}

// String removes every occurrence of each secret from s.
func String(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}
