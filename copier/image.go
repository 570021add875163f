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
	"regexp"
	"strings"
	"unicode"

	"github.com/distribution/reference"
)

const (
	tagDelimiter        = ":"
	repositoryDelimiter = "/"
)

var (
	anchoredRepository = regexp.MustCompile(`^` + reference.NameRegexp.String() + `$`)
	anchoredTag        = regexp.MustCompile(`^` + reference.TagRegexp.String() + `$`)
)

// ImageRef names one image inside a registry by repository and tag.
type ImageRef struct {
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
}

// ParseImageRef parses "repository:tag". The tag delimiter is the last colon
// after the last slash, so "team/svc:v1" has repository "team/svc".
func ParseImageRef(s string) (ImageRef, error) {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return ImageRef{}, Errorf(ConfigError, "image reference %q contains whitespace", s)
	}
	i := strings.LastIndex(s, tagDelimiter)
	if i < 0 || i < strings.LastIndex(s, repositoryDelimiter) {
		return ImageRef{}, Errorf(ConfigError, "image reference %q must be of the form repository:tag", s)
	}
	ref := ImageRef{Repository: s[:i], Tag: s[i+1:]}
	if err := ref.Validate(); err != nil {
		return ImageRef{}, err
	}
	return ref, nil
}

// Validate checks a structured ImageRef, for example one read from a config
// file rather than parsed from a string.
func (r ImageRef) Validate() error {
	switch {
	case r.Repository == "":
		return Errorf(ConfigError, "image reference %q has an empty repository", r.String())
	case r.Tag == "":
		return Errorf(ConfigError, "image reference %q has an empty tag", r.String())
	case strings.IndexFunc(r.Repository+r.Tag, unicode.IsSpace) >= 0:
		return Errorf(ConfigError, "image reference %q contains whitespace", r.String())
	case !anchoredRepository.MatchString(r.Repository):
		return Errorf(ConfigError, "invalid repository name %q", r.Repository)
	case !anchoredTag.MatchString(r.Tag):
		return Errorf(ConfigError, "invalid tag %q", r.Tag)
	}
	return nil
}

func (r ImageRef) String() string {
	return r.Repository + tagDelimiter + r.Tag
}

// ParseImageRefs parses every reference, failing on the first bad one.
func ParseImageRefs(refs []string) ([]ImageRef, error) {
	images := make([]ImageRef, 0, len(refs))
	for _, s := range refs {
		ref, err := ParseImageRef(s)
		if err != nil {
			return nil, err
		}
		images = append(images, ref)
	}
	return images, nil
}
