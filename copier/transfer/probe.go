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
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/containerd/log"

	"github.com/zendz/ci-copy/copier"
)

const (
	// SkopeoBinary is looked up on PATH for DirectCopy.
	SkopeoBinary = "skopeo"
	// MinSkopeoVersion is the first skopeo with --preserve-digests.
	MinSkopeoVersion = "1.6.0"

	probeTimeout = 10 * time.Second
)

var (
	versionRe         = regexp.MustCompile(`\d+\.\d+(\.\d+)?`)
	skopeoConstraints = mustConstraint(">= " + MinSkopeoVersion)
)

func mustConstraint(c string) *semver.Constraints {
	constraints, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraints
}

// Capabilities are the transfer tools found on the host.
type Capabilities struct {
	// DirectCopyPath is the usable skopeo binary, empty when there is none.
	DirectCopyPath    string
	DirectCopyVersion *semver.Version
	// Engine is the first reachable engine, nil when there is none.
	Engine Engine
	// Notes explain why a tool was not usable.
	Notes []string
}

// Prober looks for transfer tools on the host.
type Prober struct {
	LookPath func(file string) (string, error)
	// Version returns the output of `<path> --version`.
	Version func(ctx context.Context, path string) (string, error)
	// Engines are pinged in order.
	Engines []Engine
}

// NewProber returns a Prober that searches PATH and tries engines in order.
func NewProber(engines ...Engine) *Prober {
	return &Prober{
		LookPath: exec.LookPath,
		Version: func(ctx context.Context, path string) (string, error) {
			out, err := runCommand(ctx, path, "--version")
			return string(out), err
		},
		Engines: engines,
	}
}

// Detect probes the host. It never fails; what is missing is reported in
// Notes.
func (p *Prober) Detect(ctx context.Context) Capabilities {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var caps Capabilities
	if path, version, err := p.directCopy(ctx); err != nil {
		caps.Notes = append(caps.Notes, err.Error())
	} else {
		caps.DirectCopyPath, caps.DirectCopyVersion = path, version
	}
	for _, engine := range p.Engines {
		if err := engine.Ping(ctx); err != nil {
			caps.Notes = append(caps.Notes, fmt.Sprintf("%s: %v", engine.Name(), err))
			continue
		}
		caps.Engine = engine
		break
	}
	log.G(ctx).
		WithField("skopeo", caps.DirectCopyPath).
		WithField("notes", caps.Notes).
		Debug("transfer.probe")
	return caps
}

func (p *Prober) directCopy(ctx context.Context) (string, *semver.Version, error) {
	path, err := p.LookPath(SkopeoBinary)
	if err != nil {
		return "", nil, fmt.Errorf("%s: not found: %w", SkopeoBinary, err)
	}
	out, err := p.Version(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("%s: version: %w", SkopeoBinary, err)
	}
	version, err := parseVersion(out)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", SkopeoBinary, err)
	}
	if !skopeoConstraints.Check(version) {
		return "", nil, fmt.Errorf("%s: version %s is older than %s", SkopeoBinary, version, MinSkopeoVersion)
	}
	return path, version, nil
}

// parseVersion finds the version in output like "skopeo version 1.13.3".
func parseVersion(out string) (*semver.Version, error) {
	match := versionRe.FindString(out)
	if match == "" {
		return nil, fmt.Errorf("no version in %q", strings.TrimSpace(out))
	}
	return semver.NewVersion(match)
}

// Select chooses the backend of a run: DirectCopy when skopeo is usable and
// pull/tag/push is not forced, otherwise PullTagPush on the reachable engine.
// With neither it fails with an EnvironmentError.
func Select(caps Capabilities, forcePullTagPush bool, digests copier.DigestSource) (copier.TransferBackend, error) {
	if caps.DirectCopyPath != "" && !forcePullTagPush {
		return NewDirectCopy(caps.DirectCopyPath, digests), nil
	}
	if caps.Engine != nil {
		return NewPullTagPush(caps.Engine, digests), nil
	}
	reason := "no direct-copy tool and no container engine found"
	if forcePullTagPush {
		reason = "pull/tag/push forced but no container engine is reachable"
	}
	if len(caps.Notes) > 0 {
		reason += " (" + strings.Join(caps.Notes, "; ") + ")"
	}
	return nil, copier.Errorf(copier.EnvironmentError, "%s", reason)
}
