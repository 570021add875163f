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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/log"
	"github.com/docker/docker/api/types/registry"
	"github.com/pkg/errors"

	"github.com/zendz/ci-copy/copier"
	"github.com/zendz/ci-copy/copier/internal/redact"
)

const (
	// DirectCopyName is the Name of the DirectCopy backend.
	DirectCopyName = "direct-copy"

	authFileName = "auth.json"
	// waitDelay is how long skopeo may keep running after cancellation
	// before it is killed.
	waitDelay = 5 * time.Second
	// outputTail is how much of skopeo's output is kept in errors.
	outputTail = 2048
)

// runFunc runs a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// DirectCopy copies images from registry to registry with skopeo, without
// storing them locally.
type DirectCopy struct {
	// Path of the skopeo binary.
	Path string
	// Digests reports the manifest digests after a copy.
	Digests copier.DigestSource
	// TempDir holds the per-copy auth files. Empty selects os.TempDir.
	TempDir string

	run runFunc
}

var _ copier.TransferBackend = (*DirectCopy)(nil)

// NewDirectCopy returns a DirectCopy running the skopeo binary at path.
func NewDirectCopy(path string, digests copier.DigestSource) *DirectCopy {
	return &DirectCopy{Path: path, Digests: digests, run: runCommand}
}

func (d *DirectCopy) Name() string { return DirectCopyName }

// Copy runs skopeo copy for every platform of image, keeping its digests.
// The registry tokens are handed to skopeo in an auth file that only lives
// for the duration of the copy.
func (d *DirectCopy) Copy(ctx context.Context, image copier.ImageRef, source, target copier.Credential) (copier.Digests, error) {
	sourceRef, err := qualify(source, image)
	if err != nil {
		return copier.Digests{}, err
	}
	targetRef, err := qualify(target, image)
	if err != nil {
		return copier.Digests{}, err
	}

	dir, err := os.MkdirTemp(d.TempDir, "ci-copy-auth-")
	if err != nil {
		return copier.Digests{}, transferError(err, "create auth directory")
	}
	defer os.RemoveAll(dir)
	authFile := filepath.Join(dir, authFileName)
	if err := writeAuthFile(authFile, source, target); err != nil {
		return copier.Digests{}, transferError(err, "write auth file")
	}

	args := []string{
		"copy",
		"--all",
		"--preserve-digests",
		"--retry-times", "0",
		"--authfile", authFile,
		"docker://" + sourceRef,
		"docker://" + targetRef,
	}
	log.G(ctx).WithField("source", sourceRef).WithField("target", targetRef).Debug("transfer.direct: copy")
	out, err := d.run(ctx, d.Path, args...)
	if err != nil {
		return copier.Digests{}, copier.Errorf(copier.TransferError, "skopeo copy %s: %v: %s",
			image, err, redact.String(tail(out), source.Token.Password, target.Token.Password))
	}
	return fetchDigests(ctx, d.Digests, image, source, target), nil
}

// authFile is the containers-auth.json format understood by skopeo.
type authFile struct {
	Auths map[string]registry.AuthConfig `json:"auths"`
}

func writeAuthFile(path string, creds ...copier.Credential) error {
	file := authFile{Auths: map[string]registry.AuthConfig{}}
	for _, cred := range creds {
		basic := cred.Token.Username + ":" + cred.Token.Password
		file.Auths[cred.Endpoint().URL] = registry.AuthConfig{
			Auth: base64.StdEncoding.EncodeToString([]byte(basic)),
		}
	}
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), err.Error())
	}
	return out.Bytes(), err
}

func tail(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > outputTail {
		s = "..." + s[len(s)-outputTail:]
	}
	return s
}
