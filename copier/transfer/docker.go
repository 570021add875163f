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
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/pkg/errors"
)

// dockerAPI contains only the Docker Engine APIs called by the Docker engine.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspect(ctx context.Context, ref string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ImageTag(ctx context.Context, source, target string) error
	ImagePush(ctx context.Context, ref string, options image.PushOptions) (io.ReadCloser, error)
	ImageRemove(ctx context.Context, ref string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

// Docker is an Engine backed by a Docker daemon.
type Docker struct {
	client dockerAPI
}

var _ Engine = (*Docker)(nil)

// NewDocker connects to the daemon configured by the DOCKER_* environment
// variables. No request is made until the engine is used.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "create docker client")
	}
	return &Docker{client: cli}, nil
}

func (d *Docker) Name() string { return "docker" }

func (d *Docker) Ping(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	return errors.Wrap(err, "docker ping")
}

func (d *Docker) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := d.client.ImageInspect(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case client.IsErrNotFound(err):
		return false, nil
	}
	return false, errors.Wrapf(err, "inspect %s", ref)
}

func (d *Docker) Pull(ctx context.Context, ref string, auth Auth) error {
	encoded, err := encodeAuth(auth)
	if err != nil {
		return err
	}
	stream, err := d.client.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: encoded})
	if err != nil {
		return err
	}
	return drain(stream)
}

func (d *Docker) Tag(ctx context.Context, source, target string) error {
	return d.client.ImageTag(ctx, source, target)
}

func (d *Docker) Push(ctx context.Context, ref string, auth Auth) error {
	encoded, err := encodeAuth(auth)
	if err != nil {
		return err
	}
	stream, err := d.client.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return err
	}
	return drain(stream)
}

func (d *Docker) Remove(ctx context.Context, ref string) error {
	_, err := d.client.ImageRemove(ctx, ref, image.RemoveOptions{PruneChildren: true})
	return err
}

func encodeAuth(auth Auth) (string, error) {
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	})
	return encoded, errors.Wrap(err, "encode registry auth")
}

// drain reads a pull or push progress stream to its end. The daemon reports
// failures inside the stream, not as a status code.
func drain(stream io.ReadCloser) error {
	defer stream.Close()
	return jsonmessage.DisplayJSONMessagesStream(stream, io.Discard, 0, false, nil)
}
