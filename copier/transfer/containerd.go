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
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/images"
	"github.com/containerd/containerd/remotes"
	"github.com/containerd/containerd/remotes/docker"
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
)

const (
	// DefaultContainerdAddress is the socket of a default containerd install.
	DefaultContainerdAddress = "/run/containerd/containerd.sock"
	// DefaultContainerdNamespace keeps copied images apart from other users
	// of the daemon.
	DefaultContainerdNamespace = "ci-copy"

	containerdConnectTimeout = 5 * time.Second
)

// Containerd is an Engine backed by a containerd daemon.
type Containerd struct {
	Address   string
	Namespace string

	mu     sync.Mutex
	client *containerd.Client
}

var _ Engine = (*Containerd)(nil)

// NewContainerd returns an engine for the daemon at address. The connection
// is made on first use.
func NewContainerd(address, namespace string) *Containerd {
	if address == "" {
		address = DefaultContainerdAddress
	}
	if namespace == "" {
		namespace = DefaultContainerdNamespace
	}
	return &Containerd{Address: address, Namespace: namespace}
}

func (c *Containerd) Name() string { return "containerd" }

func (c *Containerd) getClient() (*containerd.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := containerd.New(c.Address,
		containerd.WithDefaultNamespace(c.Namespace),
		containerd.WithTimeout(containerdConnectTimeout),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to containerd at %s", c.Address)
	}
	c.client = client
	return client, nil
}

func (c *Containerd) Ping(ctx context.Context) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	serving, err := client.IsServing(ctx)
	if err != nil {
		return errors.Wrap(err, "containerd ping")
	}
	if !serving {
		return errors.New("containerd is not serving")
	}
	return nil
}

func (c *Containerd) Exists(ctx context.Context, ref string) (bool, error) {
	client, err := c.getClient()
	if err != nil {
		return false, err
	}
	_, err = client.ImageService().Get(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errdefs.IsNotFound(err):
		return false, nil
	}
	return false, errors.Wrapf(err, "look up %s", ref)
}

// Pull fetches every platform of ref into the content store.
func (c *Containerd) Pull(ctx context.Context, ref string, auth Auth) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	_, err = client.Fetch(ctx, ref, containerd.WithResolver(resolverFor(auth)))
	return err
}

func (c *Containerd) Tag(ctx context.Context, source, target string) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	store := client.ImageService()
	img, err := store.Get(ctx, source)
	if err != nil {
		return err
	}
	img.Name = target
	if _, err := store.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return err
		}
		_, err = store.Update(ctx, img)
		return err
	}
	return nil
}

func (c *Containerd) Push(ctx context.Context, ref string, auth Auth) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	img, err := client.ImageService().Get(ctx, ref)
	if err != nil {
		return err
	}
	return client.Push(ctx, ref, img.Target, containerd.WithResolver(resolverFor(auth)))
}

func (c *Containerd) Remove(ctx context.Context, ref string) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	return client.ImageService().Delete(ctx, ref, images.SynchronousDelete())
}

// Close closes the connection to the daemon, if one was made.
func (c *Containerd) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// resolverFor authenticates to auth's registry with its basic credentials.
func resolverFor(auth Auth) remotes.Resolver {
	authorizer := docker.NewDockerAuthorizer(docker.WithAuthCreds(func(host string) (string, string, error) {
		if host != auth.ServerAddress {
			return "", "", nil
		}
		return auth.Username, auth.Password, nil
	}))
	return docker.NewResolver(docker.ResolverOptions{
		Hosts: docker.ConfigureDefaultRegistries(docker.WithAuthorizer(authorizer)),
	})
}
