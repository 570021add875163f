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

// Package registry answers questions about images and repositories in Amazon
// ECR: whether a source image exists, whether a target repository is
// reachable, and which manifest digest an image tag points at.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/containerd/containerd/images"
	"github.com/containerd/log"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"golang.org/x/net/context/ctxhttp"

	"github.com/zendz/ci-copy/copier"
	"github.com/zendz/ci-copy/copier/internal/redact"
)

var errImageNotFound = errors.New("registry: image not found")

// acceptedMediaTypes are the manifest types whose digest is reported for a
// tag. Indexes are listed so that multi-architecture images keep the digest
// of the index.
var acceptedMediaTypes = []*string{
	aws.String(ocispec.MediaTypeImageManifest),
	aws.String(ocispec.MediaTypeImageIndex),
	aws.String(images.MediaTypeDockerSchema2Manifest),
	aws.String(images.MediaTypeDockerSchema2ManifestList),
}

// ecrAPI contains only the ECR APIs that are called by the client.
// See https://docs.aws.amazon.com/sdk-for-go/api/service/ecr/ecriface/ for the
// full interface from the SDK.
type ecrAPI interface {
	BatchGetImageWithContext(aws.Context, *ecr.BatchGetImageInput, ...request.Option) (*ecr.BatchGetImageOutput, error)
	DescribeRepositoriesWithContext(aws.Context, *ecr.DescribeRepositoriesInput, ...request.Option) (*ecr.DescribeRepositoriesOutput, error)
	CreateRepositoryWithContext(aws.Context, *ecr.CreateRepositoryInput, ...request.Option) (*ecr.CreateRepositoryOutput, error)
}

// Sessions hands out the AWS session of a resolved credential. It is
// implemented by auth.Resolver.
type Sessions interface {
	Provider(ctx context.Context, auth copier.AuthSpec, region string) (client.ConfigProvider, error)
}

// Client implements copier.Registry.
type Client struct {
	sessions   Sessions
	httpClient *http.Client
	// scheme of registry API requests; tests talk plain HTTP.
	scheme string

	clients     map[string]ecrAPI
	clientsLock sync.Mutex
}

var _ copier.Registry = (*Client)(nil)

// NewClient returns a Client that calls ECR with the sessions of sessions.
func NewClient(sessions Sessions, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		sessions:   sessions,
		httpClient: httpClient,
		scheme:     "https",
		clients:    map[string]ecrAPI{},
	}
}

func (c *Client) getClient(ctx context.Context, cred copier.Credential) (ecrAPI, error) {
	key := clientKey(cred)
	c.clientsLock.Lock()
	api, ok := c.clients[key]
	c.clientsLock.Unlock()
	if ok {
		return api, nil
	}

	provider, err := c.sessions.Provider(ctx, cred.Auth, cred.Region)
	if err != nil {
		return nil, err
	}
	c.clientsLock.Lock()
	defer c.clientsLock.Unlock()
	if _, ok := c.clients[key]; !ok {
		c.clients[key] = ecr.New(provider, aws.NewConfig().WithRegion(cred.Region))
	}
	return c.clients[key], nil
}

func clientKey(cred copier.Credential) string {
	if cred.Auth == nil {
		return "@" + cred.Region
	}
	return cred.Auth.Key() + "@" + cred.Region
}

// ImageDigest returns the manifest digest of image as stored in the registry
// of cred.
func (c *Client) ImageDigest(ctx context.Context, cred copier.Credential, image copier.ImageRef) (digest.Digest, error) {
	api, err := c.getClient(ctx, cred)
	if err != nil {
		return "", err
	}
	input := &ecr.BatchGetImageInput{
		RepositoryName:     aws.String(image.Repository),
		ImageIds:           []*ecr.ImageIdentifier{{ImageTag: aws.String(image.Tag)}},
		AcceptedMediaTypes: acceptedMediaTypes,
	}
	if account := cred.Endpoint().AccountID(); account != "" {
		input.RegistryId = aws.String(account)
	}
	log.G(ctx).WithField("image", image.String()).WithField("registry", cred.Endpoint().URL).Debug("registry.digest")

	output, err := api.BatchGetImageWithContext(ctx, input)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == ecr.ErrCodeRepositoryNotFoundException {
			return "", errImageNotFound
		}
		return "", errors.Wrapf(err, "get image %s from %s", image, cred.Endpoint())
	}
	if len(output.Images) == 0 {
		if len(output.Failures) > 0 &&
			aws.StringValue(output.Failures[0].FailureCode) == ecr.ImageFailureCodeImageNotFound {
			return "", errImageNotFound
		}
		log.G(ctx).
			WithField("failures", output.Failures).
			Warn("registry.digest: unexpected failure")
		return "", errors.Errorf("get image %s from %s: no image returned", image, cred.Endpoint())
	}
	imageID := output.Images[0].ImageId
	if imageID == nil {
		return "", errors.Errorf("get image %s from %s: no image id returned", image, cred.Endpoint())
	}
	return digest.Parse(aws.StringValue(imageID.ImageDigest))
}

// CheckSource confirms that image exists in the source registry.
func (c *Client) CheckSource(ctx context.Context, cred copier.Credential, image copier.ImageRef) error {
	_, err := c.ImageDigest(ctx, cred, image)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errImageNotFound):
		return copier.Errorf(copier.ValidationError, "source image %s not found in %s", image, cred.Endpoint()).
			WithReason(copier.SourceNotFound)
	}
	return classify(err, copier.NoReason)
}

// CheckTarget confirms that the target registry answers with cred's token and
// that repository exists there. A missing repository is created when create
// is set.
func (c *Client) CheckTarget(ctx context.Context, cred copier.Credential, repository string, create bool) error {
	if err := c.ping(ctx, cred); err != nil {
		return err
	}
	api, err := c.getClient(ctx, cred)
	if err != nil {
		return err
	}
	registryID := cred.Endpoint().AccountID()

	describe := &ecr.DescribeRepositoriesInput{RepositoryNames: []*string{aws.String(repository)}}
	if registryID != "" {
		describe.RegistryId = aws.String(registryID)
	}
	_, err = api.DescribeRepositoriesWithContext(ctx, describe)
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != ecr.ErrCodeRepositoryNotFoundException {
		return classify(errors.Wrapf(err, "describe repository %s in %s", repository, cred.Endpoint()), copier.TargetRepository)
	}
	if !create {
		return copier.Errorf(copier.ValidationError, "target repository %s does not exist in %s", repository, cred.Endpoint()).
			WithReason(copier.TargetRepository)
	}

	log.G(ctx).WithField("repository", repository).WithField("registry", cred.Endpoint().URL).Info("registry: creating repository")
	createInput := &ecr.CreateRepositoryInput{RepositoryName: aws.String(repository)}
	if registryID != "" {
		createInput.RegistryId = aws.String(registryID)
	}
	_, err = api.CreateRepositoryWithContext(ctx, createInput)
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == ecr.ErrCodeRepositoryAlreadyExistsException {
		return nil
	}
	if err != nil {
		return classify(errors.Wrapf(err, "create repository %s in %s", repository, cred.Endpoint()), copier.TargetRepository)
	}
	return nil
}

// ping sends an authenticated request to the registry API base.
func (c *Client) ping(ctx context.Context, cred copier.Credential) error {
	url := fmt.Sprintf("%s://%s/v2/", c.scheme, cred.Endpoint().URL)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return copier.NewError(copier.ValidationError, err).WithReason(copier.TargetRepository)
	}
	req.SetBasicAuth(cred.Token.Username, cred.Token.Password)

	resp, err := ctxhttp.Do(ctx, c.httpClient, req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return copier.NewError(copier.ValidationError,
			fmt.Errorf("target registry unreachable: %w", redact.URLError(err))).
			WithReason(copier.TargetRepository)
	}
	if resp.StatusCode != http.StatusOK {
		return copier.Errorf(copier.ValidationError, "target registry %s answered %s", cred.Endpoint(), resp.Status).
			WithReason(copier.TargetRepository)
	}
	return nil
}

// classify turns an AWS error into a ValidationError. Explicit denials carry
// Reason Permission and are not retried. Errors that already have a kind,
// such as an AuthError from opening the session, are returned unchanged.
func classify(err error, reason copier.Reason) error {
	var typed *copier.Error
	if errors.As(err, &typed) {
		return err
	}
	e := copier.NewError(copier.ValidationError, err).WithReason(reason)
	var aerr awserr.Error
	if errors.As(err, &aerr) && isAccessDenied(aerr.Code()) {
		return e.WithReason(copier.Permission).WithRetryable(false)
	}
	return e
}

func isAccessDenied(code string) bool {
	return code == "AccessDeniedException" || code == "AccessDenied"
}
