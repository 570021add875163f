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

package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zendz/ci-copy/copier"
	"github.com/zendz/ci-copy/copier/internal/testdata"
)

type fakeSessions struct {
	err error
}

func (f *fakeSessions) Provider(context.Context, copier.AuthSpec, string) (client.ConfigProvider, error) {
	return nil, f.err
}

var testImage = copier.ImageRef{Repository: "team/svc", Tag: "v1"}

func testCredential(registry string) copier.Credential {
	return copier.Credential{
		Auth:   copier.Profile{Name: "test"},
		Region: testdata.Region,
		Token: copier.CachedToken{
			Endpoint: copier.RegistryEndpoint{URL: registry, Region: testdata.Region},
			Username: "AWS",
			Password: "password",
		},
	}
}

func testClient(fake *fakeECRClient, cred copier.Credential) *Client {
	c := NewClient(&fakeSessions{}, nil)
	c.clients[clientKey(cred)] = fake
	return c
}

func TestImageDigest(t *testing.T) {
	cred := testCredential(testdata.SourceRegistry)
	fake := &fakeECRClient{
		BatchGetImageFn: func(_ aws.Context, input *ecr.BatchGetImageInput, _ ...request.Option) (*ecr.BatchGetImageOutput, error) {
			assert.Equal(t, testdata.AccountID, aws.StringValue(input.RegistryId))
			assert.Equal(t, "team/svc", aws.StringValue(input.RepositoryName))
			require.Len(t, input.ImageIds, 1)
			assert.Equal(t, "v1", aws.StringValue(input.ImageIds[0].ImageTag))
			assert.Len(t, input.AcceptedMediaTypes, 4)
			return &ecr.BatchGetImageOutput{
				Images: []*ecr.Image{{
					ImageId: &ecr.ImageIdentifier{
						ImageDigest: aws.String(testdata.ImageDigest.String()),
						ImageTag:    aws.String("v1"),
					},
				}},
			}, nil
		},
	}

	d, err := testClient(fake, cred).ImageDigest(context.Background(), cred, testImage)
	require.NoError(t, err)
	assert.Equal(t, testdata.ImageDigest, d)
}

func TestCheckSource(t *testing.T) {
	cred := testCredential(testdata.SourceRegistry)
	testCases := []struct {
		Name      string
		Output    *ecr.BatchGetImageOutput
		Err       error
		Kind      copier.ErrorKind
		Reason    copier.Reason
		Retryable bool
	}{
		{
			Name: "Exists",
			Output: &ecr.BatchGetImageOutput{Images: []*ecr.Image{{
				ImageId: &ecr.ImageIdentifier{ImageDigest: aws.String(testdata.ImageDigest.String())},
			}}},
		},
		{
			Name: "ImageNotFound",
			Output: &ecr.BatchGetImageOutput{Failures: []*ecr.ImageFailure{{
				FailureCode: aws.String(ecr.ImageFailureCodeImageNotFound),
			}}},
			Kind:      copier.ValidationError,
			Reason:    copier.SourceNotFound,
			Retryable: true,
		},
		{
			Name:      "RepositoryNotFound",
			Err:       awserr.New(ecr.ErrCodeRepositoryNotFoundException, "no repository", nil),
			Kind:      copier.ValidationError,
			Reason:    copier.SourceNotFound,
			Retryable: true,
		},
		{
			Name:   "AccessDenied",
			Err:    awserr.New("AccessDeniedException", "not authorized", nil),
			Kind:   copier.ValidationError,
			Reason: copier.Permission,
		},
		{
			Name:      "UnexpectedFailure",
			Output:    &ecr.BatchGetImageOutput{Failures: []*ecr.ImageFailure{{FailureCode: aws.String(ecr.ImageFailureCodeInvalidImageTag)}}},
			Kind:      copier.ValidationError,
			Retryable: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			fake := &fakeECRClient{
				BatchGetImageFn: func(aws.Context, *ecr.BatchGetImageInput, ...request.Option) (*ecr.BatchGetImageOutput, error) {
					return testCase.Output, testCase.Err
				},
			}
			err := testClient(fake, cred).CheckSource(context.Background(), cred, testImage)
			if testCase.Kind == copier.UnknownError {
				assert.NoError(t, err)
				return
			}
			var e *copier.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, testCase.Kind, e.Kind)
			assert.Equal(t, testCase.Reason, e.Reason)
			assert.Equal(t, testCase.Retryable, e.Retryable)
		})
	}
}

func TestCheckSourceSessionError(t *testing.T) {
	cred := testCredential(testdata.SourceRegistry)
	c := NewClient(&fakeSessions{err: copier.Errorf(copier.AuthError, "no session")}, nil)
	err := c.CheckSource(context.Background(), cred, testImage)
	assert.Equal(t, copier.AuthError, copier.KindOf(err))
	assert.False(t, copier.IsRetryable(err))
	assert.Equal(t, copier.ExitAuth, copier.ExitCodeOf(err))
}

func TestCheckTargetSessionError(t *testing.T) {
	_, cred := newRegistryServer(t)
	c := NewClient(&fakeSessions{err: copier.Errorf(copier.AuthError, "invalid role ARN")}, nil)
	c.scheme = "http"
	err := c.CheckTarget(context.Background(), cred, testImage.Repository, true)
	assert.Equal(t, copier.AuthError, copier.KindOf(err))
	assert.False(t, copier.IsRetryable(err))
}

// newRegistryServer answers /v2/ when the request carries the fixture
// credential.
func newRegistryServer(t *testing.T) (*httptest.Server, copier.Credential) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if r.URL.Path != "/v2/" || !ok || username != "AWS" || password != "password" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	return server, testCredential(u.Host)
}

func TestCheckTargetExisting(t *testing.T) {
	_, cred := newRegistryServer(t)
	fake := &fakeECRClient{
		DescribeRepositoriesFn: func(_ aws.Context, input *ecr.DescribeRepositoriesInput, _ ...request.Option) (*ecr.DescribeRepositoriesOutput, error) {
			assert.Nil(t, input.RegistryId)
			assert.Equal(t, []*string{aws.String("team/svc")}, input.RepositoryNames)
			return &ecr.DescribeRepositoriesOutput{Repositories: []*ecr.Repository{{RepositoryName: aws.String("team/svc")}}}, nil
		},
	}
	c := testClient(fake, cred)
	c.scheme = "http"

	assert.NoError(t, c.CheckTarget(context.Background(), cred, "team/svc", false))
}

func TestCheckTargetCreate(t *testing.T) {
	_, cred := newRegistryServer(t)
	notFound := awserr.New(ecr.ErrCodeRepositoryNotFoundException, "no repository", nil)
	testCases := []struct {
		Name      string
		Create    bool
		CreateErr error
		Created   bool
		Reason    copier.Reason
	}{
		{Name: "Missing", Reason: copier.TargetRepository},
		{Name: "Created", Create: true, Created: true},
		{
			Name:      "CreatedConcurrently",
			Create:    true,
			CreateErr: awserr.New(ecr.ErrCodeRepositoryAlreadyExistsException, "exists", nil),
			Created:   true,
		},
		{
			Name:      "CreateDenied",
			Create:    true,
			CreateErr: awserr.New("AccessDeniedException", "not authorized", nil),
			Created:   true,
			Reason:    copier.Permission,
		},
		{
			Name:      "CreateFailed",
			Create:    true,
			CreateErr: errors.New("limit exceeded"),
			Created:   true,
			Reason:    copier.TargetRepository,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			created := false
			fake := &fakeECRClient{
				DescribeRepositoriesFn: func(aws.Context, *ecr.DescribeRepositoriesInput, ...request.Option) (*ecr.DescribeRepositoriesOutput, error) {
					return nil, notFound
				},
				CreateRepositoryFn: func(_ aws.Context, input *ecr.CreateRepositoryInput, _ ...request.Option) (*ecr.CreateRepositoryOutput, error) {
					created = true
					assert.Equal(t, "team/svc", aws.StringValue(input.RepositoryName))
					return &ecr.CreateRepositoryOutput{}, testCase.CreateErr
				},
			}
			c := testClient(fake, cred)
			c.scheme = "http"

			err := c.CheckTarget(context.Background(), cred, "team/svc", testCase.Create)
			assert.Equal(t, testCase.Created, created)
			if testCase.Reason == copier.NoReason {
				assert.NoError(t, err)
				return
			}
			var e *copier.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, copier.ValidationError, e.Kind)
			assert.Equal(t, testCase.Reason, e.Reason)
		})
	}
}

func TestCheckTargetUnreachable(t *testing.T) {
	_, cred := newRegistryServer(t)
	c := testClient(&fakeECRClient{}, cred)
	c.scheme = "http"

	rejected := cred
	rejected.Token.Password = "wrong"
	err := c.CheckTarget(context.Background(), rejected, "team/svc", false)
	assert.Equal(t, copier.TargetRepository, reasonOf(err))
	assert.Equal(t, copier.ExitTargetRepository, copier.ExitCodeOf(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	closed.Close()
	u, err := url.Parse(closed.URL)
	require.NoError(t, err)
	err = c.CheckTarget(context.Background(), testCredential(u.Host), "team/svc", false)
	assert.Equal(t, copier.TargetRepository, reasonOf(err))
	assert.True(t, copier.IsRetryable(err))
	assert.NotContains(t, err.Error(), "password")
}

func reasonOf(err error) copier.Reason {
	var e *copier.Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return copier.NoReason
}
