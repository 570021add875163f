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

package testdata

const (
	// AccountID is the account of the fixture endpoints.
	AccountID = "123456789012"
	// TargetAccountID is the account of the fixture target endpoint.
	TargetAccountID = "210987654321"
	// Region is the region of the fixture endpoints.
	Region = "us-west-2"
	// SourceRegistry is the ECR host of AccountID in Region.
	SourceRegistry = AccountID + ".dkr.ecr." + Region + ".amazonaws.com"
	// TargetRegistry is the ECR host of TargetAccountID in Region.
	TargetRegistry = TargetAccountID + ".dkr.ecr." + Region + ".amazonaws.com"
	// RoleARN is a syntactically valid role in TargetAccountID.
	RoleARN = "arn:aws:iam::" + TargetAccountID + ":role/ci-copy"
)
