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

// Package copier copies batches of container images between two Amazon ECR
// registries.
//
// Jobs
//
// Every image in a batch is tracked by a CopyJob. A job moves through
// Pending, Authenticating, Validating, Transferring and Verifying before it
// reaches one of the terminal states Succeeded, Failed or Cancelled. A failed
// attempt that may succeed later puts the job back into Pending and the whole
// sequence starts over; nothing from an earlier attempt is reused.
//
// Collaborators
//
// The Scheduler does not talk to AWS or to a container engine itself. It is
// given a CredentialResolver (see package auth), a Registry (see package
// registry) and a TransferBackend (see package transfer), all chosen once per
// run.
//
// Results
//
// Scheduler.Run always returns one CopyOutcome per input image, in input
// order. BatchResult.ExitCode maps a batch to the process exit code taxonomy
// shared with ExitCodeOf.
package copier
