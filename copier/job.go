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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a CopyJob.
type State int

const (
	Pending State = iota
	Authenticating
	Validating
	Transferring
	Verifying
	Succeeded
	Failed
	// Cancelled jobs were stopped by fail-fast or by the caller before they
	// could finish.
	Cancelled
)

var stateNames = [...]string{
	Pending:        "Pending",
	Authenticating: "Authenticating",
	Validating:     "Validating",
	Transferring:   "Transferring",
	Verifying:      "Verifying",
	Succeeded:      "Succeeded",
	Failed:         "Failed",
	Cancelled:      "Cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Cancelled
}

// transitions lists the states reachable from each non-terminal state. Every
// running state may fall back to Pending for a retry.
var transitions = map[State][]State{
	Pending:        {Authenticating, Cancelled},
	Authenticating: {Validating, Pending, Failed, Cancelled},
	Validating:     {Transferring, Pending, Failed, Cancelled},
	Transferring:   {Verifying, Succeeded, Pending, Failed, Cancelled},
	Verifying:      {Succeeded, Pending, Failed, Cancelled},
}

// CopyJob tracks one image of a batch. It is owned by the Scheduler while a
// batch runs.
type CopyJob struct {
	ID     string
	Image  ImageRef
	Source EndpointSpec
	Target EndpointSpec
	// Attempt counts dispatches, starting at 1 for the first one.
	Attempt   int
	State     State
	LastError error

	started  time.Time
	finished time.Time
	digests  Digests
}

// NewJob returns a Pending job for image.
func NewJob(image ImageRef, source, target EndpointSpec) *CopyJob {
	return &CopyJob{
		ID:     uuid.NewString(),
		Image:  image,
		Source: source,
		Target: target,
	}
}

// NewJobs parses images and returns one job per image, in order. Malformed
// references and endpoint specs are ConfigErrors.
func NewJobs(images []string, source, target EndpointSpec) ([]*CopyJob, error) {
	if len(images) == 0 {
		return nil, Errorf(ConfigError, "no images to copy")
	}
	refs, err := ParseImageRefs(images)
	if err != nil {
		return nil, err
	}
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	jobs := make([]*CopyJob, 0, len(refs))
	for _, ref := range refs {
		jobs = append(jobs, NewJob(ref, source, target))
	}
	return jobs, nil
}

// Digests returns the digests recorded by the last verification.
func (j *CopyJob) Digests() Digests {
	return j.digests
}

func (j *CopyJob) transition(to State) error {
	for _, allowed := range transitions[j.State] {
		if allowed == to {
			j.State = to
			return nil
		}
	}
	return fmt.Errorf("job %s: illegal transition %s -> %s", j.ID, j.State, to)
}

// outcome records the terminal state of the job.
func (j *CopyJob) outcome() CopyOutcome {
	out := CopyOutcome{
		Image:        j.Image,
		State:        j.State,
		Attempts:     j.Attempt,
		SourceDigest: j.digests.Source,
		TargetDigest: j.digests.Target,
	}
	if !j.started.IsZero() {
		out.Duration = j.finished.Sub(j.started)
	}
	if j.State != Succeeded && j.LastError != nil {
		out.Error = newOutcomeError(j.LastError)
	}
	return out
}

func (j *CopyJob) resetDigests() {
	j.digests = Digests{}
}
