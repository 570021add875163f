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
	"errors"
	"time"

	"github.com/opencontainers/go-digest"
)

// CopyOutcome is the terminal record of one image.
type CopyOutcome struct {
	Image        ImageRef      `json:"image"`
	State        State         `json:"state"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"duration"`
	SourceDigest digest.Digest `json:"sourceDigest,omitempty"`
	TargetDigest digest.Digest `json:"targetDigest,omitempty"`
	Error        *OutcomeError `json:"error,omitempty"`
}

// OutcomeError is the final error of a job that did not succeed.
type OutcomeError struct {
	Kind    ErrorKind `json:"kind"`
	Reason  Reason    `json:"reason,omitempty"`
	Message string    `json:"message"`
}

func newOutcomeError(err error) *OutcomeError {
	var e *Error
	if errors.As(err, &e) {
		return &OutcomeError{Kind: e.Kind, Reason: e.Reason, Message: e.Message()}
	}
	return &OutcomeError{Kind: UnknownError, Message: err.Error()}
}

// ExitCode is the exit code the outcome alone would produce.
func (o CopyOutcome) ExitCode() int {
	switch {
	case o.State == Succeeded:
		return ExitOK
	case o.Error == nil:
		return ExitGeneral
	}
	return exitCode(o.Error.Kind, o.Error.Reason)
}

// BatchResult holds one outcome per input image, in input order.
type BatchResult struct {
	Outcomes  []CopyOutcome `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Cancelled int           `json:"cancelled"`
}

func newBatchResult(jobs []*CopyJob) *BatchResult {
	result := &BatchResult{Outcomes: make([]CopyOutcome, 0, len(jobs))}
	for _, job := range jobs {
		out := job.outcome()
		switch out.State {
		case Succeeded:
			result.Succeeded++
		case Failed:
			result.Failed++
		case Cancelled:
			result.Cancelled++
		}
		result.Outcomes = append(result.Outcomes, out)
	}
	return result
}

// ExitCode maps the batch to a process exit code: the code of the first
// failed outcome in input order, ExitGeneral when jobs were only cancelled,
// and ExitOK otherwise.
func (r *BatchResult) ExitCode() int {
	for _, out := range r.Outcomes {
		if out.State == Failed {
			return out.ExitCode()
		}
	}
	if r.Cancelled > 0 {
		return ExitGeneral
	}
	return ExitOK
}
