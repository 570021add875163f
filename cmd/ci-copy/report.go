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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/fatih/color"

	"github.com/zendz/ci-copy/copier"
)

const (
	outputText = "text"
	outputJSON = "json"
)

func checkOutput(format string) error {
	switch format {
	case outputText, outputJSON:
		return nil
	}
	return copier.Errorf(copier.ConfigError, "unknown output format %q", format)
}

// jsonReport is the document written by --output json.
type jsonReport struct {
	*copier.BatchResult
	ExitCode int `json:"exitCode"`
}

func writeReport(w io.Writer, format string, result *copier.BatchResult) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jsonReport{BatchResult: result, ExitCode: result.ExitCode()})
	}
	return writeText(w, result)
}

var stateColors = map[copier.State]*color.Color{
	copier.Succeeded: color.New(color.FgGreen),
	copier.Failed:    color.New(color.FgRed, color.Bold),
	copier.Cancelled: color.New(color.FgYellow),
}

func writeText(w io.Writer, result *copier.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IMAGE\tSTATE\tATTEMPTS\tDURATION\tDIGEST\tERROR")
	for _, out := range result.Outcomes {
		state := out.State.String()
		if c, ok := stateColors[out.State]; ok {
			state = c.Sprint(state)
		}
		digest := "-"
		if out.TargetDigest != "" {
			digest = out.TargetDigest.String()
		}
		message := "-"
		if out.Error != nil {
			message = out.Error.Kind.String()
			if out.Error.Reason != copier.NoReason {
				message += "(" + out.Error.Reason.String() + ")"
			}
			message += ": " + out.Error.Message
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			out.Image, state, out.Attempts, units.HumanDuration(out.Duration), digest, message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d succeeded, %d failed, %d cancelled\n",
		result.Succeeded, result.Failed, result.Cancelled)
	return err
}
