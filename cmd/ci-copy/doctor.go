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
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zendz/ci-copy/copier/transfer"
)

func newDoctorCommand() *cobra.Command {
	var (
		engine           engineOptions
		forcePullTagPush bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report the transfer tools available on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			engines, closeEngines := engine.engines(ctx)
			defer closeEngines()
			caps := transfer.NewProber(engines...).Detect(ctx)
			return writeCapabilities(cmd.OutOrStdout(), caps, forcePullTagPush)
		},
	}
	engine.register(cmd.Flags())
	cmd.Flags().BoolVar(&forcePullTagPush, "force-pull-tag-push", false, "report the backend chosen when pull/tag/push is forced")
	return cmd
}

// writeCapabilities prints what was found and the backend a copy would use.
// It fails like a copy would when no backend is usable.
func writeCapabilities(w io.Writer, caps transfer.Capabilities, forcePullTagPush bool) error {
	skopeo := "not usable"
	if caps.DirectCopyPath != "" {
		skopeo = fmt.Sprintf("%s (%s)", caps.DirectCopyPath, caps.DirectCopyVersion)
	}
	engine := "none reachable"
	if caps.Engine != nil {
		engine = caps.Engine.Name()
	}
	fmt.Fprintf(w, "skopeo:  %s\n", skopeo)
	fmt.Fprintf(w, "engine:  %s\n", engine)
	for _, note := range caps.Notes {
		fmt.Fprintf(w, "note:    %s\n", strings.TrimSpace(note))
	}

	// Digest lookups are not needed to name the backend.
	backend, err := transfer.Select(caps, forcePullTagPush, nil)
	if err != nil {
		fmt.Fprintln(w, "backend: none")
		return err
	}
	fmt.Fprintf(w, "backend: %s\n", backend.Name())
	return nil
}
