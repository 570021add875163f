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

// Command ci-copy copies container images between Amazon ECR registries and
// verifies every copy by digest.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zendz/ci-copy/copier"
)

const (
	// Default to no debug logging.
	defaultEnableDebug = 0
	debugEnv           = "CI_COPY_DEBUG"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries an exit code whose cause was already reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return copier.ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(stderr, "ci-copy:", err)
	return copier.ExitCodeOf(err)
}

type globalOptions struct {
	debug     bool
	logFormat string
}

func newRootCommand() *cobra.Command {
	var opts globalOptions
	cmd := &cobra.Command{
		Use:           "ci-copy",
		Short:         "Copy container images between Amazon ECR registries",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogging(opts, cmd.ErrOrStderr())
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return copier.NewError(copier.ConfigError, err)
	})
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging (also "+debugEnv+"=1, or 2 for trace)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", string(log.TextFormat), "log `format`: text or json")
	cmd.AddCommand(newCopyCommand(), newDoctorCommand())
	return cmd
}

func setupLogging(opts globalOptions, out io.Writer) error {
	enableDebug := defaultEnableDebug
	if err := parseEnvInt(debugEnv, &enableDebug); err != nil {
		return copier.NewError(copier.ConfigError, err)
	}
	if opts.debug {
		enableDebug = max(enableDebug, 1)
	}

	log.L.Logger.SetOutput(out)
	switch {
	case enableDebug >= 2:
		log.L.Logger.SetLevel(logrus.TraceLevel)
	case enableDebug == 1:
		log.L.Logger.SetLevel(logrus.DebugLevel)
	default:
		log.L.Logger.SetLevel(logrus.InfoLevel)
	}
	if err := log.SetFormat(log.OutputFormat(opts.logFormat)); err != nil {
		return copier.NewError(copier.ConfigError, err)
	}
	return nil
}

// parseEnvInt sets val from the integer in varname, when it is set.
func parseEnvInt(varname string, val *int) error {
	varval := os.Getenv(varname)
	if varval == "" {
		return nil
	}
	parsed, err := strconv.Atoi(varval)
	if err != nil {
		return errors.Wrapf(err, "parse %s", varname)
	}
	*val = parsed
	return nil
}
