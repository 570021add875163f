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
	"context"
	"os"

	"github.com/containerd/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zendz/ci-copy/copier"
	"github.com/zendz/ci-copy/copier/auth"
	"github.com/zendz/ci-copy/copier/registry"
	"github.com/zendz/ci-copy/copier/transfer"
)

type copyOptions struct {
	configPath string
	envFile    string
	output     string
	engine     engineOptions
	source     endpointFlags
	target     endpointFlags
	options    optionFlags
}

func newCopyOptions() *copyOptions {
	return &copyOptions{
		source: endpointFlags{side: "source"},
		target: endpointFlags{side: "target"},
	}
}

func (c *copyOptions) register(flags *pflag.FlagSet) {
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config `file`")
	flags.StringVar(&c.envFile, "env-file", "", "load environment variables from a dotenv `file` first")
	flags.StringVarP(&c.output, "output", "o", outputText, "report `format`: text or json")
	c.engine.register(flags)
	c.source.register(flags)
	c.target.register(flags)
	c.options.register(flags)
}

func newCopyCommand() *cobra.Command {
	opts := newCopyOptions()
	cmd := &cobra.Command{
		Use:   "copy [flags] [REPOSITORY:TAG...]",
		Short: "Copy images from the source registry to the target registry",
		Long: `Copy images from the source registry to the target registry.

Images given as arguments replace the images of the config file. Every image
is copied under the same repository and tag, then verified by comparing the
manifest digests of both registries.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, args)
		},
	}
	opts.register(cmd.Flags())
	return cmd
}

func (c *copyOptions) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := checkOutput(c.output); err != nil {
		return err
	}
	if c.envFile != "" {
		// Variables already set in the environment win.
		if err := godotenv.Load(c.envFile); err != nil {
			return copier.NewError(copier.ConfigError, errors.Wrapf(err, "load %s", c.envFile))
		}
	}

	spec, err := c.resolve(cmd.Flags(), args, os.Getenv)
	if err != nil {
		return err
	}
	jobs, err := copier.NewJobs(spec.Images, spec.Source, spec.Target)
	if err != nil {
		return err
	}

	resolver := auth.NewResolver()
	client := registry.NewClient(resolver, nil)

	engines, closeEngines := c.engine.engines(ctx)
	defer closeEngines()
	caps := transfer.NewProber(engines...).Detect(ctx)
	backend, err := transfer.Select(caps, spec.Config.ForcePullTagPush, client)
	if err != nil {
		return err
	}
	log.G(ctx).
		WithField("backend", backend.Name()).
		WithField("images", len(jobs)).
		WithField("concurrency", spec.Config.Concurrency).
		Info("Copying images")

	scheduler := &copier.Scheduler{
		Credentials:  resolver,
		Registry:     client,
		Backend:      backend,
		OnTransition: logTransition(ctx),
	}
	result, err := scheduler.Run(ctx, jobs, spec.Config)
	if err != nil {
		return err
	}
	if err := writeReport(cmd.OutOrStdout(), c.output, result); err != nil {
		return err
	}
	if code := result.ExitCode(); code != copier.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func logTransition(ctx context.Context) func(job *copier.CopyJob, from, to copier.State) {
	return func(job *copier.CopyJob, from, to copier.State) {
		entry := log.G(ctx).
			WithField("image", job.Image.String()).
			WithField("attempt", job.Attempt).
			WithField("from", from).
			WithField("to", to)
		switch to {
		case copier.Succeeded:
			entry.Info("Copied")
		case copier.Failed:
			entry.WithError(job.LastError).Error("Copy failed")
		case copier.Pending:
			if job.LastError != nil {
				entry.WithError(job.LastError).Warn("Retrying")
			}
		default:
			entry.Debug("copy: transition")
		}
	}
}

// engineOptions locate the local container engines used by pull/tag/push.
type engineOptions struct {
	containerdAddress   string
	containerdNamespace string
}

func (o *engineOptions) register(flags *pflag.FlagSet) {
	flags.StringVar(&o.containerdAddress, "containerd-address", transfer.DefaultContainerdAddress, "containerd socket `address`")
	flags.StringVar(&o.containerdNamespace, "containerd-namespace", transfer.DefaultContainerdNamespace, "containerd `namespace` for pulled images")
}

// engines returns the Docker and containerd engines in probe order. The
// returned function releases them.
func (o *engineOptions) engines(ctx context.Context) ([]transfer.Engine, func()) {
	var engines []transfer.Engine
	if docker, err := transfer.NewDocker(); err != nil {
		log.G(ctx).WithError(err).Debug("copy: docker engine unavailable")
	} else {
		engines = append(engines, docker)
	}
	containerd := transfer.NewContainerd(o.containerdAddress, o.containerdNamespace)
	engines = append(engines, containerd)
	return engines, func() {
		if err := containerd.Close(); err != nil {
			log.G(ctx).WithError(err).Debug("copy: close containerd client")
		}
	}
}
