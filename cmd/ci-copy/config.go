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
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/zendz/ci-copy/copier"
)

// fileConfig is the layout of the --config file.
type fileConfig struct {
	Source  endpointConfig `yaml:"source"`
	Target  endpointConfig `yaml:"target"`
	Images  []imageEntry   `yaml:"images"`
	Options optionsConfig  `yaml:"options"`
}

// endpointConfig selects the credentials of one side. At most one of
// Profile, RoleARN and Environment may be set.
type endpointConfig struct {
	Profile     string        `yaml:"profile"`
	RoleARN     string        `yaml:"roleArn"`
	SessionName string        `yaml:"sessionName"`
	Duration    time.Duration `yaml:"duration"`
	Environment bool          `yaml:"environment"`
	Region      string        `yaml:"region"`
	Registry    string        `yaml:"registry"`
}

// optionsConfig uses pointers so that unset options keep their defaults.
type optionsConfig struct {
	Concurrency      *int           `yaml:"concurrency"`
	RetryLimit       *int           `yaml:"retryLimit"`
	RetryDelay       *time.Duration `yaml:"retryDelay"`
	PerJobTimeout    *time.Duration `yaml:"perJobTimeout"`
	Verify           *bool          `yaml:"verify"`
	FailFast         *bool          `yaml:"failFast"`
	ForcePullTagPush *bool          `yaml:"forcePullTagPush"`
	CreateRepository *bool          `yaml:"createRepository"`
}

// imageEntry is either a "repository:tag" string or a mapping with
// repository and tag keys.
type imageEntry struct {
	Ref string
}

func (e *imageEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&e.Ref)
	}
	var ref copier.ImageRef
	if err := node.Decode(&ref); err != nil {
		return err
	}
	if err := ref.Validate(); err != nil {
		return errors.Wrapf(err, "line %d", node.Line)
	}
	e.Ref = ref.String()
	return nil
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, copier.NewError(copier.ConfigError, errors.Wrap(err, "read config"))
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, copier.NewError(copier.ConfigError, errors.Wrapf(err, "parse config %s", path))
	}
	return &cfg, nil
}

// endpointFlags are the flags of one side of the copy.
type endpointFlags struct {
	side string
	endpointConfig
}

func (f *endpointFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.Profile, f.side+"-profile", "", "shared config `profile` of the "+f.side+" registry")
	flags.StringVar(&f.RoleARN, f.side+"-role-arn", "", "IAM `role` to assume for the "+f.side+" registry")
	flags.StringVar(&f.SessionName, f.side+"-role-session-name", "", "session name of the assumed "+f.side+" role")
	flags.DurationVar(&f.Duration, f.side+"-role-duration", 0, "duration of the assumed "+f.side+" role session")
	flags.BoolVar(&f.Environment, f.side+"-env", false, "read "+f.side+" credentials from AWS_* environment variables")
	flags.StringVar(&f.Region, f.side+"-region", "", "AWS `region` of the "+f.side+" registry")
	flags.StringVar(&f.Registry, f.side+"-registry", "", "explicit ECR `host` of the "+f.side+" registry")
}

// merge overlays the flags that were set on the command line onto base.
func (f *endpointFlags) merge(flags *pflag.FlagSet, base endpointConfig) endpointConfig {
	changed := func(name string) bool { return flags.Changed(f.side + "-" + name) }
	// A credential flag replaces whatever credential source the file chose.
	if changed("profile") || changed("role-arn") || changed("env") {
		base.Profile, base.RoleARN, base.Environment = f.Profile, f.RoleARN, f.Environment
	}
	if changed("role-session-name") {
		base.SessionName = f.SessionName
	}
	if changed("role-duration") {
		base.Duration = f.Duration
	}
	if changed("region") {
		base.Region = f.Region
	}
	if changed("registry") {
		base.Registry = f.Registry
	}
	return base
}

// spec turns the merged settings of one side into an EndpointSpec. The region
// falls back to the standard AWS variables.
func (e endpointConfig) spec(side string, getenv func(string) string) (copier.EndpointSpec, error) {
	set := 0
	for _, ok := range []bool{e.Profile != "", e.RoleARN != "", e.Environment} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return copier.EndpointSpec{}, copier.Errorf(copier.ConfigError,
			"%s: profile, role and environment credentials are mutually exclusive", side)
	}

	spec := copier.EndpointSpec{Region: e.Region, Registry: e.Registry}
	switch {
	case e.Profile != "":
		spec.Auth = copier.Profile{Name: e.Profile}
	case e.RoleARN != "":
		spec.Auth = copier.AssumeRole{ARN: e.RoleARN, SessionName: e.SessionName, Duration: e.Duration}
	case e.Environment:
		spec.Auth = copier.Environment{}
	default:
		return copier.EndpointSpec{}, copier.Errorf(copier.ConfigError,
			"%s: no credentials configured, use --%s-profile, --%s-role-arn or --%s-env", side, side, side, side)
	}
	if spec.Region == "" {
		spec.Region = getenv("AWS_REGION")
	}
	if spec.Region == "" {
		spec.Region = getenv("AWS_DEFAULT_REGION")
	}
	return spec, nil
}

// optionFlags are the run options settable on the command line.
type optionFlags struct {
	concurrency      int
	retryLimit       int
	retryDelay       time.Duration
	perJobTimeout    time.Duration
	noVerify         bool
	failFast         bool
	forcePullTagPush bool
	createRepository bool
}

func (o *optionFlags) register(flags *pflag.FlagSet) {
	defaults := copier.DefaultRunConfig()
	flags.IntVarP(&o.concurrency, "concurrency", "j", defaults.Concurrency, "number of images copied at the same time")
	flags.IntVar(&o.retryLimit, "retry-limit", defaults.RetryLimit, "retries of a failed image")
	flags.DurationVar(&o.retryDelay, "retry-delay", defaults.RetryDelay, "delay before a retry, multiplied by the attempt number")
	flags.DurationVar(&o.perJobTimeout, "timeout", defaults.PerJobTimeout, "timeout of each copy attempt (0 for none)")
	flags.BoolVar(&o.noVerify, "no-verify", !defaults.Verify, "do not compare source and target digests")
	flags.BoolVar(&o.failFast, "fail-fast", defaults.FailFast, "cancel the remaining images after the first failure")
	flags.BoolVar(&o.forcePullTagPush, "force-pull-tag-push", defaults.ForcePullTagPush, "copy through a local container engine even when skopeo is available")
	flags.BoolVar(&o.createRepository, "create-repository", defaults.CreateRepository, "create missing target repositories")
}

// merge applies file options, then the flags that were set, over the
// defaults.
func (o *optionFlags) merge(flags *pflag.FlagSet, file optionsConfig) copier.RunConfig {
	cfg := copier.DefaultRunConfig()
	setInt(&cfg.Concurrency, file.Concurrency)
	setInt(&cfg.RetryLimit, file.RetryLimit)
	setDuration(&cfg.RetryDelay, file.RetryDelay)
	setDuration(&cfg.PerJobTimeout, file.PerJobTimeout)
	setBool(&cfg.Verify, file.Verify)
	setBool(&cfg.FailFast, file.FailFast)
	setBool(&cfg.ForcePullTagPush, file.ForcePullTagPush)
	setBool(&cfg.CreateRepository, file.CreateRepository)

	if flags.Changed("concurrency") {
		cfg.Concurrency = o.concurrency
	}
	if flags.Changed("retry-limit") {
		cfg.RetryLimit = o.retryLimit
	}
	if flags.Changed("retry-delay") {
		cfg.RetryDelay = o.retryDelay
	}
	if flags.Changed("timeout") {
		cfg.PerJobTimeout = o.perJobTimeout
	}
	if flags.Changed("no-verify") {
		cfg.Verify = !o.noVerify
	}
	if flags.Changed("fail-fast") {
		cfg.FailFast = o.failFast
	}
	if flags.Changed("force-pull-tag-push") {
		cfg.ForcePullTagPush = o.forcePullTagPush
	}
	if flags.Changed("create-repository") {
		cfg.CreateRepository = o.createRepository
	}
	return cfg
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// runSpec is a fully resolved copy run.
type runSpec struct {
	Images []string
	Source copier.EndpointSpec
	Target copier.EndpointSpec
	Config copier.RunConfig
}

// resolve merges the config file, the flags and the positional images. Images
// given as arguments replace the images of the file.
func (c *copyOptions) resolve(flags *pflag.FlagSet, args []string, getenv func(string) string) (runSpec, error) {
	file := &fileConfig{}
	if c.configPath != "" {
		var err error
		if file, err = loadConfig(c.configPath); err != nil {
			return runSpec{}, err
		}
	}

	var spec runSpec
	var err error
	if spec.Source, err = c.source.merge(flags, file.Source).spec("source", getenv); err != nil {
		return runSpec{}, err
	}
	if spec.Target, err = c.target.merge(flags, file.Target).spec("target", getenv); err != nil {
		return runSpec{}, err
	}
	spec.Config = c.options.merge(flags, file.Options)
	if err := spec.Config.Validate(); err != nil {
		return runSpec{}, err
	}

	spec.Images = args
	if len(spec.Images) == 0 {
		for _, entry := range file.Images {
			spec.Images = append(spec.Images, entry.Ref)
		}
	}
	return spec, nil
}
