// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/AleutianAI/EmoRobCare/pkg/logging"
	"github.com/AleutianAI/EmoRobCare/pkg/ux"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	policyFile string
	jsonOut    bool
	verbose    bool

	logger *logging.Logger
}

// newRootCmd builds a fresh command tree so tests never share flag state.
func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "safetyctl",
		Short:         "Operate the child content safety engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelWarn
			if opts.verbose {
				level = logging.LevelDebug
			}
			opts.logger = logging.New(logging.Config{
				Level:   level,
				Service: "safetyctl",
				Output:  cmd.ErrOrStderr(),
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				opts.logger.Close()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.policyFile, "policy", "", "policy YAML to use instead of the embedded policy")
	pf.BoolVar(&opts.jsonOut, "json", false, "output as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and verify safety policy documents",
	}
	policyCmd.AddCommand(
		newPolicyVerifyCmd(opts),
		newPolicyDumpCmd(opts),
		newPolicyTestCmd(opts),
	)

	root.AddCommand(
		newCheckCmd(opts),
		newTopicCmd(opts),
		newStatusCmd(opts),
		policyCmd,
	)
	return root
}

// execute runs the CLI and maps the outcome to an exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return CLIExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) && ee.err == nil {
		return ee.code
	}
	jsonMode, _ := root.PersistentFlags().GetBool("json")
	outputError(stdout, stderr, jsonMode, err)
	if ee != nil {
		return ee.code
	}
	return CLIExitError
}

func (o *globalOptions) slog() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger.Slog()
}

// engine builds a local engine over --policy or the embedded policy.
func (o *globalOptions) engine(extra ...safety.Option) (*safety.Engine, error) {
	store, err := policy_engine.OpenStore(o.policyFile, o.slog())
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	opts := append([]safety.Option{safety.WithLogger(o.slog())}, extra...)
	return safety.New(store, opts...), nil
}

func (o *globalOptions) printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout())
}

// seeded returns a deterministic source, or nil for the engine's default.
func seeded(seed uint64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	return rand.New(rand.NewPCG(seed, seed))
}
