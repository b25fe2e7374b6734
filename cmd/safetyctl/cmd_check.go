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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/ux"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/spf13/cobra"
)

type checkOptions struct {
	childID     string
	age         int
	sensitivity string
	language    string
	blocked     []string
	sensitive   []string
}

// CheckOutput is the --json payload of the check command.
type CheckOutput struct {
	Result *safety.CheckResult `json:"result"`
	Reply  safety.Reply        `json:"reply"`
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	o := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check [text]",
		Short: "Check a message against a child's safety profile",
		Long: `Check a message against a child's safety profile.

The text is read from the arguments, or from stdin when none are given.
Exits 0 when the content is safe and 1 when it is not.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, g, o, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.childID, "child-id", "", "child identifier recorded with the check")
	f.IntVar(&o.age, "age", 0, "child age in years (default 8)")
	f.StringVar(&o.sensitivity, "sensitivity", "", "low, medium or high (default medium)")
	f.StringVarP(&o.language, "language", "l", "", "ISO 639-1 language code (default es)")
	f.StringSliceVar(&o.blocked, "blocked", nil, "topics to block, comma separated")
	f.StringSliceVar(&o.sensitive, "sensitive", nil, "topics to treat as sensitive, comma separated")
	return cmd
}

func (o *checkOptions) profile() (safety.ChildSafetyProfile, error) {
	p := safety.ChildSafetyProfile{
		ChildID:         o.childID,
		Age:             o.age,
		Language:        safety.Language(o.language),
		BlockedTopics:   o.blocked,
		SensitiveTopics: o.sensitive,
	}
	if err := p.Sensitivity.UnmarshalText([]byte(o.sensitivity)); err != nil {
		return p, err
	}
	return p, nil
}

func readContent(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func runCheck(cmd *cobra.Command, g *globalOptions, o *checkOptions, args []string) error {
	start := time.Now()
	content, err := readContent(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	profile, err := o.profile()
	if err != nil {
		return err
	}
	engine, err := g.engine()
	if err != nil {
		return err
	}

	result, reply, err := engine.CheckAndResolve(cmd.Context(), safety.CheckRequest{
		Content:  &content,
		Profile:  profile,
		Language: profile.Language,
	})
	if err != nil {
		return err
	}

	if g.jsonOut {
		if err := outputResult(cmd.OutOrStdout(), "check", start, CheckOutput{Result: result, Reply: reply}); err != nil {
			return err
		}
	} else {
		printCheck(g.printer(cmd), result, reply)
	}

	if !result.IsSafe {
		return findings()
	}
	return nil
}

func printCheck(p *ux.Printer, result *safety.CheckResult, reply safety.Reply) {
	p.Title("Safety Check")
	if result.IsSafe {
		p.Status(ux.IconSuccess, "Content is safe")
	} else {
		p.Status(ux.IconError, "Content is not safe")
	}
	p.KeyValue("check_id", result.CheckID)
	p.KeyValue("language", result.Language)
	p.KeyValue("confidence", fmt.Sprintf("%.2f", result.Confidence))
	p.KeyValue("policy_version", result.PolicyVersion)
	if result.Error != "" {
		p.Status(ux.IconWarning, "Internal error: "+result.Error)
	}

	if len(result.Violations) > 0 {
		p.Title("Violations")
		for _, v := range result.Violations {
			p.Bullet(fmt.Sprintf("%s [%s] %s", v.Type, v.Severity, v.Description), v.Rule)
		}
	}

	if result.ProcessedContent != "" {
		p.Box("Processed content", result.ProcessedContent)
	}
	if reply.Source != safety.ReplyOriginal {
		lines := []string{reply.Content}
		if reply.AlternativeTopic != "" {
			lines = append(lines, "topic: "+reply.AlternativeTopic)
		}
		p.Box("Suggested reply ("+string(reply.Source)+")", lines...)
	}
}
