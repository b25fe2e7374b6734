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
	"time"

	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/spf13/cobra"
)

func newTopicCmd(g *globalOptions) *cobra.Command {
	var (
		age      int
		language string
		blocked  string
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Suggest an age-appropriate alternative topic and opener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var extra []safety.Option
			if r := seeded(seed); r != nil {
				extra = append(extra, safety.WithRand(r))
			}
			engine, err := g.engine(extra...)
			if err != nil {
				return err
			}

			profile := safety.ChildSafetyProfile{Age: age, Language: safety.Language(language)}
			if err := profile.Validate(); err != nil {
				return err
			}
			norm := profile.Normalize()
			topic := engine.GetSafeAlternativeTopic(blocked, profile, norm.Language)
			result := TopicResult{
				Age:      norm.Age,
				Language: string(norm.Language),
				Topic:    topic,
				Response: engine.GetSafeResponse(topic, profile, norm.Language),
			}

			if g.jsonOut {
				return outputResult(cmd.OutOrStdout(), "topic", start, result)
			}
			p := g.printer(cmd)
			p.KeyValue("topic", result.Topic)
			p.KeyValue("response", result.Response)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&age, "age", 0, "child age in years (default 8)")
	f.StringVarP(&language, "language", "l", "", "ISO 639-1 language code (default es)")
	f.StringVar(&blocked, "blocked-topic", "", "topic being steered away from, for logging")
	f.Uint64Var(&seed, "seed", 0, "random seed for reproducible selection")
	return cmd
}
