/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"testing"

	"github.com/towline-dev/towline/pkg/store"
)

func TestParse(t *testing.T) {
	raw := `
bot_name: towline
server:
  enable_welcome_comments: true
default_merge_strategy: squash
default_needed_reviewers_count: 2
default_enable_checks: true
lock:
  redis_address: localhost:6379
`
	c, err := parse([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.BotName != "towline" {
		t.Errorf("wrong bot name: %q", c.BotName)
	}
	if !c.Server.EnableWelcomeComments {
		t.Error("welcome comments should be enabled")
	}
	if c.DefaultMergeStrategy != "squash" || c.DefaultNeededReviewersCount != 2 {
		t.Errorf("wrong defaults: %+v", c)
	}
	if c.Lock.RedisAddress != "localhost:6379" {
		t.Errorf("wrong redis address: %q", c.Lock.RedisAddress)
	}
}

func TestParseErrors(t *testing.T) {
	var testCases = []struct {
		name string
		raw  string
	}{
		{"missing bot name", "server:\n  enable_welcome_comments: true\n"},
		{"bad strategy", "bot_name: towline\ndefault_merge_strategy: fast-forward\n"},
		{"negative reviewers", "bot_name: towline\ndefault_needed_reviewers_count: -1\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parse([]byte(tc.raw)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDefaultStrategyApplied(t *testing.T) {
	c, err := parse([]byte("bot_name: towline\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.DefaultMergeStrategy != string(store.StrategyMerge) {
		t.Errorf("expected the merge default, got %q", c.DefaultMergeStrategy)
	}
}

func TestSeedRepository(t *testing.T) {
	c, err := parse([]byte("bot_name: towline\ndefault_merge_strategy: rebase\ndefault_needed_reviewers_count: 3\ndefault_enable_qa: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	repo := c.SeedRepository("octo", "ship")
	if repo.Owner != "octo" || repo.Name != "ship" {
		t.Errorf("wrong identity: %+v", repo)
	}
	if repo.DefaultStrategy != store.StrategyRebase || repo.DefaultNeededReviewersCount != 3 || !repo.DefaultEnableQA {
		t.Errorf("wrong seeds: %+v", repo)
	}
}
