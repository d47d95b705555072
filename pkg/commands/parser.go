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

package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/towline-dev/towline/pkg/store"
)

// maxReviewersPerCommand caps how many reviewers a single r+/req+ style
// command may name.
const maxReviewersPerCommand = 16

// verbSpec describes the argument shape of one verb. validate runs only
// after the arity check passed.
type verbSpec struct {
	usage    string
	minArgs  int
	maxArgs  int // -1 for unlimited
	validate func(verb string, args []string) ([]string, error)
}

func validateReviewers(verb string, args []string) ([]string, error) {
	if len(args) > maxReviewersPerCommand {
		return nil, InvalidUsageError{Verb: verb, Usage: usageOf(verb).usage}
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		out = append(out, strings.TrimPrefix(a, "@"))
	}
	return out, nil
}

func validateStrategy(verb string, args []string) ([]string, error) {
	if _, ok := store.ParseMergeStrategy(args[0]); !ok {
		return nil, ArgumentParsingError{Verb: verb, Reason: fmt.Sprintf("unknown merge strategy %q", args[0])}
	}
	return args, nil
}

func validateOptionalStrategy(verb string, args []string) ([]string, error) {
	if len(args) == 0 {
		return args, nil
	}
	return validateStrategy(verb, args)
}

func validateCount(verb string, args []string) ([]string, error) {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, ArgumentParsingError{Verb: verb, Reason: fmt.Sprintf("%q is not a non-negative integer", args[0])}
	}
	return args, nil
}

func validateMergeRule(verb string, args []string) ([]string, error) {
	if _, ok := store.ParseMergeStrategy(args[2]); !ok {
		return nil, ArgumentParsingError{Verb: verb, Reason: fmt.Sprintf("unknown merge strategy %q", args[2])}
	}
	return args, nil
}

var verbs map[string]verbSpec

func init() {
	verbs = map[string]verbSpec{
		// User verbs.
		"noqa+":      {usage: "noqa+"},
		"noqa-":      {usage: "noqa-"},
		"qa+":        {usage: "qa+"},
		"qa-":        {usage: "qa-"},
		"qa?":        {usage: "qa?"},
		"nochecks+":  {usage: "nochecks+"},
		"nochecks-":  {usage: "nochecks-"},
		"automerge+": {usage: "automerge+"},
		"automerge-": {usage: "automerge-"},
		"lock+":      {usage: "lock+ [reason...]", maxArgs: -1},
		"lock-":      {usage: "lock- [reason...]", maxArgs: -1},
		"r+":         {usage: "r+ @user...", minArgs: 1, maxArgs: -1, validate: validateReviewers},
		"r-":         {usage: "r- @user...", minArgs: 1, maxArgs: -1, validate: validateReviewers},
		"req+":       {usage: "req+ @user...", minArgs: 1, maxArgs: -1, validate: validateReviewers},
		"req-":       {usage: "req- @user...", minArgs: 1, maxArgs: -1, validate: validateReviewers},
		"strategy+":  {usage: "strategy+ <merge|squash|rebase>", minArgs: 1, maxArgs: 1, validate: validateStrategy},
		"strategy-":  {usage: "strategy-"},
		"labels+":    {usage: "labels+ label...", minArgs: 1, maxArgs: -1},
		"labels-":    {usage: "labels- label...", minArgs: 1, maxArgs: -1},
		"merge":      {usage: "merge [merge|squash|rebase]", maxArgs: 1, validate: validateOptionalStrategy},
		"gif":        {usage: "gif terms...", minArgs: 1, maxArgs: -1},
		"ping":       {usage: "ping"},
		"is-admin":   {usage: "is-admin"},
		"help":       {usage: "help"},

		// Admin verbs.
		"admin-help":                         {usage: "admin-help"},
		"admin-sync":                         {usage: "admin-sync"},
		"admin-enable":                       {usage: "admin-enable"},
		"admin-disable":                      {usage: "admin-disable"},
		"admin-reset-summary":                {usage: "admin-reset-summary"},
		"admin-add-merge-rule":               {usage: "admin-add-merge-rule <base> <head> <merge|squash|rebase>", minArgs: 3, maxArgs: 3, validate: validateMergeRule},
		"admin-set-default-needed-reviewers": {usage: "admin-set-default-needed-reviewers <count>", minArgs: 1, maxArgs: 1, validate: validateCount},
		"admin-set-default-merge-strategy":   {usage: "admin-set-default-merge-strategy <merge|squash|rebase>", minArgs: 1, maxArgs: 1, validate: validateStrategy},
		"admin-set-default-pr-title-regex":   {usage: "admin-set-default-pr-title-regex <regex>", minArgs: 1, maxArgs: 1},
		"admin-set-default-qa-status+":       {usage: "admin-set-default-qa-status+"},
		"admin-set-default-qa-status-":       {usage: "admin-set-default-qa-status-"},
		"admin-set-default-checks-status+":   {usage: "admin-set-default-checks-status+"},
		"admin-set-default-checks-status-":   {usage: "admin-set-default-checks-status-"},
		"admin-set-default-automerge+":       {usage: "admin-set-default-automerge+"},
		"admin-set-default-automerge-":       {usage: "admin-set-default-automerge-"},
		"admin-set-needed-reviewers":         {usage: "admin-set-needed-reviewers <count>", minArgs: 1, maxArgs: 1, validate: validateCount},
	}
}

func usageOf(verb string) verbSpec {
	return verbs[verb]
}

// IsAdminVerb reports whether the verb requires bot-admin rights.
func IsAdminVerb(verb string) bool {
	return strings.HasPrefix(verb, "admin-")
}

// IsPublicVerb reports whether the verb is allowed for everyone.
func IsPublicVerb(verb string) bool {
	switch verb {
	case "ping", "help", "gif":
		return true
	}
	return false
}

// Parse scans a comment body line by line. A line is a command iff its
// first whitespace-delimited token equals botName; all other lines are
// dropped. Each command line yields exactly one ParseResult, in order.
func Parse(botName, text string) []ParseResult {
	var results []ParseResult
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != botName {
			continue
		}
		if len(fields) == 1 {
			continue
		}
		results = append(results, parseCommand(fields[1], fields[2:]))
	}
	return results
}

func parseCommand(verb string, args []string) ParseResult {
	spec, ok := verbs[verb]
	if !ok {
		return ParseResult{Err: UnknownCommandError{Verb: verb}}
	}
	if len(args) < spec.minArgs {
		return ParseResult{Err: IncompleteCommandError{Verb: verb, Usage: spec.usage}}
	}
	if spec.maxArgs >= 0 && len(args) > spec.maxArgs {
		return ParseResult{Err: InvalidUsageError{Verb: verb, Usage: spec.usage}}
	}
	if spec.validate != nil {
		normalized, err := spec.validate(verb, args)
		if err != nil {
			return ParseResult{Err: err}
		}
		args = normalized
	}
	return ParseResult{Command: Command{Verb: verb, Args: args}}
}
