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
	"strings"
)

type helpEntry struct {
	usage string
	doc   string
}

var userHelp = []helpEntry{
	{"noqa+ / noqa-", "skip or reinstate the QA gate"},
	{"qa+ / qa- / qa?", "mark QA passed, failed or reset it to waiting"},
	{"nochecks+ / nochecks-", "skip or reinstate the checks gate"},
	{"automerge+ / automerge-", "toggle automatic merge once all gates pass"},
	{"lock+ [reason...] / lock- [reason...]", "lock or unlock the pull request"},
	{"r+ @user... / r- @user...", "assign or unassign reviewers on the forge"},
	{"req+ @user... / req- @user...", "add or remove required reviewers"},
	{"strategy+ <merge|squash|rebase> / strategy-", "override the merge strategy or drop the override"},
	{"labels+ label... / labels- label...", "add or remove labels"},
	{"merge [merge|squash|rebase]", "merge now with the given or resolved strategy"},
	{"gif terms...", "post a GIF"},
	{"ping", "check the bot is alive"},
	{"is-admin", "tell whether you are a bot administrator"},
	{"help", "show this message"},
}

var adminHelp = []helpEntry{
	{"admin-help", "show this message"},
	{"admin-sync", "force a status re-run"},
	{"admin-enable", "start tracking this pull request"},
	{"admin-disable", "stop tracking this pull request"},
	{"admin-reset-summary", "post a fresh summary comment on the next update"},
	{"admin-add-merge-rule <base> <head> <merge|squash|rebase>", "set the strategy for a branch pair, * is a wildcard"},
	{"admin-set-default-needed-reviewers <count>", "set the repository's default reviewer count"},
	{"admin-set-default-merge-strategy <merge|squash|rebase>", "set the repository's default strategy"},
	{"admin-set-default-pr-title-regex <regex>", "set the title validation regex"},
	{"admin-set-default-qa-status+ / -", "enable or disable QA for new pull requests"},
	{"admin-set-default-checks-status+ / -", "enable or disable checks for new pull requests"},
	{"admin-set-default-automerge+ / -", "enable or disable automerge for new pull requests"},
	{"admin-set-needed-reviewers <count>", "set this pull request's reviewer count"},
}

func renderHelp(botName, title string, entries []helpEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\nWrite `%s <command>` in a comment, one command per line.\n\n", title, botName)
	for _, e := range entries {
		fmt.Fprintf(&b, "- `%s`: %s\n", e.usage, e.doc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func helpText(botName string) string {
	return renderHelp(botName, "Available commands", userHelp)
}

func adminHelpText(botName string) string {
	return renderHelp(botName, "Available administrator commands", adminHelp)
}
