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

package status

import (
	"fmt"
	"strings"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

// StatusTitle is the context of the combined commit status.
const StatusTitle = "Validation"

// maxStatusDescription is the forge's display limit for a commit status
// description.
const maxStatusDescription = 139

const (
	glyphPass    = "✅"
	glyphWaiting = "⏳"
	glyphFail    = "❌"
)

func gateGlyph(s store.StatusState) string {
	switch s {
	case store.StatusFail:
		return glyphFail
	case store.StatusWaiting:
		return glyphWaiting
	default:
		return glyphPass
	}
}

func boolGlyph(ok bool) string {
	if ok {
		return glyphPass
	}
	return glyphFail
}

// RenderSummary renders the sticky summary comment. The whole body is
// replaced on each update, so the layout only has to be stable, not
// append-friendly.
func RenderSummary(owner, name string, number int, titleRegex string, s PullRequestStatus) string {
	var b strings.Builder

	b.WriteString("**Pull request status**\n")
	b.WriteString("_Updated automatically, do not edit._\n\n")

	b.WriteString("**Rules**\n\n")
	if titleRegex == "" {
		b.WriteString("> - Title regex: _none_\n")
	} else {
		fmt.Fprintf(&b, "> - Title regex: `%s`\n", titleRegex)
	}
	fmt.Fprintf(&b, "> - Title valid: %s\n\n", boolGlyph(s.ValidPRTitle))

	b.WriteString("**Status**\n\n")
	fmt.Fprintf(&b, "> - Checks: %s %s\n", gateGlyph(s.ChecksStatus), s.ChecksStatus)
	fmt.Fprintf(&b, "> - QA: %s %s\n", gateGlyph(s.QAStatus), s.QAStatus)
	fmt.Fprintf(&b, "> - Reviews: %s %d/%d approvals\n", reviewsGlyph(s), len(s.ApprovedReviewers), s.NeededReviewersCount)
	if len(s.MissingRequiredReviewers) == 0 {
		b.WriteString("> - Missing required reviewers: _none_\n")
	} else {
		fmt.Fprintf(&b, "> - Missing required reviewers: %s\n", strings.Join(s.MissingRequiredReviewers, ", "))
	}
	fmt.Fprintf(&b, "> - Locked: %s %s\n\n", boolGlyph(!s.Locked), yesNo(s.Locked))

	b.WriteString("**Configuration**\n\n")
	fmt.Fprintf(&b, "> - Automerge: %s %s\n", boolGlyph(s.Automerge), enabledDisabled(s.Automerge))
	fmt.Fprintf(&b, "> - Strategy: %s\n\n", s.MergeStrategy)

	fmt.Fprintf(&b, "[Checks](https://github.com/%s/%s/pull/%d/checks)", owner, name, number)
	return b.String()
}

func reviewsGlyph(s PullRequestStatus) string {
	switch {
	case s.ChangesRequired():
		return glyphFail
	case s.MissingReviews():
		return glyphWaiting
	default:
		return glyphPass
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func enabledDisabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

// CombinedStatus maps a status to the state and description of the
// combined commit status. Gates are checked in the same order the step
// label uses so the two artifacts never disagree.
func CombinedStatus(s PullRequestStatus) (github.StatusState, string) {
	switch {
	case s.WIP:
		return github.StatusPending, "Work in progress"
	case s.Locked:
		return github.StatusPending, "Pull request is locked"
	case !s.ValidPRTitle:
		return github.StatusFailure, "Invalid PR title"
	case s.ChecksStatus == store.StatusFail:
		return github.StatusFailure, "Checks failed"
	case s.ChecksStatus == store.StatusWaiting:
		return github.StatusPending, "Waiting on checks"
	case s.ChangesRequired():
		return github.StatusFailure, "Changes required"
	case s.MissingReviews():
		return github.StatusPending, "Waiting on reviews"
	case s.QAStatus == store.StatusFail:
		return github.StatusFailure, "QA failed"
	case s.QAStatus == store.StatusWaiting:
		return github.StatusPending, "Waiting on QA"
	default:
		return github.StatusSuccess, "All good."
	}
}

// truncateDescription clips a description to the forge's display limit.
func truncateDescription(desc string) string {
	if len(desc) <= maxStatusDescription {
		return desc
	}
	return desc[:maxStatusDescription]
}
