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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

func actionsRun(name, conclusion string, started time.Time) github.CheckRun {
	return github.CheckRun{
		Name:       name,
		Conclusion: conclusion,
		StartedAt:  started,
		App:        github.App{Slug: "github-actions"},
	}
}

func TestFoldCheckRuns(t *testing.T) {
	now := time.Now()
	var testCases = []struct {
		name     string
		runs     []github.CheckRun
		enabled  bool
		expected store.StatusState
	}{
		{
			name:     "disabled is skipped regardless of runs",
			runs:     []github.CheckRun{actionsRun("build", "failure", now)},
			enabled:  false,
			expected: store.StatusSkipped,
		},
		{
			name:     "no runs waits",
			enabled:  true,
			expected: store.StatusWaiting,
		},
		{
			name:     "all success passes",
			runs:     []github.CheckRun{actionsRun("build", "success", now), actionsRun("lint", "skipped", now)},
			enabled:  true,
			expected: store.StatusPass,
		},
		{
			name:     "any failure fails",
			runs:     []github.CheckRun{actionsRun("build", "success", now), actionsRun("lint", "failure", now)},
			enabled:  true,
			expected: store.StatusFail,
		},
		{
			name:     "missing conclusion waits",
			runs:     []github.CheckRun{actionsRun("build", "success", now), actionsRun("lint", "", now)},
			enabled:  true,
			expected: store.StatusWaiting,
		},
		{
			name: "rerun keeps the most recent run per name",
			runs: []github.CheckRun{
				actionsRun("build", "failure", now.Add(-time.Hour)),
				actionsRun("build", "success", now),
			},
			enabled:  true,
			expected: store.StatusPass,
		},
		{
			name: "foreign apps are ignored",
			runs: []github.CheckRun{
				{Name: "external", Conclusion: "failure", StartedAt: now, App: github.App{Slug: "other-ci"}},
				actionsRun("build", "success", now),
			},
			enabled:  true,
			expected: store.StatusPass,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FoldCheckRuns(tc.runs, tc.enabled); got != tc.expected {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestFoldCheckRunsIdempotent(t *testing.T) {
	now := time.Now()
	runs := []github.CheckRun{
		actionsRun("build", "success", now),
		actionsRun("lint", "", now),
		actionsRun("test", "failure", now),
	}
	once := FoldCheckRuns(runs, true)
	twice := FoldCheckRuns(append(append([]github.CheckRun{}, runs...), runs...), true)
	if once != twice {
		t.Errorf("duplicating the list changed the fold: %v vs %v", once, twice)
	}
}

func TestResolveStrategyOrdering(t *testing.T) {
	repo := store.Repository{ID: 1, DefaultStrategy: store.StrategyMerge}
	rule := func(base, head string, s store.MergeStrategy) store.MergeRule {
		return store.MergeRule{RepositoryID: 1, BaseBranch: base, HeadBranch: head, Strategy: s}
	}
	var testCases = []struct {
		name     string
		pr       store.PullRequest
		rules    []store.MergeRule
		expected store.MergeStrategy
	}{
		{
			name:     "override beats everything",
			pr:       store.PullRequest{StrategyOverride: store.StrategyRebase},
			rules:    []store.MergeRule{rule("main", "feature", store.StrategySquash)},
			expected: store.StrategyRebase,
		},
		{
			name:     "exact match first",
			rules:    []store.MergeRule{rule("*", "*", store.StrategyRebase), rule("main", "feature", store.StrategySquash)},
			expected: store.StrategySquash,
		},
		{
			name:     "wildcard base before wildcard head",
			rules:    []store.MergeRule{rule("main", "*", store.StrategyRebase), rule("*", "feature", store.StrategySquash)},
			expected: store.StrategySquash,
		},
		{
			name:     "wildcard head third",
			rules:    []store.MergeRule{rule("*", "*", store.StrategyRebase), rule("main", "*", store.StrategySquash)},
			expected: store.StrategySquash,
		},
		{
			name:     "double wildcard before repository default",
			rules:    []store.MergeRule{rule("*", "*", store.StrategyRebase)},
			expected: store.StrategyRebase,
		},
		{
			name:     "repository default last",
			rules:    []store.MergeRule{rule("other", "branch", store.StrategyRebase)},
			expected: store.StrategyMerge,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStrategy(repo, tc.pr, tc.rules, "main", "feature")
			if got != tc.expected {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestChooseStepLabel(t *testing.T) {
	base := PullRequestStatus{
		ChecksStatus: store.StatusPass,
		QAStatus:     store.StatusPass,
		ValidPRTitle: true,
	}
	var testCases = []struct {
		name     string
		mutate   func(*PullRequestStatus)
		expected StepLabel
	}{
		{"all gates pass", func(s *PullRequestStatus) {}, StepAwaitingMerge},
		{"draft wins", func(s *PullRequestStatus) { s.WIP = true; s.Locked = true }, StepWip},
		{"invalid title", func(s *PullRequestStatus) { s.ValidPRTitle = false }, StepAwaitingChanges},
		{"checks waiting", func(s *PullRequestStatus) { s.ChecksStatus = store.StatusWaiting }, StepAwaitingChecks},
		{"checks failed", func(s *PullRequestStatus) { s.ChecksStatus = store.StatusFail }, StepAwaitingChanges},
		{"changes requested", func(s *PullRequestStatus) { s.ChangesRequiredReviewers = []string{"alice"} }, StepAwaitingChanges},
		{"missing approvals", func(s *PullRequestStatus) { s.NeededReviewersCount = 1 }, StepAwaitingReview},
		{"missing required reviewer", func(s *PullRequestStatus) { s.MissingRequiredReviewers = []string{"bob"} }, StepAwaitingReview},
		{"qa waiting", func(s *PullRequestStatus) { s.QAStatus = store.StatusWaiting }, StepAwaitingQA},
		{"qa failed", func(s *PullRequestStatus) { s.QAStatus = store.StatusFail }, StepAwaitingChanges},
		{"locked", func(s *PullRequestStatus) { s.Locked = true }, StepLocked},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			if got := ChooseStepLabel(s); got != tc.expected {
				t.Errorf("got %v, expected %v", got, tc.expected)
			}
		})
	}
}

func TestBuildClassifiesReviews(t *testing.T) {
	now := time.Now()
	repo := store.Repository{}
	pr := store.PullRequest{NeededReviewersCount: 1, QAStatus: store.StatusSkipped}
	upstream := &github.PullRequest{Title: "Sample"}
	reviews := []github.Review{
		{User: github.User{Login: "alice"}, State: github.ReviewStateChangesRequested, SubmittedAt: now.Add(-time.Hour)},
		{User: github.User{Login: "alice"}, State: github.ReviewStateApproved, SubmittedAt: now},
		{User: github.User{Login: "carol"}, State: github.ReviewStateCommented, SubmittedAt: now},
	}
	required := []store.RequiredReviewer{{Username: "carol"}, {Username: "dan"}}

	s := Build(repo, pr, upstream, reviews, required, store.StatusSkipped, store.StrategyMerge)

	if diff := cmp.Diff([]string{"alice"}, s.ApprovedReviewers); diff != "" {
		t.Errorf("approved reviewers differ: %s", diff)
	}
	if len(s.ChangesRequiredReviewers) != 0 {
		t.Errorf("alice's later approval supersedes her change request: %v", s.ChangesRequiredReviewers)
	}
	if diff := cmp.Diff([]string{"carol", "dan"}, s.MissingRequiredReviewers); diff != "" {
		t.Errorf("missing required reviewers differ: %s", diff)
	}
	if !s.MissingReviews() {
		t.Error("missing required reviewers must keep the review gate open")
	}
}

func TestBuildRequiredReviewerApproved(t *testing.T) {
	s := Build(
		store.Repository{},
		store.PullRequest{NeededReviewersCount: 1, QAStatus: store.StatusSkipped},
		&github.PullRequest{Title: "Sample"},
		[]github.Review{{User: github.User{Login: "alice"}, State: github.ReviewStateApproved, SubmittedAt: time.Now()}},
		[]store.RequiredReviewer{{Username: "alice"}},
		store.StatusSkipped,
		store.StrategyMerge,
	)
	if len(s.MissingRequiredReviewers) != 0 {
		t.Errorf("approved required reviewer is not missing: %v", s.MissingRequiredReviewers)
	}
	if diff := cmp.Diff([]string{"alice"}, s.ApprovedReviewers); diff != "" {
		t.Errorf("approved reviewers differ: %s", diff)
	}
	if s.MissingReviews() {
		t.Error("review gate should be satisfied")
	}
	if got := ChooseStepLabel(s); got == StepAwaitingReview {
		t.Errorf("label should advance past review, got %v", got)
	}
}

func TestValidTitle(t *testing.T) {
	var testCases = []struct {
		pattern  string
		title    string
		expected bool
	}{
		{"", "anything", true},
		{"^feat: ", "feat: add rudder", true},
		{"^feat: ", "bug: x", false},
		{"([", "anything", false},
	}
	for _, tc := range testCases {
		if got := validTitle(tc.pattern, tc.title); got != tc.expected {
			t.Errorf("validTitle(%q, %q) = %v, expected %v", tc.pattern, tc.title, got, tc.expected)
		}
	}
}

func TestCombinedStatus(t *testing.T) {
	base := PullRequestStatus{
		ChecksStatus: store.StatusPass,
		QAStatus:     store.StatusPass,
		ValidPRTitle: true,
	}
	var testCases = []struct {
		name   string
		mutate func(*PullRequestStatus)
		state  github.StatusState
		desc   string
	}{
		{"all good", func(s *PullRequestStatus) {}, github.StatusSuccess, "All good."},
		{"wip", func(s *PullRequestStatus) { s.WIP = true }, github.StatusPending, "Work in progress"},
		{"locked", func(s *PullRequestStatus) { s.Locked = true }, github.StatusPending, "Pull request is locked"},
		{"invalid title", func(s *PullRequestStatus) { s.ValidPRTitle = false }, github.StatusFailure, "Invalid PR title"},
		{"checks failed", func(s *PullRequestStatus) { s.ChecksStatus = store.StatusFail }, github.StatusFailure, "Checks failed"},
		{"checks waiting", func(s *PullRequestStatus) { s.ChecksStatus = store.StatusWaiting }, github.StatusPending, "Waiting on checks"},
		{"changes required", func(s *PullRequestStatus) { s.ChangesRequiredReviewers = []string{"a"} }, github.StatusFailure, "Changes required"},
		{"waiting on reviews", func(s *PullRequestStatus) { s.NeededReviewersCount = 2 }, github.StatusPending, "Waiting on reviews"},
		{"qa failed", func(s *PullRequestStatus) { s.QAStatus = store.StatusFail }, github.StatusFailure, "QA failed"},
		{"qa waiting", func(s *PullRequestStatus) { s.QAStatus = store.StatusWaiting }, github.StatusPending, "Waiting on QA"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			state, desc := CombinedStatus(s)
			if state != tc.state || desc != tc.desc {
				t.Errorf("got (%v, %q), expected (%v, %q)", state, desc, tc.state, tc.desc)
			}
		})
	}
}

func TestTruncateDescription(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := truncateDescription(long); len(got) != maxStatusDescription {
		t.Errorf("got %d characters, expected %d", len(got), maxStatusDescription)
	}
	if got := truncateDescription("short"); got != "short" {
		t.Errorf("short descriptions pass through, got %q", got)
	}
}

func TestRenderSummaryStable(t *testing.T) {
	s := PullRequestStatus{
		ChecksStatus:         store.StatusPass,
		QAStatus:             store.StatusSkipped,
		ApprovedReviewers:    []string{"alice"},
		NeededReviewersCount: 1,
		ValidPRTitle:         true,
		Automerge:            true,
		MergeStrategy:        store.StrategySquash,
	}
	first := RenderSummary("octo", "ship", 12, "^feat: ", s)
	second := RenderSummary("octo", "ship", 12, "^feat: ", s)
	if first != second {
		t.Error("summary must be deterministic")
	}
	for _, want := range []string{
		"**Pull request status**",
		"> - Title regex: `^feat: `",
		"> - Checks: ✅ pass",
		"> - QA: ✅ skipped",
		"> - Reviews: ✅ 1/1 approvals",
		"> - Missing required reviewers: _none_",
		"> - Automerge: ✅ enabled",
		"> - Strategy: squash",
		"[Checks](https://github.com/octo/ship/pull/12/checks)",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("summary is missing %q:\n%s", want, first)
		}
	}
}
