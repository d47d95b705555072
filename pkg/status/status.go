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

// Package status computes the policy-driven status of a pull request and
// publishes it back to the forge as a step label, a sticky summary comment
// and a combined commit status. When every gate is satisfied it triggers
// the automatic merge.
package status

import (
	"regexp"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

// PullRequestStatus is the pure value every published artifact derives
// from. Given identical inputs it is byte-identical across runs.
type PullRequestStatus struct {
	ChecksStatus             store.StatusState
	QAStatus                 store.StatusState
	ApprovedReviewers        []string
	ChangesRequiredReviewers []string
	MissingRequiredReviewers []string
	NeededReviewersCount     int
	ValidPRTitle             bool
	Locked                   bool
	WIP                      bool
	Mergeable                bool
	Merged                   bool
	Automerge                bool
	MergeStrategy            store.MergeStrategy
}

// MissingReviews reports whether the review gate is still open.
func (s PullRequestStatus) MissingReviews() bool {
	return len(s.MissingRequiredReviewers) > 0 || len(s.ApprovedReviewers) < s.NeededReviewersCount
}

// ChangesRequired reports whether any reviewer asked for changes.
func (s PullRequestStatus) ChangesRequired() bool {
	return len(s.ChangesRequiredReviewers) > 0
}

// Build derives the status value from the persisted rows and the forge's
// live view. checksStatus and strategy are computed by the caller.
func Build(repo store.Repository, pr store.PullRequest, upstream *github.PullRequest, reviews []github.Review, required []store.RequiredReviewer, checksStatus store.StatusState, strategy store.MergeStrategy) PullRequestStatus {
	s := PullRequestStatus{
		ChecksStatus:         checksStatus,
		QAStatus:             pr.QAStatus,
		NeededReviewersCount: pr.NeededReviewersCount,
		ValidPRTitle:         validTitle(repo.PRTitleValidationRegex, upstream.Title),
		Locked:               pr.Locked,
		WIP:                  upstream.Draft,
		Mergeable:            upstream.Mergeable == nil || *upstream.Mergeable,
		Merged:               upstream.Merged,
		Automerge:            pr.Automerge,
		MergeStrategy:        strategy,
	}

	requiredSet := map[string]bool{}
	for _, r := range required {
		requiredSet[r.Username] = true
	}

	// A reviewer may review several times; only the latest submission
	// counts.
	for _, r := range latestReviews(reviews) {
		switch r.State {
		case github.ReviewStateApproved:
			s.ApprovedReviewers = append(s.ApprovedReviewers, r.User.Login)
		case github.ReviewStateChangesRequested:
			s.ChangesRequiredReviewers = append(s.ChangesRequiredReviewers, r.User.Login)
		default:
			if requiredSet[r.User.Login] {
				s.MissingRequiredReviewers = append(s.MissingRequiredReviewers, r.User.Login)
			}
		}
	}

	approvedSet := map[string]bool{}
	for _, u := range s.ApprovedReviewers {
		approvedSet[u] = true
	}
	missingSet := map[string]bool{}
	for _, u := range s.MissingRequiredReviewers {
		missingSet[u] = true
	}
	for _, r := range required {
		if !approvedSet[r.Username] && !missingSet[r.Username] && !reviewed(reviews, r.Username) {
			s.MissingRequiredReviewers = append(s.MissingRequiredReviewers, r.Username)
		}
	}
	return s
}

// latestReviews keeps the most recently submitted review per reviewer,
// preserving first-seen reviewer order.
func latestReviews(reviews []github.Review) []github.Review {
	index := map[string]int{}
	var out []github.Review
	for _, r := range reviews {
		if r.State == github.ReviewStatePending {
			continue
		}
		if i, ok := index[r.User.Login]; ok {
			if !r.SubmittedAt.Before(out[i].SubmittedAt) {
				out[i] = r
			}
			continue
		}
		index[r.User.Login] = len(out)
		out = append(out, r)
	}
	return out
}

func reviewed(reviews []github.Review, username string) bool {
	for _, r := range reviews {
		if r.User.Login == username && r.State != github.ReviewStatePending {
			return true
		}
	}
	return false
}

// validTitle is true for an empty regex. A regex that does not compile
// fails every title so a broken configuration is visible.
func validTitle(pattern, title string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}
