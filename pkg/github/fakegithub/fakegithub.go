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

// Package fakegithub provides a recording fake of the forge client for
// tests.
package fakegithub

import (
	"fmt"
	"sync"

	"github.com/towline-dev/towline/pkg/github"
)

// FakeClient is like client, but fake. Every mutation is recorded so tests
// can assert on the exact calls made.
type FakeClient struct {
	mut sync.Mutex

	// PullRequests is the set of live pull requests, keyed by number.
	PullRequests map[int]*github.PullRequest
	// Reviews keyed by pull request number.
	Reviews map[int][]github.Review
	// CheckRuns keyed by head SHA.
	CheckRuns map[string][]github.CheckRun
	// Labels currently on each issue, keyed by number.
	Labels map[int][]github.Label
	// Permissions keyed by user login, defaulting to "none".
	Permissions map[string]string
	// MergeErrs lets a test force Merge to fail for a number.
	MergeErrs map[int]error
	// EditCommentErrs lets a test force EditComment to fail for an id.
	EditCommentErrs map[int]error

	// IssueComments tracks comment bodies by comment id.
	IssueComments map[int]string
	// IssueCommentID is the id handed to the next created comment.
	IssueCommentID int

	// Recorded mutations.
	CommentsCreated    []string
	CommentsEdited     map[int]string
	CommentsDeleted    []int
	ReactionsAdded     map[int][]string
	LabelsAdded        []string
	LabelsRemoved      []string
	LabelsReplaced     map[string][]string
	StatusesCreated    map[string][]github.Status
	ReviewsRequested   map[int][]string
	ReviewsUnrequested map[int][]string
	// Merges records the details of every merge call, keyed by number.
	Merges map[int][]github.MergeDetails
}

// NewFakeClient returns a fake with all maps initialized.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		PullRequests:       map[int]*github.PullRequest{},
		Reviews:            map[int][]github.Review{},
		CheckRuns:          map[string][]github.CheckRun{},
		Labels:             map[int][]github.Label{},
		Permissions:        map[string]string{},
		MergeErrs:          map[int]error{},
		EditCommentErrs:    map[int]error{},
		IssueComments:      map[int]string{},
		IssueCommentID:     1000,
		CommentsEdited:     map[int]string{},
		ReactionsAdded:     map[int][]string{},
		LabelsReplaced:     map[string][]string{},
		StatusesCreated:    map[string][]github.Status{},
		ReviewsRequested:   map[int][]string{},
		ReviewsUnrequested: map[int][]string{},
		Merges:             map[int][]github.MergeDetails{},
	}
}

// GetPullRequest returns the PR for the number if it exists.
func (f *FakeClient) GetPullRequest(org, repo string, number int) (*github.PullRequest, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	if pr, ok := f.PullRequests[number]; ok {
		return pr, nil
	}
	return nil, fmt.Errorf("pull request number %d does not exist", number)
}

// ListReviews returns the reviews on the PR.
func (f *FakeClient) ListReviews(org, repo string, number int) ([]github.Review, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.Reviews[number], nil
}

// RequestReview records the requested logins.
func (f *FakeClient) RequestReview(org, repo string, number int, logins []string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.ReviewsRequested[number] = append(f.ReviewsRequested[number], logins...)
	return nil
}

// UnrequestReview records the unrequested logins.
func (f *FakeClient) UnrequestReview(org, repo string, number int, logins []string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.ReviewsUnrequested[number] = append(f.ReviewsUnrequested[number], logins...)
	return nil
}

// ListCheckRuns returns the check runs for the commit.
func (f *FakeClient) ListCheckRuns(org, repo, ref string) ([]github.CheckRun, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.CheckRuns[ref], nil
}

// GetIssueLabels returns the labels on the issue.
func (f *FakeClient) GetIssueLabels(org, repo string, number int) ([]github.Label, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	return f.Labels[number], nil
}

// AddLabel adds a label to the issue and records the call as
// "org/repo#number:label".
func (f *FakeClient) AddLabel(org, repo string, number int, label string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.LabelsAdded = append(f.LabelsAdded, fmt.Sprintf("%s/%s#%d:%s", org, repo, number, label))
	f.Labels[number] = append(f.Labels[number], github.Label{Name: label})
	return nil
}

// RemoveLabel removes a label from the issue and records the call.
func (f *FakeClient) RemoveLabel(org, repo string, number int, label string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.LabelsRemoved = append(f.LabelsRemoved, fmt.Sprintf("%s/%s#%d:%s", org, repo, number, label))
	var kept []github.Label
	for _, l := range f.Labels[number] {
		if l.Name != label {
			kept = append(kept, l)
		}
	}
	f.Labels[number] = kept
	return nil
}

// ReplaceAllLabels swaps the full label set of the issue.
func (f *FakeClient) ReplaceAllLabels(org, repo string, number int, labels []string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.LabelsReplaced[fmt.Sprintf("%s/%s#%d", org, repo, number)] = labels
	var set []github.Label
	for _, l := range labels {
		set = append(set, github.Label{Name: l})
	}
	f.Labels[number] = set
	return nil
}

// CreateComment records the comment and returns a fresh id.
func (f *FakeClient) CreateComment(org, repo string, number int, comment string) (int, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.CommentsCreated = append(f.CommentsCreated, fmt.Sprintf("%s/%s#%d:%s", org, repo, number, comment))
	f.IssueCommentID++
	f.IssueComments[f.IssueCommentID] = comment
	return f.IssueCommentID, nil
}

// EditComment replaces the body of an existing comment. Unknown ids fail
// with a not-found-shaped error unless the test forced something else.
func (f *FakeClient) EditComment(org, repo string, id int, comment string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	if err, ok := f.EditCommentErrs[id]; ok {
		return err
	}
	if _, ok := f.IssueComments[id]; !ok {
		return github.NewNotFound()
	}
	f.IssueComments[id] = comment
	f.CommentsEdited[id] = comment
	return nil
}

// DeleteComment removes a comment.
func (f *FakeClient) DeleteComment(org, repo string, id int) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	delete(f.IssueComments, id)
	f.CommentsDeleted = append(f.CommentsDeleted, id)
	return nil
}

// CreateCommentReaction records the reaction.
func (f *FakeClient) CreateCommentReaction(org, repo string, id int, reaction string) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.ReactionsAdded[id] = append(f.ReactionsAdded[id], reaction)
	return nil
}

// CreateStatus records the status against the ref.
func (f *FakeClient) CreateStatus(org, repo, ref string, s github.Status) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	f.StatusesCreated[ref] = append(f.StatusesCreated[ref], s)
	return nil
}

// GetUserPermission returns the configured permission, defaulting to
// "none".
func (f *FakeClient) GetUserPermission(org, repo, user string) (string, error) {
	f.mut.Lock()
	defer f.mut.Unlock()
	if p, ok := f.Permissions[user]; ok {
		return p, nil
	}
	return github.PermissionNone, nil
}

// Merge merges the PR or returns the forced error for the number.
func (f *FakeClient) Merge(org, repo string, number int, details github.MergeDetails) error {
	f.mut.Lock()
	defer f.mut.Unlock()
	if err, ok := f.MergeErrs[number]; ok {
		return err
	}
	f.Merges[number] = append(f.Merges[number], details)
	if pr, ok := f.PullRequests[number]; ok {
		pr.Merged = true
		pr.State = "closed"
	}
	return nil
}
