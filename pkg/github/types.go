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

package github

import "time"

// EventGUID is the logrus field key for the X-GitHub-Delivery header.
const EventGUID = "event-GUID"

// User is a github account.
type User struct {
	Login string `json:"login"`
}

// Repo is the repository half of a webhook payload.
type Repo struct {
	Owner    User   `json:"owner"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// PullRequestBranch is one side of a pull request.
type PullRequestBranch struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// PullRequest is the forge's live view of a pull request.
type PullRequest struct {
	Number  int               `json:"number"`
	State   string            `json:"state"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	User    User              `json:"user"`
	Draft   bool              `json:"draft"`
	Merged  bool              `json:"merged"`
	// Mergeable is nil while the forge is still computing mergeability.
	Mergeable *bool             `json:"mergeable"`
	Head      PullRequestBranch `json:"head"`
	Base      PullRequestBranch `json:"base"`
}

// ReviewState is the state of a submitted review.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStateDismissed        ReviewState = "DISMISSED"
	ReviewStatePending          ReviewState = "PENDING"
)

// Review is a submitted pull request review.
type Review struct {
	ID          int         `json:"id"`
	User        User        `json:"user"`
	State       ReviewState `json:"state"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// App identifies the application owning a check run.
type App struct {
	Slug string `json:"slug"`
}

// CheckRun is one run reported by a checks app for a commit.
type CheckRun struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	StartedAt  time.Time `json:"started_at"`
	App        App       `json:"app"`
}

// CheckRun conclusions reported by the forge.
const (
	CheckRunConclusionSuccess   = "success"
	CheckRunConclusionFailure   = "failure"
	CheckRunConclusionSkipped   = "skipped"
	CheckRunConclusionNeutral   = "neutral"
	CheckRunConclusionCancelled = "cancelled"
	CheckRunConclusionTimedOut  = "timed_out"
)

// Label is an issue label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// IssueComment is a comment on an issue or pull request.
type IssueComment struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
	User User   `json:"user"`
}

// StatusState is the state of a commit status.
type StatusState string

const (
	StatusSuccess StatusState = "success"
	StatusFailure StatusState = "failure"
	StatusPending StatusState = "pending"
	StatusError   StatusState = "error"
)

// Status is a commit status, the unit of the combined-status line.
type Status struct {
	State       StatusState `json:"state"`
	Context     string      `json:"context"`
	Description string      `json:"description"`
	TargetURL   string      `json:"target_url,omitempty"`
}

// Reactions the forge accepts on comments.
const (
	ReactionThumbsUp   = "+1"
	ReactionThumbsDown = "-1"
	ReactionLaugh      = "laugh"
	ReactionConfused   = "confused"
	ReactionHeart      = "heart"
	ReactionHooray     = "hooray"
	ReactionRocket     = "rocket"
	ReactionEyes       = "eyes"
)

// Permission levels a user can hold on a repository.
const (
	PermissionNone     = "none"
	PermissionRead     = "read"
	PermissionWrite    = "write"
	PermissionMaintain = "maintain"
	PermissionAdmin    = "admin"
)

// MergeDetails are the desired properties of a merge.
type MergeDetails struct {
	// CommitTitle defaults to the forge's automatic message.
	CommitTitle string `json:"commit_title,omitempty"`
	// CommitMessage is always transmitted; when empty the merge commit
	// body stays empty instead of the forge's automatic commit list.
	CommitMessage string `json:"commit_message"`
	// SHA, if set, must match the PR head to prevent races.
	SHA string `json:"sha,omitempty"`
	// MergeMethod is "merge", "squash", or "rebase".
	MergeMethod string `json:"merge_method,omitempty"`
}

// PullRequestEvent is the payload of a pull_request webhook.
type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Repo        Repo        `json:"repository"`
	Sender      User        `json:"sender"`
	GUID        string      `json:"-"`
}

// Issue is the issue half of an issue_comment payload.
type Issue struct {
	Number      int       `json:"number"`
	State       string    `json:"state"`
	User        User      `json:"user"`
	Body        string    `json:"body"`
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// IsPullRequest reports whether the issue is backed by a pull request.
func (i Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// IssueCommentEvent is the payload of an issue_comment webhook.
type IssueCommentEvent struct {
	Action  string       `json:"action"`
	Issue   Issue        `json:"issue"`
	Comment IssueComment `json:"comment"`
	Repo    Repo         `json:"repository"`
	Sender  User         `json:"sender"`
	GUID    string       `json:"-"`
}

// ReviewEvent is the payload of a pull_request_review webhook.
type ReviewEvent struct {
	Action      string      `json:"action"`
	Review      Review      `json:"review"`
	PullRequest PullRequest `json:"pull_request"`
	Repo        Repo        `json:"repository"`
	Sender      User        `json:"sender"`
	GUID        string      `json:"-"`
}

// CheckSuite is the suite half of a check_suite payload.
type CheckSuite struct {
	HeadSHA      string        `json:"head_sha"`
	Conclusion   string        `json:"conclusion"`
	PullRequests []PullRequest `json:"pull_requests"`
}

// CheckSuiteEvent is the payload of a check_suite webhook.
type CheckSuiteEvent struct {
	Action     string     `json:"action"`
	CheckSuite CheckSuite `json:"check_suite"`
	Repo       Repo       `json:"repository"`
	Sender     User       `json:"sender"`
	GUID       string     `json:"-"`
}

// GenericEvent is the lowest common denominator of webhook payloads, used
// for signature validation.
type GenericEvent struct {
	Repo Repo `json:"repository"`
	Org  User `json:"organization"`
}

// ClientError represents https://developer.github.com/v3/#client-errors.
type ClientError struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
		Message  string `json:"message,omitempty"`
	} `json:"errors,omitempty"`
}
