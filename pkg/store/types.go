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

// Package store defines the domain model persisted by towline and the
// contract every backend must honor. The in-memory backend in this package
// is the one used by tests and small deployments.
package store

// StatusState is the lifecycle state of a gate (QA or checks) on a pull
// request.
type StatusState string

const (
	StatusWaiting StatusState = "waiting"
	StatusPass    StatusState = "pass"
	StatusFail    StatusState = "fail"
	StatusSkipped StatusState = "skipped"
)

// MergeStrategy is one of the merge methods the forge supports.
type MergeStrategy string

const (
	StrategyMerge  MergeStrategy = "merge"
	StrategySquash MergeStrategy = "squash"
	StrategyRebase MergeStrategy = "rebase"
)

// ParseMergeStrategy validates a user-supplied strategy name.
func ParseMergeStrategy(s string) (MergeStrategy, bool) {
	switch MergeStrategy(s) {
	case StrategyMerge, StrategySquash, StrategyRebase:
		return MergeStrategy(s), true
	}
	return "", false
}

// RuleBranchWildcard matches any branch in a merge rule.
const RuleBranchWildcard = "*"

// Repository is a tracked repository and its per-repository defaults. New
// pull-request rows are seeded from the Default* fields.
type Repository struct {
	ID                          int           `json:"id"`
	Owner                       string        `json:"owner"`
	Name                        string        `json:"name"`
	ManualInteraction           bool          `json:"manual_interaction"`
	PRTitleValidationRegex      string        `json:"pr_title_validation_regex"`
	DefaultStrategy             MergeStrategy `json:"default_strategy"`
	DefaultNeededReviewersCount int           `json:"default_needed_reviewers_count"`
	DefaultAutomerge            bool          `json:"default_automerge"`
	DefaultEnableQA             bool          `json:"default_enable_qa"`
	DefaultEnableChecks         bool          `json:"default_enable_checks"`
}

// PullRequest is the bot's persisted view of one pull request. It carries
// only the fields the status engine and the command handlers decide on;
// everything else is read live from the forge.
type PullRequest struct {
	ID                   int         `json:"id"`
	RepositoryID         int         `json:"repository_id"`
	Number               int         `json:"number"`
	QAStatus             StatusState `json:"qa_status"`
	NeededReviewersCount int         `json:"needed_reviewers_count"`
	// StatusCommentID is the id of the sticky summary comment the bot owns
	// on this pull request. Zero means no comment has been posted yet; the
	// forge never issues id 0.
	StatusCommentID int  `json:"status_comment_id"`
	ChecksEnabled   bool `json:"checks_enabled"`
	Automerge       bool `json:"automerge"`
	Locked          bool `json:"locked"`
	// StrategyOverride, when non-empty, wins over every merge-rule lookup.
	StrategyOverride MergeStrategy `json:"strategy_override,omitempty"`
}

// MergeRule maps a (base, head) branch pair to a merge strategy. Either
// side may be the wildcard "*"; the (*, *) pair is the repository's
// configured default override.
type MergeRule struct {
	RepositoryID int           `json:"repository_id"`
	BaseBranch   string        `json:"base_branch"`
	HeadBranch   string        `json:"head_branch"`
	Strategy     MergeStrategy `json:"strategy"`
}

// RequiredReviewer is a reviewer whose approval is mandatory for one pull
// request.
type RequiredReviewer struct {
	PullRequestID int    `json:"pull_request_id"`
	Username      string `json:"username"`
}

// Account is a user known to the bot. IsAdmin grants the admin command set;
// it is unrelated to forge-side repository permissions.
type Account struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// ExternalAccount is a non-human account (typically a CI system) that
// authenticates against the external API with tokens signed by PrivateKey.
type ExternalAccount struct {
	Username   string `json:"username"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// ExternalAccountRight grants an external account command injection on one
// repository.
type ExternalAccountRight struct {
	Username     string `json:"username"`
	RepositoryID int    `json:"repository_id"`
}
