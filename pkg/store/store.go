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

package store

// Client is the persistence contract the core depends on. Get methods
// return a nil pointer when the key is absent; the Expect variants turn the
// absence into the matching Unknown* error. Natural-key saves behave as
// compare-and-set upserts under the backend's transactional discipline.
//
// Deleting a repository cascades to its pull requests, merge rules and
// external account rights; deleting a pull request cascades to its required
// reviewers.
type Client interface {
	// Repositories.
	RepositoriesCreate(repo Repository) (Repository, error)
	RepositoriesUpdate(repo Repository) error
	RepositoriesGet(owner, name string) (*Repository, error)
	RepositoriesGetExpect(owner, name string) (Repository, error)
	RepositoriesGetFromID(id int) (*Repository, error)
	RepositoriesGetFromIDExpect(id int) (Repository, error)
	RepositoriesList() ([]Repository, error)
	RepositoriesDelete(owner, name string) error
	RepositoriesSetManualInteraction(id int, value bool) error
	RepositoriesSetPRTitleValidationRegex(id int, value string) error
	RepositoriesSetDefaultStrategy(id int, value MergeStrategy) error
	RepositoriesSetDefaultNeededReviewersCount(id int, value int) error
	RepositoriesSetDefaultAutomerge(id int, value bool) error
	RepositoriesSetDefaultEnableQA(id int, value bool) error
	RepositoriesSetDefaultEnableChecks(id int, value bool) error

	// Pull requests.
	PullRequestsCreate(pr PullRequest) (PullRequest, error)
	PullRequestsUpdate(pr PullRequest) error
	PullRequestsGet(owner, name string, number int) (*PullRequest, error)
	PullRequestsGetExpect(owner, name string, number int) (PullRequest, error)
	PullRequestsGetFromID(id int) (*PullRequest, error)
	PullRequestsList(owner, name string) ([]PullRequest, error)
	PullRequestsDelete(owner, name string, number int) error
	PullRequestsSetQAStatus(id int, value StatusState) error
	PullRequestsSetNeededReviewersCount(id int, value int) error
	PullRequestsSetStatusCommentID(id int, value int) error
	PullRequestsSetChecksEnabled(id int, value bool) error
	PullRequestsSetAutomerge(id int, value bool) error
	PullRequestsSetLocked(id int, value bool) error
	PullRequestsSetStrategyOverride(id int, value MergeStrategy) error

	// Merge rules. Save upserts on the (repository, base, head) key.
	MergeRulesSave(rule MergeRule) error
	MergeRulesGet(repositoryID int, base, head string) (*MergeRule, error)
	MergeRulesGetExpect(repositoryID int, base, head string) (MergeRule, error)
	MergeRulesList(repositoryID int) ([]MergeRule, error)
	MergeRulesDelete(repositoryID int, base, head string) error

	// Required reviewers. Create is idempotent on the (pr, username) key.
	RequiredReviewersCreate(reviewer RequiredReviewer) error
	RequiredReviewersList(pullRequestID int) ([]RequiredReviewer, error)
	RequiredReviewersDelete(pullRequestID int, username string) error

	// Accounts.
	AccountsSave(account Account) error
	AccountsGet(username string) (*Account, error)
	AccountsList() ([]Account, error)
	AccountsDelete(username string) error

	// External accounts and their per-repository rights.
	ExternalAccountsCreate(account ExternalAccount) error
	ExternalAccountsGet(username string) (*ExternalAccount, error)
	ExternalAccountsGetExpect(username string) (ExternalAccount, error)
	ExternalAccountsList() ([]ExternalAccount, error)
	ExternalAccountsDelete(username string) error
	ExternalAccountRightsCreate(right ExternalAccountRight) error
	ExternalAccountRightsGet(username string, repositoryID int) (*ExternalAccountRight, error)
	ExternalAccountRightsList(username string) ([]ExternalAccountRight, error)
	ExternalAccountRightsListByRepository(repositoryID int) ([]ExternalAccountRight, error)
	ExternalAccountRightsDelete(username string, repositoryID int) error

	// HealthCheck reports whether the backend can serve reads and writes.
	HealthCheck() error
}
