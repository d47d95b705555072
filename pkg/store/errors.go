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

import "fmt"

// UnknownRepositoryError is returned when a repository natural key does not
// resolve.
type UnknownRepositoryError struct {
	Owner string
	Name  string
}

func (e UnknownRepositoryError) Error() string {
	return fmt.Sprintf("unknown repository %s/%s", e.Owner, e.Name)
}

// UnknownRepositoryIDError is returned when a repository id does not resolve,
// including on creation of rows with a dangling repository_id.
type UnknownRepositoryIDError struct {
	ID int
}

func (e UnknownRepositoryIDError) Error() string {
	return fmt.Sprintf("unknown repository id %d", e.ID)
}

// UnknownPullRequestError is returned when a pull request key does not
// resolve.
type UnknownPullRequestError struct {
	Owner  string
	Name   string
	Number int
}

func (e UnknownPullRequestError) Error() string {
	return fmt.Sprintf("unknown pull request %s/%s#%d", e.Owner, e.Name, e.Number)
}

// UnknownPullRequestIDError is returned when a pull request id does not
// resolve, including on creation of required reviewers with a dangling
// pull_request_id.
type UnknownPullRequestIDError struct {
	ID int
}

func (e UnknownPullRequestIDError) Error() string {
	return fmt.Sprintf("unknown pull request id %d", e.ID)
}

// UnknownMergeRuleError is returned when a merge rule composite key does not
// resolve.
type UnknownMergeRuleError struct {
	RepositoryID int
	BaseBranch   string
	HeadBranch   string
}

func (e UnknownMergeRuleError) Error() string {
	return fmt.Sprintf("unknown merge rule (%s, %s) for repository id %d", e.BaseBranch, e.HeadBranch, e.RepositoryID)
}

// UnknownAccountError is returned when an account username does not resolve.
type UnknownAccountError struct {
	Username string
}

func (e UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account %q", e.Username)
}

// UnknownExternalAccountError is returned when an external account username
// does not resolve, including on creation of rights with a dangling
// username.
type UnknownExternalAccountError struct {
	Username string
}

func (e UnknownExternalAccountError) Error() string {
	return fmt.Sprintf("unknown external account %q", e.Username)
}
