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
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/status"
	"github.com/towline-dev/towline/pkg/store"
)

// dispatch routes a parsed command to its handler. Authorization already
// happened.
func (e *Executor) dispatch(ctx context.Context, in Input, cmd Command) (CommandExecutionResult, error) {
	switch cmd.Verb {
	case "automerge+":
		return e.setAutomerge(in, true)
	case "automerge-":
		return e.setAutomerge(in, false)
	case "noqa+":
		return e.setQAStatus(in, store.StatusSkipped, "QA skipped.")
	case "noqa-":
		return e.setQAStatus(in, store.StatusWaiting, "QA reinstated.")
	case "qa+":
		return e.setQAStatus(in, store.StatusPass, "QA passed.")
	case "qa-":
		return e.setQAStatus(in, store.StatusFail, "QA failed.")
	case "qa?":
		return e.setQAStatus(in, store.StatusWaiting, "QA reset.")
	case "nochecks+":
		return e.setChecksEnabled(in, false, "Checks skipped.")
	case "nochecks-":
		return e.setChecksEnabled(in, true, "Checks reinstated.")
	case "lock+":
		return e.setLocked(in, true, cmd.Args)
	case "lock-":
		return e.setLocked(in, false, cmd.Args)
	case "strategy+":
		return e.setStrategyOverride(in, store.MergeStrategy(cmd.Args[0]))
	case "strategy-":
		return e.setStrategyOverride(in, "")
	case "r+":
		return e.assignReviewers(in, cmd.Args)
	case "r-":
		return e.unassignReviewers(in, cmd.Args)
	case "req+":
		return e.addRequiredReviewers(in, cmd.Args)
	case "req-":
		return e.removeRequiredReviewers(in, cmd.Args)
	case "labels+":
		return e.addLabels(in, cmd.Args)
	case "labels-":
		return e.removeLabels(in, cmd.Args)
	case "merge":
		return e.merge(in, cmd.Args)
	case "gif":
		return e.gifComment(cmd.Args)
	case "ping":
		return handled("pong!", false), nil
	case "is-admin":
		return e.isAdmin(in)
	case "help":
		return handled(helpText(e.botName), false), nil
	case "admin-help":
		return handled(adminHelpText(e.botName), false), nil
	case "admin-sync":
		return CommandExecutionResult{ShouldUpdateStatus: true, HandlingStatus: Handled}, nil
	case "admin-enable":
		return e.enable(in)
	case "admin-disable":
		return e.disable(in)
	case "admin-reset-summary":
		return e.resetSummary(in)
	case "admin-add-merge-rule":
		return e.addMergeRule(in, cmd.Args)
	case "admin-set-default-needed-reviewers":
		return e.setDefaultNeededReviewers(in, cmd.Args[0])
	case "admin-set-default-merge-strategy":
		return e.setDefaultStrategy(in, store.MergeStrategy(cmd.Args[0]))
	case "admin-set-default-pr-title-regex":
		return e.setTitleRegex(in, cmd.Args[0])
	case "admin-set-default-qa-status+":
		return e.setDefaultEnableQA(in, true)
	case "admin-set-default-qa-status-":
		return e.setDefaultEnableQA(in, false)
	case "admin-set-default-checks-status+":
		return e.setDefaultEnableChecks(in, true)
	case "admin-set-default-checks-status-":
		return e.setDefaultEnableChecks(in, false)
	case "admin-set-default-automerge+":
		return e.setDefaultAutomerge(in, true)
	case "admin-set-default-automerge-":
		return e.setDefaultAutomerge(in, false)
	case "admin-set-needed-reviewers":
		return e.setNeededReviewers(in, cmd.Args[0])
	}
	return CommandExecutionResult{}, fmt.Errorf("no handler for verb %q", cmd.Verb)
}

func (e *Executor) prRow(in Input) (store.PullRequest, error) {
	return e.sc.PullRequestsGetExpect(in.Owner, in.Name, in.Number)
}

func (e *Executor) repoRow(in Input) (store.Repository, error) {
	return e.sc.RepositoriesGetExpect(in.Owner, in.Name)
}

func (e *Executor) setAutomerge(in Input, on bool) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetAutomerge(pr.ID, on); err != nil {
		return CommandExecutionResult{}, err
	}
	if on {
		return handled("Automerge enabled.", true), nil
	}
	return handled("Automerge disabled.", true), nil
}

func (e *Executor) setQAStatus(in Input, state store.StatusState, comment string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetQAStatus(pr.ID, state); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(comment, true), nil
}

func (e *Executor) setChecksEnabled(in Input, enabled bool, comment string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetChecksEnabled(pr.ID, enabled); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(comment, true), nil
}

func (e *Executor) setLocked(in Input, locked bool, reason []string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetLocked(pr.ID, locked); err != nil {
		return CommandExecutionResult{}, err
	}
	comment := "Pull request unlocked."
	if locked {
		comment = "Pull request locked."
	}
	if len(reason) > 0 {
		comment = fmt.Sprintf("%s Reason: %s", comment, strings.Join(reason, " "))
	}
	return handled(comment, true), nil
}

func (e *Executor) setStrategyOverride(in Input, strategy store.MergeStrategy) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetStrategyOverride(pr.ID, strategy); err != nil {
		return CommandExecutionResult{}, err
	}
	if strategy == "" {
		return handled("Merge strategy override removed.", true), nil
	}
	return handled(fmt.Sprintf("Merge strategy set to '%s'.", strategy), true), nil
}

func (e *Executor) assignReviewers(in Input, users []string) (CommandExecutionResult, error) {
	if err := e.ghc.RequestReview(in.Owner, in.Name, in.Number, users); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Reviewers assigned: %s.", strings.Join(users, ", ")), true), nil
}

func (e *Executor) unassignReviewers(in Input, users []string) (CommandExecutionResult, error) {
	if err := e.ghc.UnrequestReview(in.Owner, in.Name, in.Number, users); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Reviewers unassigned: %s.", strings.Join(users, ", ")), true), nil
}

func (e *Executor) addRequiredReviewers(in Input, users []string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	for _, u := range users {
		if err := e.sc.RequiredReviewersCreate(store.RequiredReviewer{PullRequestID: pr.ID, Username: u}); err != nil {
			return CommandExecutionResult{}, err
		}
	}
	if err := e.ghc.RequestReview(in.Owner, in.Name, in.Number, users); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Required reviewers added: %s.", strings.Join(users, ", ")), true), nil
}

func (e *Executor) removeRequiredReviewers(in Input, users []string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	for _, u := range users {
		if err := e.sc.RequiredReviewersDelete(pr.ID, u); err != nil {
			return CommandExecutionResult{}, err
		}
	}
	if err := e.ghc.UnrequestReview(in.Owner, in.Name, in.Number, users); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Required reviewers removed: %s.", strings.Join(users, ", ")), true), nil
}

func (e *Executor) addLabels(in Input, labels []string) (CommandExecutionResult, error) {
	for _, l := range labels {
		if err := e.ghc.AddLabel(in.Owner, in.Name, in.Number, l); err != nil {
			return CommandExecutionResult{}, err
		}
	}
	return handled(fmt.Sprintf("Labels added: %s.", strings.Join(labels, ", ")), false), nil
}

func (e *Executor) removeLabels(in Input, labels []string) (CommandExecutionResult, error) {
	for _, l := range labels {
		if err := e.ghc.RemoveLabel(in.Owner, in.Name, in.Number, l); err != nil {
			return CommandExecutionResult{}, err
		}
	}
	return handled(fmt.Sprintf("Labels removed: %s.", strings.Join(labels, ", ")), false), nil
}

func (e *Executor) merge(in Input, args []string) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	upstream, err := e.ghc.GetPullRequest(in.Owner, in.Name, in.Number)
	if err != nil {
		return CommandExecutionResult{}, err
	}

	var strategy store.MergeStrategy
	if len(args) == 1 {
		strategy = store.MergeStrategy(args[0])
	} else {
		rules, err := e.sc.MergeRulesList(repo.ID)
		if err != nil {
			return CommandExecutionResult{}, err
		}
		strategy = status.ResolveStrategy(repo, pr, rules, upstream.Base.Ref, upstream.Head.Ref)
	}

	mergeErr := e.ghc.Merge(in.Owner, in.Name, in.Number, github.MergeDetails{
		CommitTitle: fmt.Sprintf("%s (#%d)", upstream.Title, upstream.Number),
		MergeMethod: string(strategy),
	})
	if mergeErr == nil {
		return handled(fmt.Sprintf("Pull request successfully merged! (strategy: '%s')", strategy), true), nil
	}
	if !github.IsMergeRefused(mergeErr) {
		return CommandExecutionResult{}, mergeErr
	}
	return handled(fmt.Sprintf("Could not merge this pull request: _%s_", mergeErr.Error()), true), nil
}

func (e *Executor) gifComment(terms []string) (CommandExecutionResult, error) {
	if e.gif == nil {
		return handled("GIF search is not configured.", false), nil
	}
	query := strings.Join(terms, " ")
	url, err := e.gif.Search(query)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if url == "" {
		return handled(fmt.Sprintf("No GIF found for _%s_ :cry:", query), false), nil
	}
	return handled(fmt.Sprintf("![GIF](%s)", url), false), nil
}

func (e *Executor) isAdmin(in Input) (CommandExecutionResult, error) {
	acct, err := e.sc.AccountsGet(in.Author)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if acct != nil && acct.IsAdmin {
		return handled("You are an administrator.", false), nil
	}
	return handled("You are not an administrator.", false), nil
}

func (e *Executor) enable(in Input) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	existing, err := e.sc.PullRequestsGet(in.Owner, in.Name, in.Number)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if existing == nil {
		if _, err := e.sc.PullRequestsCreate(NewPullRequestFromDefaults(repo, in.Number)); err != nil {
			return CommandExecutionResult{}, err
		}
	}
	return handled("Pull request activated.", true), nil
}

func (e *Executor) disable(in Input) (CommandExecutionResult, error) {
	if err := e.sc.PullRequestsDelete(in.Owner, in.Name, in.Number); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled("Pull request deactivated.", false), nil
}

func (e *Executor) resetSummary(in Input) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.PullRequestsSetStatusCommentID(pr.ID, 0); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled("Summary comment reset.", true), nil
}

func (e *Executor) addMergeRule(in Input, args []string) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	rule := store.MergeRule{
		RepositoryID: repo.ID,
		BaseBranch:   args[0],
		HeadBranch:   args[1],
		Strategy:     store.MergeStrategy(args[2]),
	}
	if err := e.sc.MergeRulesSave(rule); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Merge rule for base '%s' and head '%s' set to '%s'.", rule.BaseBranch, rule.HeadBranch, rule.Strategy), false), nil
}

func (e *Executor) setDefaultNeededReviewers(in Input, arg string) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	n, _ := strconv.Atoi(arg)
	if err := e.sc.RepositoriesSetDefaultNeededReviewersCount(repo.ID, n); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Default needed reviewers count set to %d.", n), false), nil
}

func (e *Executor) setDefaultStrategy(in Input, strategy store.MergeStrategy) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.RepositoriesSetDefaultStrategy(repo.ID, strategy); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Default merge strategy set to '%s'.", strategy), false), nil
}

func (e *Executor) setTitleRegex(in Input, regex string) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.RepositoriesSetPRTitleValidationRegex(repo.ID, regex); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("PR title validation regex set to '%s'.", regex), true), nil
}

func (e *Executor) setDefaultEnableQA(in Input, enabled bool) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.RepositoriesSetDefaultEnableQA(repo.ID, enabled); err != nil {
		return CommandExecutionResult{}, err
	}
	if enabled {
		return handled("QA enabled by default.", false), nil
	}
	return handled("QA disabled by default.", false), nil
}

func (e *Executor) setDefaultEnableChecks(in Input, enabled bool) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.RepositoriesSetDefaultEnableChecks(repo.ID, enabled); err != nil {
		return CommandExecutionResult{}, err
	}
	if enabled {
		return handled("Checks enabled by default.", false), nil
	}
	return handled("Checks disabled by default.", false), nil
}

func (e *Executor) setDefaultAutomerge(in Input, enabled bool) (CommandExecutionResult, error) {
	repo, err := e.repoRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if err := e.sc.RepositoriesSetDefaultAutomerge(repo.ID, enabled); err != nil {
		return CommandExecutionResult{}, err
	}
	if enabled {
		return handled("Automerge enabled by default.", false), nil
	}
	return handled("Automerge disabled by default.", false), nil
}

func (e *Executor) setNeededReviewers(in Input, arg string) (CommandExecutionResult, error) {
	pr, err := e.prRow(in)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	n, _ := strconv.Atoi(arg)
	if err := e.sc.PullRequestsSetNeededReviewersCount(pr.ID, n); err != nil {
		return CommandExecutionResult{}, err
	}
	return handled(fmt.Sprintf("Needed reviewers count set to %d.", n), true), nil
}

// NewPullRequestFromDefaults seeds a fresh pull-request row from the
// repository's defaults. Disabled QA freezes the gate at Skipped.
func NewPullRequestFromDefaults(repo store.Repository, number int) store.PullRequest {
	qa := store.StatusWaiting
	if !repo.DefaultEnableQA {
		qa = store.StatusSkipped
	}
	return store.PullRequest{
		RepositoryID:         repo.ID,
		Number:               number,
		QAStatus:             qa,
		NeededReviewersCount: repo.DefaultNeededReviewersCount,
		ChecksEnabled:        repo.DefaultEnableChecks,
		Automerge:            repo.DefaultAutomerge,
	}
}
