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
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/lock"
	"github.com/towline-dev/towline/pkg/store"
)

const (
	summaryLockTTL     = 30 * time.Second
	summaryLockTimeout = 10 * time.Second
	mergeLockTTL       = time.Minute
)

type githubClient interface {
	GetPullRequest(org, repo string, number int) (*github.PullRequest, error)
	ListReviews(org, repo string, number int) ([]github.Review, error)
	ListCheckRuns(org, repo, ref string) ([]github.CheckRun, error)
	GetIssueLabels(org, repo string, number int) ([]github.Label, error)
	ReplaceAllLabels(org, repo string, number int, labels []string) error
	CreateComment(org, repo string, number int, comment string) (int, error)
	EditComment(org, repo string, id int, comment string) error
	CreateStatus(org, repo, ref string, s github.Status) error
	Merge(org, repo string, number int, details github.MergeDetails) error
}

// Engine runs the status pass for one pull request at a time. It is safe
// for concurrent use; per-PR serialization happens through the locker.
type Engine struct {
	log    *logrus.Entry
	ghc    githubClient
	sc     store.Client
	locker lock.Locker
}

// NewEngine wires an engine to its collaborators.
func NewEngine(ghc githubClient, sc store.Client, locker lock.Locker) *Engine {
	return &Engine{
		log:    logrus.WithField("component", "status-engine"),
		ghc:    ghc,
		sc:     sc,
		locker: locker,
	}
}

// Sync refetches the live pull request and runs a full status pass.
func (e *Engine) Sync(ctx context.Context, owner, name string, number int) error {
	upstream, err := e.ghc.GetPullRequest(owner, name, number)
	if err != nil {
		return fmt.Errorf("fetching pull request %s/%s#%d: %w", owner, name, number, err)
	}
	return e.Update(ctx, owner, name, upstream)
}

// Update computes the pull request's status from the store and the given
// live view, then publishes the step label, the sticky summary, the
// combined status and, when eligible, attempts the automatic merge.
func (e *Engine) Update(ctx context.Context, owner, name string, upstream *github.PullRequest) error {
	number := upstream.Number

	var (
		repo     store.Repository
		pr       store.PullRequest
		reviews  []github.Review
		required []store.RequiredReviewer
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		repo, err = e.sc.RepositoriesGetExpect(owner, name)
		return err
	})
	g.Go(func() error {
		var err error
		if pr, err = e.sc.PullRequestsGetExpect(owner, name, number); err != nil {
			return err
		}
		required, err = e.sc.RequiredReviewersList(pr.ID)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = e.ghc.ListReviews(owner, name, number)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("gathering status inputs for %s/%s#%d: %w", owner, name, number, err)
	}

	var runs []github.CheckRun
	if pr.ChecksEnabled {
		var err error
		if runs, err = e.ghc.ListCheckRuns(owner, name, upstream.Head.SHA); err != nil {
			return fmt.Errorf("listing check runs for %s/%s@%s: %w", owner, name, upstream.Head.SHA, err)
		}
	}
	checksStatus := FoldCheckRuns(runs, pr.ChecksEnabled)

	rules, err := e.sc.MergeRulesList(repo.ID)
	if err != nil {
		return err
	}
	strategy := ResolveStrategy(repo, pr, rules, upstream.Base.Ref, upstream.Head.Ref)

	s := Build(repo, pr, upstream, reviews, required, checksStatus, strategy)
	label := ChooseStepLabel(s)

	if err := e.setStepLabel(owner, name, number, label); err != nil {
		return fmt.Errorf("setting step label on %s/%s#%d: %w", owner, name, number, err)
	}
	if err := e.publishSummary(ctx, owner, name, number, repo, &pr, s); err != nil {
		return fmt.Errorf("publishing summary for %s/%s#%d: %w", owner, name, number, err)
	}

	state, desc := CombinedStatus(s)
	if err := e.ghc.CreateStatus(owner, name, upstream.Head.SHA, github.Status{
		State:       state,
		Context:     StatusTitle,
		Description: truncateDescription(desc),
	}); err != nil {
		return fmt.Errorf("updating combined status for %s/%s#%d: %w", owner, name, number, err)
	}

	if label == StepAwaitingMerge && !upstream.Merged && pr.Automerge {
		return e.tryAutoMerge(ctx, owner, name, upstream, repo, &pr, s)
	}
	return nil
}

// setStepLabel replaces every step/* label with exactly the chosen one.
func (e *Engine) setStepLabel(owner, name string, number int, label StepLabel) error {
	current, err := e.ghc.GetIssueLabels(owner, name, number)
	if err != nil {
		return err
	}
	var next []string
	present := false
	for _, l := range current {
		if IsStepLabel(l.Name) {
			if l.Name == string(label) && !present {
				present = true
				next = append(next, l.Name)
			}
			continue
		}
		next = append(next, l.Name)
	}
	if !present {
		next = append(next, string(label))
	}
	return e.ghc.ReplaceAllLabels(owner, name, number, next)
}

// publishSummary creates or edits the sticky comment under the per-PR
// summary lock. A persisted comment id that no longer resolves is treated
// as absent.
func (e *Engine) publishSummary(ctx context.Context, owner, name string, number int, repo store.Repository, pr *store.PullRequest, s PullRequestStatus) error {
	lockName := fmt.Sprintf("summary-%s-%s-%d", owner, name, number)
	l, err := e.locker.Acquire(ctx, lockName, summaryLockTTL, summaryLockTimeout)
	if err != nil {
		return fmt.Errorf("acquiring summary lock %q: %w", lockName, err)
	}
	defer l.Release()

	body := RenderSummary(owner, name, number, repo.PRTitleValidationRegex, s)
	if pr.StatusCommentID != 0 {
		err := e.ghc.EditComment(owner, name, pr.StatusCommentID, body)
		if err == nil {
			return nil
		}
		if !github.IsNotFound(err) {
			return err
		}
		e.log.WithField("comment", pr.StatusCommentID).Info("Sticky comment vanished, posting a new one.")
	}
	id, err := e.ghc.CreateComment(owner, name, number, body)
	if err != nil {
		return err
	}
	pr.StatusCommentID = id
	return e.sc.PullRequestsSetStatusCommentID(pr.ID, id)
}

// tryAutoMerge merges the pull request under the per-PR merge try-lock. A
// held lock means another pass is already merging; a merge refusal turns
// automerge off and tells the author.
func (e *Engine) tryAutoMerge(ctx context.Context, owner, name string, upstream *github.PullRequest, repo store.Repository, pr *store.PullRequest, s PullRequestStatus) error {
	number := upstream.Number
	lockName := fmt.Sprintf("pr-merge_%s-%s_%d", owner, name, number)
	l, err := e.locker.TryAcquire(ctx, lockName, mergeLockTTL)
	if err == lock.ErrBusy {
		e.log.WithField("lock", lockName).Debug("Merge lock held elsewhere, skipping auto-merge pass.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquiring merge lock %q: %w", lockName, err)
	}
	defer l.Release()

	mergeErr := e.ghc.Merge(owner, name, number, github.MergeDetails{
		CommitTitle: fmt.Sprintf("%s (#%d)", upstream.Title, number),
		MergeMethod: string(s.MergeStrategy),
	})
	if mergeErr == nil {
		_, err := e.ghc.CreateComment(owner, name, number,
			fmt.Sprintf("Pull request successfully auto-merged! (strategy: '%s')", s.MergeStrategy))
		return err
	}
	if !github.IsMergeRefused(mergeErr) {
		return fmt.Errorf("auto-merging %s/%s#%d: %w", owner, name, number, mergeErr)
	}

	if err := e.sc.PullRequestsSetAutomerge(pr.ID, false); err != nil {
		return err
	}
	pr.Automerge = false
	s.Automerge = false
	if _, err := e.ghc.CreateComment(owner, name, number,
		fmt.Sprintf("Could not auto-merge this pull request: _%s_\nAuto-merge disabled", mergeErr.Error())); err != nil {
		return err
	}
	return e.publishSummary(ctx, owner, name, number, repo, pr, s)
}
