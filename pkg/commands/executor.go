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
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

// Reactions attached per outcome. At most one of each survives the fold.
const (
	reactionHandled = github.ReactionEyes
	reactionDenied  = github.ReactionThumbsDown
)

type githubClient interface {
	GetPullRequest(org, repo string, number int) (*github.PullRequest, error)
	GetUserPermission(org, repo, user string) (string, error)
	RequestReview(org, repo string, number int, logins []string) error
	UnrequestReview(org, repo string, number int, logins []string) error
	AddLabel(org, repo string, number int, label string) error
	RemoveLabel(org, repo string, number int, label string) error
	CreateComment(org, repo string, number int, comment string) (int, error)
	CreateCommentReaction(org, repo string, id int, reaction string) error
	Merge(org, repo string, number int, details github.MergeDetails) error
}

// GifSearcher returns the URL of the first GIF matching the query, or ""
// when nothing matched.
type GifSearcher interface {
	Search(query string) (string, error)
}

// StatusSyncer re-runs the status engine for a pull request after a
// command batch changed state it derives from.
type StatusSyncer interface {
	Sync(ctx context.Context, owner, name string, number int) error
}

// Executor runs command batches end to end: authorize, dispatch, fold,
// apply.
type Executor struct {
	log      *logrus.Entry
	botName  string
	ghc      githubClient
	sc       store.Client
	gif      GifSearcher
	statuses StatusSyncer
}

// NewExecutor wires an executor. gif may be nil when no provider is
// configured.
func NewExecutor(botName string, ghc githubClient, sc store.Client, gif GifSearcher, statuses StatusSyncer) *Executor {
	return &Executor{
		log:      logrus.WithField("component", "command-executor"),
		botName:  botName,
		ghc:      ghc,
		sc:       sc,
		gif:      gif,
		statuses: statuses,
	}
}

// Input identifies one comment worth of commands and who wrote it.
// CommentID is zero when the commands come from a pull request body or
// the external API, in which case reactions have nowhere to go.
type Input struct {
	Owner  string
	Name   string
	Number int
	Author string
	// CommentID is the forge id of the originating comment.
	CommentID int
	Body      string
	// BypassPermissions skips the forge permission lookup. External
	// accounts use it; they still never pass the admin check.
	BypassPermissions bool
}

// Execute parses the body and runs every command it contains. A command
// that fails to parse or authorize never aborts the batch; infrastructure
// errors are collected and returned after the fold is applied.
func (e *Executor) Execute(ctx context.Context, in Input) error {
	parsed := Parse(e.botName, in.Body)
	if len(parsed) == 0 {
		return nil
	}

	log := e.log.WithFields(logrus.Fields{
		"repo":   fmt.Sprintf("%s/%s", in.Owner, in.Name),
		"pr":     in.Number,
		"author": in.Author,
	})

	var errs *multierror.Error
	var results []CommandExecutionResult
	for _, p := range parsed {
		result, err := e.executeOne(ctx, in, p)
		if err != nil {
			log.WithError(err).Error("Command failed.")
			errs = multierror.Append(errs, err)
			continue
		}
		results = append(results, result)
	}

	folded := Fold(results)
	if err := e.apply(ctx, in, folded); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

func (e *Executor) executeOne(ctx context.Context, in Input, p ParseResult) (CommandExecutionResult, error) {
	if p.Err != nil {
		return CommandExecutionResult{
			HandlingStatus: Denied,
			Actions: []Action{
				PostComment{Body: p.Err.Error()},
				AddReaction{Kind: reactionDenied},
			},
		}, nil
	}

	ok, err := e.authorize(in, p.Command)
	if err != nil {
		return CommandExecutionResult{}, err
	}
	if !ok {
		r := denied()
		r.Actions = append(r.Actions, AddReaction{Kind: reactionDenied})
		return r, nil
	}

	result, err := e.dispatch(ctx, in, p.Command)
	if err != nil {
		return CommandExecutionResult{}, err
	}

	// Quote the command back so a batched reply shows which paragraph
	// belongs to which command.
	recap := fmt.Sprintf("> %s\n\n", p.Command.Recap(e.botName))
	for i, a := range result.Actions {
		if c, ok := a.(PostComment); ok {
			result.Actions[i] = PostComment{Body: recap + c.Body}
		}
	}
	switch result.HandlingStatus {
	case Handled:
		result.Actions = append(result.Actions, AddReaction{Kind: reactionHandled})
	case Denied:
		result.Actions = append(result.Actions, AddReaction{Kind: reactionDenied})
	}
	return result, nil
}

// authorize applies the three-tier model: public verbs for everyone,
// user verbs for forge writers and bot admins, admin verbs for bot admins
// only.
func (e *Executor) authorize(in Input, cmd Command) (bool, error) {
	if IsPublicVerb(cmd.Verb) {
		return true, nil
	}

	if IsAdminVerb(cmd.Verb) {
		if in.BypassPermissions {
			return false, nil
		}
		return e.isBotAdmin(in.Author)
	}

	if in.BypassPermissions {
		return true, nil
	}
	if admin, err := e.isBotAdmin(in.Author); err != nil || admin {
		return admin, err
	}
	perm, err := e.ghc.GetUserPermission(in.Owner, in.Name, in.Author)
	if err != nil {
		return false, err
	}
	switch perm {
	case github.PermissionWrite, github.PermissionMaintain, github.PermissionAdmin:
		return true, nil
	}
	return false, nil
}

func (e *Executor) isBotAdmin(username string) (bool, error) {
	acct, err := e.sc.AccountsGet(username)
	if err != nil {
		return false, err
	}
	return acct != nil && acct.IsAdmin, nil
}

// Fold collapses a batch of results into one. Any Handled wins the status,
// should-update-status is an OR, duplicate reactions are dropped and all
// comments coalesce into a single reply preserving input order.
func Fold(results []CommandExecutionResult) CommandExecutionResult {
	out := CommandExecutionResult{HandlingStatus: Ignored}
	var comments []string
	seenReactions := map[string]bool{}
	for _, r := range results {
		out.HandlingStatus = out.HandlingStatus.Merge(r.HandlingStatus)
		out.ShouldUpdateStatus = out.ShouldUpdateStatus || r.ShouldUpdateStatus
		for _, a := range r.Actions {
			switch a := a.(type) {
			case PostComment:
				comments = append(comments, a.Body)
			case AddReaction:
				if !seenReactions[a.Kind] {
					seenReactions[a.Kind] = true
					out.Actions = append(out.Actions, a)
				}
			}
		}
	}
	if len(comments) > 0 {
		out.Actions = append(out.Actions, PostComment{Body: strings.Join(comments, "\n\n---\n\n")})
	}
	return out
}

// apply publishes the folded outcome: first the status re-run so the
// reply reflects the new state, then reactions and the coalesced comment.
func (e *Executor) apply(ctx context.Context, in Input, folded CommandExecutionResult) error {
	if folded.ShouldUpdateStatus && e.statuses != nil {
		if err := e.statuses.Sync(ctx, in.Owner, in.Name, in.Number); err != nil {
			return err
		}
	}
	for _, a := range folded.Actions {
		switch a := a.(type) {
		case AddReaction:
			if in.CommentID == 0 {
				continue
			}
			if err := e.ghc.CreateCommentReaction(in.Owner, in.Name, in.CommentID, a.Kind); err != nil {
				return err
			}
		case PostComment:
			if _, err := e.ghc.CreateComment(in.Owner, in.Name, in.Number, a.Body); err != nil {
				return err
			}
		}
	}
	return nil
}
