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

// Package hook receives forge webhooks, validates their signatures and
// routes each event to the command executor or the status engine.
package hook

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/towline-dev/towline/pkg/commands"
	"github.com/towline-dev/towline/pkg/config"
	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/store"
)

type githubClient interface {
	CreateComment(org, repo string, number int, comment string) (int, error)
}

type commandExecutor interface {
	Execute(ctx context.Context, in commands.Input) error
}

type statusEngine interface {
	Sync(ctx context.Context, owner, name string, number int) error
	Update(ctx context.Context, owner, name string, upstream *github.PullRequest) error
}

// welcomeComment greets first-time pull requests when enabled.
const welcomeComment = ":tada: Welcome, _%s_ ! :tada:\nThanks for your pull request, it will be reviewed soon. :clock2:"

// Dispatcher maps webhook events onto the bot's two entry points: the
// command executor for comments and the status engine for everything
// else.
type Dispatcher struct {
	configAgent *config.Agent
	sc          store.Client
	ghc         githubClient
	executor    commandExecutor
	engine      statusEngine
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(configAgent *config.Agent, sc store.Client, ghc githubClient, executor commandExecutor, engine statusEngine) *Dispatcher {
	return &Dispatcher{
		configAgent: configAgent,
		sc:          sc,
		ghc:         ghc,
		executor:    executor,
		engine:      engine,
	}
}

// prSyncActions are the pull_request actions that trigger a plain status
// re-run on tracked pull requests.
var prSyncActions = map[string]bool{
	"synchronize":            true,
	"reopened":               true,
	"ready_for_review":       true,
	"converted_to_draft":     true,
	"closed":                 true,
	"review_requested":       true,
	"review_request_removed": true,
	"edited":                 true,
}

func (d *Dispatcher) handlePullRequestEvent(l *logrus.Entry, pre github.PullRequestEvent) error {
	ctx := context.Background()
	owner, name := pre.Repo.Owner.Login, pre.Repo.Name

	switch {
	case pre.Action == "opened":
		return d.handleOpened(ctx, l, pre)
	case prSyncActions[pre.Action]:
		tracked, err := d.sc.PullRequestsGet(owner, name, pre.Number)
		if err != nil {
			return err
		}
		if tracked == nil {
			return nil
		}
		return d.engine.Update(ctx, owner, name, &pre.PullRequest)
	}
	return nil
}

func (d *Dispatcher) handleOpened(ctx context.Context, l *logrus.Entry, pre github.PullRequestEvent) error {
	c := d.configAgent.Config()
	owner, name := pre.Repo.Owner.Login, pre.Repo.Name

	repo, err := d.ensureRepository(owner, name)
	if err != nil {
		return err
	}

	tracked, err := d.sc.PullRequestsGet(owner, name, pre.Number)
	if err != nil {
		return err
	}
	created := false
	if tracked == nil {
		if repo.ManualInteraction && !containsAdminEnable(c.BotName, pre.PullRequest.Body) {
			l.Debug("Repository requires manual interaction, ignoring opened pull request.")
			return nil
		}
		if _, err := d.sc.PullRequestsCreate(commands.NewPullRequestFromDefaults(repo, pre.Number)); err != nil {
			return err
		}
		created = true
	}

	if err := d.engine.Update(ctx, owner, name, &pre.PullRequest); err != nil {
		return err
	}
	// A redelivered opened event must not greet twice.
	if created && c.Server.EnableWelcomeComments {
		if _, err := d.ghc.CreateComment(owner, name, pre.Number, fmt.Sprintf(welcomeComment, pre.PullRequest.User.Login)); err != nil {
			return err
		}
	}

	// The PR body may itself carry commands.
	return d.executor.Execute(ctx, commands.Input{
		Owner:  owner,
		Name:   name,
		Number: pre.Number,
		Author: pre.PullRequest.User.Login,
		Body:   pre.PullRequest.Body,
	})
}

func (d *Dispatcher) handleIssueCommentEvent(l *logrus.Entry, ice github.IssueCommentEvent) error {
	ctx := context.Background()
	if ice.Action != "created" || !ice.Issue.IsPullRequest() {
		return nil
	}
	c := d.configAgent.Config()
	owner, name := ice.Repo.Owner.Login, ice.Repo.Name

	in := commands.Input{
		Owner:     owner,
		Name:      name,
		Number:    ice.Issue.Number,
		Author:    ice.Comment.User.Login,
		CommentID: ice.Comment.ID,
		Body:      ice.Comment.Body,
	}

	tracked, err := d.sc.PullRequestsGet(owner, name, ice.Issue.Number)
	if err != nil {
		return err
	}
	if tracked != nil {
		return d.executor.Execute(ctx, in)
	}
	if containsAdminEnable(c.BotName, ice.Comment.Body) {
		// Bootstrap path: an admin-enable on an untracked PR creates the
		// row, then the executor re-runs the status engine.
		if _, err := d.ensureRepository(owner, name); err != nil {
			return err
		}
		return d.executor.Execute(ctx, in)
	}
	l.Debug("Comment on untracked pull request, dropping.")
	return nil
}

func (d *Dispatcher) handleReviewEvent(l *logrus.Entry, re github.ReviewEvent) error {
	if re.Action != "submitted" {
		return nil
	}
	owner, name := re.Repo.Owner.Login, re.Repo.Name
	tracked, err := d.sc.PullRequestsGet(owner, name, re.PullRequest.Number)
	if err != nil {
		return err
	}
	if tracked == nil {
		return nil
	}
	return d.engine.Sync(context.Background(), owner, name, re.PullRequest.Number)
}

func (d *Dispatcher) handleCheckSuiteEvent(l *logrus.Entry, cse github.CheckSuiteEvent) error {
	if cse.Action != "completed" {
		return nil
	}
	owner, name := cse.Repo.Owner.Login, cse.Repo.Name
	for _, pr := range cse.CheckSuite.PullRequests {
		tracked, err := d.sc.PullRequestsGet(owner, name, pr.Number)
		if err != nil {
			return err
		}
		if tracked == nil {
			continue
		}
		if err := d.engine.Sync(context.Background(), owner, name, pr.Number); err != nil {
			return err
		}
	}
	return nil
}

// ensureRepository upserts the repository row from the config seeds.
func (d *Dispatcher) ensureRepository(owner, name string) (store.Repository, error) {
	existing, err := d.sc.RepositoriesGet(owner, name)
	if err != nil {
		return store.Repository{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	return d.sc.RepositoriesCreate(d.configAgent.Config().SeedRepository(owner, name))
}

func containsAdminEnable(botName, body string) bool {
	for _, r := range commands.Parse(botName, body) {
		if r.Err == nil && r.Command.Verb == "admin-enable" {
			return true
		}
	}
	return false
}
