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

package hook

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/towline-dev/towline/pkg/commands"
	"github.com/towline-dev/towline/pkg/config"
	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/github/fakegithub"
	"github.com/towline-dev/towline/pkg/store"
)

type fakeExecutor struct {
	inputs []commands.Input
}

func (f *fakeExecutor) Execute(_ context.Context, in commands.Input) error {
	f.inputs = append(f.inputs, in)
	return nil
}

type fakeEngine struct {
	syncs   []string
	updates []string
}

func (f *fakeEngine) Sync(_ context.Context, owner, name string, number int) error {
	f.syncs = append(f.syncs, fmt.Sprintf("%s/%s#%d", owner, name, number))
	return nil
}

func (f *fakeEngine) Update(_ context.Context, owner, name string, upstream *github.PullRequest) error {
	f.updates = append(f.updates, fmt.Sprintf("%s/%s#%d", owner, name, upstream.Number))
	return nil
}

type dispatcherFixture struct {
	d        *Dispatcher
	sc       store.Client
	fc       *fakegithub.FakeClient
	executor *fakeExecutor
	engine   *fakeEngine
}

func newDispatcherFixture(t *testing.T, c *config.Config) *dispatcherFixture {
	t.Helper()
	sc, err := store.NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	agent := &config.Agent{}
	agent.Set(c)
	fc := fakegithub.NewFakeClient()
	executor := &fakeExecutor{}
	engine := &fakeEngine{}
	return &dispatcherFixture{
		d:        NewDispatcher(agent, sc, fc, executor, engine),
		sc:       sc,
		fc:       fc,
		executor: executor,
		engine:   engine,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		BotName:              "towline",
		DefaultMergeStrategy: "merge",
	}
}

func openedEvent(body string) github.PullRequestEvent {
	return github.PullRequestEvent{
		Action: "opened",
		Number: 1,
		PullRequest: github.PullRequest{
			Number: 1,
			Title:  "Sample",
			Body:   body,
			User:   github.User{Login: "ferris"},
		},
		Repo: github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
}

func TestOpenedCreatesRowsAndRunsEngine(t *testing.T) {
	c := testConfig()
	c.Server.EnableWelcomeComments = true
	f := newDispatcherFixture(t, c)

	if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), openedEvent("towline qa+")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo, err := f.sc.RepositoriesGet("octo", "ship"); err != nil || repo == nil {
		t.Fatalf("repository row must be created, got %v, %v", repo, err)
	}
	if pr, err := f.sc.PullRequestsGet("octo", "ship", 1); err != nil || pr == nil {
		t.Fatalf("pull request row must be created, got %v, %v", pr, err)
	}
	if len(f.engine.updates) != 1 || f.engine.updates[0] != "octo/ship#1" {
		t.Errorf("expected one engine update, got %v", f.engine.updates)
	}
	if len(f.fc.CommentsCreated) != 1 || !strings.Contains(f.fc.CommentsCreated[0], "Welcome, _ferris_") {
		t.Errorf("expected a welcome comment, got %v", f.fc.CommentsCreated)
	}
	if len(f.executor.inputs) != 1 || f.executor.inputs[0].Body != "towline qa+" || f.executor.inputs[0].CommentID != 0 {
		t.Errorf("PR body must be fed to the executor without a comment id, got %+v", f.executor.inputs)
	}
}

func TestOpenedRedeliveryDoesNotGreetTwice(t *testing.T) {
	c := testConfig()
	c.Server.EnableWelcomeComments = true
	f := newDispatcherFixture(t, c)

	for i := 0; i < 2; i++ {
		if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), openedEvent("")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.fc.CommentsCreated) != 1 {
		t.Errorf("expected a single welcome comment, got %v", f.fc.CommentsCreated)
	}
	if len(f.engine.updates) != 2 {
		t.Errorf("every delivery still runs the engine, got %v", f.engine.updates)
	}
}

func TestOpenedManualInteractionIgnored(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	if _, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship", ManualInteraction: true}); err != nil {
		t.Fatal(err)
	}

	if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), openedEvent("just a description")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr, err := f.sc.PullRequestsGet("octo", "ship", 1); err != nil || pr != nil {
		t.Errorf("no pull request row expected, got %v, %v", pr, err)
	}
	if len(f.engine.updates) != 0 {
		t.Errorf("no engine run expected, got %v", f.engine.updates)
	}
}

func TestOpenedManualInteractionAdminEnable(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	if _, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship", ManualInteraction: true}); err != nil {
		t.Fatal(err)
	}

	if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), openedEvent("towline admin-enable")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pr, err := f.sc.PullRequestsGet("octo", "ship", 1); err != nil || pr == nil {
		t.Errorf("admin-enable in the body must create the row, got %v, %v", pr, err)
	}
}

func TestSynchronizeOnlyTracked(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	ev := openedEvent("")
	ev.Action = "synchronize"

	if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.engine.updates) != 0 {
		t.Errorf("untracked pull requests are ignored, got %v", f.engine.updates)
	}

	repo, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 1, QAStatus: store.StatusSkipped}); err != nil {
		t.Fatal(err)
	}
	if err := f.d.handlePullRequestEvent(logrus.NewEntry(logrus.New()), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.engine.updates) != 1 {
		t.Errorf("expected one engine update, got %v", f.engine.updates)
	}
}

func TestCommentOnTrackedPR(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	repo, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 1, QAStatus: store.StatusSkipped}); err != nil {
		t.Fatal(err)
	}

	ice := github.IssueCommentEvent{
		Action:  "created",
		Issue:   github.Issue{Number: 1, PullRequest: &struct{}{}},
		Comment: github.IssueComment{ID: 7, Body: "towline qa+", User: github.User{Login: "dave"}},
		Repo:    github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
	if err := f.d.handleIssueCommentEvent(logrus.NewEntry(logrus.New()), ice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.executor.inputs) != 1 {
		t.Fatalf("expected one executor call, got %v", f.executor.inputs)
	}
	in := f.executor.inputs[0]
	if in.CommentID != 7 || in.Author != "dave" || in.Number != 1 {
		t.Errorf("wrong input: %+v", in)
	}
}

func TestCommentOnUntrackedPR(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())

	ice := github.IssueCommentEvent{
		Action:  "created",
		Issue:   github.Issue{Number: 1, PullRequest: &struct{}{}},
		Comment: github.IssueComment{ID: 7, Body: "towline qa+", User: github.User{Login: "dave"}},
		Repo:    github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
	if err := f.d.handleIssueCommentEvent(logrus.NewEntry(logrus.New()), ice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.executor.inputs) != 0 {
		t.Errorf("ordinary commands on untracked pull requests are dropped, got %v", f.executor.inputs)
	}

	// admin-enable bootstraps the row through the executor.
	ice.Comment.Body = "towline admin-enable"
	if err := f.d.handleIssueCommentEvent(logrus.NewEntry(logrus.New()), ice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.executor.inputs) != 1 {
		t.Fatalf("expected the bootstrap executor call, got %v", f.executor.inputs)
	}
	if repo, err := f.sc.RepositoriesGet("octo", "ship"); err != nil || repo == nil {
		t.Errorf("repository row must be ensured, got %v, %v", repo, err)
	}
}

func TestNonPullRequestCommentIgnored(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	ice := github.IssueCommentEvent{
		Action:  "created",
		Issue:   github.Issue{Number: 1},
		Comment: github.IssueComment{ID: 7, Body: "towline qa+"},
		Repo:    github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
	if err := f.d.handleIssueCommentEvent(logrus.NewEntry(logrus.New()), ice); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.executor.inputs) != 0 {
		t.Errorf("plain issues are ignored, got %v", f.executor.inputs)
	}
}

func TestCheckSuiteCompleted(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	repo, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 1, QAStatus: store.StatusSkipped}); err != nil {
		t.Fatal(err)
	}

	cse := github.CheckSuiteEvent{
		Action: "completed",
		CheckSuite: github.CheckSuite{
			PullRequests: []github.PullRequest{{Number: 1}, {Number: 2}},
		},
		Repo: github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
	if err := f.d.handleCheckSuiteEvent(logrus.NewEntry(logrus.New()), cse); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.engine.syncs) != 1 || f.engine.syncs[0] != "octo/ship#1" {
		t.Errorf("only the tracked pull request syncs, got %v", f.engine.syncs)
	}
}

func TestReviewSubmitted(t *testing.T) {
	f := newDispatcherFixture(t, testConfig())
	repo, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 1, QAStatus: store.StatusSkipped}); err != nil {
		t.Fatal(err)
	}

	re := github.ReviewEvent{
		Action:      "submitted",
		PullRequest: github.PullRequest{Number: 1},
		Repo:        github.Repo{Owner: github.User{Login: "octo"}, Name: "ship"},
	}
	if err := f.d.handleReviewEvent(logrus.NewEntry(logrus.New()), re); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.engine.syncs) != 1 {
		t.Errorf("expected one sync, got %v", f.engine.syncs)
	}

	re.Action = "dismissed"
	if err := f.d.handleReviewEvent(logrus.NewEntry(logrus.New()), re); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.engine.syncs) != 1 {
		t.Errorf("non-submitted review actions are ignored, got %v", f.engine.syncs)
	}
}
