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

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type repoKey struct {
	owner string
	name  string
}

type prKey struct {
	repositoryID int
	number       int
}

type ruleKey struct {
	repositoryID int
	base         string
	head         string
}

type reviewerKey struct {
	pullRequestID int
	username      string
}

type rightKey struct {
	username     string
	repositoryID int
}

// MemoryStore is the in-memory Client implementation. All rows live behind
// one RWMutex; ids are assigned from a monotonic counter. An optional
// snapshot file can seed the store at construction and persist it on
// demand.
type MemoryStore struct {
	mut sync.RWMutex

	nextID        int
	repositories  map[int]Repository
	repoByKey     map[repoKey]int
	pullRequests  map[int]PullRequest
	prByKey       map[prKey]int
	mergeRules    map[ruleKey]MergeRule
	reviewers     map[reviewerKey]RequiredReviewer
	accounts      map[string]Account
	externals     map[string]ExternalAccount
	rights        map[rightKey]ExternalAccountRight
	snapshotPath  string
}

// snapshot is the JSON shape persisted by Save.
type snapshot struct {
	NextID            int                    `json:"next_id"`
	Repositories      []Repository           `json:"repositories"`
	PullRequests      []PullRequest          `json:"pull_requests"`
	MergeRules        []MergeRule            `json:"merge_rules"`
	RequiredReviewers []RequiredReviewer     `json:"required_reviewers"`
	Accounts          []Account              `json:"accounts"`
	ExternalAccounts  []ExternalAccount      `json:"external_accounts"`
	Rights            []ExternalAccountRight `json:"external_account_rights"`
}

// NewMemoryStore builds an empty store. If snapshotPath is non-empty and the
// file exists, its rows are loaded first.
func NewMemoryStore(snapshotPath string) (*MemoryStore, error) {
	s := &MemoryStore{
		nextID:       1,
		repositories: map[int]Repository{},
		repoByKey:    map[repoKey]int{},
		pullRequests: map[int]PullRequest{},
		prByKey:      map[prKey]int{},
		mergeRules:   map[ruleKey]MergeRule{},
		reviewers:    map[reviewerKey]RequiredReviewer{},
		accounts:     map[string]Account{},
		externals:    map[string]ExternalAccount{},
		rights:       map[rightKey]ExternalAccountRight{},
		snapshotPath: snapshotPath,
	}
	if snapshotPath == "" {
		return s, nil
	}
	buf, err := ioutil.ReadFile(snapshotPath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var data snapshot
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("parsing store snapshot %s: %w", snapshotPath, err)
	}
	s.load(data)
	logrus.WithField("path", snapshotPath).Infof("Loaded %d repositories and %d pull requests from snapshot.", len(s.repositories), len(s.pullRequests))
	return s, nil
}

func (s *MemoryStore) load(data snapshot) {
	s.nextID = data.NextID
	if s.nextID < 1 {
		s.nextID = 1
	}
	for _, r := range data.Repositories {
		s.repositories[r.ID] = r
		s.repoByKey[repoKey{r.Owner, r.Name}] = r.ID
	}
	for _, pr := range data.PullRequests {
		s.pullRequests[pr.ID] = pr
		s.prByKey[prKey{pr.RepositoryID, pr.Number}] = pr.ID
	}
	for _, rule := range data.MergeRules {
		s.mergeRules[ruleKey{rule.RepositoryID, rule.BaseBranch, rule.HeadBranch}] = rule
	}
	for _, rev := range data.RequiredReviewers {
		s.reviewers[reviewerKey{rev.PullRequestID, rev.Username}] = rev
	}
	for _, a := range data.Accounts {
		s.accounts[a.Username] = a
	}
	for _, e := range data.ExternalAccounts {
		s.externals[e.Username] = e
	}
	for _, r := range data.Rights {
		s.rights[rightKey{r.Username, r.RepositoryID}] = r
	}
}

// Save writes the current rows to the snapshot file, if one is configured.
func (s *MemoryStore) Save() error {
	if s.snapshotPath == "" {
		return nil
	}
	s.mut.RLock()
	data := snapshot{NextID: s.nextID}
	for _, r := range s.repositories {
		data.Repositories = append(data.Repositories, r)
	}
	for _, pr := range s.pullRequests {
		data.PullRequests = append(data.PullRequests, pr)
	}
	for _, rule := range s.mergeRules {
		data.MergeRules = append(data.MergeRules, rule)
	}
	for _, rev := range s.reviewers {
		data.RequiredReviewers = append(data.RequiredReviewers, rev)
	}
	for _, a := range s.accounts {
		data.Accounts = append(data.Accounts, a)
	}
	for _, e := range s.externals {
		data.ExternalAccounts = append(data.ExternalAccounts, e)
	}
	for _, r := range s.rights {
		data.Rights = append(data.Rights, r)
	}
	s.mut.RUnlock()

	sort.Slice(data.Repositories, func(i, j int) bool { return data.Repositories[i].ID < data.Repositories[j].ID })
	sort.Slice(data.PullRequests, func(i, j int) bool { return data.PullRequests[i].ID < data.PullRequests[j].ID })
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(s.snapshotPath, buf, 0644)
}

// Repositories.

func (s *MemoryStore) RepositoriesCreate(repo Repository) (Repository, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	key := repoKey{repo.Owner, repo.Name}
	if id, ok := s.repoByKey[key]; ok {
		// Compare-and-set upsert on the natural key.
		repo.ID = id
		s.repositories[id] = repo
		return repo, nil
	}
	repo.ID = s.nextID
	s.nextID++
	s.repositories[repo.ID] = repo
	s.repoByKey[key] = repo.ID
	return repo, nil
}

func (s *MemoryStore) RepositoriesUpdate(repo Repository) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.repositories[repo.ID]; !ok {
		return UnknownRepositoryIDError{ID: repo.ID}
	}
	old := s.repositories[repo.ID]
	delete(s.repoByKey, repoKey{old.Owner, old.Name})
	s.repositories[repo.ID] = repo
	s.repoByKey[repoKey{repo.Owner, repo.Name}] = repo.ID
	return nil
}

func (s *MemoryStore) RepositoriesGet(owner, name string) (*Repository, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	id, ok := s.repoByKey[repoKey{owner, name}]
	if !ok {
		return nil, nil
	}
	repo := s.repositories[id]
	return &repo, nil
}

func (s *MemoryStore) RepositoriesGetExpect(owner, name string) (Repository, error) {
	repo, err := s.RepositoriesGet(owner, name)
	if err != nil {
		return Repository{}, err
	}
	if repo == nil {
		return Repository{}, UnknownRepositoryError{Owner: owner, Name: name}
	}
	return *repo, nil
}

func (s *MemoryStore) RepositoriesGetFromID(id int) (*Repository, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	repo, ok := s.repositories[id]
	if !ok {
		return nil, nil
	}
	return &repo, nil
}

func (s *MemoryStore) RepositoriesGetFromIDExpect(id int) (Repository, error) {
	repo, err := s.RepositoriesGetFromID(id)
	if err != nil {
		return Repository{}, err
	}
	if repo == nil {
		return Repository{}, UnknownRepositoryIDError{ID: id}
	}
	return *repo, nil
}

func (s *MemoryStore) RepositoriesList() ([]Repository, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var repos []Repository
	for _, r := range s.repositories {
		repos = append(repos, r)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].ID < repos[j].ID })
	return repos, nil
}

// RepositoriesDelete removes a repository and, atomically under the store
// mutex, every row that references it.
func (s *MemoryStore) RepositoriesDelete(owner, name string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	id, ok := s.repoByKey[repoKey{owner, name}]
	if !ok {
		return UnknownRepositoryError{Owner: owner, Name: name}
	}
	for prID, pr := range s.pullRequests {
		if pr.RepositoryID != id {
			continue
		}
		for key := range s.reviewers {
			if key.pullRequestID == prID {
				delete(s.reviewers, key)
			}
		}
		delete(s.prByKey, prKey{pr.RepositoryID, pr.Number})
		delete(s.pullRequests, prID)
	}
	for key := range s.mergeRules {
		if key.repositoryID == id {
			delete(s.mergeRules, key)
		}
	}
	for key := range s.rights {
		if key.repositoryID == id {
			delete(s.rights, key)
		}
	}
	delete(s.repositories, id)
	delete(s.repoByKey, repoKey{owner, name})
	return nil
}

func (s *MemoryStore) setRepository(id int, mutate func(*Repository)) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	repo, ok := s.repositories[id]
	if !ok {
		return UnknownRepositoryIDError{ID: id}
	}
	mutate(&repo)
	s.repositories[id] = repo
	return nil
}

func (s *MemoryStore) RepositoriesSetManualInteraction(id int, value bool) error {
	return s.setRepository(id, func(r *Repository) { r.ManualInteraction = value })
}

func (s *MemoryStore) RepositoriesSetPRTitleValidationRegex(id int, value string) error {
	return s.setRepository(id, func(r *Repository) { r.PRTitleValidationRegex = value })
}

func (s *MemoryStore) RepositoriesSetDefaultStrategy(id int, value MergeStrategy) error {
	return s.setRepository(id, func(r *Repository) { r.DefaultStrategy = value })
}

func (s *MemoryStore) RepositoriesSetDefaultNeededReviewersCount(id int, value int) error {
	return s.setRepository(id, func(r *Repository) { r.DefaultNeededReviewersCount = value })
}

func (s *MemoryStore) RepositoriesSetDefaultAutomerge(id int, value bool) error {
	return s.setRepository(id, func(r *Repository) { r.DefaultAutomerge = value })
}

func (s *MemoryStore) RepositoriesSetDefaultEnableQA(id int, value bool) error {
	return s.setRepository(id, func(r *Repository) { r.DefaultEnableQA = value })
}

func (s *MemoryStore) RepositoriesSetDefaultEnableChecks(id int, value bool) error {
	return s.setRepository(id, func(r *Repository) { r.DefaultEnableChecks = value })
}

// Pull requests.

func (s *MemoryStore) PullRequestsCreate(pr PullRequest) (PullRequest, error) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.repositories[pr.RepositoryID]; !ok {
		return PullRequest{}, UnknownRepositoryIDError{ID: pr.RepositoryID}
	}
	key := prKey{pr.RepositoryID, pr.Number}
	if id, ok := s.prByKey[key]; ok {
		pr.ID = id
		s.pullRequests[id] = pr
		return pr, nil
	}
	pr.ID = s.nextID
	s.nextID++
	s.pullRequests[pr.ID] = pr
	s.prByKey[key] = pr.ID
	return pr, nil
}

func (s *MemoryStore) PullRequestsUpdate(pr PullRequest) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.pullRequests[pr.ID]; !ok {
		return UnknownPullRequestIDError{ID: pr.ID}
	}
	s.pullRequests[pr.ID] = pr
	return nil
}

func (s *MemoryStore) pullRequestLocked(owner, name string, number int) (*PullRequest, bool) {
	repoID, ok := s.repoByKey[repoKey{owner, name}]
	if !ok {
		return nil, false
	}
	id, ok := s.prByKey[prKey{repoID, number}]
	if !ok {
		return nil, true
	}
	pr := s.pullRequests[id]
	return &pr, true
}

func (s *MemoryStore) PullRequestsGet(owner, name string, number int) (*PullRequest, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	pr, _ := s.pullRequestLocked(owner, name, number)
	return pr, nil
}

func (s *MemoryStore) PullRequestsGetExpect(owner, name string, number int) (PullRequest, error) {
	pr, err := s.PullRequestsGet(owner, name, number)
	if err != nil {
		return PullRequest{}, err
	}
	if pr == nil {
		return PullRequest{}, UnknownPullRequestError{Owner: owner, Name: name, Number: number}
	}
	return *pr, nil
}

func (s *MemoryStore) PullRequestsGetFromID(id int) (*PullRequest, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	pr, ok := s.pullRequests[id]
	if !ok {
		return nil, nil
	}
	return &pr, nil
}

func (s *MemoryStore) PullRequestsList(owner, name string) ([]PullRequest, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	repoID, ok := s.repoByKey[repoKey{owner, name}]
	if !ok {
		return nil, nil
	}
	var prs []PullRequest
	for _, pr := range s.pullRequests {
		if pr.RepositoryID == repoID {
			prs = append(prs, pr)
		}
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })
	return prs, nil
}

func (s *MemoryStore) PullRequestsDelete(owner, name string, number int) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	repoID, ok := s.repoByKey[repoKey{owner, name}]
	if !ok {
		return UnknownRepositoryError{Owner: owner, Name: name}
	}
	id, ok := s.prByKey[prKey{repoID, number}]
	if !ok {
		return UnknownPullRequestError{Owner: owner, Name: name, Number: number}
	}
	for key := range s.reviewers {
		if key.pullRequestID == id {
			delete(s.reviewers, key)
		}
	}
	delete(s.prByKey, prKey{repoID, number})
	delete(s.pullRequests, id)
	return nil
}

func (s *MemoryStore) setPullRequest(id int, mutate func(*PullRequest)) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	pr, ok := s.pullRequests[id]
	if !ok {
		return UnknownPullRequestIDError{ID: id}
	}
	mutate(&pr)
	s.pullRequests[id] = pr
	return nil
}

func (s *MemoryStore) PullRequestsSetQAStatus(id int, value StatusState) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.QAStatus = value })
}

func (s *MemoryStore) PullRequestsSetNeededReviewersCount(id int, value int) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.NeededReviewersCount = value })
}

func (s *MemoryStore) PullRequestsSetStatusCommentID(id int, value int) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.StatusCommentID = value })
}

func (s *MemoryStore) PullRequestsSetChecksEnabled(id int, value bool) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.ChecksEnabled = value })
}

func (s *MemoryStore) PullRequestsSetAutomerge(id int, value bool) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.Automerge = value })
}

func (s *MemoryStore) PullRequestsSetLocked(id int, value bool) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.Locked = value })
}

func (s *MemoryStore) PullRequestsSetStrategyOverride(id int, value MergeStrategy) error {
	return s.setPullRequest(id, func(pr *PullRequest) { pr.StrategyOverride = value })
}

// Merge rules.

func (s *MemoryStore) MergeRulesSave(rule MergeRule) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.repositories[rule.RepositoryID]; !ok {
		return UnknownRepositoryIDError{ID: rule.RepositoryID}
	}
	s.mergeRules[ruleKey{rule.RepositoryID, rule.BaseBranch, rule.HeadBranch}] = rule
	return nil
}

func (s *MemoryStore) MergeRulesGet(repositoryID int, base, head string) (*MergeRule, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	rule, ok := s.mergeRules[ruleKey{repositoryID, base, head}]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (s *MemoryStore) MergeRulesGetExpect(repositoryID int, base, head string) (MergeRule, error) {
	rule, err := s.MergeRulesGet(repositoryID, base, head)
	if err != nil {
		return MergeRule{}, err
	}
	if rule == nil {
		return MergeRule{}, UnknownMergeRuleError{RepositoryID: repositoryID, BaseBranch: base, HeadBranch: head}
	}
	return *rule, nil
}

func (s *MemoryStore) MergeRulesList(repositoryID int) ([]MergeRule, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var rules []MergeRule
	for _, rule := range s.mergeRules {
		if rule.RepositoryID == repositoryID {
			rules = append(rules, rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].BaseBranch != rules[j].BaseBranch {
			return rules[i].BaseBranch < rules[j].BaseBranch
		}
		return rules[i].HeadBranch < rules[j].HeadBranch
	})
	return rules, nil
}

func (s *MemoryStore) MergeRulesDelete(repositoryID int, base, head string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	key := ruleKey{repositoryID, base, head}
	if _, ok := s.mergeRules[key]; !ok {
		return UnknownMergeRuleError{RepositoryID: repositoryID, BaseBranch: base, HeadBranch: head}
	}
	delete(s.mergeRules, key)
	return nil
}

// Required reviewers.

func (s *MemoryStore) RequiredReviewersCreate(reviewer RequiredReviewer) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.pullRequests[reviewer.PullRequestID]; !ok {
		return UnknownPullRequestIDError{ID: reviewer.PullRequestID}
	}
	s.reviewers[reviewerKey{reviewer.PullRequestID, reviewer.Username}] = reviewer
	return nil
}

func (s *MemoryStore) RequiredReviewersList(pullRequestID int) ([]RequiredReviewer, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var reviewers []RequiredReviewer
	for _, rev := range s.reviewers {
		if rev.PullRequestID == pullRequestID {
			reviewers = append(reviewers, rev)
		}
	}
	sort.Slice(reviewers, func(i, j int) bool { return reviewers[i].Username < reviewers[j].Username })
	return reviewers, nil
}

func (s *MemoryStore) RequiredReviewersDelete(pullRequestID int, username string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.reviewers, reviewerKey{pullRequestID, username})
	return nil
}

// Accounts.

func (s *MemoryStore) AccountsSave(account Account) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.accounts[account.Username] = account
	return nil
}

func (s *MemoryStore) AccountsGet(username string) (*Account, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	account, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (s *MemoryStore) AccountsList() ([]Account, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var accounts []Account
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (s *MemoryStore) AccountsDelete(username string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.accounts[username]; !ok {
		return UnknownAccountError{Username: username}
	}
	delete(s.accounts, username)
	return nil
}

// External accounts.

func (s *MemoryStore) ExternalAccountsCreate(account ExternalAccount) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.externals[account.Username] = account
	return nil
}

func (s *MemoryStore) ExternalAccountsGet(username string) (*ExternalAccount, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	account, ok := s.externals[username]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

func (s *MemoryStore) ExternalAccountsGetExpect(username string) (ExternalAccount, error) {
	account, err := s.ExternalAccountsGet(username)
	if err != nil {
		return ExternalAccount{}, err
	}
	if account == nil {
		return ExternalAccount{}, UnknownExternalAccountError{Username: username}
	}
	return *account, nil
}

func (s *MemoryStore) ExternalAccountsList() ([]ExternalAccount, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var accounts []ExternalAccount
	for _, a := range s.externals {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts, nil
}

func (s *MemoryStore) ExternalAccountsDelete(username string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.externals[username]; !ok {
		return UnknownExternalAccountError{Username: username}
	}
	for key := range s.rights {
		if key.username == username {
			delete(s.rights, key)
		}
	}
	delete(s.externals, username)
	return nil
}

func (s *MemoryStore) ExternalAccountRightsCreate(right ExternalAccountRight) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, ok := s.externals[right.Username]; !ok {
		return UnknownExternalAccountError{Username: right.Username}
	}
	if _, ok := s.repositories[right.RepositoryID]; !ok {
		return UnknownRepositoryIDError{ID: right.RepositoryID}
	}
	s.rights[rightKey{right.Username, right.RepositoryID}] = right
	return nil
}

func (s *MemoryStore) ExternalAccountRightsGet(username string, repositoryID int) (*ExternalAccountRight, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	right, ok := s.rights[rightKey{username, repositoryID}]
	if !ok {
		return nil, nil
	}
	return &right, nil
}

func (s *MemoryStore) ExternalAccountRightsList(username string) ([]ExternalAccountRight, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var rights []ExternalAccountRight
	for _, r := range s.rights {
		if r.Username == username {
			rights = append(rights, r)
		}
	}
	sort.Slice(rights, func(i, j int) bool { return rights[i].RepositoryID < rights[j].RepositoryID })
	return rights, nil
}

func (s *MemoryStore) ExternalAccountRightsListByRepository(repositoryID int) ([]ExternalAccountRight, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	var rights []ExternalAccountRight
	for _, r := range s.rights {
		if r.RepositoryID == repositoryID {
			rights = append(rights, r)
		}
	}
	sort.Slice(rights, func(i, j int) bool { return rights[i].Username < rights[j].Username })
	return rights, nil
}

func (s *MemoryStore) ExternalAccountRightsDelete(username string, repositoryID int) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	delete(s.rights, rightKey{username, repositoryID})
	return nil
}

func (s *MemoryStore) HealthCheck() error {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return nil
}

var _ Client = (*MemoryStore)(nil)
