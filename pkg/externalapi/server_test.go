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

package externalapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go/v4"

	"github.com/towline-dev/towline/pkg/commands"
	"github.com/towline-dev/towline/pkg/config"
	"github.com/towline-dev/towline/pkg/store"
)

type fakeExecutor struct {
	inputs []commands.Input
}

func (f *fakeExecutor) Execute(_ context.Context, in commands.Input) error {
	f.inputs = append(f.inputs, in)
	return nil
}

type fixture struct {
	server   *Server
	handler  http.Handler
	sc       store.Client
	executor *fakeExecutor
	key      *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sc, err := store.NewMemoryStore("")
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	repo, err := sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "ship", DefaultStrategy: store.StrategyMerge})
	if err != nil {
		t.Fatalf("creating repository: %v", err)
	}
	if _, err := sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 1}); err != nil {
		t.Fatalf("creating pull request: %v", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshaling public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := sc.ExternalAccountsCreate(store.ExternalAccount{Username: "ci-bot", PublicKey: string(pubPEM), PrivateKey: string(privPEM)}); err != nil {
		t.Fatalf("creating external account: %v", err)
	}
	if err := sc.ExternalAccountRightsCreate(store.ExternalAccountRight{Username: "ci-bot", RepositoryID: repo.ID}); err != nil {
		t.Fatalf("creating external account right: %v", err)
	}

	agent := &config.Agent{}
	agent.Set(&config.Config{BotName: "towline"})
	executor := &fakeExecutor{}
	server := NewServer(agent, sc, executor)
	return &fixture{
		server:   server,
		handler:  server.Handler(),
		sc:       sc,
		executor: executor,
		key:      key,
	}
}

func (f *fixture) token(t *testing.T, subject string, key *rsa.PrivateKey) string {
	t.Helper()
	claims := &jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  jwt.At(time.Now()),
		ExpiresAt: jwt.At(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func (f *fixture) post(t *testing.T, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestInjectCommand(t *testing.T) {
	f := newFixture(t)
	w := f.post(t, "/external/repositories/octo/ship/pulls/1/commands", f.token(t, "ci-bot", f.key), `{"command":"qa+"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.executor.inputs) != 1 {
		t.Fatalf("expected one executed input, got %d", len(f.executor.inputs))
	}
	in := f.executor.inputs[0]
	if in.Body != "towline qa+" {
		t.Errorf("wrong synthesized body: %q", in.Body)
	}
	if in.Author != "ci-bot" || in.Owner != "octo" || in.Name != "ship" || in.Number != 1 {
		t.Errorf("wrong input routing: %+v", in)
	}
	if !in.BypassPermissions {
		t.Error("external commands must bypass forge permission checks")
	}
	if in.CommentID != 0 {
		t.Errorf("external commands have no originating comment, got id %d", in.CommentID)
	}
}

func TestRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	w := f.post(t, "/external/repositories/octo/ship/pulls/1/commands", "", `{"command":"qa+"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if len(f.executor.inputs) != 0 {
		t.Error("unauthenticated requests must not execute")
	}
}

func TestRejectsForeignKey(t *testing.T) {
	f := newFixture(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	w := f.post(t, "/external/repositories/octo/ship/pulls/1/commands", f.token(t, "ci-bot", other), `{"command":"qa+"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("tokens signed with the wrong key must be rejected, got %d", w.Code)
	}
	if len(f.executor.inputs) != 0 {
		t.Error("forged tokens must not execute")
	}
}

func TestRejectsUnknownAccount(t *testing.T) {
	f := newFixture(t)
	w := f.post(t, "/external/repositories/octo/ship/pulls/1/commands", f.token(t, "stranger", f.key), `{"command":"qa+"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown accounts, got %d", w.Code)
	}
}

func TestRejectsRepositoryWithoutRight(t *testing.T) {
	f := newFixture(t)
	repo, err := f.sc.RepositoriesCreate(store.Repository{Owner: "octo", Name: "tug", DefaultStrategy: store.StrategyMerge})
	if err != nil {
		t.Fatalf("creating repository: %v", err)
	}
	if _, err := f.sc.PullRequestsCreate(store.PullRequest{RepositoryID: repo.ID, Number: 2}); err != nil {
		t.Fatalf("creating pull request: %v", err)
	}
	w := f.post(t, "/external/repositories/octo/tug/pulls/2/commands", f.token(t, "ci-bot", f.key), `{"command":"qa+"}`)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without a right row, got %d", w.Code)
	}
	if len(f.executor.inputs) != 0 {
		t.Error("requests without rights must not execute")
	}
}

func TestUnknownRepositoryAndPullRequest(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "ci-bot", f.key)

	if w := f.post(t, "/external/repositories/nobody/home/pulls/1/commands", token, `{"command":"qa+"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown repository, got %d", w.Code)
	}
	if w := f.post(t, "/external/repositories/octo/ship/pulls/99/commands", token, `{"command":"qa+"}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for untracked pull request, got %d", w.Code)
	}
}

func TestRejectsEmptyCommand(t *testing.T) {
	f := newFixture(t)
	w := f.post(t, "/external/repositories/octo/ship/pulls/1/commands", f.token(t, "ci-bot", f.key), `{}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an empty command, got %d", w.Code)
	}
}
