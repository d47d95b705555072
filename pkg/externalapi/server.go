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

// Package externalapi exposes the authenticated command-injection endpoint
// that CI systems use to drive the bot without a forge account. Callers
// authenticate with RS256 bearer tokens signed by their registered private
// key and are scoped to repositories through external account rights.
package externalapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/NYTimes/gziphandler"
	jwt "github.com/dgrijalva/jwt-go/v4"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/towline-dev/towline/pkg/commands"
	"github.com/towline-dev/towline/pkg/config"
	"github.com/towline-dev/towline/pkg/store"
)

type commandExecutor interface {
	Execute(ctx context.Context, in commands.Input) error
}

// Server handles external command injection.
type Server struct {
	configAgent *config.Agent
	sc          store.Client
	executor    commandExecutor
	log         *logrus.Entry
}

// NewServer wires the external API.
func NewServer(configAgent *config.Agent, sc store.Client, executor commandExecutor) *Server {
	return &Server{
		configAgent: configAgent,
		sc:          sc,
		executor:    executor,
		log:         logrus.WithField("component", "external-api"),
	}
}

// Handler returns the routed, gzip-wrapped handler tree.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/external/repositories/{owner}/{name}/pulls/{number}/commands", s.handleCommand).Methods(http.MethodPost)
	return gziphandler.GzipHandler(r)
}

type commandRequest struct {
	Command string `json:"command"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, name := vars["owner"], vars["name"]
	number, err := strconv.Atoi(vars["number"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid pull request number"})
		return
	}

	username, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	log := s.log.WithFields(logrus.Fields{
		"external-account": username,
		"repo":             fmt.Sprintf("%s/%s", owner, name),
		"pr":               number,
	})

	repo, err := s.sc.RepositoriesGet(owner, name)
	if err != nil {
		log.WithError(err).Error("Error reading repository.")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	if repo == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown repository"})
		return
	}
	right, err := s.sc.ExternalAccountRightsGet(username, repo.ID)
	if err != nil {
		log.WithError(err).Error("Error reading external account rights.")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	if right == nil {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "no right on this repository"})
		return
	}
	pr, err := s.sc.PullRequestsGet(owner, name, number)
	if err != nil {
		log.WithError(err).Error("Error reading pull request.")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "store error"})
		return
	}
	if pr == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown pull request"})
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing command"})
		return
	}

	botName := s.configAgent.Config().BotName
	in := commands.Input{
		Owner:             owner,
		Name:              name,
		Number:            number,
		Author:            username,
		Body:              fmt.Sprintf("%s %s", botName, strings.TrimSpace(req.Command)),
		BypassPermissions: true,
	}
	log.WithField("command", req.Command).Info("Injecting external command.")
	if err := s.executor.Execute(r.Context(), in); err != nil {
		log.WithError(err).Error("Error executing external command.")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "command execution failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "command accepted"})
}

// authenticate verifies the bearer token against the signing account's
// registered public key and returns the account username. The subject
// claim names the account; the signature proves possession of its key.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return "", false
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		sub, ok := token.Claims.(*jwt.StandardClaims)
		if !ok || sub.Subject == "" {
			return nil, fmt.Errorf("token carries no subject")
		}
		account, err := s.sc.ExternalAccountsGet(sub.Subject)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, fmt.Errorf("unknown external account %q", sub.Subject)
		}
		return jwt.ParseRSAPublicKeyFromPEM([]byte(account.PublicKey))
	})
	if err != nil {
		s.log.WithError(err).Info("Rejecting external API token.")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		return "", false
	}
	return claims.Subject, true
}
