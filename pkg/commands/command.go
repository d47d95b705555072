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

// Package commands parses chat-style bot commands out of pull request
// comments, authorizes them, dispatches them to handlers and folds the
// per-command outcomes into a single user-visible reply.
package commands

import (
	"fmt"
	"strings"
)

// Command is one parsed bot invocation, e.g. verb "strategy+" with args
// ["squash"].
type Command struct {
	Verb string
	Args []string
}

// Recap renders the command the way the user typed it, for quoting back
// in the reply comment.
func (c Command) Recap(botName string) string {
	parts := append([]string{botName, c.Verb}, c.Args...)
	return strings.Join(parts, " ")
}

// ParseResult is one line's outcome: either a command or a parse error.
type ParseResult struct {
	Command Command
	Err     error
}

// HandlingStatus classifies a command outcome.
type HandlingStatus int

const (
	// Ignored means the command produced no effect.
	Ignored HandlingStatus = iota
	// Denied means the command was refused, by authorization or by the
	// parser.
	Denied
	// Handled means the command took effect.
	Handled
)

func (s HandlingStatus) String() string {
	switch s {
	case Handled:
		return "handled"
	case Denied:
		return "denied"
	default:
		return "ignored"
	}
}

// Merge folds an incoming status into the carried one. Any Handled wins,
// otherwise any Denied wins.
func (s HandlingStatus) Merge(other HandlingStatus) HandlingStatus {
	if s == Handled || other == Handled {
		return Handled
	}
	if s == Denied || other == Denied {
		return Denied
	}
	return Ignored
}

// Action is a deferred side effect produced by a handler. The executor
// applies actions after folding, never the handler itself.
type Action interface {
	isAction()
}

// PostComment posts Body as a fresh comment on the pull request.
type PostComment struct {
	Body string
}

// AddReaction attaches the reaction Kind to the originating comment.
type AddReaction struct {
	Kind string
}

func (PostComment) isAction() {}
func (AddReaction) isAction() {}

// CommandExecutionResult is what a handler returns. Actions are ordered.
type CommandExecutionResult struct {
	ShouldUpdateStatus bool
	HandlingStatus     HandlingStatus
	Actions            []Action
}

func handled(comment string, updateStatus bool) CommandExecutionResult {
	r := CommandExecutionResult{
		ShouldUpdateStatus: updateStatus,
		HandlingStatus:     Handled,
	}
	if comment != "" {
		r.Actions = append(r.Actions, PostComment{Body: comment})
	}
	return r
}

func denied() CommandExecutionResult {
	return CommandExecutionResult{HandlingStatus: Denied}
}

// UnknownCommandError is returned for a line addressed to the bot whose
// verb is not in the grammar.
type UnknownCommandError struct {
	Verb string
}

func (e UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Verb)
}

// IncompleteCommandError is returned when a recognized verb is missing
// required arguments.
type IncompleteCommandError struct {
	Verb  string
	Usage string
}

func (e IncompleteCommandError) Error() string {
	return fmt.Sprintf("incomplete command %q, usage: %s", e.Verb, e.Usage)
}

// ArgumentParsingError is returned when an argument does not parse, such
// as an unknown merge strategy or a non-numeric count.
type ArgumentParsingError struct {
	Verb   string
	Reason string
}

func (e ArgumentParsingError) Error() string {
	return fmt.Sprintf("invalid argument for %q: %s", e.Verb, e.Reason)
}

// InvalidUsageError is returned when arguments parse but violate a
// constraint of the verb.
type InvalidUsageError struct {
	Verb  string
	Usage string
}

func (e InvalidUsageError) Error() string {
	return fmt.Sprintf("invalid usage of %q, usage: %s", e.Verb, e.Usage)
}
