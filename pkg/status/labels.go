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
	"strings"

	"github.com/towline-dev/towline/pkg/store"
)

// StepLabel marks where a pull request sits in its lifecycle. Exactly one
// is present on the pull request at any time.
type StepLabel string

const (
	StepWip             StepLabel = "step/wip"
	StepAwaitingChecks  StepLabel = "step/awaiting-checks"
	StepAwaitingChanges StepLabel = "step/awaiting-changes"
	StepAwaitingReview  StepLabel = "step/awaiting-review"
	StepAwaitingQA      StepLabel = "step/awaiting-qa"
	StepLocked          StepLabel = "step/locked"
	StepAwaitingMerge   StepLabel = "step/awaiting-merge"
)

// stepLabelPrefix namespaces the labels the bot owns.
const stepLabelPrefix = "step/"

// IsStepLabel reports whether the bot owns the label.
func IsStepLabel(name string) bool {
	return strings.HasPrefix(name, stepLabelPrefix)
}

// ChooseStepLabel picks the label for a status by the first matching gate.
// Gate order matters: a draft beats everything, a merge candidate is last.
func ChooseStepLabel(s PullRequestStatus) StepLabel {
	switch {
	case s.WIP:
		return StepWip
	case !s.ValidPRTitle:
		return StepAwaitingChanges
	case s.ChecksStatus == store.StatusWaiting:
		return StepAwaitingChecks
	case s.ChecksStatus == store.StatusFail:
		return StepAwaitingChanges
	case s.ChangesRequired():
		return StepAwaitingChanges
	case s.MissingReviews():
		return StepAwaitingReview
	case s.QAStatus == store.StatusWaiting:
		return StepAwaitingQA
	case s.QAStatus == store.StatusFail:
		return StepAwaitingChanges
	case s.Locked:
		return StepLocked
	default:
		return StepAwaitingMerge
	}
}
