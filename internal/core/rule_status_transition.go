package core

import (
	"context"
	"fmt"

	"costcore/pkg/domain"
)

// ProjectStatusRule blocks invalid status values and backward transitions on
// the one-directional project workflow. The single sanctioned reversal is the
// reopen back to estimating, which is allowed from any state.
func ProjectStatusRule() domain.Rule {
	return projectStatusRule{}
}

type projectStatusRule struct{}

var validProjectStatuses = map[domain.ProjectStatus]struct{}{
	domain.StatusEstimating: {},
	domain.StatusInProgress: {},
	domain.StatusComplete:   {},
}

// projectStatusForward lists the permitted forward steps.
var projectStatusForward = map[domain.ProjectStatus]domain.ProjectStatus{
	domain.StatusEstimating: domain.StatusInProgress,
	domain.StatusInProgress: domain.StatusComplete,
}

func (projectStatusRule) Name() string { return "project_status_transition" }

func (projectStatusRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityProject {
			continue
		}
		after, ok := change.After.(domain.Project)
		if !ok {
			continue
		}
		if _, valid := validProjectStatuses[after.Status]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "project_status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project %s has invalid status %q", after.ID, after.Status),
				Entity:   domain.EntityProject,
				EntityID: after.ID,
			})
			continue
		}
		before, ok := change.Before.(domain.Project)
		if !ok || before.Status == after.Status {
			continue
		}
		if after.Status == domain.StatusEstimating {
			// explicit reopen, permitted from any state
			continue
		}
		if projectStatusForward[before.Status] != after.Status {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "project_status_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("project %s cannot move from %s to %s", after.ID, before.Status, after.Status),
				Entity:   domain.EntityProject,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
