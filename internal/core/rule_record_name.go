package core

import (
	"context"
	"fmt"
	"strings"

	"costcore/pkg/domain"
)

// RecordNameRule blocks creates and updates that would persist a nameless
// record. Labels count as names for registry entries.
func RecordNameRule() domain.Rule {
	return recordNameRule{}
}

type recordNameRule struct{}

func (recordNameRule) Name() string { return "record_name_required" }

func (recordNameRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Action == domain.ActionDelete {
			continue
		}
		id, name, ok := recordName(change.After)
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "record_name_required",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("%s %s has no name", change.Entity, id),
				Entity:   change.Entity,
				EntityID: id,
			})
		}
	}
	return res, nil
}

func recordName(payload any) (id, name string, ok bool) {
	switch v := payload.(type) {
	case domain.Project:
		return v.ID, v.Name, true
	case domain.Trade:
		return v.ID, v.Name, true
	case domain.SubItem:
		return v.ID, v.Name, true
	case domain.Template:
		return v.ID, v.Name, true
	case domain.Category:
		return v.ID, v.Label, true
	}
	return "", "", false
}
