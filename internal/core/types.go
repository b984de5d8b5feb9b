// Package core implements the trackcore service layer: the built-in rule set,
// the write coordinator, reporting projections, and storage selection.
package core

import (
	"trackcore/pkg/domain"
)

// Re-exported domain types keep service call sites free of the domain import.
type (
	// Tenant aliases domain.Tenant.
	Tenant = domain.Tenant
	// User aliases domain.User.
	User = domain.User
	// Client aliases domain.Client.
	Client = domain.Client
	// Project aliases domain.Project.
	Project = domain.Project
	// Technology aliases domain.Technology.
	Technology = domain.Technology
	// TimeEntry aliases domain.TimeEntry.
	TimeEntry = domain.TimeEntry
	// ProjectTechnology aliases domain.ProjectTechnology.
	ProjectTechnology = domain.ProjectTechnology
	// TimeEntryTechnology aliases domain.TimeEntryTechnology.
	TimeEntryTechnology = domain.TimeEntryTechnology
	// EntityType aliases domain.EntityType.
	EntityType = domain.EntityType
	// Change aliases domain.Change.
	Change = domain.Change
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RuleView aliases domain.RuleView.
	RuleView = domain.RuleView
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Result aliases domain.Result.
	Result = domain.Result
	// Violation aliases domain.Violation.
	Violation = domain.Violation
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)
