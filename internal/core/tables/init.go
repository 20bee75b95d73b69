// Package tables registers all entity definitions with the core registry.
// Import this package to ensure all entities are registered.
package tables

import "github.com/JonMunkholm/policyingest/internal/core"

func init() {
	registerAgents()
	registerUsers()
	registerAccounts()
	registerLinesOfBusiness()
	registerCarriers()
	registerPolicies()
}

func text(name string, normalize func(string) string) core.Column {
	return core.Column{Name: name, Type: core.ColumnText, Normalizer: normalize}
}

func date(name string) core.Column {
	return core.Column{Name: name, Type: core.ColumnDate}
}

func ref(name string) core.Column {
	return core.Column{Name: name, Type: core.ColumnRef}
}
