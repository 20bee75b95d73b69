package tables

import "github.com/JonMunkholm/policyingest/internal/core"

func registerAgents() {
	core.Register(core.EntityDefinition{
		Info:      core.EntityInfo{Kind: core.KindAgent, Table: "agents", Label: "Agents"},
		Columns:   []core.Column{text(core.ColAgentName, Trim)},
		UniqueKey: []string{core.ColAgentName},
	})
}

func registerUsers() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{Kind: core.KindUser, Table: "users", Label: "Users"},
		Columns: []core.Column{
			text(core.ColEmail, LowerTrim),
			text(core.ColFirstName, Trim),
			date(core.ColDOB),
			text(core.ColAddress, Trim),
			text(core.ColPhone, Trim),
			text(core.ColState, NormalizeUsState),
			text(core.ColZipCode, Trim),
			text(core.ColGender, Trim),
			text(core.ColUserType, Trim),
		},
		UniqueKey: []string{core.ColEmail},
	})
}

func registerAccounts() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{Kind: core.KindAccount, Table: "accounts", Label: "Accounts"},
		Columns: []core.Column{
			ref(core.ColUserID),
			text(core.ColAccountName, Trim),
		},
		UniqueKey: []string{core.ColUserID, core.ColAccountName},
	})
}

func registerLinesOfBusiness() {
	core.Register(core.EntityDefinition{
		Info:      core.EntityInfo{Kind: core.KindLOB, Table: "lines_of_business", Label: "Lines of business"},
		Columns:   []core.Column{text(core.ColCategoryName, Trim)},
		UniqueKey: []string{core.ColCategoryName},
	})
}

func registerCarriers() {
	core.Register(core.EntityDefinition{
		Info:      core.EntityInfo{Kind: core.KindCarrier, Table: "carriers", Label: "Carriers"},
		Columns:   []core.Column{text(core.ColCompanyName, Trim)},
		UniqueKey: []string{core.ColCompanyName},
	})
}

func registerPolicies() {
	core.Register(core.EntityDefinition{
		Info: core.EntityInfo{Kind: core.KindPolicy, Table: "policies", Label: "Policies"},
		Columns: []core.Column{
			text(core.ColPolicyNumber, Trim),
			date(core.ColStartDate),
			date(core.ColEndDate),
			ref(core.ColCategoryID),
			ref(core.ColCompanyID),
			ref(core.ColUserID),
		},
		UniqueKey: []string{core.ColPolicyNumber},
	})
}
