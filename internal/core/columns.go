package core

// Column names shared by the row processor, the registry and the stores.
const (
	ColAgentName = "agent_name"

	ColFirstName = "first_name"
	ColDOB       = "dob"
	ColAddress   = "address"
	ColPhone     = "phone_number"
	ColState     = "state"
	ColZipCode   = "zip_code"
	ColEmail     = "email"
	ColGender    = "gender"
	ColUserType  = "user_type"

	ColUserID      = "user_id"
	ColAccountName = "account_name"

	ColCategoryName = "category_name"
	ColCompanyName  = "company_name"

	ColPolicyNumber = "policy_number"
	ColStartDate    = "policy_start_date"
	ColEndDate      = "policy_end_date"
	ColCategoryID   = "policy_category_id"
	ColCompanyID    = "company_id"
)
