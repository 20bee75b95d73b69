package schema

// Field is the canonical name of an input column.
type Field string

// Canonical fields recognized in policy import files.
const (
	AgentName       Field = "agentName"
	FirstName       Field = "firstName"
	DOB             Field = "dob"
	Address         Field = "address"
	Phone           Field = "phone"
	State           Field = "state"
	ZipCode         Field = "zipCode"
	Email           Field = "email"
	Gender          Field = "gender"
	UserType        Field = "userType"
	AccountName     Field = "accountName"
	CategoryName    Field = "categoryName"
	CompanyName     Field = "companyName"
	PolicyNumber    Field = "policyNumber"
	PolicyStartDate Field = "policyStartDate"
	PolicyEndDate   Field = "policyEndDate"
)

// FieldAliases pairs a canonical field with the header spellings accepted for it.
// Aliases are tried in order; the first one present in a row wins.
type FieldAliases struct {
	Field   Field
	Aliases []string
}

// Aliases is the header alias table used by Normalize.
var Aliases = []FieldAliases{
	{AgentName, []string{"agent", "agent name", "agentname"}},
	{FirstName, []string{"firstname", "first name", "user first name"}},
	{DOB, []string{"dob", "date of birth", "birthdate"}},
	{Address, []string{"address"}},
	{Phone, []string{"phone", "phone number", "phonenumber"}},
	{State, []string{"state"}},
	{ZipCode, []string{"zip", "zip code", "zipcode"}},
	{Email, []string{"email", "email address"}},
	{Gender, []string{"gender", "sex"}},
	{UserType, []string{"usertype", "user type", "type"}},
	{AccountName, []string{"account_name", "account name", "accountname", "account"}},
	{CategoryName, []string{"category_name", "category name", "category", "lob", "policy category"}},
	{CompanyName, []string{"company_name", "company name", "company", "carrier", "companyname"}},
	{PolicyNumber, []string{"policy_number", "policy number", "policynumber", "policy no"}},
	{PolicyStartDate, []string{"policy_start_date", "policy start date", "start date", "policystartdate"}},
	{PolicyEndDate, []string{"policy_end_date", "policy end date", "end date", "policyenddate"}},
}

// AliasesFor returns the accepted header spellings for f, or nil when f is unknown.
func AliasesFor(f Field) []string {
	for _, fa := range Aliases {
		if fa.Field == f {
			return fa.Aliases
		}
	}
	return nil
}
