package lead

// Required qualification fields, in funnel order. Missing() and the
// qualification prompts depend on this order.
var RequiredFields = []string{FieldCompanyName, FieldDomain, FieldProblem, FieldBudget}

const (
	FieldCompanyName = "company_name"
	FieldDomain      = "domain"
	FieldProblem     = "problem"
	FieldBudget      = "budget"
)

// Facts is the structured sales information accumulated over a session.
// An empty string means the field has not been extracted yet.
type Facts struct {
	CompanyName string `json:"company_name,omitempty"`
	Domain      string `json:"domain,omitempty"`
	Problem     string `json:"problem,omitempty"`
	Budget      string `json:"budget,omitempty"`

	DemoShown     bool `json:"demo_shown,omitempty"`
	MeetingBooked bool `json:"meeting_booked,omitempty"`

	// Booking metadata, set once a meeting exists.
	MeetingID    string `json:"meeting_id,omitempty"`
	MeetingTime  string `json:"meeting_time,omitempty"`
	MeetingName  string `json:"meeting_name,omitempty"`
	MeetingEmail string `json:"meeting_email,omitempty"`
}

// Partial holds newly extracted values for the required fields. Empty
// entries are ignored on merge.
type Partial struct {
	CompanyName string
	Domain      string
	Problem     string
	Budget      string
}

func (p Partial) IsZero() bool {
	return p.CompanyName == "" && p.Domain == "" && p.Problem == "" && p.Budget == ""
}

func (f Facts) field(name string) string {
	switch name {
	case FieldCompanyName:
		return f.CompanyName
	case FieldDomain:
		return f.Domain
	case FieldProblem:
		return f.Problem
	case FieldBudget:
		return f.Budget
	}
	return ""
}

// Merge fills unset required fields from p. Already-set fields are never
// overwritten.
func (f Facts) Merge(p Partial) Facts {
	if f.CompanyName == "" {
		f.CompanyName = p.CompanyName
	}
	if f.Domain == "" {
		f.Domain = p.Domain
	}
	if f.Problem == "" {
		f.Problem = p.Problem
	}
	if f.Budget == "" {
		f.Budget = p.Budget
	}
	return f
}

// Completion returns the qualification funnel percentage: set required
// fields over four, truncated to an integer. Always in [0, 100]; exactly
// 100 iff all four required fields are set.
func (f Facts) Completion() int {
	set := 0
	for _, name := range RequiredFields {
		if f.field(name) != "" {
			set++
		}
	}
	return set * 100 / len(RequiredFields)
}

// Missing returns the unset required fields in declaration order.
func (f Facts) Missing() []string {
	var missing []string
	for _, name := range RequiredFields {
		if f.field(name) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Collected returns the set required fields and their values.
func (f Facts) Collected() map[string]string {
	collected := make(map[string]string)
	for _, name := range RequiredFields {
		if v := f.field(name); v != "" {
			collected[name] = v
		}
	}
	return collected
}
