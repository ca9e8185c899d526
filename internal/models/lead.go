package models

// LeadRecord is a lead as delivered by the lead source. Keys vary between
// records; values are JSON scalars.
type LeadRecord map[string]any

// Fixed values stamped on every imported contact.
const (
	ContactSource    = "D7 LeadFinder Import"
	DefaultCountry   = "US"
	DefaultTimezone  = "America/New_York"
	ContactTagImport = "D7Import"
	ContactTagLead   = "Lead"
)

// CanonicalContact is the contact payload accepted by the CRM.
type CanonicalContact struct {
	FirstName  string   `json:"firstName"`
	LastName   string   `json:"lastName"`
	Email      string   `json:"email"`
	Phone      string   `json:"phone"`
	Address1   string   `json:"address1"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	Country    string   `json:"country"`
	PostalCode string   `json:"postalCode"`
	Website    string   `json:"website"`
	Timezone   string   `json:"timezone"`
	Source     string   `json:"source"`
	Tags       []string `json:"tags"`
}

// DefaultTags returns a fresh copy of the tags applied to imported contacts.
func DefaultTags() []string {
	return []string{ContactTagImport, ContactTagLead}
}

// ExportResult is the outcome of pushing a single lead.
type ExportResult struct {
	Success   bool   `json:"success"`
	LeadID    string `json:"leadId"`
	Email     string `json:"email"`
	ContactID string `json:"contactId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ExportReport aggregates the results of one export batch, in input order.
type ExportReport struct {
	Results      []ExportResult `json:"results"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"successCount"`
	FailedCount  int            `json:"failedCount"`
}

// Add appends r and updates the counters.
func (r *ExportReport) Add(res ExportResult) {
	r.Results = append(r.Results, res)
	r.Total++
	if res.Success {
		r.SuccessCount++
	} else {
		r.FailedCount++
	}
}
