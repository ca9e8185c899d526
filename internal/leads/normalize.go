// Package leads converts loosely shaped lead records into CRM contacts.
package leads

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/leadbridge/leadbridge/internal/models"
)

// Source field aliases, most preferred first.
var (
	firstNameKeys  = []string{"firstName", "first_name"}
	lastNameKeys   = []string{"lastName", "last_name"}
	emailKeys      = []string{"email", "email_address"}
	phoneKeys      = []string{"phone", "phoneNumber", "phone_number"}
	addressKeys    = []string{"address1", "address", "street"}
	cityKeys       = []string{"city"}
	stateKeys      = []string{"state", "region"}
	countryKeys    = []string{"country"}
	postalCodeKeys = []string{"zipCode", "postalCode", "zip", "postal_code"}
	websiteKeys    = []string{"website", "url"}
	timezoneKeys   = []string{"timezone"}
	leadIDKeys     = []string{"id", "_id", "leadId", "lead_id"}
)

// Normalize maps lead onto the CRM contact shape. For every field the first
// alias holding a non-empty scalar wins; otherwise the field default applies.
// Values are not validated.
func Normalize(lead models.LeadRecord) models.CanonicalContact {
	return models.CanonicalContact{
		FirstName:  pick(lead, firstNameKeys, ""),
		LastName:   pick(lead, lastNameKeys, ""),
		Email:      pick(lead, emailKeys, ""),
		Phone:      pick(lead, phoneKeys, ""),
		Address1:   pick(lead, addressKeys, ""),
		City:       pick(lead, cityKeys, ""),
		State:      pick(lead, stateKeys, ""),
		Country:    pick(lead, countryKeys, models.DefaultCountry),
		PostalCode: pick(lead, postalCodeKeys, ""),
		Website:    pick(lead, websiteKeys, ""),
		Timezone:   pick(lead, timezoneKeys, models.DefaultTimezone),
		Source:     models.ContactSource,
		Tags:       models.DefaultTags(),
	}
}

// LeadID returns the identifier the lead source assigned to lead, or "".
func LeadID(lead models.LeadRecord) string {
	return pick(lead, leadIDKeys, "")
}

func pick(lead models.LeadRecord, keys []string, def string) string {
	for _, key := range keys {
		if s, ok := scalarString(lead[key]); ok && s != "" {
			return s
		}
	}
	return def
}

// scalarString renders a JSON scalar. Objects, arrays and nil are not
// scalars.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		f, err := t.Float64()
		if err != nil {
			return t.String(), true
		}
		return formatFloat(f)
	default:
		return "", false
	}
}

func formatFloat(f float64) (string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
