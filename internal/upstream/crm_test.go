package upstream

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/leadbridge/leadbridge/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRMClientCreateContact(t *testing.T) {
	crm := mocks.NewCRMServer()
	defer crm.Close()
	token := crm.IssueAccessToken()

	client := NewCRMClient(crm.Config(), http.DefaultClient)
	contact := models.CanonicalContact{
		FirstName: "Jo",
		Email:     "jo@example.com",
		Country:   models.DefaultCountry,
		Timezone:  models.DefaultTimezone,
		Source:    models.ContactSource,
		Tags:      models.DefaultTags(),
	}

	id, err := client.CreateContact(context.Background(), token, mocks.CRMLocationID, contact)
	require.NoError(t, err)
	assert.Equal(t, "contact-1", id)

	reqs := crm.RequestsTo("/contacts/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer "+token, reqs[0].Headers["Authorization"])
	assert.Equal(t, "2021-07-28", reqs[0].Headers["Version"])
	assert.Equal(t, "locationId="+mocks.CRMLocationID, reqs[0].Query)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(reqs[0].Body), &sent))
	assert.Equal(t, "Jo", sent["firstName"])
	assert.Equal(t, "D7 LeadFinder Import", sent["source"])
}

func TestCRMClientCreateContactRejected(t *testing.T) {
	crm := mocks.NewCRMServer()
	defer crm.Close()
	crm.FailContact("dup@example.com", "This location does not allow duplicated contacts.")
	token := crm.IssueAccessToken()

	client := NewCRMClient(crm.Config(), http.DefaultClient)
	_, err := client.CreateContact(context.Background(), token, mocks.CRMLocationID, models.CanonicalContact{Email: "dup@example.com"})
	require.Error(t, err)

	var upErr *errors.ErrUpstream
	require.True(t, stderrors.As(err, &upErr))
	assert.Equal(t, http.StatusBadRequest, upErr.StatusCode)
	assert.Equal(t, "This location does not allow duplicated contacts.", upErr.Message)
	assert.Contains(t, upErr.Body, "duplicated contacts")
	assert.Equal(t, errors.CodeUpstream, errors.Code(err))
}

func TestCRMClientUnauthorized(t *testing.T) {
	crm := mocks.NewCRMServer()
	defer crm.Close()

	client := NewCRMClient(crm.Config(), http.DefaultClient)
	_, err := client.CreateContact(context.Background(), "not-a-token", mocks.CRMLocationID, models.CanonicalContact{})

	var upErr *errors.ErrUpstream
	require.True(t, stderrors.As(err, &upErr))
	assert.Equal(t, http.StatusUnauthorized, upErr.StatusCode)
	assert.Equal(t, "Invalid JWT", upErr.Message)
}

func TestCRMClientSearchLocations(t *testing.T) {
	crm := mocks.NewCRMServer()
	defer crm.Close()
	token := crm.IssueAccessToken()

	client := NewCRMClient(crm.Config(), http.DefaultClient)
	locations, err := client.SearchLocations(context.Background(), token, mocks.CRMCompanyID, 100)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Contains(t, string(locations[0]), mocks.CRMLocationID)

	reqs := crm.RequestsTo("/locations/search")
	require.Len(t, reqs, 1)
	assert.Equal(t, "companyId="+mocks.CRMCompanyID+"&limit=100", reqs[0].Query)
}

func TestCRMClientSearchLocationsEmpty(t *testing.T) {
	crm := mocks.NewCRMServer()
	defer crm.Close()
	crm.SetLocations(nil)
	token := crm.IssueAccessToken()

	client := NewCRMClient(crm.Config(), http.DefaultClient)
	locations, err := client.SearchLocations(context.Background(), token, mocks.CRMCompanyID, 10)
	require.NoError(t, err)
	assert.NotNil(t, locations)
	assert.Empty(t, locations)
}
