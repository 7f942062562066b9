package hubspot

import (
	"time"

	"github.com/halvari/crmdedup/internal/types"
)

// Wire shapes for the CRM v3 object endpoints. Property values arrive as
// strings; JSON nulls decode to "".

type companyPage struct {
	Results []companyObject `json:"results"`
	Paging  *paging         `json:"paging"`
}

type companyObject struct {
	ID         string       `json:"id"`
	Properties companyProps `json:"properties"`
}

type companyProps struct {
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	CreateDate string `json:"createdate"`
	BusinessID string `json:"business_id"`
	Canonical  string `json:"hs_canonical_object_id"`
}

type paging struct {
	Next *pagingNext `json:"next"`
}

type pagingNext struct {
	After string `json:"after"`
}

type associationPage struct {
	Results []associationResult `json:"results"`
	Paging  *paging             `json:"paging"`
}

type associationResult struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type batchReadRequest struct {
	Properties []string         `json:"properties"`
	Inputs     []batchReadInput `json:"inputs"`
}

type batchReadInput struct {
	ID string `json:"id"`
}

type contactPage struct {
	Results []contactObject `json:"results"`
}

type contactObject struct {
	ID         string       `json:"id"`
	Properties contactProps `json:"properties"`
}

type contactProps struct {
	Email string `json:"email"`
}

type mergeRequest struct {
	PrimaryObjectID string `json:"primaryObjectId"`
	ObjectIDToMerge string `json:"objectIdToMerge"`
}

// record converts a wire object into the engine's snapshot type. A createdate
// that does not parse as RFC 3339 degrades to a nil timestamp with the raw
// string kept for display.
func (o companyObject) record() types.Record {
	rec := types.Record{
		ID:           o.ID,
		Name:         o.Properties.Name,
		Domain:       o.Properties.Domain,
		BusinessID:   o.Properties.BusinessID,
		RawCreatedAt: o.Properties.CreateDate,
	}
	if raw := o.Properties.CreateDate; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			t = t.UTC()
			rec.CreatedAt = &t
		}
	}
	return rec
}
