package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
	Request  *BundleRequest  `json:"request,omitempty"`
	Response *BundleResponse `json:"response,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status   string          `json:"status"`
	Location string          `json:"location,omitempty"`
	Outcome  json.RawMessage `json:"outcome,omitempty"`
}

const (
	BundleTypeBatch       = "batch"
	BundleTypeTransaction = "transaction"
	BundleTypeSearchset   = "searchset"
)

// NewTransactionBundle creates an empty transaction Bundle stamped with now.
func NewTransactionBundle(now time.Time) *Bundle {
	return newBundle(BundleTypeTransaction, now)
}

// NewBatchBundle creates an empty batch Bundle stamped with now.
func NewBatchBundle(now time.Time) *Bundle {
	return newBundle(BundleTypeBatch, now)
}

func newBundle(kind string, now time.Time) *Bundle {
	ts := now.UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         kind,
		Timestamp:    &ts,
	}
}

// AddCreate appends a POST entry for doc under fullURL.
func (b *Bundle) AddCreate(fullURL string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", doc.ResourceType(), err)
	}
	b.Entry = append(b.Entry, BundleEntry{
		FullURL:  fullURL,
		Resource: raw,
		Request: &BundleRequest{
			Method: "POST",
			URL:    doc.ResourceType(),
		},
	})
	return nil
}

// Documents decodes every entry resource. Entries without a resource or
// with a resource that is not a JSON object are skipped.
func (b *Bundle) Documents() []Document {
	docs := make([]Document, 0, len(b.Entry))
	for _, e := range b.Entry {
		if len(e.Resource) == 0 {
			continue
		}
		doc, err := ParseDocument(e.Resource)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// LinkURL returns the URL of the link with the given relation, or "".
func (b *Bundle) LinkURL(relation string) string {
	for _, l := range b.Link {
		if l.Relation == relation {
			return l.URL
		}
	}
	return ""
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
