package models

import "time"

// FieldRecord is one Salesforce field's metadata as loaded from a
// dictionary export. Records are read-only once ingested; MatchConfidence
// is attached by result refinement and is never persisted.
type FieldRecord struct {
	ID                   int64   `json:"id"`
	FieldLabel           string  `json:"fieldLabel"`
	FieldAPIName         string  `json:"fieldApiName"`
	ObjectLabel          string  `json:"objectLabel"`
	ObjectAPIName        string  `json:"objectApiName"`
	DataType             string  `json:"dataType"`
	Description          string  `json:"description,omitempty"`
	HelpText             string  `json:"helpText,omitempty"`
	Formula              string  `json:"formula,omitempty"`
	PicklistValues       string  `json:"picklistValues,omitempty"`
	ComplianceCategory   string  `json:"complianceCategory,omitempty"`
	TagIDs               string  `json:"tagIds,omitempty"`
	Owners               string  `json:"owners,omitempty"`
	Stakeholders         string  `json:"stakeholders,omitempty"`
	IngestedBy           string  `json:"ingestedBy,omitempty"`
	UsageStatus          string  `json:"usageStatus,omitempty"`
	IsRequired           bool    `json:"isRequired"`
	IsCustom             bool    `json:"isCustom"`
	IsUnique             bool    `json:"isUnique"`
	PopulationPercentage *int    `json:"populationPercentage,omitempty"`
	ReferenceCount       *int    `json:"referenceCount,omitempty"`
	MatchConfidence      *string `json:"matchConfidence,omitempty"`

	CreatedAt time.Time `json:"-"`
}

// Identity returns the key refinement uses to map model selections back
// onto candidates.
func (f FieldRecord) Identity() string {
	return f.FieldAPIName + "|" + f.ObjectAPIName
}

// ObjectRecord is one Salesforce object's metadata, keyed by API name.
type ObjectRecord struct {
	ID            int64  `json:"id"`
	ObjectLabel   string `json:"objectLabel"`
	ObjectAPIName string `json:"objectApiName"`
	Description   string `json:"description,omitempty"`
	PluralLabel   string `json:"pluralLabel,omitempty"`
	KeyPrefix     string `json:"keyPrefix,omitempty"`
	SharingModel  string `json:"sharingModel,omitempty"`
	Tags          string `json:"tags,omitempty"`
	IsCustom      bool   `json:"isCustom"`

	CreatedAt time.Time `json:"-"`
}

// QueryLogEntry is an append-only record of one processed search request.
type QueryLogEntry struct {
	ID               string    `json:"id"`
	Query            string    `json:"query"`
	Plan             string    `json:"plan"`
	ResultCount      int       `json:"resultCount"`
	ProcessingTimeMs int       `json:"processingTimeMs"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
