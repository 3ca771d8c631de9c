package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/metrics"
	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/internal/storage/sqlite"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Processor loads data-dictionary CSV exports into the metadata store.
// Each load fully replaces the previous dictionary.
type Processor struct {
	db *sqlite.Client
}

func NewProcessor(db *sqlite.Client) *Processor {
	return &Processor{db: db}
}

// Header aliases accepted for field exports. Keys are normalized
// (lowercase, separators stripped), so "Field Label", "field_label" and
// "FieldLabel" all resolve to the same column.
var fieldHeaderAliases = map[string]string{
	"fieldlabel":           "fieldLabel",
	"label":                "fieldLabel",
	"fieldapiname":         "fieldApiName",
	"apiname":              "fieldApiName",
	"fieldname":            "fieldApiName",
	"objectlabel":          "objectLabel",
	"object":               "objectLabel",
	"objectapiname":        "objectApiName",
	"objectname":           "objectApiName",
	"datatype":             "dataType",
	"type":                 "dataType",
	"description":          "description",
	"helptext":             "helpText",
	"help":                 "helpText",
	"formula":              "formula",
	"picklistvalues":       "picklistValues",
	"compliancecategory":   "complianceCategory",
	"tagids":               "tagIds",
	"tags":                 "tagIds",
	"owners":               "owners",
	"owner":                "owners",
	"stakeholders":         "stakeholders",
	"usagestatus":          "usageStatus",
	"status":               "usageStatus",
	"isrequired":           "isRequired",
	"required":             "isRequired",
	"iscustom":             "isCustom",
	"custom":               "isCustom",
	"isunique":             "isUnique",
	"unique":               "isUnique",
	"populationpercentage": "populationPercentage",
	"population":           "populationPercentage",
	"referencecount":       "referenceCount",
}

var objectHeaderAliases = map[string]string{
	"objectlabel":   "objectLabel",
	"label":         "objectLabel",
	"objectapiname": "objectApiName",
	"apiname":       "objectApiName",
	"objectname":    "objectApiName",
	"description":   "description",
	"plurallabel":   "pluralLabel",
	"keyprefix":     "keyPrefix",
	"sharingmodel":  "sharingModel",
	"tags":          "tags",
	"iscustom":      "isCustom",
	"custom":        "isCustom",
}

// ParseFieldCSV reads a field dictionary export. Rows missing a field
// label, field API name, or object label are skipped and counted, not
// fatal: real exports routinely carry a few blank or malformed rows.
func ParseFieldCSV(r io.Reader, ingestedBy string) ([]models.FieldRecord, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := headerIndex(header, fieldHeaderAliases)
	if _, ok := index["fieldLabel"]; !ok {
		return nil, 0, fmt.Errorf("csv is missing a field label column")
	}
	if _, ok := index["fieldApiName"]; !ok {
		return nil, 0, fmt.Errorf("csv is missing a field API name column")
	}

	var records []models.FieldRecord
	skipped := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read csv row: %w", err)
		}

		get := func(key string) string {
			i, ok := index[key]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := models.FieldRecord{
			FieldLabel:         get("fieldLabel"),
			FieldAPIName:       get("fieldApiName"),
			ObjectLabel:        get("objectLabel"),
			ObjectAPIName:      get("objectApiName"),
			DataType:           get("dataType"),
			Description:        get("description"),
			HelpText:           get("helpText"),
			Formula:            get("formula"),
			PicklistValues:     get("picklistValues"),
			ComplianceCategory: get("complianceCategory"),
			TagIDs:             get("tagIds"),
			Owners:             get("owners"),
			Stakeholders:       get("stakeholders"),
			IngestedBy:         ingestedBy,
			UsageStatus:        get("usageStatus"),
			IsRequired:         parseBool(get("isRequired")),
			IsCustom:           parseBool(get("isCustom")),
			IsUnique:           parseBool(get("isUnique")),
		}

		if rec.FieldLabel == "" || rec.FieldAPIName == "" || rec.ObjectLabel == "" {
			skipped++
			continue
		}

		if rec.ObjectAPIName == "" {
			rec.ObjectAPIName = rec.ObjectLabel
		}
		if v := parseIntPtr(get("populationPercentage")); v != nil {
			rec.PopulationPercentage = v
		}
		if v := parseIntPtr(get("referenceCount")); v != nil {
			rec.ReferenceCount = v
		}

		records = append(records, rec)
	}

	return records, skipped, nil
}

// ParseObjectCSV reads an object dictionary export. Rows missing both
// labels are skipped.
func ParseObjectCSV(r io.Reader) ([]models.ObjectRecord, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := headerIndex(header, objectHeaderAliases)
	if _, ok := index["objectLabel"]; !ok {
		return nil, 0, fmt.Errorf("csv is missing an object label column")
	}

	var records []models.ObjectRecord
	skipped := 0

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read csv row: %w", err)
		}

		get := func(key string) string {
			i, ok := index[key]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := models.ObjectRecord{
			ObjectLabel:   get("objectLabel"),
			ObjectAPIName: get("objectApiName"),
			Description:   get("description"),
			PluralLabel:   get("pluralLabel"),
			KeyPrefix:     get("keyPrefix"),
			SharingModel:  get("sharingModel"),
			Tags:          get("tags"),
			IsCustom:      parseBool(get("isCustom")),
		}

		if rec.ObjectLabel == "" && rec.ObjectAPIName == "" {
			skipped++
			continue
		}
		if rec.ObjectAPIName == "" {
			rec.ObjectAPIName = rec.ObjectLabel
		}

		records = append(records, rec)
	}

	return records, skipped, nil
}

// ProcessFieldCSV parses and loads a field export, replacing the current
// dictionary.
func (p *Processor) ProcessFieldCSV(ctx context.Context, r io.Reader, ingestedBy string) (int, int, error) {
	records, skipped, err := ParseFieldCSV(r, ingestedBy)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, skipped, fmt.Errorf("no valid field rows found in csv")
	}

	if err := p.db.ReplaceFields(ctx, records); err != nil {
		return 0, skipped, fmt.Errorf("failed to load field records: %w", err)
	}

	metrics.FieldsLoaded.Set(float64(len(records)))

	logger.Info("Field dictionary loaded",
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
		zap.String("ingested_by", ingestedBy),
	)

	return len(records), skipped, nil
}

// ProcessObjectCSV parses and loads an object export, replacing the
// current object dictionary.
func (p *Processor) ProcessObjectCSV(ctx context.Context, r io.Reader) (int, int, error) {
	records, skipped, err := ParseObjectCSV(r)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, skipped, fmt.Errorf("no valid object rows found in csv")
	}

	if err := p.db.ReplaceObjects(ctx, records); err != nil {
		return 0, skipped, fmt.Errorf("failed to load object records: %w", err)
	}

	metrics.ObjectsLoaded.Set(float64(len(records)))

	logger.Info("Object dictionary loaded",
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
	)

	return len(records), skipped, nil
}

func headerIndex(header []string, aliases map[string]string) map[string]int {
	index := make(map[string]int)
	for i, h := range header {
		normalized := normalizeHeader(h)
		if canonical, ok := aliases[normalized]; ok {
			if _, seen := index[canonical]; !seen {
				index[canonical] = i
			}
		}
	}
	return index
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
	return h
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func parseIntPtr(v string) *int {
	v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
