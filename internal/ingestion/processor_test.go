package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldCSVWithAliasedHeaders(t *testing.T) {
	csvData := `Field Label,Field API Name,Object Label,Object API Name,Data Type,Description,Is Custom,Population Percentage
Amount,Amount__c,Opportunity,Opportunity,Currency,Deal value at close,TRUE,85%
Stage,StageName,Opportunity,Opportunity,Picklist,,false,
,Orphan__c,Opportunity,Opportunity,Text,,false,
`

	records, skipped, err := ParseFieldCSV(strings.NewReader(csvData), "hr_export")

	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)

	amount := records[0]
	assert.Equal(t, "Amount", amount.FieldLabel)
	assert.Equal(t, "Amount__c", amount.FieldAPIName)
	assert.Equal(t, "Currency", amount.DataType)
	assert.Equal(t, "hr_export", amount.IngestedBy)
	assert.True(t, amount.IsCustom)
	require.NotNil(t, amount.PopulationPercentage)
	assert.Equal(t, 85, *amount.PopulationPercentage)

	stage := records[1]
	assert.False(t, stage.IsCustom)
	assert.Nil(t, stage.PopulationPercentage)
}

func TestParseFieldCSVDefaultsObjectAPIName(t *testing.T) {
	csvData := `fieldLabel,fieldApiName,objectLabel
Amount,Amount__c,Opportunity
`

	records, skipped, err := ParseFieldCSV(strings.NewReader(csvData), "")

	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 1)
	assert.Equal(t, "Opportunity", records[0].ObjectAPIName)
}

func TestParseFieldCSVMissingRequiredColumn(t *testing.T) {
	csvData := `Description,Data Type
something,Text
`

	_, _, err := ParseFieldCSV(strings.NewReader(csvData), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "field label")
}

func TestParseFieldCSVRaggedRows(t *testing.T) {
	csvData := `Field Label,Field API Name,Object Label,Description
Amount,Amount__c,Opportunity
Stage,StageName,Opportunity,Sales stage,extra
`

	records, skipped, err := ParseFieldCSV(strings.NewReader(csvData), "")

	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 2)
	assert.Empty(t, records[0].Description)
	assert.Equal(t, "Sales stage", records[1].Description)
}

func TestParseObjectCSV(t *testing.T) {
	csvData := `Object Label,Object API Name,Description,Plural Label,Is Custom
Account,Account,Companies we do business with,Accounts,no
Shipment,,Tracked deliveries,Shipments,yes
`

	records, skipped, err := ParseObjectCSV(strings.NewReader(csvData))

	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, records, 2)

	assert.Equal(t, "Account", records[0].ObjectAPIName)
	assert.False(t, records[0].IsCustom)

	// Missing API name falls back to the label.
	assert.Equal(t, "Shipment", records[1].ObjectAPIName)
	assert.True(t, records[1].IsCustom)
}

func TestParseObjectCSVMissingLabelColumn(t *testing.T) {
	csvData := `Description
something
`

	_, _, err := ParseObjectCSV(strings.NewReader(csvData))
	require.Error(t, err)
}

func TestParseBoolVariants(t *testing.T) {
	assert.True(t, parseBool("TRUE"))
	assert.True(t, parseBool("Yes"))
	assert.True(t, parseBool("1"))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool(""))
	assert.False(t, parseBool("maybe"))
}
