package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardToolsExposesExactlyTheTwoFixedTools(t *testing.T) {
	tools := standardTools()
	require.Len(t, tools, 2)
	assert.Equal(t, toolRequestMoreContext, tools[0].Name)
	assert.Equal(t, toolAnswerWithSQL, tools[1].Name)
}

func TestParseRequestMoreContextArgs(t *testing.T) {
	args, err := parseRequestMoreContext(json.RawMessage(`{"question":"what tables exist?"}`))
	require.NoError(t, err)
	assert.Equal(t, "what tables exist?", args.Question)
}

func TestParseAnswerWithSQLArgs(t *testing.T) {
	raw := `{
		"sql_statement": "select 1",
		"command_type": "SELECT",
		"relevant_database_object_ids": [1, 2],
		"relevant_sql_example_ids": [3]
	}`
	args, err := parseAnswerWithSQL(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "select 1", args.SQLStatement)
	assert.Equal(t, "SELECT", args.CommandType)
	assert.Equal(t, []int64{1, 2}, args.RelevantDatabaseObjectIDs)
	assert.Equal(t, []int64{3}, args.RelevantSQLExampleIDs)
}

func TestValidatableCommandTypes(t *testing.T) {
	for _, ct := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "VALUES"} {
		assert.True(t, validatableCommandTypes[ct], ct)
	}
	assert.False(t, validatableCommandTypes["BEGIN"])
	assert.False(t, validatableCommandTypes["CREATE TABLE"])
}
