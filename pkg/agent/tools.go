package agent

import "encoding/json"

const (
	toolRequestMoreContext = "request_more_context_by_question"
	toolAnswerWithSQL      = "answer_user_question_with_sql_statement"
)

// standardTools is spec.md §6's fixed tool invocation surface: exactly
// these two tools, never a dynamic MCP-style catalog.
func standardTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        toolRequestMoreContext,
			Description: "Ask for more schema or SQL-example context before answering, by posing a focused follow-up question to search the catalog with.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
				},
				"required": []string{"question"},
			},
		},
		{
			Name:        toolAnswerWithSQL,
			Description: "Answer the user's question with a validated SQL statement, citing the catalog objects and SQL examples that were relevant.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sql_statement":               map[string]any{"type": "string"},
					"command_type":                map[string]any{"type": "string"},
					"relevant_database_object_ids": map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
					"relevant_sql_example_ids":     map[string]any{"type": "array", "items": map[string]any{"type": "integer"}},
				},
				"required": []string{"sql_statement", "command_type", "relevant_database_object_ids", "relevant_sql_example_ids"},
			},
		},
	}
}

// requestMoreContextArgs is toolRequestMoreContext's input shape.
type requestMoreContextArgs struct {
	Question string `json:"question"`
}

// answerWithSQLArgs is toolAnswerWithSQL's input shape.
type answerWithSQLArgs struct {
	SQLStatement              string  `json:"sql_statement"`
	CommandType               string  `json:"command_type"`
	RelevantDatabaseObjectIDs []int64 `json:"relevant_database_object_ids"`
	RelevantSQLExampleIDs     []int64 `json:"relevant_sql_example_ids"`
}

// validatableCommandTypes is spec.md §4.G step 5's set of command types
// that must pass the SQL Validator before an answer is accepted.
var validatableCommandTypes = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true,
	"DELETE": true, "MERGE": true, "VALUES": true,
}

func parseRequestMoreContext(input json.RawMessage) (requestMoreContextArgs, error) {
	var args requestMoreContextArgs
	err := json.Unmarshal(input, &args)
	return args, err
}

func parseAnswerWithSQL(input json.RawMessage) (answerWithSQLArgs, error) {
	var args answerWithSQLArgs
	err := json.Unmarshal(input, &args)
	return args, err
}
