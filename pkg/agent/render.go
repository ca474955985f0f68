package agent

import (
	"fmt"
	"strings"
)

// standardHeader is reproduced verbatim on every iteration so that two
// runs over the same catalog state and question produce bit-identical
// prompts up to the retrieved context itself, per spec.md §4.G step 3.
const standardHeader = `You are a database assistant. You answer questions about the data in a ` +
	`PostgreSQL database by producing a single SQL statement.

You will be given descriptions of database objects (tables, views, columns,
functions) and, where available, worked examples of SQL queries with a
description of what they compute. Use only the objects and examples you have
been given; if you need more context to answer confidently, call
request_more_context_by_question with a focused question instead of
guessing. When you are confident in an answer, call
answer_user_question_with_sql_statement with the finished SQL statement,
naming every database object id and SQL example id you actually relied on.`

// renderObject is spec.md §4.G step 3's obj_renderer(id, classid, objid):
// one block per catalog object, identified by id so the LLM can cite it
// back in relevant_database_object_ids.
func renderObject(obj CatalogObject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[object id=%d type=%s name=%s]\n", obj.ID, obj.ObjType, strings.Join(obj.ObjNames, "."))
	if obj.Description != "" {
		b.WriteString(obj.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// renderSQLExample is spec.md §4.G step 3's sql_renderer(id, sql, description).
func renderSQLExample(ex SQLExample) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[sql_example id=%d]\n", ex.ID)
	if ex.Description != "" {
		fmt.Fprintf(&b, "-- %s\n", ex.Description)
	}
	b.WriteString(ex.SQL)
	b.WriteString("\n")
	return b.String()
}

// renderInvalidSQLBlock wraps the SQL Validator's rejection message from
// the previous iteration so the model can see and correct its mistake.
func renderInvalidSQLBlock(errMsg string) string {
	return fmt.Sprintf("<invalid-sql-statement>\n%s\n</invalid-sql-statement>\n", errMsg)
}

// renderPrompt assembles one iteration's full user-message prompt:
// standard header, every accumulated validator-rejection block from
// prior iterations, rendered object and SQL-example context, and the
// original question.
func renderPrompt(question string, objs []CatalogObject, examples []SQLExample, invalidSQLErrs []string) string {
	var b strings.Builder
	b.WriteString(standardHeader)
	b.WriteString("\n\n")
	for _, errMsg := range invalidSQLErrs {
		b.WriteString(renderInvalidSQLBlock(errMsg))
		b.WriteString("\n")
	}
	for _, obj := range objs {
		b.WriteString(renderObject(obj))
	}
	for _, ex := range examples {
		b.WriteString(renderSQLExample(ex))
	}
	fmt.Fprintf(&b, "\nQ: %s\n", question)
	return b.String()
}
