package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/timescale/pgvectorizer/pkg/queue"
	"github.com/timescale/pgvectorizer/pkg/sqlvalidator"
)

const defaultMaxIter = 10

// fixedSystemPrompt is spec.md §4.G step 4's "fixed system prompt",
// distinct from the per-iteration rendered header inside the user
// message (render.go's standardHeader).
const fixedSystemPrompt = "You are the text-to-sql reasoning loop for a database assistant. " +
	"Use the two tools you are given; never answer in plain text."


// Validator is the subset of pkg/sqlvalidator.Validator the loop needs
// to gate a candidate answer, per spec.md §4.G step 5 / §4.H.
type Validator interface {
	Explain(ctx context.Context, sql string, searchPath []string) (sqlvalidator.Result, error)
}

// Request is one invocation of the text-to-sql agent loop, spec.md
// §4.G's inputs.
type Request struct {
	Question            string
	SearchPath          []string
	EmbedModel          string
	ChatModel           string
	MaxIter             int
	MaxResults          int
	MaxVectorDist       *float64
	IncludeEntireSchema bool
	OnlyTheseObjects    []int64
}

// Answer is spec.md §4.G's output.
type Answer struct {
	SQLStatement            string
	CommandType             string
	RelevantDatabaseObjects []CatalogObject
	RelevantSQLExamples     []SQLExample
	Iterations              int
	QueryPlan               json.RawMessage
	EstCost                 float64
	EstRows                 float64
}

// Loop implements spec.md §4.G's text-to-sql agent over an injected
// Retriever, Embedder, ChatProvider, and Validator — every external
// dependency reaches this package through a narrow interface, so the
// loop itself never knows whether it is talking to Postgres or Anthropic.
type Loop struct {
	Retriever    Retriever
	Embedder     Embedder
	Chat         ChatProvider
	Validator    Validator
	SystemPrompt string
}

// state is one invocation's working memory, spec.md §4.G's "State per
// invocation". iterState tracks consecutive chat-provider failures
// separately from iterRemaining, the teacher's iteration.go pattern
// generalized from "alert investigation interaction failed" to "chat
// provider call failed" — a burst of transient transport errors aborts
// the loop early instead of silently burning the whole iter_remaining
// budget on retries that are unlikely to start succeeding.
type state struct {
	questions      []string
	ctxObj         []CatalogObject
	ctxSQL         []SQLExample
	iterRemaining  int
	invalidSQLErrs []string
	iterState      IterationState
}

// Run executes the loop to completion. If the iteration budget is
// exhausted without an accepted answer, it returns a normal Answer with
// a blank SQLStatement carrying whatever catalog context was gathered
// (spec.md §7: "Agent: exhausted iterations → return {sql_statement:
// null, ...}"), not an error — the caller can inspect
// RelevantDatabaseObjects/Iterations and retry with an altered question.
func (l *Loop) Run(ctx context.Context, req Request) (Answer, error) {
	maxIter := req.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	st := &state{
		questions:     []string{req.Question},
		iterRemaining: maxIter,
	}

	for {
		answer, done, err := l.iterate(ctx, req, st, maxIter)
		if err != nil {
			return Answer{}, err
		}
		if done {
			return answer, nil
		}
		if st.iterRemaining <= 0 {
			return Answer{
				RelevantDatabaseObjects: st.ctxObj,
				RelevantSQLExamples:     st.ctxSQL,
				Iterations:              maxIter,
			}, nil
		}
	}
}

// iterate runs spec.md §4.G's "One iteration" six steps once.
func (l *Loop) iterate(ctx context.Context, req Request, st *state, maxIter int) (Answer, bool, error) {
	// Step 1: embed pending questions.
	vectors, err := l.embedQuestions(ctx, req.EmbedModel, st.questions)
	if err != nil {
		return Answer{}, false, fmt.Errorf("embedding questions: %w", err)
	}

	// Step 2: retrieve, in priority order.
	objs, examples, err := l.retrieve(ctx, req, st, vectors)
	if err != nil {
		return Answer{}, false, fmt.Errorf("retrieving catalog context: %w", err)
	}
	st.ctxObj, st.ctxSQL = objs, examples

	// Step 3: render.
	prompt := renderPrompt(req.Question, st.ctxObj, st.ctxSQL, st.invalidSQLErrs)

	// Step 4: call provider. Force the answer tool on the final iteration.
	isFinal := st.iterRemaining <= 1
	toolChoice := ToolChoice{Mode: "any"}
	if isFinal {
		toolChoice = ToolChoice{Mode: "tool", Name: toolAnswerWithSQL}
	}
	result, err := l.Chat.Chat(ctx, req.ChatModel,
		[]Message{{Role: "user", Content: []ContentBlock{{Type: "text", Text: prompt}}}},
		standardTools(), toolChoice,
		ChatOptions{SystemPrompt: l.systemPrompt()},
	)
	if err != nil {
		var transportErr *queue.TransportError
		st.iterState.RecordFailure(err.Error(), errors.As(err, &transportErr))
		if st.iterState.ShouldAbortOnTimeouts() {
			return Answer{}, false, fmt.Errorf("chat provider failed %d times in a row, aborting: %w", MaxConsecutiveTimeouts, err)
		}
		st.iterRemaining--
		st.questions = []string{req.Question}
		return Answer{}, false, nil
	}
	st.iterState.RecordSuccess()

	iterationsUsed := maxIter - st.iterRemaining + 1

	// Step 5: dispatch tool calls, in order.
	st.questions = nil
	for _, block := range result.Content {
		if block.Type != "tool_use" {
			continue
		}
		switch block.ToolName {
		case toolRequestMoreContext:
			args, err := parseRequestMoreContext(block.Input)
			if err != nil {
				return Answer{}, false, fmt.Errorf("parsing %s arguments: %w", toolRequestMoreContext, err)
			}
			st.questions = append(st.questions, args.Question)

		case toolAnswerWithSQL:
			answer, accepted, err := l.handleAnswer(ctx, req, st, block.Input, iterationsUsed)
			if err != nil {
				return Answer{}, false, err
			}
			if accepted {
				return answer, true, nil
			}
		}
	}

	// Step 6: iter_remaining decrements for the next pass; an iteration
	// that neither requested more context nor answered still consumes
	// its budget.
	st.iterRemaining--
	if len(st.questions) == 0 {
		// Nothing to re-embed next round and no answer was accepted:
		// re-ask the original question so the loop can still converge.
		st.questions = []string{req.Question}
	}
	return Answer{}, false, nil
}

// handleAnswer implements step 5's answer_user_question_with_sql_statement
// handling: narrow context to cited ids, validate when the command type
// requires it, and report whether the answer was accepted.
func (l *Loop) handleAnswer(ctx context.Context, req Request, st *state, input json.RawMessage, iterations int) (Answer, bool, error) {
	args, err := parseAnswerWithSQL(input)
	if err != nil {
		return Answer{}, false, fmt.Errorf("parsing %s arguments: %w", toolAnswerWithSQL, err)
	}

	relevantObjs := filterObjects(st.ctxObj, args.RelevantDatabaseObjectIDs)
	relevantSQL := filterExamples(st.ctxSQL, args.RelevantSQLExampleIDs)

	answer := Answer{
		SQLStatement:            args.SQLStatement,
		CommandType:             args.CommandType,
		RelevantDatabaseObjects: relevantObjs,
		RelevantSQLExamples:     relevantSQL,
		Iterations:              iterations,
	}

	if !validatableCommandTypes[args.CommandType] {
		return answer, true, nil
	}

	result, err := l.Validator.Explain(ctx, args.SQLStatement, req.SearchPath)
	if err != nil {
		return Answer{}, false, fmt.Errorf("validating candidate sql: %w", err)
	}
	if !result.Valid {
		st.invalidSQLErrs = append(st.invalidSQLErrs, result.Error)
		return Answer{}, false, nil
	}

	answer.QueryPlan = result.QueryPlan
	answer.EstCost = result.EstCost
	answer.EstRows = result.EstRows
	return answer, true, nil
}

func (l *Loop) systemPrompt() string {
	if l.SystemPrompt != "" {
		return l.SystemPrompt
	}
	return fixedSystemPrompt
}

func (l *Loop) embedQuestions(ctx context.Context, model string, questions []string) ([][]float32, error) {
	if len(questions) == 0 {
		return nil, nil
	}
	return l.Embedder.Embed(ctx, model, questions)
}

// retrieve implements step 2's three retrieval modes in priority order.
func (l *Loop) retrieve(ctx context.Context, req Request, st *state, vectors [][]float32) ([]CatalogObject, []SQLExample, error) {
	switch {
	case req.IncludeEntireSchema:
		objs, err := l.Retriever.TopLevelObjects(ctx)
		if err != nil {
			return nil, nil, err
		}
		return objs, st.ctxSQL, nil

	case len(req.OnlyTheseObjects) > 0:
		objs, err := l.Retriever.ObjectsByID(ctx, req.OnlyTheseObjects)
		if err != nil {
			return nil, nil, err
		}
		return objs, st.ctxSQL, nil

	default:
		if len(vectors) == 0 {
			return st.ctxObj, st.ctxSQL, nil
		}
		objs, err := l.Retriever.SearchObjects(ctx, vectors, req.MaxResults, req.MaxVectorDist)
		if err != nil {
			return nil, nil, err
		}
		examples, err := l.Retriever.SearchSQLExamples(ctx, vectors, req.MaxResults, req.MaxVectorDist)
		if err != nil {
			return nil, nil, err
		}
		return unionObjects(st.ctxObj, objs), unionExamples(st.ctxSQL, examples), nil
	}
}

func filterObjects(objs []CatalogObject, ids []int64) []CatalogObject {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []CatalogObject
	for _, o := range objs {
		if _, ok := want[o.ID]; ok {
			out = append(out, o)
		}
	}
	return out
}

func filterExamples(examples []SQLExample, ids []int64) []SQLExample {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []SQLExample
	for _, e := range examples {
		if _, ok := want[e.ID]; ok {
			out = append(out, e)
		}
	}
	return out
}

func unionObjects(existing, fresh []CatalogObject) []CatalogObject {
	seen := make(map[int64]struct{}, len(existing))
	out := make([]CatalogObject, 0, len(existing)+len(fresh))
	for _, o := range existing {
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}
	for _, o := range fresh {
		if _, ok := seen[o.ID]; ok {
			continue
		}
		seen[o.ID] = struct{}{}
		out = append(out, o)
	}
	return out
}

func unionExamples(existing, fresh []SQLExample) []SQLExample {
	seen := make(map[int64]struct{}, len(existing))
	out := make([]SQLExample, 0, len(existing)+len(fresh))
	for _, e := range existing {
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	for _, e := range fresh {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
