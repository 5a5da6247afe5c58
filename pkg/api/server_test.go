package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sopamo/taletwo/pkg/auth"
	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/plan"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/store"
	"github.com/Sopamo/taletwo/pkg/story"
)

const (
	readerToken = "reader-token"
	otherToken  = "other-token"
	readerID    = "user-reader"
	otherID     = "user-other"
)

// failingLLM fails every call. Handler tests exercise cached continuations,
// validation, and error mapping; background tasks that reach the model fail
// silently, and a foreground call that reaches it surfaces as a 500.
type failingLLM struct{}

func (failingLLM) Chat(context.Context, []llm.Message, llm.ChatOptions) (string, error) {
	return "", errors.New("model unavailable in handler tests")
}

type testServer struct {
	srv   *Server
	st    *store.MemoryStore
	tasks *story.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithOrigin(t, "*")
}

func newTestServerWithOrigin(t *testing.T, origin string) *testServer {
	t.Helper()

	st := store.NewMemory()
	modelsCfg := config.DefaultModelsConfig("test-model")
	gen := story.NewGenerator(failingLLM{}, modelsCfg)
	plans := plan.NewEngine(st, failingLLM{}, modelsCfg)
	tasks := story.NewScheduler()
	coord := story.NewCoordinator(st, gen, plans, tasks)

	srv := NewServer(ServerParams{
		Config:  &config.Config{CORSOrigin: origin},
		Books:   services.NewBookService(st),
		Stories: story.NewRuntime(st, plans, gen, coord, tasks),
		Verifier: auth.StaticVerifier{
			readerToken: readerID,
			otherToken:  otherID,
		},
	})

	t.Cleanup(tasks.Wait)
	return &testServer{srv: srv, st: st, tasks: tasks}
}

// request sends a routed request through the full middleware chain. body is
// a raw JSON string, "" for none; token "" skips the Authorization header.
func (ts *testServer) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.srv.echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seed(t *testing.T, book *models.Book) *models.Book {
	t.Helper()
	require.NoError(t, ts.st.Insert(context.Background(), book))
	return book
}

func (ts *testServer) stored(t *testing.T, id string) *models.Book {
	t.Helper()
	book, err := ts.st.Get(context.Background(), id)
	require.NoError(t, err)
	return book
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

// readerBook is a started book owned by the reader: a three point plan and
// one committed page offering three choices.
func readerBook() *models.Book {
	options := []string{"dive alone", "bribe the guard", "wait for dark"}
	ids := make([]string, len(options))
	for i, opt := range options {
		ids[i] = models.MakeOptionID(0, opt)
	}
	now := time.Now().UTC()
	return &models.Book{
		ID:            "book-1",
		UserID:        readerID,
		BookOne:       "The Count of Monte Cristo",
		BookTwo:       "Neuromancer",
		World:         "a drowned harbor city",
		MainCharacter: "Mara",
		Genre:         "dark fantasy",
		CreatedAt:     now,
		UpdatedAt:     now,
		Plan: &models.Plan{
			OverallIdea: "a salvager uncovers the vault that sank the city",
			Conflict:    "the syndicate wants the vault sealed forever",
			Points: []models.Point{
				{Title: "Descent", Brief: "mara takes the salvage job", Substeps: []string{"meet the crew", "first dive", "the wreck field"}},
				{Title: "Discovery", Brief: "the vault is found", Substeps: []string{"find the vault", "open it"}},
				{Title: "Reckoning", Brief: "the syndicate closes in", Substeps: []string{"the chase", "the bargain"}},
			},
		},
		Story: &models.StoryState{
			Pages: []models.Page{{
				Passage:   "Mara watches the tide swallow the lower quays.",
				Summary:   "mara surveys the flooded quays",
				Options:   options,
				OptionIDs: ids,
			}},
			Index:   0,
			Notes:   []string{"the rig is failing"},
			Summary: "mara surveys the flooded quays",
			Turn:    1,
		},
	}
}

// continuation builds a cached candidate page without options.
func continuation(passage string) models.Candidate {
	return models.Candidate{Page: models.Page{Passage: passage, Summary: "recap: " + passage}}
}

// seedCoordinationState plants branch cache and verifier entries, which no
// API response may expose.
func seedCoordinationState(t *testing.T, ts *testServer, bookID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ts.st.SetBranch(ctx, bookID, models.NextKey(0), continuation("a speculative secret"), time.Now().UTC()))
	require.NoError(t, ts.st.SetPendingVerify(ctx, bookID, &models.PendingVerify{
		Passage: "Mara watches the tide swallow the lower quays.",
		SubText: "meet the crew",
	}))
}

func TestNewServerPanicsOnNilDependencies(t *testing.T) {
	st := store.NewMemory()
	modelsCfg := config.DefaultModelsConfig("test-model")
	gen := story.NewGenerator(failingLLM{}, modelsCfg)
	plans := plan.NewEngine(st, failingLLM{}, modelsCfg)
	tasks := story.NewScheduler()
	coord := story.NewCoordinator(st, gen, plans, tasks)

	valid := ServerParams{
		Config:   &config.Config{CORSOrigin: "*"},
		Books:    services.NewBookService(st),
		Stories:  story.NewRuntime(st, plans, gen, coord, tasks),
		Verifier: auth.StaticVerifier{},
	}

	tests := []struct {
		name   string
		mutate func(p *ServerParams)
	}{
		{"nil config", func(p *ServerParams) { p.Config = nil }},
		{"nil book service", func(p *ServerParams) { p.Books = nil }},
		{"nil story runtime", func(p *ServerParams) { p.Stories = nil }},
		{"nil verifier", func(p *ServerParams) { p.Verifier = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			assert.Panics(t, func() { NewServer(params) })
		})
	}

	t.Run("nil db is allowed", func(t *testing.T) {
		assert.NotPanics(t, func() { NewServer(valid) })
	})
}

func TestShutdownBeforeStart(t *testing.T) {
	ts := newTestServer(t)
	assert.NoError(t, ts.srv.Shutdown(context.Background()))
}
