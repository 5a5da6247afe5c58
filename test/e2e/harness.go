// Package e2e boots complete taletwo instances against the in-memory store
// and a scripted model client, then drives them over HTTP the way a reader
// client would.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sopamo/taletwo/pkg/api"
	"github.com/Sopamo/taletwo/pkg/auth"
	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/models"
	"github.com/Sopamo/taletwo/pkg/plan"
	"github.com/Sopamo/taletwo/pkg/prompt"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/store"
	"github.com/Sopamo/taletwo/pkg/story"
)

// Credentials every test app accepts.
const (
	testToken  = "e2e-reader-token"
	testUserID = "user-e2e"
)

// TestApp boots a complete taletwo instance for end-to-end testing.
type TestApp struct {
	Config *config.Config
	Store  *store.MemoryStore
	LLM    *ScriptedLLMClient
	Tasks  *story.Scheduler
	Server *api.Server

	BaseURL string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient *ScriptedLLMClient
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted model client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// NewTestApp creates and starts a full taletwo test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	st := store.NewMemory()
	modelsCfg := config.DefaultModelsConfig("scripted-model")
	plans := plan.NewEngine(st, tc.llmClient, modelsCfg)
	generator := story.NewGenerator(tc.llmClient, modelsCfg)
	tasks := story.NewScheduler()
	coordinator := story.NewCoordinator(st, generator, plans, tasks)
	stories := story.NewRuntime(st, plans, generator, coordinator, tasks)
	books := services.NewBookService(st)

	cfg := &config.Config{Port: "0", CORSOrigin: "*"}
	server := api.NewServer(api.ServerParams{
		Config:   cfg,
		Books:    books,
		Stories:  stories,
		Verifier: auth.StaticVerifier{testToken: testUserID},
	})

	httpServer := httptest.NewServer(server.Handler())

	// Close the listener first so no request can schedule new work, then
	// wait out precompute and adaptation still in flight.
	t.Cleanup(func() {
		httpServer.Close()
		tasks.Wait()
	})

	return &TestApp{
		Config:  cfg,
		Store:   st,
		LLM:     tc.llmClient,
		Tasks:   tasks,
		Server:  server,
		BaseURL: httpServer.URL,
		t:       t,
	}
}

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

// CreateBook posts a book owned by the test user and returns its id.
func (app *TestApp) CreateBook(t *testing.T) string {
	t.Helper()
	body := `{
		"bookOne": "The Count of Monte Cristo",
		"bookTwo": "Neuromancer",
		"world": "a drowned harbor city",
		"mainCharacter": "Mara",
		"genre": "dark fantasy"
	}`
	var out struct {
		ID string `json:"id"`
	}
	app.postJSON(t, "/api/books", body, http.StatusCreated, &out)
	require.NotEmpty(t, out.ID)
	return out.ID
}

// GetStory fetches the reader snapshot, starting the story when the book
// has none yet.
func (app *TestApp) GetStory(t *testing.T, bookID string) models.StorySnapshot {
	t.Helper()
	var snap models.StorySnapshot
	app.getJSON(t, fmt.Sprintf("/api/books/%s/story", bookID), http.StatusOK, &snap)
	return snap
}

// StoryNext advances to the continuation of the page at index.
func (app *TestApp) StoryNext(t *testing.T, bookID string, index int) models.StorySnapshot {
	t.Helper()
	var snap models.StorySnapshot
	app.postJSON(t, fmt.Sprintf("/api/books/%s/story/next", bookID),
		fmt.Sprintf(`{"index":%d}`, index), http.StatusOK, &snap)
	return snap
}

// StoryChoose commits the option with the given id on the page at index.
func (app *TestApp) StoryChoose(t *testing.T, bookID string, index int, optionID string) models.StorySnapshot {
	t.Helper()
	var snap models.StorySnapshot
	app.postJSON(t, fmt.Sprintf("/api/books/%s/story/choose", bookID),
		fmt.Sprintf(`{"index":%d,"optionId":%q}`, index, optionID), http.StatusOK, &snap)
	return snap
}

// StoryReady fetches branch readiness for the page at index.
func (app *TestApp) StoryReady(t *testing.T, bookID string, index int) story.ReadyStatus {
	t.Helper()
	ready, err := app.tryStoryReady(bookID, index)
	require.NoError(t, err)
	return ready
}

func (app *TestApp) postJSON(t *testing.T, path, body string, expectedStatus int, out any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, app.BaseURL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "POST %s: unexpected status", path)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (app *TestApp) getJSON(t *testing.T, path string, expectedStatus int, out any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, app.BaseURL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, expectedStatus, resp.StatusCode, "GET %s: unexpected status", path)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

// tryStoryReady fetches readiness without failing the test, for polling
// loops.
func (app *TestApp) tryStoryReady(bookID string, index int) (story.ReadyStatus, error) {
	var out struct {
		Ready story.ReadyStatus `json:"ready"`
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		fmt.Sprintf("%s/api/books/%s/story/ready?index=%d", app.BaseURL, bookID, index), nil)
	if err != nil {
		return out.Ready, err
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out.Ready, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return out.Ready, fmt.Errorf("ready returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out.Ready, err
	}
	return out.Ready, nil
}

// ────────────────────────────────────────────────────────────
// Polling helpers
// ────────────────────────────────────────────────────────────

// WaitForReady polls the ready endpoint until the continuation and every
// given option id report true.
func (app *TestApp) WaitForReady(t *testing.T, bookID string, index int, optionIDs ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		ready, err := app.tryStoryReady(bookID, index)
		if err != nil || !ready.Next {
			return false
		}
		for _, id := range optionIDs {
			if !ready.Options[id] {
				return false
			}
		}
		return true
	}, 10*time.Second, 50*time.Millisecond, "branches for page %d never became ready", index)
}

// ────────────────────────────────────────────────────────────
// Store helpers
// ────────────────────────────────────────────────────────────

// SeedBook inserts a book owned by the test user directly into the store.
// Scenarios exercising coordination state use it to start mid-story.
func (app *TestApp) SeedBook(t *testing.T, book *models.Book) {
	t.Helper()
	book.UserID = testUserID
	require.NoError(t, app.Store.Insert(context.Background(), book))
}

// StoredBook reads the book straight from the store, coordination state
// included.
func (app *TestApp) StoredBook(t *testing.T, bookID string) *models.Book {
	t.Helper()
	book, err := app.Store.Get(context.Background(), bookID)
	require.NoError(t, err)
	return book
}

// seededBook builds a mid-story book: a three-point plan with the cursor on
// the first sub-step and one committed page.
func seededBook(id string, withOptions bool) *models.Book {
	opening := models.Page{
		Passage: "Mara watches the tide swallow the lower quays.",
		Summary: "so far: the city drowns a district a day.",
	}
	if withOptions {
		opening.Options = []string{"dive alone", "bribe the guard", "wait for dark"}
		for _, opt := range opening.Options {
			opening.OptionIDs = append(opening.OptionIDs, models.MakeOptionID(0, opt))
		}
	}
	now := time.Now().UTC()
	return &models.Book{
		ID:            id,
		BookOne:       "The Count of Monte Cristo",
		BookTwo:       "Neuromancer",
		World:         "a drowned harbor city",
		MainCharacter: "Mara",
		Genre:         "dark fantasy",
		CreatedAt:     now,
		UpdatedAt:     now,
		Plan: &models.Plan{
			OverallIdea: "a diver and a drowned city's ghost archive race the tide",
			Conflict:    "the salvage guild wants the archive sealed for good",
			Points: []models.Point{
				{Title: "Descent", Brief: "the crew goes under", Substeps: []string{"meet the crew", "first dive", "the wreck field"}},
				{Title: "Discovery", Brief: "the vault opens", Substeps: []string{"find the vault", "open it"}},
				{Title: "Reckoning", Brief: "the surface answers", Substeps: []string{"the chase", "the bargain"}},
			},
		},
		Story: &models.StoryState{
			Pages: []models.Page{opening},
			Index: 0,
			Notes: []string{"the rig is failing"},
			Turn:  1,
		},
	}
}

// ────────────────────────────────────────────────────────────
// Script builders
// ────────────────────────────────────────────────────────────

// mustJSON marshals v for use as a scripted model response.
func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

// plannerJSON builds a planner response with one point per title.
func plannerJSON(t *testing.T, titles ...string) string {
	t.Helper()
	resp := prompt.PlannerResponse{
		OverallIdea: "a diver and a drowned city's ghost archive race the tide",
		Conflict:    "the salvage guild wants the archive sealed for good",
	}
	for _, title := range titles {
		resp.Points = append(resp.Points, prompt.PlannerPoint{
			Title: title,
			Brief: "the crew works through " + strings.ToLower(title),
		})
	}
	return mustJSON(t, resp)
}

// substepsJSON expands points 0..pointCount-1 with perPoint sub-steps each.
func substepsJSON(t *testing.T, pointCount, perPoint int) string {
	t.Helper()
	var resp prompt.SubstepBatchResponse
	for i := 0; i < pointCount; i++ {
		item := prompt.SubstepBatchItem{Index: i}
		for j := 0; j < perPoint; j++ {
			item.Substeps = append(item.Substeps, fmt.Sprintf("point %d beat %d", i, j))
		}
		resp.Items = append(resp.Items, item)
	}
	return mustJSON(t, resp)
}

// pageJSON builds a page response. Options may be nil for a linear page.
func pageJSON(t *testing.T, passage string, notes, options []string) string {
	t.Helper()
	return mustJSON(t, prompt.PageResponse{
		Passage: passage,
		Summary: "so far: " + passage,
		Notes:   notes,
		Options: options,
	})
}

// verifierJSON builds a verifier verdict.
func verifierJSON(t *testing.T, done bool) string {
	t.Helper()
	return mustJSON(t, prompt.VerifierResponse{Done: done})
}
