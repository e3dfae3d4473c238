package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/events"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

// Sunday 18 October 2026, mid morning.
var testNow = time.Date(2026, 10, 18, 10, 30, 0, 0, time.Local)

type testEnv struct {
	server  *Server
	handler http.Handler
	db      *db.DB
	org     *db.Organisation
	prop    *db.Property
	john    *db.Member
}

func setupTestServer(t *testing.T, origins ...string) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	env := &testEnv{db: database}
	env.org = &db.Organisation{Name: "Acme Lettings"}
	if err := database.CreateOrganisation(ctx, env.org); err != nil {
		t.Fatal(err)
	}
	env.prop = &db.Property{OrgID: env.org.ID, Name: "12 High Street"}
	if err := database.CreateProperty(ctx, env.prop); err != nil {
		t.Fatal(err)
	}
	env.john = &db.Member{OrgID: env.org.ID, Name: "John"}
	if err := database.CreateMember(ctx, env.john); err != nil {
		t.Fatal(err)
	}

	emitter := events.New("", nil)
	database.SetEventEmitter(emitter)

	clock := func() time.Time { return testNow }
	svc := composer.New(composer.Options{DB: database, StagingDir: t.TempDir(), Now: clock})
	env.server = New(Config{
		Addr:           ":0",
		DB:             database,
		Composer:       svc,
		Events:         emitter,
		FilesDir:       t.TempDir(),
		AllowedOrigins: origins,
		Now:            clock,
	})
	env.handler = env.server.Handler()

	// Start the WebSocket hub in a goroutine
	go env.server.wsHub.Run()
	t.Cleanup(env.server.wsHub.Stop)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", env.john.ID)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func (env *testEnv) openDraft(t *testing.T) draftResponse {
	t.Helper()
	w := env.do(t, http.MethodPost, "/drafts", OpenDraftRequest{OrgID: env.org.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var d draftResponse
	decode(t, w, &d)
	return d
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("unexpected health response %d %q", w.Code, w.Body.String())
	}
}

func TestCreateAndListProperties(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/orgs/"+env.org.ID+"/properties", CreateEntityRequest{Name: "Flat 2", Address: "2 Mill Lane"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/orgs/"+env.org.ID+"/properties", nil)
	var props []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	decode(t, w, &props)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}

	w = env.do(t, http.MethodPost, "/orgs/"+env.org.ID+"/properties", CreateEntityRequest{Name: "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for blank name, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/orgs/missing/properties", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown organisation, got %d", w.Code)
	}
}

func TestCreateSpaceChecksProperty(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(t, http.MethodPost, "/orgs/"+env.org.ID+"/properties/nope/spaces", CreateEntityRequest{Name: "Attic"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/orgs/"+env.org.ID+"/properties/"+env.prop.ID+"/spaces", CreateEntityRequest{Name: "Attic"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/orgs/"+env.org.ID+"/entities?kind=space&q=att", nil)
	var found []struct {
		Name string `json:"name"`
	}
	decode(t, w, &found)
	if len(found) != 1 || found[0].Name != "Attic" {
		t.Errorf("unexpected search result %+v", found)
	}
}

func TestDescribeAndSubmit(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	w := env.do(t, http.MethodPost, "/drafts/"+d.ID+"/describe", DescribeRequest{Description: "fix the boiler with john tomorrow"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var described draftResponse
	decode(t, w, &described)
	if described.State.AssignedUserID != env.john.ID {
		t.Errorf("expected John assigned, got %q", described.State.AssignedUserID)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/submit", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var submitted SubmitResponse
	decode(t, w, &submitted)
	if submitted.TaskID == "" || submitted.Task == nil {
		t.Fatalf("expected a task, got %+v", submitted)
	}
	if submitted.Draft.State.Description != "" {
		t.Error("expected the draft to be reset after submit")
	}

	w = env.do(t, http.MethodGet, "/tasks?org="+env.org.ID, nil)
	var tasks []TaskResponse
	decode(t, w, &tasks)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].AssignedUserID != env.john.ID || tasks[0].Due == nil {
		t.Errorf("unexpected task %+v", tasks[0])
	}
	if got := tasks[0].DueDate.Format("2006-01-02"); got != "2026-10-19" {
		t.Errorf("expected due 2026-10-19, got %s", got)
	}
}

func TestSubmitEmptyDraft(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	w := env.do(t, http.MethodPost, "/drafts/"+d.ID+"/submit", nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	decode(t, w, &body)
	if body["error"] != "add a description" {
		t.Errorf("unexpected error %q", body["error"])
	}
}

func TestUnknownDraft(t *testing.T) {
	env := setupTestServer(t)
	for _, path := range []string{"/drafts/nope", "/drafts/nope/fields"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "fields") {
			method = http.MethodPatch
		}
		w := env.do(t, method, path, UpdateFieldsRequest{})
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status 404, got %d", method, path, w.Code)
		}
	}
}

func TestUpdateFields(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	title := "Paint the hallway"
	priority := "high"
	w := env.do(t, http.MethodPatch, "/drafts/"+d.ID+"/fields", UpdateFieldsRequest{
		Title:      &title,
		Priority:   &priority,
		GhostSpace: "Hallway",
		Due:        &DueInput{Date: "2026-10-20", Time: "09:00"},
		AddSubtask: "Buy paint",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got draftResponse
	decode(t, w, &got)
	if got.State.Title != title || got.State.Priority != "high" {
		t.Errorf("unexpected title/priority %q %q", got.State.Title, got.State.Priority)
	}
	if len(got.State.Spaces) != 1 || !got.State.Spaces[0].IsGhost() {
		t.Errorf("expected one ghost space, got %+v", got.State.Spaces)
	}
	if got.State.DueTime != "09:00" || len(got.State.Subtasks) != 1 {
		t.Errorf("unexpected due/subtasks %+v", got.State)
	}

	// An invalid field rejects the whole update.
	newTitle := "Something else"
	w = env.do(t, http.MethodPatch, "/drafts/"+d.ID+"/fields", UpdateFieldsRequest{Title: &newTitle, ToggleSpace: "missing"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/drafts/"+d.ID, nil)
	decode(t, w, &got)
	if got.State.Title != title {
		t.Errorf("rejected update was partly applied: %q", got.State.Title)
	}
	if got.View == nil {
		t.Error("expected section views on GET")
	}
}

func TestToggleSection(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	w := env.do(t, http.MethodPost, "/drafts/"+d.ID+"/sections/when/toggle", nil)
	var got draftResponse
	decode(t, w, &got)
	if got.State.Expanded != "when" {
		t.Errorf("expected when expanded, got %q", got.State.Expanded)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/sections/garden/toggle", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown section, got %d", w.Code)
	}
}

func TestCloseAndResumeDraft(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)
	env.do(t, http.MethodPost, "/drafts/"+d.ID+"/describe", DescribeRequest{Description: "replace the kitchen tap"})

	w := env.do(t, http.MethodDelete, "/drafts/"+d.ID+"?save=true", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/drafts/"+d.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("closed draft should be gone, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/resume", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got draftResponse
	decode(t, w, &got)
	if got.State.Description != "replace the kitchen tap" {
		t.Errorf("unexpected resumed description %q", got.State.Description)
	}
}

func TestAttachImage(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, img); err != nil {
		t.Fatal(err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "leak.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngData.Bytes())
	mw.WriteField("annotation", "stain above the window")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/drafts/"+d.ID+"/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/drafts/"+d.ID, nil)
	var got draftResponse
	decode(t, w, &got)
	if len(got.State.Images) != 1 || got.State.Images[0].Annotation != "stain above the window" {
		t.Errorf("unexpected images %+v", got.State.Images)
	}
}

func TestMessages(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	task := &db.Task{OrgID: env.org.ID, PropertyID: env.prop.ID, Title: "Fix the boiler"}
	if err := env.db.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/tasks/"+task.ID+"/messages", PostMessageRequest{Body: "on my way"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, "/tasks/"+task.ID+"/messages", PostMessageRequest{Body: "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for empty message, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/tasks/"+task.ID+"/messages", nil)
	var msgs []MessageResponse
	decode(t, w, &msgs)
	if len(msgs) != 1 || msgs[0].AuthorID != env.john.ID {
		t.Errorf("unexpected messages %+v", msgs)
	}

	if w := env.do(t, http.MethodGet, "/tasks/missing/messages", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestUpdateTaskStatus(t *testing.T) {
	env := setupTestServer(t)
	task := &db.Task{OrgID: env.org.ID, Title: "Clear gutters"}
	if err := env.db.CreateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPatch, "/tasks/"+task.ID+"/status", UpdateStatusRequest{Status: "done"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/tasks?org="+env.org.ID, nil)
	var open []TaskResponse
	decode(t, w, &open)
	if len(open) != 0 {
		t.Errorf("done task should be hidden by default, got %d", len(open))
	}

	w = env.do(t, http.MethodPatch, "/tasks/"+task.ID+"/status", UpdateStatusRequest{Status: "someday"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	env := setupTestServer(t, "https://app.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/drafts", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected origin echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestWebSocketReceivesDraftUpdates(t *testing.T) {
	env := setupTestServer(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for env.server.wsHub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	d := env.openDraft(t)
	env.do(t, http.MethodPost, "/drafts/"+d.ID+"/describe", DescribeRequest{Description: "fix the boiler"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type string        `json:"type"`
			Data draftResponse `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no draft update received: %v", err)
		}
		if msg.Type == "draft.updated" && msg.Data.ID == d.ID {
			return
		}
	}
}

func TestToggleSpaceChecksProperty(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	kitchen := &db.Space{OrgID: env.org.ID, PropertyID: env.prop.ID, Name: "Kitchen"}
	if err := env.db.CreateSpace(ctx, kitchen); err != nil {
		t.Fatal(err)
	}
	other := &db.Property{OrgID: env.org.ID, Name: "Flat 2"}
	if err := env.db.CreateProperty(ctx, other); err != nil {
		t.Fatal(err)
	}
	attic := &db.Space{OrgID: env.org.ID, PropertyID: other.ID, Name: "Attic"}
	if err := env.db.CreateSpace(ctx, attic); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/drafts", OpenDraftRequest{OrgID: env.org.ID, PropertyID: env.prop.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var d draftResponse
	decode(t, w, &d)

	w = env.do(t, http.MethodPatch, "/drafts/"+d.ID+"/fields", UpdateFieldsRequest{ToggleSpace: attic.ID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("space of another property: expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	// Switching property in the same update makes the space valid.
	w = env.do(t, http.MethodPatch, "/drafts/"+d.ID+"/fields", UpdateFieldsRequest{PropertyID: &other.ID, ToggleSpace: attic.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got draftResponse
	decode(t, w, &got)
	if got.State.PropertyID != other.ID || len(got.State.Spaces) != 1 || got.State.Spaces[0].ID != attic.ID {
		t.Errorf("unexpected state %+v", got.State)
	}
}

func TestPickPropertyResolvesSpaceChips(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	kitchen := &db.Space{OrgID: env.org.ID, PropertyID: env.prop.ID, Name: "Kitchen"}
	if err := env.db.CreateSpace(ctx, kitchen); err != nil {
		t.Fatal(err)
	}
	if err := env.db.CreateProperty(ctx, &db.Property{OrgID: env.org.ID, Name: "Flat 2"}); err != nil {
		t.Fatal(err)
	}
	d := env.openDraft(t)
	if d.State.PropertyID != "" {
		t.Fatalf("two properties should not preselect, got %q", d.State.PropertyID)
	}

	env.do(t, http.MethodPost, "/drafts/"+d.ID+"/describe", DescribeRequest{Description: "clean up in the kitchen"})
	w := env.do(t, http.MethodPatch, "/drafts/"+d.ID+"/fields", UpdateFieldsRequest{PropertyID: &env.prop.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got draftResponse
	decode(t, w, &got)
	if len(got.State.Spaces) != 1 || got.State.Spaces[0].ID != kitchen.ID {
		t.Fatalf("kitchen should resolve after picking the property, got %+v", got.State.Chips)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/submit", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("submit failed %d: %s", w.Code, w.Body.String())
	}
}

func TestAssignByName(t *testing.T) {
	env := setupTestServer(t)
	d := env.openDraft(t)

	w := env.do(t, http.MethodPost, "/drafts/"+d.ID+"/who", AssignByNameRequest{Name: "john"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var got assignByNameResponse
	decode(t, w, &got)
	if got.State.AssignedUserID != env.john.ID || got.Match == nil || got.Match.Action != sections.WhoAssignPerson {
		t.Errorf("expected john assigned, got %+v", got)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/who", AssignByNameRequest{Name: "Roofers"})
	got = assignByNameResponse{}
	decode(t, w, &got)
	if got.Match == nil || len(got.Match.Options) != 2 {
		t.Fatalf("unknown name should offer options, got %+v", got.Match)
	}

	w = env.do(t, http.MethodPost, "/drafts/"+d.ID+"/who", AssignByNameRequest{Name: "Roofers", Action: sections.WhoCreateTeam})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	got = assignByNameResponse{}
	decode(t, w, &got)
	if len(got.State.TeamIDs) != 1 {
		t.Errorf("expected new team on draft, got %v", got.State.TeamIDs)
	}

	for _, req := range []AssignByNameRequest{{Name: " "}, {Name: "x", Action: "fire"}} {
		if w := env.do(t, http.MethodPost, "/drafts/"+d.ID+"/who", req); w.Code != http.StatusBadRequest {
			t.Errorf("%+v: expected status 400, got %d", req, w.Code)
		}
	}
	if w := env.do(t, http.MethodPost, "/drafts/missing/who", AssignByNameRequest{Name: "john"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown draft: expected status 404, got %d", w.Code)
	}
}

func TestWebSocketHubStop(t *testing.T) {
	hub := NewWebSocketHub()
	client := &WebSocketClient{hub: hub, send: make(chan []byte, 1)}
	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()
	hub.register <- client

	hub.Stop()
	hub.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if _, ok := <-client.send; ok {
		t.Error("client send queue should be closed")
	}
	if hub.Clients() != 0 {
		t.Errorf("expected no clients, got %d", hub.Clients())
	}
}
