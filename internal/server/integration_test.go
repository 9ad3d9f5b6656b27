package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/eduapi/internal/drafts"
	"github.com/maruel/eduapi/internal/jsonldb"
	"github.com/maruel/eduapi/internal/publish"
	"github.com/maruel/eduapi/internal/server/dto"
	"github.com/maruel/eduapi/internal/server/handlers"
	"github.com/maruel/eduapi/internal/storage"
	"github.com/maruel/eduapi/internal/storage/content"
	"github.com/maruel/eduapi/internal/storage/identity"
)

var testJWTSecret = []byte("test-secret-key-32-bytes-long!!!")

type testEnv struct {
	server       *httptest.Server
	userService  *identity.UserService
	notifService *identity.NotificationService
	events       *eventRecorder

	owner, delegate, staff, stranger *identity.User
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*publish.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev *publish.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []*publish.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*publish.Event(nil), r.events...)
}

func setupTestEnv(t *testing.T) *testEnv {
	tempDir := t.TempDir()

	db, err := jsonldb.OpenDB(filepath.Join(tempDir, "content"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	cs, err := content.OpenStore(db, content.DefaultApps())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	userService, err := identity.NewUserService(filepath.Join(tempDir, "users.jsonl"))
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	notifService, err := identity.NewNotificationService(filepath.Join(tempDir, "notifications.jsonl"))
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	pushService, err := identity.NewPushSubscriptionService(filepath.Join(tempDir, "push_subscriptions.jsonl"))
	if err != nil {
		t.Fatalf("NewPushSubscriptionService: %v", err)
	}

	perms := identity.NewPermissions(userService)
	ds := drafts.New(cs)
	rec := &eventRecorder{}
	svc := &handlers.Services{
		Content:          cs,
		Drafts:           ds,
		Machine:          publish.NewMachine(ds, perms, rec),
		User:             userService,
		Perms:            perms,
		Notification:     notifService,
		PushSubscription: pushService,
	}
	serverCfg := storage.DefaultServerConfig()
	serverCfg.JWTSecret = testJWTSecret
	serverCfg.VAPID = storage.VAPIDConfig{PublicKey: "pub", PrivateKey: "priv"}
	cfg := &Config{
		ServerConfig: &serverCfg,
		BaseURL:      "http://localhost:8080",
		Version:      "test",
		GoVersion:    "go1.25.5",
		Revision:     "abc1234",
	}
	server := httptest.NewServer(NewRouter(svc, cfg))
	t.Cleanup(server.Close)

	env := &testEnv{server: server, userService: userService, notifService: notifService, events: rec}
	create := func(email, name string) *identity.User {
		u, err := userService.Create(email, name)
		if err != nil {
			t.Fatalf("Create(%s): %v", email, err)
		}
		return u
	}
	env.owner = create("ada@example.com", "Ada")
	env.delegate = create("grace@example.com", "Grace")
	env.staff = create("rev@example.com", "Rev")
	env.stranger = create("eve@example.com", "Eve")
	if err := userService.AddDelegate(env.owner.ID, env.delegate.ID); err != nil {
		t.Fatalf("AddDelegate: %v", err)
	}
	if _, err := userService.Modify(env.staff.ID, func(u *identity.User) error {
		u.Reviewer = true
		return nil
	}); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	return env
}

func token(t *testing.T, u *identity.User) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": u.ID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return tok
}

// do performs an HTTP request, decodes the JSON response, and returns the
// response. Body is always read and closed before returning.
func (e *testEnv) do(t *testing.T, method, path string, body, response any, tok string, hdr map[string]string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("ReadAll/Close: %v", err)
	}
	if response != nil && len(data) > 0 {
		if err := json.Unmarshal(data, response); err != nil {
			t.Fatalf("Unmarshal response: %v\nBody: %s", err, string(data))
		}
	}
	return resp
}

// doJSON is do without extra headers, returning the status code.
func (e *testEnv) doJSON(t *testing.T, method, path string, body, response any, tok string) int {
	t.Helper()
	return e.do(t, method, path, body, response, tok, nil).StatusCode
}

// expectError performs a request and checks the error status and code.
func (e *testEnv) expectError(t *testing.T, method, path string, body any, tok string, status int, code dto.ErrorCode) *dto.ErrorResponse {
	t.Helper()
	var resp dto.ErrorResponse
	if got := e.doJSON(t, method, path, body, &resp, tok); got != status {
		t.Fatalf("%s %s: got status %d, want %d (%+v)", method, path, got, status, resp)
	}
	if resp.Error.Code != code {
		t.Errorf("%s %s: got code %s, want %s", method, path, resp.Error.Code, code)
	}
	return &resp
}

// seedProject creates a project owned by e.owner that passes readiness.
func (e *testEnv) seedProject(t *testing.T) *dto.ProjectDTO {
	t.Helper()
	tok := token(t, e.owner)
	var p dto.ProjectDTO
	if s := e.doJSON(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{Title: "Circuits 101"}, &p, tok); s != http.StatusOK {
		t.Fatalf("POST /api/projects: got status %d", s)
	}
	var l dto.LessonDTO
	if s := e.doJSON(t, http.MethodPost, "/api/projects/"+p.ID.String()+"/lessons", map[string]any{"title": "Wiring", "duration": 30, "application": "standalone"}, &l, tok); s != http.StatusOK {
		t.Fatalf("POST lessons: got status %d", s)
	}
	var st dto.StepDTO
	if s := e.doJSON(t, http.MethodPost, "/api/projects/"+p.ID.String()+"/lessons/"+l.ID.String()+"/steps", map[string]any{"title": "Connect the LED"}, &st, tok); s != http.StatusOK {
		t.Fatalf("POST steps: got status %d", s)
	}
	var out dto.GetProjectResponse
	if s := e.doJSON(t, http.MethodGet, "/api/projects/"+p.ID.String(), nil, &out, tok); s != http.StatusOK {
		t.Fatalf("GET project: got status %d", s)
	}
	return &out.ProjectDTO
}

// publishProject moves a seeded project to published through review.
func (e *testEnv) publishProject(t *testing.T, p *dto.ProjectDTO) {
	t.Helper()
	path := "/api/projects/" + p.ID.String()
	var got dto.ProjectDTO
	if s := e.doJSON(t, http.MethodPatch, path, map[string]any{"publishMode": "review"}, &got, token(t, e.owner)); s != http.StatusOK {
		t.Fatalf("PATCH review: got status %d", s)
	}
	if s := e.doJSON(t, http.MethodPatch, path, map[string]any{"publishMode": "published"}, &got, token(t, e.staff)); s != http.StatusOK {
		t.Fatalf("PATCH published: got status %d", s)
	}
	if got.PublishMode != dto.PublishModePublished {
		t.Fatalf("got mode %s, want published", got.PublishMode)
	}
}

func TestIntegration(t *testing.T) {
	t.Parallel()
	t.Run("Health", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)

		var health dto.HealthResponse
		status := env.doJSON(t, http.MethodGet, "/api/health", nil, &health, "")
		if status != http.StatusOK {
			t.Errorf("GET /api/health: got status %d, want %d", status, http.StatusOK)
		}
		if health.Status != "ok" {
			t.Errorf("Health status: got %q, want %q", health.Status, "ok")
		}
		if health.Version != "test" {
			t.Errorf("Health version: got %q, want %q", health.Version, "test")
		}
		if health.Revision != "abc1234" {
			t.Errorf("Health revision: got %q, want %q", health.Revision, "abc1234")
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		env.expectError(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{Title: "x"}, "", http.StatusUnauthorized, dto.ErrorCodeUnauthorized)
		env.expectError(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{Title: "x"}, "garbage", http.StatusUnauthorized, dto.ErrorCodeUnauthorized)
	})

	t.Run("Validation", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		tok := token(t, env.owner)
		env.expectError(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{}, tok, http.StatusBadRequest, dto.ErrorCodeMissingField)
		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()
		env.expectError(t, http.MethodPatch, path, map[string]any{"publishMode": "archived"}, tok, http.StatusBadRequest, dto.ErrorCodeInvalidFormat)
		env.expectError(t, http.MethodPatch, path, map[string]any{"publishDate": 1}, tok, http.StatusBadRequest, dto.ErrorCodeFieldNotWritable)
		env.expectError(t, http.MethodPatch, path, map[string]any{"lessonsIds": []string{}}, tok, http.StatusBadRequest, dto.ErrorCodeInvalidOrder)
		env.expectError(t, http.MethodPost, path+"/lessons", map[string]any{"title": "L", "application": "lagoa"}, tok, http.StatusBadRequest, dto.ErrorCodeValidationFailed)
	})

	t.Run("Visibility", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()
		env.expectError(t, http.MethodGet, path, nil, token(t, env.stranger), http.StatusNotFound, dto.ErrorCodeNotFound)
		if s := env.doJSON(t, http.MethodGet, path, nil, nil, token(t, env.staff)); s != http.StatusOK {
			t.Errorf("staff GET: got status %d", s)
		}
		env.expectError(t, http.MethodPatch, path, map[string]any{"title": "Mine"}, token(t, env.staff), http.StatusForbidden, dto.ErrorCodeForbidden)
		env.publishProject(t, p)
		if s := env.doJSON(t, http.MethodGet, path, nil, nil, token(t, env.stranger)); s != http.StatusOK {
			t.Errorf("stranger GET published: got status %d", s)
		}
		env.expectError(t, http.MethodGet, path+"/draft", nil, token(t, env.stranger), http.StatusNotFound, dto.ErrorCodeNotFound)
	})

	t.Run("NotReady", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		tok := token(t, env.owner)
		var p dto.ProjectDTO
		env.doJSON(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{Title: "Empty"}, &p, tok)
		resp := env.expectError(t, http.MethodPatch, "/api/projects/"+p.ID.String(), map[string]any{"publishMode": "review"}, tok, http.StatusBadRequest, dto.ErrorCodePublishNotReady)
		lessons, ok := resp.Details["lessons"].(map[string]any)
		if !ok {
			t.Fatalf("got details %v, want lessons", resp.Details)
		}
		if _, ok := lessons["non_field"]; !ok {
			t.Errorf("got lessons %v, want non_field", lessons)
		}
	})

	t.Run("PatchIsAtomic", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		tok := token(t, env.owner)
		var empty dto.ProjectDTO
		env.doJSON(t, http.MethodPost, "/api/projects", dto.CreateProjectRequest{Title: "Empty"}, &empty, tok)
		env.expectError(t, http.MethodPatch, "/api/projects/"+empty.ID.String(), map[string]any{"title": "Renamed", "publishMode": "review"}, tok, http.StatusBadRequest, dto.ErrorCodePublishNotReady)
		var got dto.GetProjectResponse
		if s := env.doJSON(t, http.MethodGet, "/api/projects/"+empty.ID.String(), nil, &got, tok); s != http.StatusOK {
			t.Fatalf("GET project: got status %d", s)
		}
		if got.Title != "Empty" || got.PublishMode != dto.PublishModeEdit {
			t.Errorf("got %q in %s, want the request rolled back", got.Title, got.PublishMode)
		}

		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()
		env.expectError(t, http.MethodPatch, path, map[string]any{"title": "Renamed", "minPublishDate": "2030-01-01T00:00:00Z", "publishMode": "ready"}, tok, http.StatusBadRequest, dto.ErrorCodeInvalidTransition)
		if s := env.doJSON(t, http.MethodGet, path, nil, &got, tok); s != http.StatusOK {
			t.Fatalf("GET project: got status %d", s)
		}
		if got.Title != p.Title || got.MinPublishDate != nil {
			t.Errorf("got %q, min publish date %v, want the request rolled back", got.Title, got.MinPublishDate)
		}
		if n := len(env.events.all()); n != 0 {
			t.Errorf("got %d events, want none", n)
		}

		var patched dto.ProjectDTO
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"title": "Renamed", "publishMode": "review"}, &patched, tok); s != http.StatusOK {
			t.Fatalf("PATCH: got status %d", s)
		}
		if patched.Title != "Renamed" || patched.PublishMode != dto.PublishModeReview {
			t.Errorf("got %q in %s", patched.Title, patched.PublishMode)
		}
		if n := len(env.events.all()); n != 1 {
			t.Errorf("got %d events, want 1", n)
		}
	})

	t.Run("Workflow", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		ownerTok, staffTok := token(t, env.owner), token(t, env.staff)
		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()

		var got dto.ProjectDTO
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"title": "Circuits", "teacherInfo": map[string]any{"fourCS": map[string]any{"creativity": "LEDs"}}}, &got, ownerTok); s != http.StatusOK {
			t.Fatalf("PATCH content: got status %d", s)
		}
		if got.Title != "Circuits" || got.TeacherInfo.FourCS.Creativity != "LEDs" {
			t.Errorf("got %q / %q", got.Title, got.TeacherInfo.FourCS.Creativity)
		}
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"publishMode": "review"}, &got, ownerTok); s != http.StatusOK {
			t.Fatalf("PATCH review: got status %d", s)
		}
		env.expectError(t, http.MethodPatch, path, map[string]any{"title": "Late"}, ownerTok, http.StatusConflict, dto.ErrorCodeInvalidState)
		env.expectError(t, http.MethodPatch, path, map[string]any{"publishMode": "ready"}, ownerTok, http.StatusForbidden, dto.ErrorCodeForbidden)

		var queue dto.ListReviewResponse
		if s := env.doJSON(t, http.MethodGet, "/api/review", nil, &queue, staffTok); s != http.StatusOK || queue.Total != 1 {
			t.Fatalf("GET /api/review: got status %d, total %d", s, queue.Total)
		}
		env.expectError(t, http.MethodGet, "/api/review", nil, ownerTok, http.StatusForbidden, dto.ErrorCodeForbidden)

		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"publishMode": "published"}, &got, staffTok); s != http.StatusOK {
			t.Fatalf("PATCH published: got status %d", s)
		}
		if got.PublishMode != dto.PublishModePublished || got.PublishDate == nil {
			t.Fatalf("got mode %s, publishDate %v", got.PublishMode, got.PublishDate)
		}
		env.expectError(t, http.MethodPatch, path, map[string]any{"publishMode": "edit"}, staffTok, http.StatusBadRequest, dto.ErrorCodeInvalidTransition)
		env.expectError(t, http.MethodGet, path+"/draft", nil, ownerTok, http.StatusNotFound, dto.ErrorCodeNotFound)

		// Edit the published project through its draft.
		var view dto.DraftView
		if s := env.doJSON(t, http.MethodPatch, path+"/draft", map[string]any{"title": "Circuits 2"}, &view, ownerTok); s != http.StatusOK {
			t.Fatalf("PATCH draft: got status %d", s)
		}
		if view.Self == nil || !view.Self.IsDraft || view.Self.Title != "Circuits 2" {
			t.Fatalf("got draft %+v", view.Self)
		}
		if view.Diff["title"] != "Circuits" {
			t.Errorf("got diff %v, want the published title", view.Diff)
		}
		if view.Summary == nil || len(view.Summary.DiffFields) != 1 || view.Summary.DiffFields[0] != "title" {
			t.Errorf("got summary %+v", view.Summary)
		}
		lessonID := view.Self.Lessons[0].DraftOriginID
		stepID := view.Self.Lessons[0].Steps[0].DraftOriginID
		var l dto.LessonDTO
		if s := env.doJSON(t, http.MethodPatch, path+"/lessons/"+lessonID.String()+"/draft", map[string]any{"duration": 45}, &l, ownerTok); s != http.StatusOK || l.Duration != 45 {
			t.Fatalf("PATCH lesson draft: got status %d, duration %d", s, l.Duration)
		}
		var st dto.StepDTO
		if s := env.doJSON(t, http.MethodPatch, path+"/lessons/"+lessonID.String()+"/steps/"+stepID.String()+"/draft", map[string]any{"description": "Use a 220 ohm resistor"}, &st, ownerTok); s != http.StatusOK {
			t.Fatalf("PATCH step draft: got status %d", s)
		}
		env.expectError(t, http.MethodPatch, path+"/draft", map[string]any{"application": "video"}, ownerTok, http.StatusBadRequest, dto.ErrorCodeFieldNotWritable)

		// The origin side reports the same published values.
		var origin dto.DraftView
		if s := env.doJSON(t, http.MethodGet, path+"/origin", nil, &origin, ownerTok); s != http.StatusOK {
			t.Fatalf("GET origin: got status %d", s)
		}
		if origin.ID != p.ID || origin.Diff["title"] != "Circuits" {
			t.Errorf("got origin %v diff %v", origin.ID, origin.Diff)
		}

		// The live project is unchanged.
		var live dto.GetProjectResponse
		if s := env.doJSON(t, http.MethodGet, path+"?embed=draft", nil, &live, ownerTok); s != http.StatusOK {
			t.Fatalf("GET embed: got status %d", s)
		}
		if live.Title != "Circuits" || live.Draft == nil || live.Draft.Self.Title != "Circuits 2" {
			t.Errorf("got live %q draft %+v", live.Title, live.Draft)
		}

		// Submit and publish the draft.
		var moved dto.GetProjectResponse
		if s := env.doJSON(t, http.MethodPatch, path+"/draft/mode", map[string]any{"publishMode": "review"}, &moved, ownerTok); s != http.StatusOK {
			t.Fatalf("PATCH draft mode review: got status %d", s)
		}
		if moved.Draft == nil || moved.Draft.Self.PublishMode != dto.PublishModeReview {
			t.Fatalf("got draft %+v", moved.Draft)
		}
		env.expectError(t, http.MethodPatch, path+"/draft", map[string]any{"title": "Again"}, ownerTok, http.StatusConflict, dto.ErrorCodeInvalidState)
		if s := env.doJSON(t, http.MethodPatch, path+"/draft/mode", map[string]any{"publishMode": "published"}, &moved, staffTok); s != http.StatusOK {
			t.Fatalf("PATCH draft mode published: got status %d", s)
		}
		if moved.Draft != nil {
			t.Errorf("the draft must be gone after publication")
		}
		if moved.Title != "Circuits 2" || moved.Lessons[0].Duration != 45 || moved.Lessons[0].Steps[0].Description != "Use a 220 ohm resistor" {
			t.Errorf("got %q, %d, %q", moved.Title, moved.Lessons[0].Duration, moved.Lessons[0].Steps[0].Description)
		}
		if moved.ID != p.ID || moved.Lessons[0].ID != lessonID {
			t.Error("applying must keep the origin IDs")
		}
		env.expectError(t, http.MethodGet, path+"/draft", nil, ownerTok, http.StatusNotFound, dto.ErrorCodeNotFound)

		events := env.events.all()
		if len(events) != 4 {
			t.Fatalf("got %d events, want 4", len(events))
		}
		last := events[3]
		if !last.Draft || !last.Applied || last.NewMode != content.ModePublished || last.DraftDiff == nil {
			t.Errorf("got last event %+v", last)
		}
	})

	t.Run("DiscardDraft", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		p := env.seedProject(t)
		env.publishProject(t, p)
		path := "/api/projects/" + p.ID.String()
		tok := token(t, env.delegate)
		if s := env.doJSON(t, http.MethodPost, path+"/draft", nil, nil, tok); s != http.StatusOK {
			t.Fatalf("POST draft: got status %d", s)
		}
		env.expectError(t, http.MethodDelete, path+"/draft", nil, token(t, env.staff), http.StatusForbidden, dto.ErrorCodeForbidden)
		if s := env.doJSON(t, http.MethodDelete, path+"/draft", nil, nil, tok); s != http.StatusOK {
			t.Fatalf("DELETE draft: got status %d", s)
		}
		env.expectError(t, http.MethodGet, path+"/draft", nil, tok, http.StatusNotFound, dto.ErrorCodeNotFound)
		if s := env.doJSON(t, http.MethodDelete, path+"/draft", nil, nil, tok); s != http.StatusOK {
			t.Errorf("DELETE missing draft: got status %d", s)
		}
	})

	t.Run("ETag", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		p := env.seedProject(t)
		env.publishProject(t, p)
		path := "/api/projects/" + p.ID.String() + "/draft"
		tok := token(t, env.owner)
		env.doJSON(t, http.MethodPost, path, map[string]any{"tags": "led"}, nil, tok)
		resp := env.do(t, http.MethodGet, path, nil, nil, tok, nil)
		tag := resp.Header.Get("ETag")
		if resp.StatusCode != http.StatusOK || tag == "" {
			t.Fatalf("GET draft: got status %d, ETag %q", resp.StatusCode, tag)
		}
		if resp = env.do(t, http.MethodGet, path, nil, nil, tok, map[string]string{"If-None-Match": tag}); resp.StatusCode != http.StatusNotModified {
			t.Errorf("conditional GET: got status %d, want 304", resp.StatusCode)
		}
		env.doJSON(t, http.MethodPatch, path, map[string]any{"tags": "led,resistor"}, nil, tok)
		if resp = env.do(t, http.MethodGet, path, nil, nil, tok, map[string]string{"If-None-Match": tag}); resp.StatusCode != http.StatusOK {
			t.Errorf("GET after change: got status %d, want 200", resp.StatusCode)
		}
	})

	t.Run("EditLock", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()
		ownerTok, delegTok := token(t, env.owner), token(t, env.delegate)
		var got dto.ProjectDTO
		if s := env.doJSON(t, http.MethodPost, path+"/edit-lock", nil, &got, ownerTok); s != http.StatusOK || got.CurrentEditor != env.owner.ID {
			t.Fatalf("POST edit-lock: got status %d, editor %v", s, got.CurrentEditor)
		}
		env.expectError(t, http.MethodPatch, path, map[string]any{"tags": "x"}, delegTok, http.StatusLocked, dto.ErrorCodeLocked)
		env.expectError(t, http.MethodPost, path+"/edit-lock", nil, delegTok, http.StatusLocked, dto.ErrorCodeLocked)
		if s := env.doJSON(t, http.MethodPost, path+"/edit-lock", map[string]any{"forceEditFrom": env.owner.ID.String()}, &got, delegTok); s != http.StatusOK || got.CurrentEditor != env.delegate.ID {
			t.Fatalf("force edit-lock: got status %d, editor %v", s, got.CurrentEditor)
		}
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"tags": "x"}, &got, delegTok); s != http.StatusOK {
			t.Errorf("PATCH by holder: got status %d", s)
		}
		if s := env.doJSON(t, http.MethodDelete, path+"/edit-lock", nil, nil, delegTok); s != http.StatusOK {
			t.Errorf("DELETE edit-lock: got status %d", s)
		}
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"tags": "y"}, &got, ownerTok); s != http.StatusOK {
			t.Errorf("PATCH after release: got status %d", s)
		}
	})

	t.Run("Lessons", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		p := env.seedProject(t)
		path := "/api/projects/" + p.ID.String()
		tok := token(t, env.owner)
		var second dto.LessonDTO
		if s := env.doJSON(t, http.MethodPost, path+"/lessons", map[string]any{"title": "Video", "duration": 5, "application": "video", "applicationBlob": map[string]any{"video": "https://v"}}, &second, tok); s != http.StatusOK {
			t.Fatalf("POST lesson: got status %d", s)
		}
		first := p.LessonsIDs[0]
		var got dto.ProjectDTO
		if s := env.doJSON(t, http.MethodPatch, path, map[string]any{"lessonsIds": []string{second.ID.String(), first.String()}}, &got, tok); s != http.StatusOK {
			t.Fatalf("reorder: got status %d", s)
		}
		if len(got.LessonsIDs) != 2 || got.LessonsIDs[0] != second.ID {
			t.Errorf("got order %v", got.LessonsIDs)
		}
		var l dto.LessonDTO
		if s := env.doJSON(t, http.MethodPatch, path+"/lessons/"+second.ID.String(), map[string]any{"title": "Intro video"}, &l, tok); s != http.StatusOK || l.Title != "Intro video" {
			t.Errorf("PATCH lesson: got status %d, title %q", s, l.Title)
		}
		if s := env.doJSON(t, http.MethodDelete, path+"/lessons/"+second.ID.String(), nil, nil, tok); s != http.StatusOK {
			t.Errorf("DELETE lesson: got status %d", s)
		}
		env.expectError(t, http.MethodDelete, path+"/lessons/"+second.ID.String(), nil, tok, http.StatusNotFound, dto.ErrorCodeNotFound)
	})

	t.Run("Notifications", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t)
		tok := token(t, env.owner)
		n, err := env.notifService.Create(env.owner.ID, identity.NewNotification{
			Type:    identity.NotifPublishModeChange,
			Title:   "Circuits 101",
			Body:    `Project "Circuits 101" has moved from "In Review" to "Published".`,
			ActorID: env.staff.ID,
			Data:    json.RawMessage(`{"newMode":"published"}`),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		var list dto.ListNotificationsResponse
		if s := env.doJSON(t, http.MethodGet, "/api/notifications", nil, &list, tok); s != http.StatusOK {
			t.Fatalf("GET notifications: got status %d", s)
		}
		if len(list.Notifications) != 1 || list.UnreadCount != 1 || list.Notifications[0].ActorName != "Rev" {
			t.Fatalf("got %+v", list)
		}
		env.expectError(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", nil, token(t, env.stranger), http.StatusNotFound, dto.ErrorCodeNotFound)
		if s := env.doJSON(t, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", nil, nil, tok); s != http.StatusOK {
			t.Fatalf("mark read: got status %d", s)
		}
		if s := env.doJSON(t, http.MethodGet, "/api/notifications?unread=true", nil, &list, tok); s != http.StatusOK || len(list.Notifications) != 0 || list.UnreadCount != 0 {
			t.Errorf("unread list: got status %d, %+v", s, list)
		}

		var prefs dto.NotificationPrefsDTO
		body := map[string]any{"overrides": map[string]any{string(identity.NotifPublishModeChange): map[string]bool{"email": false, "web": true}}}
		if s := env.doJSON(t, http.MethodPut, "/api/notifications/prefs", body, &prefs, tok); s != http.StatusOK {
			t.Fatalf("PUT prefs: got status %d", s)
		}
		if o := prefs.Overrides[string(identity.NotifPublishModeChange)]; o.Email || !o.Web {
			t.Errorf("got override %+v", o)
		}

		var key dto.VAPIDKeyResponse
		if s := env.doJSON(t, http.MethodGet, "/api/push/vapid-key", nil, &key, tok); s != http.StatusOK || key.PublicKey != "pub" {
			t.Errorf("GET vapid-key: got status %d, key %q", s, key.PublicKey)
		}
		sub := dto.PushSubscribeRequest{Endpoint: "https://push.example.com/1", P256dh: "k", Auth: "a"}
		if s := env.doJSON(t, http.MethodPost, "/api/push/subscriptions", sub, nil, tok); s != http.StatusOK {
			t.Errorf("POST subscription: got status %d", s)
		}
		env.expectError(t, http.MethodDelete, "/api/push/subscriptions", dto.PushUnsubscribeRequest{Endpoint: sub.Endpoint}, token(t, env.stranger), http.StatusNotFound, dto.ErrorCodeNotFound)
		if s := env.doJSON(t, http.MethodDelete, "/api/push/subscriptions", dto.PushUnsubscribeRequest{Endpoint: sub.Endpoint}, nil, tok); s != http.StatusOK {
			t.Errorf("DELETE subscription: got status %d", s)
		}
	})
}
