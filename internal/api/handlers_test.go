package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"smartdesk/internal/auth"
	"smartdesk/internal/config"
	"smartdesk/internal/models"
	"smartdesk/internal/service/ai"
	"smartdesk/internal/service/assistant"
	"smartdesk/internal/service/chat"
	"smartdesk/internal/storage"

	"github.com/cloudwego/eino/schema"
)

type mockCompleter struct {
	reply string
	err   error
}

func (m *mockCompleter) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockSearcher struct {
	results []models.SearchResult
	err     error
}

func (m *mockSearcher) Search(ctx context.Context, query string, count int) ([]models.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *Handler, *mockCompleter, *mockSearcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	asst := assistant.NewService(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	completer := &mockCompleter{reply: "mock reply"}
	searcher := &mockSearcher{}
	pipeline := chat.NewPipeline(asst, completer, searcher, false)
	handler := NewHandler(asst, authSvc, pipeline, searcher, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db, handler, completer, searcher
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func registerAndLogin(t *testing.T, router *gin.Engine) (int64, map[string]string) {
	t.Helper()
	username := fmt.Sprintf("tester_%d", time.Now().UnixNano())
	password := "pass123"
	regResp := doJSONRequest(t, router, http.MethodPost, "/api/users/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)
	var regBody struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/users/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token from login")
	}
	return regBody.ID, map[string]string{"Authorization": "Bearer " + loginBody.AuthToken}
}

func createConversation(t *testing.T, router *gin.Engine, userID int64, headers map[string]string) int64 {
	t.Helper()
	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/conversations", userID),
		map[string]string{"title": "test chat"}, headers)
	assertStatus(t, resp, http.StatusCreated)
	var conv struct {
		ID int64 `json:"id"`
	}
	decodeJSON(t, resp.Body.Bytes(), &conv)
	if conv.ID <= 0 {
		t.Fatalf("expected positive conversation id")
	}
	return conv.ID
}

func TestChatFlowEndToEnd(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	convID := createConversation(t, router, userID, headers)

	sendResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/conversations/%d/messages", userID, convID),
		map[string]any{"text": "hello there"}, headers)
	assertStatus(t, sendResp, http.StatusOK)
	var sendBody struct {
		Message models.Message `json:"message"`
	}
	decodeJSON(t, sendResp.Body.Bytes(), &sendBody)
	if sendBody.Message.Text != "mock reply" || sendBody.Message.Sender != models.SenderAI {
		t.Fatalf("unexpected reply: %+v", sendBody.Message)
	}

	listResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversations/%d/messages", userID, convID), nil, headers)
	assertStatus(t, listResp, http.StatusOK)
	var listBody struct {
		Messages []models.Message `json:"messages"`
	}
	decodeJSON(t, listResp.Body.Bytes(), &listBody)
	if len(listBody.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(listBody.Messages))
	}
	if listBody.Messages[0].Sender != models.SenderUser || listBody.Messages[1].Sender != models.SenderAI {
		t.Fatalf("messages out of order: %+v", listBody.Messages)
	}

	// Listing again does not change anything.
	again := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversations/%d/messages", userID, convID), nil, headers)
	assertStatus(t, again, http.StatusOK)
	var againBody struct {
		Messages []models.Message `json:"messages"`
	}
	decodeJSON(t, again.Body.Bytes(), &againBody)
	if len(againBody.Messages) != 2 {
		t.Fatalf("listing must be idempotent, got %d messages", len(againBody.Messages))
	}

	logoutResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/logout", userID), nil, headers)
	assertStatus(t, logoutResp, http.StatusNoContent)

	afterLogout := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversations", userID), nil, headers)
	assertStatus(t, afterLogout, http.StatusUnauthorized)
}

func TestSendMessageErrorStatusMapping(t *testing.T) {
	router, db, _, completer, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	convID := createConversation(t, router, userID, headers)
	path := fmt.Sprintf("/api/users/%d/conversations/%d/messages", userID, convID)

	cases := []struct {
		kind   ai.Kind
		status int
	}{
		{ai.KindRateLimit, http.StatusTooManyRequests},
		{ai.KindAuth, http.StatusBadGateway},
		{ai.KindServer, http.StatusBadGateway},
		{ai.KindNetwork, http.StatusBadGateway},
		{ai.KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		completer.err = &ai.Error{Kind: tc.kind, Err: errors.New("boom")}
		resp := doJSONRequest(t, router, http.MethodPost, path, map[string]any{"text": "hi"}, headers)
		if resp.Code != tc.status {
			t.Errorf("kind %s: expected status %d, got %d (%s)", tc.kind, tc.status, resp.Code, resp.Body.String())
		}
		var body struct {
			ErrorKind string `json:"error_kind"`
		}
		decodeJSON(t, resp.Body.Bytes(), &body)
		if body.ErrorKind != string(tc.kind) {
			t.Errorf("kind %s: expected error_kind in body, got %q", tc.kind, body.ErrorKind)
		}
	}

	completer.err = nil
	validation := doJSONRequest(t, router, http.MethodPost, path, map[string]any{"text": "   "}, headers)
	assertStatus(t, validation, http.StatusBadRequest)

	missing := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/conversations/99999/messages", userID),
		map[string]any{"text": "hi"}, headers)
	assertStatus(t, missing, http.StatusNotFound)
}

func TestUserMismatchRejected(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	otherID, _ := registerAndLogin(t, router)

	resp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversations", otherID), nil, headers)
	assertStatus(t, resp, http.StatusForbidden)

	noAuth := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/conversations", userID), nil, nil)
	assertStatus(t, noAuth, http.StatusUnauthorized)
}

func TestNotesEndpoints(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)

	noteResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/notes", userID),
		map[string]string{"window_id": ""}, headers)
	assertStatus(t, noteResp, http.StatusOK)
	var note models.Note
	decodeJSON(t, noteResp.Body.Bytes(), &note)
	if note.WindowID != models.MainNoteWindowID || len(note.Pages) != 1 {
		t.Fatalf("unexpected note: %+v", note)
	}

	pageResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/notes/%d/pages", userID, note.ID),
		map[string]string{"title": "Plans", "content": "ship it"}, headers)
	assertStatus(t, pageResp, http.StatusCreated)
	var page models.NotePage
	decodeJSON(t, pageResp.Body.Bytes(), &page)

	updResp := doJSONRequest(t, router, http.MethodPut,
		fmt.Sprintf("/api/users/%d/notes/%d/pages/%d", userID, note.ID, page.ID),
		map[string]string{"title": "Plans v2", "content": "shipped"}, headers)
	assertStatus(t, updResp, http.StatusNoContent)

	byWindow := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/notes/window/%s", userID, models.MainNoteWindowID), nil, headers)
	assertStatus(t, byWindow, http.StatusOK)
	var fetched models.Note
	decodeJSON(t, byWindow.Body.Bytes(), &fetched)
	if len(fetched.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(fetched.Pages))
	}

	delResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d/notes/%d/pages/%d", userID, note.ID, page.ID), nil, headers)
	assertStatus(t, delResp, http.StatusNoContent)
}

func TestTaskEndpoints(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	base := fmt.Sprintf("/api/users/%d/tasks", userID)

	createResp := doJSONRequest(t, router, http.MethodPost, base,
		map[string]any{"title": "write tests", "description": "all of them"}, headers)
	assertStatus(t, createResp, http.StatusCreated)
	var task models.Task
	decodeJSON(t, createResp.Body.Bytes(), &task)

	updResp := doJSONRequest(t, router, http.MethodPut,
		fmt.Sprintf("%s/%d", base, task.ID),
		map[string]any{"title": "write tests", "description": "all of them", "completed": true}, headers)
	assertStatus(t, updResp, http.StatusNoContent)

	filtered := doJSONRequest(t, router, http.MethodGet, base+"?completed=true", nil, headers)
	assertStatus(t, filtered, http.StatusOK)
	var listBody struct {
		Tasks []models.Task `json:"tasks"`
	}
	decodeJSON(t, filtered.Body.Bytes(), &listBody)
	if len(listBody.Tasks) != 1 || !listBody.Tasks[0].Completed {
		t.Fatalf("unexpected filtered tasks: %+v", listBody.Tasks)
	}

	delResp := doJSONRequest(t, router, http.MethodDelete, fmt.Sprintf("%s/%d", base, task.ID), nil, headers)
	assertStatus(t, delResp, http.StatusNoContent)
	delAgain := doJSONRequest(t, router, http.MethodDelete, fmt.Sprintf("%s/%d", base, task.ID), nil, headers)
	assertStatus(t, delAgain, http.StatusNotFound)
}

func TestNewsEndpoints(t *testing.T) {
	router, db, _, _, searcher := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	searcher.results = []models.SearchResult{
		{Title: "Go 1.25", Description: "released", URL: "https://go.dev/blog/go1.25"},
	}

	searchResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/search/news?topic=golang", userID), nil, headers)
	assertStatus(t, searchResp, http.StatusOK)
	var searchBody struct {
		Results []models.SearchResult `json:"results"`
	}
	decodeJSON(t, searchResp.Body.Bytes(), &searchBody)
	if len(searchBody.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(searchBody.Results))
	}

	saveResp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/news/queries", userID),
		map[string]string{"topic": "golang", "window_id": "win-news"}, headers)
	assertStatus(t, saveResp, http.StatusOK)
	var query models.NewsQuery
	decodeJSON(t, saveResp.Body.Bytes(), &query)
	if !query.Active || query.Topic != "golang" {
		t.Fatalf("unexpected query: %+v", query)
	}

	listResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/news/queries", userID), nil, headers)
	assertStatus(t, listResp, http.StatusOK)

	delResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d/news/queries/win-news", userID), nil, headers)
	assertStatus(t, delResp, http.StatusNoContent)

	searcher.err = errors.New("provider down")
	failResp := doJSONRequest(t, router, http.MethodGet,
		fmt.Sprintf("/api/users/%d/search/news?topic=golang", userID), nil, headers)
	assertStatus(t, failResp, http.StatusBadGateway)
}

func TestNewsFetchDigestPersistsIntoConversation(t *testing.T) {
	router, db, _, _, searcher := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	convID := createConversation(t, router, userID, headers)
	searcher.results = []models.SearchResult{
		{Title: "Launch", Description: "today", URL: "https://example.com/launch"},
	}

	resp := doJSONRequest(t, router, http.MethodPost,
		fmt.Sprintf("/api/users/%d/news/fetch", userID),
		map[string]any{"topic": "space", "conversation_id": convID}, headers)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Digest  string         `json:"digest"`
		Message models.Message `json:"message"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Digest == "" || body.Message.Sender != models.SenderSystem {
		t.Fatalf("expected persisted system digest, got %+v", body)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, convID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored digest message, got %d", count)
	}
}

func TestDashboardLayoutEndpoints(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	path := fmt.Sprintf("/api/users/%d/dashboard/layout", userID)

	putResp := doJSONRequest(t, router, http.MethodPut, path, map[string]any{
		"windows": []map[string]any{
			{"id": "win-1", "kind": "chat", "title": "Chat", "x": 0, "y": 0, "w": 6, "h": 4},
		},
		"pins": []string{"win-1"},
	}, headers)
	assertStatus(t, putResp, http.StatusOK)

	getResp := doJSONRequest(t, router, http.MethodGet, path, nil, headers)
	assertStatus(t, getResp, http.StatusOK)
	var layout models.DashboardLayout
	decodeJSON(t, getResp.Body.Bytes(), &layout)
	if len(layout.Windows) != 1 || layout.Windows[0].Kind != "chat" || len(layout.Pins) != 1 {
		t.Fatalf("layout not round-tripped: %+v", layout)
	}

	badResp := doJSONRequest(t, router, http.MethodPut, path, map[string]any{
		"windows": []map[string]any{{"kind": "browser"}},
	}, headers)
	assertStatus(t, badResp, http.StatusBadRequest)
}

func TestDeleteUserRemovesAccount(t *testing.T) {
	router, db, _, _, _ := newTestServer(t)
	defer db.Close()

	userID, headers := registerAndLogin(t, router)
	createConversation(t, router, userID, headers)

	delResp := doJSONRequest(t, router, http.MethodDelete,
		fmt.Sprintf("/api/users/%d", userID), nil, headers)
	assertStatus(t, delResp, http.StatusNoContent)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascaded delete, %d conversations remain", count)
	}
}
