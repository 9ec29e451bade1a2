package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"smartdesk/internal/config"
	"smartdesk/internal/models"
	"smartdesk/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
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
	return db
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() })
	return NewService(db), db
}

func registerTestUser(t *testing.T, svc *Service, username string) int64 {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), username, "pass123")
	if err != nil {
		t.Fatalf("register user: %v", err)
	}
	return user.ID
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash == "secret" {
		t.Fatalf("password stored in plaintext")
	}

	got, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, got.ID)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); err == nil {
		t.Fatalf("expected login failure for bad password")
	}
	if _, err := svc.RegisterUser(ctx, "  ", ""); err == nil {
		t.Fatalf("expected validation failure for blank credentials")
	}
}

func TestDeleteUserCascades(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "bob")

	conv, err := svc.CreateConversation(ctx, userID, "chat", "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := svc.CreateMessage(ctx, models.Message{ConversationID: conv.ID, Sender: models.SenderUser, Text: "hi"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if err := svc.DeleteUser(ctx, userID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascaded message delete, %d remain", count)
	}
	if err := svc.DeleteUser(ctx, userID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
}

func TestConversationOwnershipIsolation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := registerTestUser(t, svc, "alice")
	mallory := registerTestUser(t, svc, "mallory")

	conv, err := svc.CreateConversation(ctx, alice, "private", "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := svc.VerifyConversation(ctx, mallory, conv.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ownership rejection, got %v", err)
	}
	if _, err := svc.ListMessages(ctx, mallory, conv.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ownership rejection on list, got %v", err)
	}
}

func TestMessageRoundTripWithSearchResults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "carol")
	conv, err := svc.CreateConversation(ctx, userID, "", "win-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.Title != "New Conversation" {
		t.Errorf("expected default title, got %q", conv.Title)
	}

	stored, err := svc.CreateMessage(ctx, models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderAI,
		Text:           "answer",
		SearchResults: []models.SearchResult{
			{Title: "T", Description: "D", URL: "https://example.com"},
		},
	})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if stored.ID == 0 {
		t.Fatalf("expected assigned id")
	}

	msgs, err := svc.ListMessages(ctx, userID, conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].SearchResults) != 1 || msgs[0].SearchResults[0].URL != "https://example.com" {
		t.Fatalf("search results not round-tripped: %+v", msgs)
	}

	if _, err := svc.CreateMessage(ctx, models.Message{ConversationID: conv.ID, Sender: models.Sender("bot"), Text: "x"}); err == nil {
		t.Fatalf("expected rejection of unknown sender")
	}
}

func TestRecentMessagesWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "dave")
	conv, err := svc.CreateConversation(ctx, userID, "long", "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	for i := 1; i <= 15; i++ {
		if _, err := svc.CreateMessage(ctx, models.Message{
			ConversationID: conv.ID,
			Sender:         models.SenderUser,
			Text:           fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	msgs, err := svc.RecentMessages(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "m6" || msgs[9].Text != "m15" {
		t.Fatalf("window should be m6..m15 oldest-first, got %q..%q", msgs[0].Text, msgs[9].Text)
	}
}

func TestFindOrCreateNote(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "erin")

	note, err := svc.FindOrCreateNote(ctx, userID, "")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if note.WindowID != models.MainNoteWindowID {
		t.Errorf("expected main window id, got %q", note.WindowID)
	}
	if len(note.Pages) != 1 || note.Pages[0].Title != "Page 1" {
		t.Fatalf("expected one seeded page, got %+v", note.Pages)
	}

	again, err := svc.FindOrCreateNote(ctx, userID, "")
	if err != nil {
		t.Fatalf("second find or create: %v", err)
	}
	if again.ID != note.ID {
		t.Fatalf("expected the same note, got %d and %d", note.ID, again.ID)
	}
}

func TestNotePageCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "frank")
	other := registerTestUser(t, svc, "grace")

	note, err := svc.FindOrCreateNote(ctx, userID, "win-notes")
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	page, err := svc.CreateNotePage(ctx, userID, note.ID, "Ideas", "first draft")
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	if err := svc.UpdateNotePage(ctx, userID, note.ID, page.ID, "Ideas v2", "second draft"); err != nil {
		t.Fatalf("update page: %v", err)
	}

	if _, err := svc.CreateNotePage(ctx, other, note.ID, "intrusion", ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ownership rejection, got %v", err)
	}

	if err := svc.DeleteNotePage(ctx, userID, note.ID, page.ID); err != nil {
		t.Fatalf("delete page: %v", err)
	}
	if err := svc.DeleteNotePage(ctx, userID, note.ID, page.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows on second delete, got %v", err)
	}
}

func TestTaskCRUDAndFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "heidi")

	due := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	task, err := svc.CreateTask(ctx, userID, "write report", "quarterly numbers", &due)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := svc.CreateTask(ctx, userID, "buy milk", "", nil); err != nil {
		t.Fatalf("create second task: %v", err)
	}

	if err := svc.UpdateTask(ctx, userID, task.ID, "write report", "quarterly numbers", true, &due); err != nil {
		t.Fatalf("update task: %v", err)
	}

	done := true
	tasks, err := svc.ListTasks(ctx, userID, &done)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID || !tasks[0].Completed {
		t.Fatalf("unexpected completed tasks: %+v", tasks)
	}
	if tasks[0].DueDate == nil || !tasks[0].DueDate.Equal(due) {
		t.Errorf("due date not round-tripped: %v", tasks[0].DueDate)
	}

	all, err := svc.ListTasks(ctx, userID, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}

	if err := svc.DeleteTask(ctx, userID, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := svc.DeleteTask(ctx, userID, task.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestPromptCRUD(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "ivan")

	p, err := svc.CreatePrompt(ctx, userID, "summarize", "Summarize the following text:")
	if err != nil {
		t.Fatalf("create prompt: %v", err)
	}
	if err := svc.UpdatePrompt(ctx, userID, p.ID, "summarize v2", "Summarize briefly:"); err != nil {
		t.Fatalf("update prompt: %v", err)
	}
	prompts, err := svc.ListPrompts(ctx, userID)
	if err != nil {
		t.Fatalf("list prompts: %v", err)
	}
	if len(prompts) != 1 || prompts[0].Title != "summarize v2" {
		t.Fatalf("unexpected prompts: %+v", prompts)
	}
	if err := svc.DeletePrompt(ctx, userID, p.ID); err != nil {
		t.Fatalf("delete prompt: %v", err)
	}
	if err := svc.DeletePrompt(ctx, userID, p.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestNewsQueryUpsertByWindow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "judy")

	first, err := svc.SaveNewsQuery(ctx, userID, "golang", "win-news")
	if err != nil {
		t.Fatalf("save query: %v", err)
	}
	if err := svc.StampQueryFetched(ctx, first.ID, time.Now().UTC()); err != nil {
		t.Fatalf("stamp: %v", err)
	}

	second, err := svc.SaveNewsQuery(ctx, userID, "rustlang", "win-news")
	if err != nil {
		t.Fatalf("resave query: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resave should reuse the row, got ids %d and %d", first.ID, second.ID)
	}
	if second.Topic != "rustlang" || !second.Active {
		t.Fatalf("resave should replace topic and reactivate: %+v", second)
	}
	if second.LastFetched != nil {
		t.Fatalf("resave should clear last_fetched")
	}

	if err := svc.DeactivateNewsQuery(ctx, userID, "win-news"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	queries, err := svc.ListNewsQueries(ctx, userID)
	if err != nil {
		t.Fatalf("list queries: %v", err)
	}
	if len(queries) != 1 || queries[0].Active {
		t.Fatalf("expected one inactive query: %+v", queries)
	}
}

func TestListActiveQueriesDue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "kate")

	fresh, err := svc.SaveNewsQuery(ctx, userID, "ai news", "win-a")
	if err != nil {
		t.Fatalf("save fresh: %v", err)
	}
	stale, err := svc.SaveNewsQuery(ctx, userID, "go news", "win-b")
	if err != nil {
		t.Fatalf("save stale: %v", err)
	}
	if _, err := svc.SaveNewsQuery(ctx, userID, "off", "win-c"); err != nil {
		t.Fatalf("save inactive: %v", err)
	}
	if err := svc.DeactivateNewsQuery(ctx, userID, "win-c"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	now := time.Now().UTC()
	if err := svc.StampQueryFetched(ctx, fresh.ID, now); err != nil {
		t.Fatalf("stamp fresh: %v", err)
	}
	if err := svc.StampQueryFetched(ctx, stale.ID, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("stamp stale: %v", err)
	}

	due, err := svc.ListActiveQueriesDue(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].ID != stale.ID {
		t.Fatalf("expected only the stale query due: %+v", due)
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "leo")

	q, err := svc.SaveNewsQuery(ctx, userID, "space", "win-news")
	if err != nil {
		t.Fatalf("save query: %v", err)
	}
	n, err := svc.CreateNotification(ctx, models.Notification{
		UserID: userID, QueryID: q.ID, Title: "Launch today", URL: "https://example.com/launch",
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	seen, err := svc.HasNotificationURL(ctx, q.ID, "https://example.com/launch")
	if err != nil {
		t.Fatalf("has url: %v", err)
	}
	if !seen {
		t.Fatalf("expected url recorded")
	}

	unread, err := svc.ListNotifications(ctx, userID, true)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread) != 1 {
		t.Fatalf("expected 1 unread, got %d", len(unread))
	}

	if err := svc.MarkNotificationRead(ctx, userID, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err = svc.ListNotifications(ctx, userID, true)
	if err != nil {
		t.Fatalf("list unread after read: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected 0 unread, got %d", len(unread))
	}
}

func TestDashboardLayoutRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := registerTestUser(t, svc, "mia")

	empty, err := svc.GetDashboardLayout(ctx, userID)
	if err != nil {
		t.Fatalf("get empty layout: %v", err)
	}
	if len(empty.Windows) != 0 || len(empty.Pins) != 0 {
		t.Fatalf("expected empty layout, got %+v", empty)
	}

	saved, err := svc.SaveDashboardLayout(ctx, userID, models.DashboardLayout{
		Windows: []models.DashboardWindow{
			{Kind: "chat", Title: "Chat", X: 0, Y: 0, W: 4, H: 3},
			{ID: "win-news", Kind: "news", Title: "News", X: 4, Y: 0, W: 4, H: 3},
		},
		Pins: []string{"win-news"},
	})
	if err != nil {
		t.Fatalf("save layout: %v", err)
	}
	if saved.Windows[0].ID == "" {
		t.Fatalf("windows without ids should get one assigned")
	}

	got, err := svc.GetDashboardLayout(ctx, userID)
	if err != nil {
		t.Fatalf("get layout: %v", err)
	}
	if len(got.Windows) != 2 || got.Windows[1].ID != "win-news" || len(got.Pins) != 1 {
		t.Fatalf("layout not round-tripped: %+v", got)
	}

	if _, err := svc.SaveDashboardLayout(ctx, userID, models.DashboardLayout{
		Windows: []models.DashboardWindow{{Kind: "browser"}},
	}); err == nil {
		t.Fatalf("expected rejection of unknown window kind")
	}
}
