package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smartdesk/internal/models"
)

const maxImportBytes = 10 << 20

func (h *Handler) findOrCreateNote(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		WindowID string `json:"window_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	note, err := h.assistant.FindOrCreateNote(c.Request.Context(), userID, req.WindowID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) getNoteByWindow(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	note, err := h.assistant.FindOrCreateNote(c.Request.Context(), userID, c.Param("window_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) getNote(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(c.Param("note_id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}
	note, err := h.assistant.GetNote(c.Request.Context(), userID, noteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, note)
}

type notePageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *Handler) createNotePage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(c.Param("note_id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}
	var req notePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	page, err := h.assistant.CreateNotePage(c.Request.Context(), userID, noteID, req.Title, req.Content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, page)
}

func (h *Handler) updateNotePage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(c.Param("note_id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}
	pageID, err := strconv.ParseInt(c.Param("page_id"), 10, 64)
	if err != nil || pageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page id"})
		return
	}
	var req notePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.assistant.UpdateNotePage(c.Request.Context(), userID, noteID, pageID, req.Title, req.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteNotePage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(c.Param("note_id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}
	pageID, err := strconv.ParseInt(c.Param("page_id"), 10, 64)
	if err != nil || pageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page id"})
		return
	}
	if err := h.assistant.DeleteNotePage(c.Request.Context(), userID, noteID, pageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) importNotePage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(c.Param("note_id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid note id"})
		return
	}
	if err := c.Request.ParseMultipartForm(maxImportBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	page, err := h.assistant.ImportNotePage(c.Request.Context(), userID, noteID, file.Filename, f)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, page)
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date"`
}

func (h *Handler) listTasks(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var completed *bool
	if raw := c.Query("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid completed filter"})
			return
		}
		completed = &v
	}
	tasks, err := h.assistant.ListTasks(c.Request.Context(), userID, completed)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = make([]models.Task, 0)
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *Handler) createTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	task, err := h.assistant.CreateTask(c.Request.Context(), userID, req.Title, req.Description, req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *Handler) updateTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.assistant.UpdateTask(c.Request.Context(), userID, taskID, req.Title, req.Description, req.Completed, req.DueDate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteTask(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	if err := h.assistant.DeleteTask(c.Request.Context(), userID, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type promptRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

func (h *Handler) listPrompts(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	prompts, err := h.assistant.ListPrompts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if prompts == nil {
		prompts = make([]models.Prompt, 0)
	}
	c.JSON(http.StatusOK, gin.H{"prompts": prompts})
}

func (h *Handler) createPrompt(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	prompt, err := h.assistant.CreatePrompt(c.Request.Context(), userID, req.Title, req.Prompt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, prompt)
}

func (h *Handler) updatePrompt(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	promptID, err := strconv.ParseInt(c.Param("prompt_id"), 10, 64)
	if err != nil || promptID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return
	}
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.assistant.UpdatePrompt(c.Request.Context(), userID, promptID, req.Title, req.Prompt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deletePrompt(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	promptID, err := strconv.ParseInt(c.Param("prompt_id"), 10, 64)
	if err != nil || promptID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prompt id"})
		return
	}
	if err := h.assistant.DeletePrompt(c.Request.Context(), userID, promptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "prompt not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

const newsSearchCount = 5

func (h *Handler) searchNews(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	topic := strings.TrimSpace(c.Query("topic"))
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}
	results, err := h.search.Search(c.Request.Context(), topic, newsSearchCount)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "news search failed, please try again later"})
		return
	}
	if results == nil {
		results = make([]models.SearchResult, 0)
	}
	c.JSON(http.StatusOK, gin.H{"topic": topic, "results": results})
}

func (h *Handler) listNewsQueries(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	queries, err := h.assistant.ListNewsQueries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if queries == nil {
		queries = make([]models.NewsQuery, 0)
	}
	c.JSON(http.StatusOK, gin.H{"queries": queries})
}

func (h *Handler) saveNewsQuery(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Topic    string `json:"topic"`
		WindowID string `json:"window_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	query, err := h.assistant.SaveNewsQuery(c.Request.Context(), userID, req.Topic, req.WindowID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.articles.Invalidate(c.Request.Context(), userID, query.ID)
	c.JSON(http.StatusOK, query)
}

func (h *Handler) deactivateNewsQuery(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	windowID := c.Param("window_id")
	queries, err := h.assistant.ListNewsQueries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.assistant.DeactivateNewsQuery(c.Request.Context(), userID, windowID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "news query not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, q := range queries {
		if q.WindowID == windowID {
			h.articles.Invalidate(c.Request.Context(), userID, q.ID)
			break
		}
	}
	c.Status(http.StatusNoContent)
}

type newsFetchRequest struct {
	Topic          string `json:"topic"`
	ConversationID int64  `json:"conversation_id"`
}

// fetchNewsDigest runs an on-demand topic search and, when a conversation
// is named, persists the formatted digest into it so the thread keeps a
// record of what the user saw.
func (h *Handler) fetchNewsDigest(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req newsFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}
	results, err := h.search.Search(c.Request.Context(), topic, newsSearchCount)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "news search failed, please try again later"})
		return
	}
	digest := formatNewsDigest(topic, results)

	var stored *models.Message
	if req.ConversationID > 0 {
		if err := h.assistant.VerifyConversation(c.Request.Context(), userID, req.ConversationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		stored, err = h.assistant.CreateMessage(c.Request.Context(), models.Message{
			ConversationID: req.ConversationID,
			Sender:         models.SenderSystem,
			Text:           digest,
			SearchResults:  results,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if results == nil {
		results = make([]models.SearchResult, 0)
	}
	body := gin.H{"topic": topic, "digest": digest, "results": results}
	if stored != nil {
		body["message"] = stored
	}
	c.JSON(http.StatusOK, body)
}

func formatNewsDigest(topic string, results []models.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No recent news found for %q.", topic)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Latest news for %q:\n", topic)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Title)
		if r.Description != "" {
			fmt.Fprintf(&b, "\n   %s", r.Description)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "\n   %s", r.URL)
		}
	}
	return b.String()
}

func (h *Handler) listNotifications(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.assistant.ListNotifications(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if notifications == nil {
		notifications = make([]models.Notification, 0)
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	notificationID, err := strconv.ParseInt(c.Param("notification_id"), 10, 64)
	if err != nil || notificationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	if err := h.assistant.MarkNotificationRead(c.Request.Context(), userID, notificationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getDashboardLayout(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	layout, err := h.assistant.GetDashboardLayout(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, layout)
}

func (h *Handler) saveDashboardLayout(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var layout models.DashboardLayout
	if err := c.ShouldBindJSON(&layout); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	saved, err := h.assistant.SaveDashboardLayout(c.Request.Context(), userID, layout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}
