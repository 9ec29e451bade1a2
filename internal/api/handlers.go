package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartdesk/internal/auth"
	"smartdesk/internal/models"
	"smartdesk/internal/monitor"
	"smartdesk/internal/service/ai"
	"smartdesk/internal/service/assistant"
	"smartdesk/internal/service/chat"
)

// ChatPipeline runs one chat turn.
type ChatPipeline interface {
	SendMessage(ctx context.Context, userID, conversationID int64, text string, searchEnabled bool) (*models.Message, error)
}

// NewsSearcher runs an ad-hoc topic search for the news endpoints.
type NewsSearcher interface {
	Search(ctx context.Context, query string, count int) ([]models.SearchResult, error)
}

// Handler wires HTTP routes to the assistant service, the chat pipeline,
// and the news search/monitor.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	pipeline  ChatPipeline
	search    NewsSearcher
	articles  *monitor.ArticleCache
}

// NewHandler wires the handler to its collaborators.
func NewHandler(service *assistant.Service, authService *auth.Service, pipeline ChatPipeline, search NewsSearcher, articles *monitor.ArticleCache) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
		pipeline:  pipeline,
		search:    search,
		articles:  articles,
	}
}

// requirePathUser rejects requests whose :id segment differs from the
// authenticated user.
func (h *Handler) requirePathUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.UserIDFromContext(c)
		if !ok || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		paramID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || paramID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if paramID != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user mismatch"})
			return
		}
		c.Next()
	}
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

// RegisterRoutes mounts the API under /api. Everything below /users/:id
// requires a matching authenticated user.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/users/register", h.registerUser)
	api.POST("/users/login", h.loginUser)
	authMW := h.auth.Middleware()
	userRoutes := api.Group("/users/:id")
	userRoutes.Use(authMW, h.requirePathUser(), h.auth.CSRFMiddleware())
	userRoutes.POST("/logout", h.logoutUser)
	userRoutes.DELETE("", h.deleteUser)

	userRoutes.GET("/conversations", h.listConversations)
	userRoutes.POST("/conversations", h.createConversation)
	userRoutes.DELETE("/conversations/:conversation_id", h.deleteConversation)
	userRoutes.GET("/conversations/:conversation_id/messages", h.getMessages)
	userRoutes.POST("/conversations/:conversation_id/messages", h.sendMessage)

	userRoutes.POST("/notes", h.findOrCreateNote)
	userRoutes.GET("/notes/window/:window_id", h.getNoteByWindow)
	userRoutes.GET("/notes/:note_id", h.getNote)
	userRoutes.POST("/notes/:note_id/pages", h.createNotePage)
	userRoutes.PUT("/notes/:note_id/pages/:page_id", h.updateNotePage)
	userRoutes.DELETE("/notes/:note_id/pages/:page_id", h.deleteNotePage)
	userRoutes.POST("/notes/:note_id/pages/import", h.importNotePage)

	userRoutes.GET("/tasks", h.listTasks)
	userRoutes.POST("/tasks", h.createTask)
	userRoutes.PUT("/tasks/:task_id", h.updateTask)
	userRoutes.DELETE("/tasks/:task_id", h.deleteTask)

	userRoutes.GET("/prompts", h.listPrompts)
	userRoutes.POST("/prompts", h.createPrompt)
	userRoutes.PUT("/prompts/:prompt_id", h.updatePrompt)
	userRoutes.DELETE("/prompts/:prompt_id", h.deletePrompt)

	userRoutes.GET("/search/news", h.searchNews)
	userRoutes.GET("/news/queries", h.listNewsQueries)
	userRoutes.POST("/news/queries", h.saveNewsQuery)
	userRoutes.DELETE("/news/queries/:window_id", h.deactivateNewsQuery)
	userRoutes.POST("/news/fetch", h.fetchNewsDigest)
	userRoutes.GET("/notifications", h.listNotifications)
	userRoutes.PUT("/notifications/:notification_id/read", h.markNotificationRead)

	userRoutes.GET("/dashboard/layout", h.getDashboardLayout)
	userRoutes.PUT("/dashboard/layout", h.saveDashboardLayout)
}

// Account endpoints.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) registerUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) loginUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
		"auth_token": authToken,
	})
}

func (h *Handler) logoutUser(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.auth.RevokeUserTokens(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.assistant.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) listConversations(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	convs, err := h.assistant.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if convs == nil {
		convs = make([]models.Conversation, 0)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) createConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req struct {
		Title    string `json:"title"`
		WindowID string `json:"window_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	conv, err := h.assistant.CreateConversation(c.Request.Context(), userID, req.Title, req.WindowID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	if err := h.assistant.DeleteConversation(c.Request.Context(), userID, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	messages, err := h.assistant.ListMessages(c.Request.Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Text          string `json:"text"`
	SearchEnabled bool   `json:"search_enabled"`
}

func (h *Handler) sendMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conversationID, err := strconv.ParseInt(c.Param("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	reply, err := h.pipeline.SendMessage(c.Request.Context(), userID, conversationID, req.Text, req.SearchEnabled)
	if err != nil {
		h.renderPipelineError(c, err, reply)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": reply})
}

// renderPipelineError maps a failed chat turn to a status code. When the
// apology option persisted a reply despite the failure it rides along.
func (h *Handler) renderPipelineError(c *gin.Context, err error, reply *models.Message) {
	if errors.Is(err, chat.ErrEmptyText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	var aiErr *ai.Error
	if !errors.As(err, &aiErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"error": aiErr.Message(), "error_kind": string(aiErr.Kind)}
	if reply != nil {
		body["message"] = reply
	}
	switch aiErr.Kind {
	case ai.KindRateLimit:
		c.JSON(http.StatusTooManyRequests, body)
	case ai.KindAuth, ai.KindServer, ai.KindNetwork:
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
