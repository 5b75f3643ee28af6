package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campuslabs/campus/backend/internal/auth"
	"github.com/campuslabs/campus/backend/internal/catalog"
	"github.com/campuslabs/campus/backend/internal/chat"
	"github.com/campuslabs/campus/backend/internal/students"
	"github.com/campuslabs/campus/backend/internal/users"
)

const (
	userIDContextKey      = "campus_user_id"
	displayNameContextKey = "campus_display_name"
)

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingCatalogService  = errors.New("catalog service dependency required")
	errMissingChatService     = errors.New("chat service dependency required")
	errMissingStudentsService = errors.New("students service dependency required")
	errMissingRegistry        = errors.New("chat registry dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// TokenValidator validates bearer tokens issued by the identity collaborator.
type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

// Dependencies wires the HTTP surface to the campus services.
type Dependencies struct {
	TokenManager     TokenValidator
	CatalogService   *catalog.Service
	ChatService      *chat.Service
	StudentsService  *students.Service
	UsersService     *users.Service
	Registry         *chat.Registry
	ChatHistoryLimit int
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router for the campus API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.CatalogService == nil {
		return nil, errMissingCatalogService
	}
	if deps.ChatService == nil {
		return nil, errMissingChatService
	}
	if deps.StudentsService == nil {
		return nil, errMissingStudentsService
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	historyLimit := deps.ChatHistoryLimit
	if historyLimit <= 0 {
		historyLimit = 5
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenManager,
		catalog:      deps.CatalogService,
		chat:         deps.ChatService,
		students:     deps.StudentsService,
		users:        deps.UsersService,
		registry:     deps.Registry,
		historyLimit: historyLimit,
		logger:       logger,
	}

	router.GET("/subjects", handler.handleListSubjects)
	router.GET("/courses", handler.handleListCourses)
	router.GET("/courses/:id/modules", handler.handleListModules)
	router.GET("/modules/:id/contents", handler.handleListContents)
	router.GET("/ws/chat/room/:course_id", handler.handleChatSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/subjects", handler.handleCreateSubject)
	protected.POST("/courses", handler.handleCreateCourse)
	protected.POST("/courses/:id/modules", handler.handleAddModule)
	protected.POST("/modules/:id/contents", handler.handleAddContent)
	protected.DELETE("/contents/:id", handler.handleRemoveContent)
	protected.POST("/modules/order", handler.handleModuleOrder)
	protected.POST("/contents/order", handler.handleContentOrder)
	protected.POST("/courses/:id/enroll", handler.handleEnroll)
	protected.GET("/courses/:id/chat/messages", handler.handleChatHistory)

	return router, nil
}

type httpHandler struct {
	tokens       TokenValidator
	catalog      *catalog.Service
	chat         *chat.Service
	students     *students.Service
	users        *users.Service
	registry     *chat.Registry
	historyLimit int
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	h.touchIdentity(claims)
	c.Set(userIDContextKey, claims.Subject)
	c.Set(displayNameContextKey, claims.DisplayName)
	c.Next()
}

func (h *httpHandler) touchIdentity(claims auth.Claims) {
	if h.users == nil {
		return
	}
	if err := h.users.Touch(claims.Subject, claims.DisplayName, claims.Email); err != nil {
		h.logger.Warn("identity refresh failed", zap.String("user_id", claims.Subject), zap.Error(err))
	}
}

func (h *httpHandler) displayName(userID, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if h.users != nil {
		return h.users.DisplayName(userID)
	}
	return userID
}

type subjectRequestPayload struct {
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

type subjectPayload struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

func renderSubject(subject catalog.Subject) subjectPayload {
	return subjectPayload{ID: subject.ID, Title: subject.Title, Slug: subject.Slug}
}

func (h *httpHandler) handleCreateSubject(c *gin.Context) {
	var request subjectRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	subject, err := h.catalog.CreateSubject(c.Request.Context(), catalog.SubjectInput{
		Title: request.Title,
		Slug:  request.Slug,
	})
	if err != nil {
		h.renderCatalogError(c, "subject creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, renderSubject(subject))
}

func (h *httpHandler) handleListSubjects(c *gin.Context) {
	subjects, err := h.catalog.ListSubjects(c.Request.Context())
	if err != nil {
		h.renderCatalogError(c, "subject listing failed", err)
		return
	}
	payload := make([]subjectPayload, 0, len(subjects))
	for _, subject := range subjects {
		payload = append(payload, renderSubject(subject))
	}
	c.JSON(http.StatusOK, gin.H{"subjects": payload})
}

type courseRequestPayload struct {
	SubjectID uint   `json:"subject_id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Overview  string `json:"overview"`
}

func (h *httpHandler) handleCreateCourse(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request courseRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	course, err := h.catalog.CreateCourse(c.Request.Context(), userID, catalog.CourseInput{
		SubjectID: request.SubjectID,
		Title:     request.Title,
		Slug:      request.Slug,
		Overview:  request.Overview,
	})
	if err != nil {
		h.renderCatalogError(c, "course creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, coursePayload{
		ID:        course.ID,
		SubjectID: course.SubjectID,
		Title:     course.Title,
		Slug:      course.Slug,
		Overview:  course.Overview,
		CreatedAt: course.CreatedAt,
	})
}

type coursePayload struct {
	ID        uint      `json:"id"`
	SubjectID uint      `json:"subject_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Overview  string    `json:"overview"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *httpHandler) handleListCourses(c *gin.Context) {
	summaries, err := h.catalog.ListCourses(c.Request.Context(), c.Query("subject"))
	if err != nil {
		h.renderCatalogError(c, "course listing failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": summaries})
}

type moduleRequestPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    *int   `json:"position"`
}

func (h *httpHandler) handleAddModule(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	courseID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_course_id"})
		return
	}
	var request moduleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	module, err := h.catalog.AddModule(c.Request.Context(), userID, courseID, catalog.ModuleInput{
		Title:       request.Title,
		Description: request.Description,
		Position:    request.Position,
	})
	if err != nil {
		h.renderCatalogError(c, "module creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, renderModule(module))
}

type modulePayload struct {
	ID          uint   `json:"id"`
	CourseID    uint   `json:"course_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Position    int    `json:"position"`
}

func renderModule(module catalog.Module) modulePayload {
	return modulePayload{
		ID:          module.ID,
		CourseID:    module.CourseID,
		Title:       module.Title,
		Description: module.Description,
		Position:    module.Position,
	}
}

func (h *httpHandler) handleListModules(c *gin.Context) {
	courseID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_course_id"})
		return
	}
	modules, err := h.catalog.ListModules(c.Request.Context(), courseID)
	if err != nil {
		h.renderCatalogError(c, "module listing failed", err)
		return
	}
	payload := make([]modulePayload, 0, len(modules))
	for _, module := range modules {
		payload = append(payload, renderModule(module))
	}
	c.JSON(http.StatusOK, gin.H{"modules": payload})
}

type contentRequestPayload struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Path     string `json:"path"`
	URL      string `json:"url"`
	Position *int   `json:"position"`
}

func (h *httpHandler) handleAddContent(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	moduleID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_module_id"})
		return
	}
	var request contentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	item, err := h.catalog.AddContent(c.Request.Context(), userID, moduleID, catalog.ContentInput{
		Kind:     catalog.ContentKind(request.Kind),
		Title:    request.Title,
		Text:     request.Text,
		Path:     request.Path,
		URL:      request.URL,
		Position: request.Position,
	})
	if err != nil {
		h.renderCatalogError(c, "content creation failed", err)
		return
	}
	c.JSON(http.StatusCreated, contentItemPayload{
		ID:       item.ID,
		ModuleID: item.ModuleID,
		Kind:     string(item.Kind),
		Position: item.Position,
	})
}

type contentItemPayload struct {
	ID       uint   `json:"id"`
	ModuleID uint   `json:"module_id"`
	Kind     string `json:"kind"`
	Position int    `json:"position"`
}

func (h *httpHandler) handleListContents(c *gin.Context) {
	moduleID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_module_id"})
		return
	}
	contents, err := h.catalog.ListContents(c.Request.Context(), moduleID)
	if err != nil {
		h.renderCatalogError(c, "content listing failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contents": contents})
}

func (h *httpHandler) handleRemoveContent(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	contentID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_content_id"})
		return
	}
	if err := h.catalog.RemoveContent(c.Request.Context(), userID, contentID); err != nil {
		h.renderCatalogError(c, "content removal failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": "OK"})
}

// handleModuleOrder applies a drag-and-drop reorder batch. The payload maps
// stringified module ids to new positions; pairs whose id is not owned by
// the requester are skipped without error.
func (h *httpHandler) handleModuleOrder(c *gin.Context) {
	h.handleOrderBatch(c, h.catalog.ReorderModules)
}

// handleContentOrder is the content-item counterpart of handleModuleOrder.
func (h *httpHandler) handleContentOrder(c *gin.Context) {
	h.handleOrderBatch(c, h.catalog.ReorderContents)
}

func (h *httpHandler) handleOrderBatch(c *gin.Context, reorder func(ctx context.Context, ownerID string, updates map[uint]int) (int64, error)) {
	userID := c.GetString(userIDContextKey)

	var payload map[string]int
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updates := make(map[uint]int, len(payload))
	for rawID, position := range payload {
		id, ok := parseID(rawID)
		if !ok {
			continue
		}
		updates[id] = position
	}

	if _, err := reorder(c.Request.Context(), userID, updates); err != nil {
		h.logger.Error("reorder batch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": "OK"})
}

func (h *httpHandler) handleEnroll(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	courseID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_course_id"})
		return
	}

	err := h.students.Enroll(c.Request.Context(), courseID, userID)
	if errors.Is(err, students.ErrCourseNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("enrollment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enroll_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrolled": "OK"})
}

type chatHistoryEntryPayload struct {
	ID      uint   `json:"id"`
	User    string `json:"user"`
	Content string `json:"content"`
	SentOn  string `json:"sent_on"`
}

func (h *httpHandler) handleChatHistory(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	courseID, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_course_id"})
		return
	}

	member, err := h.courseMember(c, courseID, userID)
	if err != nil {
		h.logger.Error("membership lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership_lookup_failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := h.chat.History(c.Request.Context(), courseID, limit)
	if err != nil {
		h.logger.Error("chat history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed"})
		return
	}

	userIDs := make([]string, 0, len(messages))
	for _, message := range messages {
		userIDs = append(userIDs, message.UserID)
	}
	names := map[string]string{}
	if h.users != nil {
		names, err = h.users.DisplayNames(userIDs)
		if err != nil {
			h.logger.Warn("display name lookup failed", zap.Error(err))
			names = map[string]string{}
		}
	}

	entries := make([]chatHistoryEntryPayload, 0, len(messages))
	for _, message := range messages {
		name, ok := names[message.UserID]
		if !ok {
			name = message.UserID
		}
		entries = append(entries, chatHistoryEntryPayload{
			ID:      message.ID,
			User:    name,
			Content: message.Content,
			SentOn:  message.SentOn.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": entries})
}

// courseMember reports whether the user may join the course room: enrolled
// students and the course owner qualify.
func (h *httpHandler) courseMember(c *gin.Context, courseID uint, userID string) (bool, error) {
	enrolled, err := h.students.IsEnrolled(c.Request.Context(), courseID, userID)
	if err != nil {
		return false, err
	}
	if enrolled {
		return true, nil
	}
	owner, err := h.catalog.CourseOwner(c.Request.Context(), courseID)
	if errors.Is(err, catalog.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == userID, nil
}

func (h *httpHandler) renderCatalogError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, catalog.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error(message, zap.Error(err))
		body := gin.H{"error": "internal_error"}
		var serviceErr *catalog.ServiceError
		if errors.As(err, &serviceErr) {
			body["code"] = serviceErr.Code()
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}

func parseID(raw string) (uint, bool) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(value), true
}
