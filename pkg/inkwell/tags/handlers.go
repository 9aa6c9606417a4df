package tags

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"gorm.io/gorm"
)

// Handler handles tag-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new tags handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// TagResponse represents a tag in API responses
type TagResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// CreateTagRequest represents the request to create a tag
type CreateTagRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

// ToResponse renders a tag
func ToResponse(t models.Tag) TagResponse {
	return TagResponse{ID: t.ID, Name: t.Name}
}

// ParseFlag reads an integer query flag, treating absent as 0
func ParseFlag(c *gin.Context, name string) (bool, *apierr.Error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return false, apierr.Field(name, "A valid integer is required.")
	}
	return v != 0, nil
}

// List returns the caller's tags, newest name first
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	assignedOnly, appErr := ParseFlag(c, "assigned_only")
	if appErr != nil {
		apierr.Respond(c, appErr)
		return
	}

	query := h.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if assignedOnly {
		// IN keeps one row per tag however many posts carry it
		query = query.Where("id IN (SELECT tag_id FROM post_tags)")
	}

	var tags []models.Tag
	if err := query.Order("name DESC").Order("id DESC").Find(&tags).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch tags", err))
		return
	}

	response := make([]TagResponse, len(tags))
	for i, t := range tags {
		response[i] = ToResponse(t)
	}

	c.JSON(http.StatusOK, response)
}

// Create adds a tag owned by the caller
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateTagRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		apierr.Respond(c, apierr.Field("name", "This field may not be blank."))
		return
	}

	tag := models.Tag{Name: name, UserID: userID}
	if err := h.db.WithContext(c.Request.Context()).Create(&tag).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to create tag", err))
		return
	}

	c.JSON(http.StatusCreated, ToResponse(tag))
}

// RegisterRoutes registers tag routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/post/tags", h.List)
	rg.POST("/post/tags", h.Create)
}
