package comments

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/posts"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler handles comment-related requests
type Handler struct {
	db   *gorm.DB
	urls posts.URLResolver
}

// NewHandler creates a new comments handler. urls renders image links of
// nested posts and may be nil.
func NewHandler(db *gorm.DB, urls posts.URLResolver) *Handler {
	return &Handler{db: db, urls: urls}
}

// CommentResponse is the list form of a comment
type CommentResponse struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	PostID    uint      `json:"post"`
	CreatedOn time.Time `json:"created_on"`
}

// CommentDetailResponse nests the parent post
type CommentDetailResponse struct {
	ID        uint               `json:"id"`
	Content   string             `json:"content"`
	Post      posts.PostResponse `json:"post"`
	CreatedOn time.Time          `json:"created_on"`
}

// CreateCommentRequest is used by POST and PUT
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
	PostID  uint   `json:"post" binding:"required"`
}

// UpdateCommentRequest is used by PATCH
type UpdateCommentRequest struct {
	Content *string `json:"content" binding:"omitempty,max=5000"`
	PostID  *uint   `json:"post"`
}

// ToResponse renders a comment in list form
func ToResponse(cm models.Comment) CommentResponse {
	return CommentResponse{
		ID:        cm.ID,
		Content:   cm.Content,
		PostID:    cm.PostID,
		CreatedOn: cm.CreatedOn,
	}
}

// ToDetailResponse renders a comment with its post. cm.Post.Tags must be loaded.
func ToDetailResponse(cm models.Comment, urls posts.URLResolver) CommentDetailResponse {
	return CommentDetailResponse{
		ID:        cm.ID,
		Content:   cm.Content,
		Post:      posts.ToResponse(cm.Post, urls),
		CreatedOn: cm.CreatedOn,
	}
}

// checkPost verifies the target post exists. Comments may be left on any
// user's post.
func (h *Handler) checkPost(c *gin.Context, postID uint) *apierr.Error {
	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return apierr.Internal("Failed to fetch post", err)
	}
	if count == 0 {
		return apierr.Field("post", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", postID))
	}
	return nil
}

func (h *Handler) findOwned(c *gin.Context, userID uint) (*models.Comment, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Respond(c, apierr.NotFound("Comment"))
		return nil, false
	}

	var comment models.Comment
	err = h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, userID).
		First(&comment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("Comment"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to fetch comment", err))
		}
		return nil, false
	}
	return &comment, true
}

// List returns the caller's comments, newest first
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var comments []models.Comment
	err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_on DESC").Order("id DESC").
		Find(&comments).Error
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch comments", err))
		return
	}

	response := make([]CommentResponse, len(comments))
	for i, cm := range comments {
		response[i] = ToResponse(cm)
	}

	c.JSON(http.StatusOK, response)
}

// Get returns a comment with its post
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	comment, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	err := h.db.WithContext(c.Request.Context()).
		Preload("Tags").
		First(&comment.Post, comment.PostID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		apierr.Respond(c, apierr.NotFound("Post"))
		return
	}
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch post", err))
		return
	}

	c.JSON(http.StatusOK, ToDetailResponse(*comment, h.urls))
}

// Create adds a comment owned by the caller
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateCommentRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		apierr.Respond(c, apierr.Field("content", "This field may not be blank."))
		return
	}
	if appErr := h.checkPost(c, req.PostID); appErr != nil {
		apierr.Respond(c, appErr)
		return
	}

	comment := models.Comment{UserID: userID, PostID: req.PostID, Content: req.Content}
	if err := h.db.WithContext(c.Request.Context()).Omit(clause.Associations).Create(&comment).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to create comment", err))
		return
	}

	c.JSON(http.StatusCreated, ToResponse(comment))
}

// Replace performs a full update
func (h *Handler) Replace(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	comment, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	h.save(c, comment, &req.Content, &req.PostID)
}

// Update performs a partial update
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	comment, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	var req UpdateCommentRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	h.save(c, comment, req.Content, req.PostID)
}

func (h *Handler) save(c *gin.Context, comment *models.Comment, content *string, postID *uint) {
	updates := map[string]interface{}{}
	if content != nil {
		if strings.TrimSpace(*content) == "" {
			apierr.Respond(c, apierr.Field("content", "This field may not be blank."))
			return
		}
		updates["content"] = *content
	}
	if postID != nil {
		if appErr := h.checkPost(c, *postID); appErr != nil {
			apierr.Respond(c, appErr)
			return
		}
		updates["post_id"] = *postID
	}

	if len(updates) > 0 {
		err := h.db.WithContext(c.Request.Context()).Model(comment).Omit(clause.Associations).Updates(updates).Error
		if err != nil {
			apierr.Respond(c, apierr.Internal("Failed to update comment", err))
			return
		}
		if content != nil {
			comment.Content = *content
		}
		if postID != nil {
			comment.PostID = *postID
		}
	}

	c.JSON(http.StatusOK, ToResponse(*comment))
}

// Delete removes a comment
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	comment, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(comment).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to delete comment", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers comment routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/post/comments", h.List)
	rg.POST("/post/comments", h.Create)
	rg.GET("/post/comments/:id", h.Get)
	rg.PUT("/post/comments/:id", h.Replace)
	rg.PATCH("/post/comments/:id", h.Update)
	rg.DELETE("/post/comments/:id", h.Delete)
}
