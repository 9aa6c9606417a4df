package posts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/media"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageStore persists uploaded post images
type ImageStore interface {
	URLResolver
	Save(ctx context.Context, content []byte) (*media.Stored, error)
	Delete(ctx context.Context, rels ...string)
	MaxBytes() int64
}

// Handler handles post-related requests
type Handler struct {
	db     *gorm.DB
	images ImageStore
}

// NewHandler creates a new posts handler
func NewHandler(db *gorm.DB, images ImageStore) *Handler {
	return &Handler{db: db, images: images}
}

// CreatePostRequest is used by POST and PUT
type CreatePostRequest struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content" binding:"required,max=5000"`
	Link    string `json:"link" binding:"max=255"`
	Tags    []uint `json:"tags"`
}

// UpdatePostRequest is used by PATCH; absent fields are left unchanged
type UpdatePostRequest struct {
	Title   *string `json:"title" binding:"omitempty,max=255"`
	Content *string `json:"content" binding:"omitempty,max=5000"`
	Link    *string `json:"link" binding:"omitempty,max=255"`
	Tags    *[]uint `json:"tags"`
}

// ParseIDList converts "1,2,3" into IDs
func ParseIDList(raw string) ([]uint, error) {
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func parsePostID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Respond(c, apierr.NotFound("Post"))
		return 0, false
	}
	return uint(id), true
}

func notBlank(fields apierr.FieldErrors, name, value string) {
	if strings.TrimSpace(value) == "" {
		fields.Add(name, "This field may not be blank.")
	}
}

// loadOwnedTags returns the caller's tags with the given IDs, or a field
// error naming the first ID that does not exist for this user.
func loadOwnedTags(tx *gorm.DB, userID uint, ids []uint) ([]models.Tag, error) {
	if len(ids) == 0 {
		return []models.Tag{}, nil
	}

	var found []models.Tag
	if err := tx.Where("user_id = ? AND id IN ?", userID, ids).Find(&found).Error; err != nil {
		return nil, apierr.Internal("Failed to load tags", err)
	}

	byID := make(map[uint]models.Tag, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	tagList := make([]models.Tag, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, apierr.Field("tags", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
		}
		if !seen[id] {
			seen[id] = true
			tagList = append(tagList, t)
		}
	}
	return tagList, nil
}

// findOwned loads a post belonging to userID, writing a 404 when absent
func (h *Handler) findOwned(c *gin.Context, userID uint, preload ...string) (*models.Post, bool) {
	postID, ok := parsePostID(c)
	if !ok {
		return nil, false
	}

	query := h.db.WithContext(c.Request.Context())
	for _, p := range preload {
		query = query.Preload(p)
	}

	var post models.Post
	if err := query.Where("id = ? AND user_id = ?", postID, userID).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("Post"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to fetch post", err))
		}
		return nil, false
	}
	return &post, true
}

// List returns the caller's posts
// @Summary List posts
// @Description Get the authenticated user's posts, newest first
// @Tags posts
// @Produce json
// @Param tags query string false "Comma separated tag IDs"
// @Param comments query string false "Comma separated comment IDs"
// @Success 200 {array} PostResponse
// @Failure 400 {object} apierr.Response "Malformed ID list"
// @Security TokenAuth
// @Router /post/posts [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	query := h.db.WithContext(c.Request.Context()).Where("posts.user_id = ?", userID)

	// Subqueries rather than joins so a post matching several IDs is listed once
	if raw := c.Query("tags"); raw != "" {
		ids, err := ParseIDList(raw)
		if err != nil {
			apierr.Respond(c, apierr.Field("tags", "Enter a comma separated list of IDs."))
			return
		}
		query = query.Where("posts.id IN (SELECT post_id FROM post_tags WHERE tag_id IN ?)", ids)
	}
	if raw := c.Query("comments"); raw != "" {
		ids, err := ParseIDList(raw)
		if err != nil {
			apierr.Respond(c, apierr.Field("comments", "Enter a comma separated list of IDs."))
			return
		}
		query = query.Where("posts.id IN (SELECT post_id FROM comments WHERE id IN ?)", ids)
	}

	var posts []models.Post
	if err := query.Preload("Tags").Order("posts.id DESC").Find(&posts).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch posts", err))
		return
	}

	response := make([]PostResponse, len(posts))
	for i, p := range posts {
		response[i] = ToResponse(p, h.images)
	}

	c.JSON(http.StatusOK, response)
}

// Get returns a single post with nested tags and comments
// @Summary Get a post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} PostDetailResponse
// @Failure 404 {object} apierr.Response "Post not found"
// @Security TokenAuth
// @Router /post/posts/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	var post models.Post
	err := h.db.WithContext(c.Request.Context()).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order(models.CommentOrder) }).
		Where("id = ? AND user_id = ?", postID, userID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("Post"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to fetch post", err))
		}
		return
	}

	c.JSON(http.StatusOK, ToDetailResponse(post, h.images))
}

// Create creates a post owned by the caller
// @Summary Create a post
// @Tags posts
// @Accept json
// @Produce json
// @Param request body CreatePostRequest true "Post"
// @Success 201 {object} PostResponse
// @Failure 400 {object} apierr.Response "Validation failed"
// @Security TokenAuth
// @Router /post/posts [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreatePostRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	fields := apierr.FieldErrors{}
	notBlank(fields, "title", req.Title)
	notBlank(fields, "content", req.Content)
	if len(fields) > 0 {
		apierr.Respond(c, apierr.Validation(fields))
		return
	}

	post := models.Post{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Link:    req.Link,
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		tagList, err := loadOwnedTags(tx, userID, req.Tags)
		if err != nil {
			return err
		}
		post.Tags = tagList
		// Tags.* skips upserting the tag rows themselves
		return tx.Omit("Tags.*").Create(&post).Error
	})
	if err != nil {
		respondTxError(c, "Failed to create post", err)
		return
	}

	c.JSON(http.StatusCreated, ToResponse(post, h.images))
}

// Replace performs a full update. Omitted tags clear the post's tag set.
func (h *Handler) Replace(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	post, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	fields := apierr.FieldErrors{}
	notBlank(fields, "title", req.Title)
	notBlank(fields, "content", req.Content)
	if len(fields) > 0 {
		apierr.Respond(c, apierr.Validation(fields))
		return
	}

	updates := map[string]interface{}{
		"title":   req.Title,
		"content": req.Content,
		"link":    req.Link,
	}
	tagIDs := req.Tags
	if tagIDs == nil {
		tagIDs = []uint{}
	}

	if err := h.save(c.Request.Context(), post, updates, &tagIDs); err != nil {
		respondTxError(c, "Failed to update post", err)
		return
	}

	c.JSON(http.StatusOK, ToResponse(*post, h.images))
}

// Update performs a partial update. Present tags replace the tag set.
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	post, ok := h.findOwned(c, userID, "Tags")
	if !ok {
		return
	}

	var req UpdatePostRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	fields := apierr.FieldErrors{}
	updates := map[string]interface{}{}
	if req.Title != nil {
		notBlank(fields, "title", *req.Title)
		updates["title"] = *req.Title
	}
	if req.Content != nil {
		notBlank(fields, "content", *req.Content)
		updates["content"] = *req.Content
	}
	if req.Link != nil {
		updates["link"] = *req.Link
	}
	if len(fields) > 0 {
		apierr.Respond(c, apierr.Validation(fields))
		return
	}

	if err := h.save(c.Request.Context(), post, updates, req.Tags); err != nil {
		respondTxError(c, "Failed to update post", err)
		return
	}

	c.JSON(http.StatusOK, ToResponse(*post, h.images))
}

// save applies column updates and, when tagIDs is non-nil, replaces the
// tag set, all in one transaction.
func (h *Handler) save(ctx context.Context, post *models.Post, updates map[string]interface{}, tagIDs *[]uint) error {
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(post).Omit(clause.Associations).Updates(updates).Error; err != nil {
				return err
			}
			applyUpdates(post, updates)
		}

		if tagIDs == nil {
			return nil
		}

		tagList, err := loadOwnedTags(tx, post.UserID, *tagIDs)
		if err != nil {
			return err
		}
		assoc := tx.Model(post).Omit("Tags.*").Association("Tags")
		if len(tagList) == 0 {
			if err := assoc.Clear(); err != nil {
				return err
			}
		} else if err := assoc.Replace(tagList); err != nil {
			return err
		}
		post.Tags = tagList
		return nil
	})
}

func applyUpdates(post *models.Post, updates map[string]interface{}) {
	if v, ok := updates["title"].(string); ok {
		post.Title = v
	}
	if v, ok := updates["content"].(string); ok {
		post.Content = v
	}
	if v, ok := updates["link"].(string); ok {
		post.Link = v
	}
}

// Delete removes a post, its comments, its tag links and its image files
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	post, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := DeletePost(ctx, h.db, post); err != nil {
		apierr.Respond(c, apierr.Internal("Failed to delete post", err))
		return
	}
	if h.images != nil {
		h.images.Delete(ctx, post.Image, post.ImageThumbnail)
	}

	c.Status(http.StatusNoContent)
}

// DeletePost removes a post with its comments and tag links in one transaction
func DeletePost(ctx context.Context, db *gorm.DB, post *models.Post) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(post).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Delete(post).Error
	})
}

// UploadImage attaches an image to a post, replacing any previous one
// @Summary Upload a post image
// @Tags posts
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Post ID"
// @Param image formData file true "JPEG, PNG, GIF or WebP image"
// @Success 200 {object} ImageResponse
// @Failure 400 {object} apierr.Response "Invalid image"
// @Failure 404 {object} apierr.Response "Post not found"
// @Security TokenAuth
// @Router /post/posts/{id}/upload-image [post]
func (h *Handler) UploadImage(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	post, ok := h.findOwned(c, userID)
	if !ok {
		return
	}

	maxBytes := h.images.MaxBytes()
	// Leave headroom for the multipart envelope
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+1<<20)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierr.Respond(c, apierr.Field("image", fmt.Sprintf("File too large (max %dMB).", maxBytes/(1<<20))))
			return
		}
		apierr.Respond(c, apierr.Field("image", "No file was submitted."))
		return
	}
	if fileHeader.Size > maxBytes {
		apierr.Respond(c, apierr.Field("image", fmt.Sprintf("File too large (max %dMB).", maxBytes/(1<<20))))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to read upload", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to read upload", err))
		return
	}

	ctx := c.Request.Context()
	stored, err := h.images.Save(ctx, content)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	oldImage, oldThumb := post.Image, post.ImageThumbnail
	err = h.db.WithContext(ctx).Model(post).Omit(clause.Associations).Updates(map[string]interface{}{
		"image":           stored.Path,
		"image_thumbnail": stored.Thumbnail,
	}).Error
	if err != nil {
		h.images.Delete(ctx, stored.Path, stored.Thumbnail)
		apierr.Respond(c, apierr.Internal("Failed to save image", err))
		return
	}
	h.images.Delete(ctx, oldImage, oldThumb)

	c.JSON(http.StatusOK, ImageResponse{ID: post.ID, Image: imageURL(h.images, stored.Path)})
}

func respondTxError(c *gin.Context, msg string, err error) {
	var appErr *apierr.Error
	if errors.As(err, &appErr) {
		apierr.Respond(c, appErr)
		return
	}
	apierr.Respond(c, apierr.Internal(msg, err))
}

// RegisterRoutes registers post routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/post/posts", h.List)
	rg.POST("/post/posts", h.Create)
	rg.GET("/post/posts/:id", h.Get)
	rg.PUT("/post/posts/:id", h.Replace)
	rg.PATCH("/post/posts/:id", h.Update)
	rg.DELETE("/post/posts/:id", h.Delete)
	rg.POST("/post/posts/:id/upload-image", h.UploadImage)
}
