package admin

import (
	"context"
	"errors"
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
)

// ImageStore resolves and removes stored post images
type ImageStore interface {
	posts.URLResolver
	Delete(ctx context.Context, rels ...string)
}

// Handler handles admin requests
type Handler struct {
	db     *gorm.DB
	images ImageStore
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, images ImageStore) *Handler {
	return &Handler{db: db, images: images}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID           uint       `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	CreatedAt    string     `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	PostCount    int64      `json:"post_count"`
	CommentCount int64      `json:"comment_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=255"`
	IsActive    *bool   `json:"is_active"`
	IsStaff     *bool   `json:"is_staff"`
	IsSuperuser *bool   `json:"is_superuser"`
}

// PostResponse is a post as shown to staff, with its author and comments inline
type PostResponse struct {
	ID        uint                   `json:"id"`
	UserID    uint                   `json:"user"`
	Title     string                 `json:"title"`
	Tags      []uint                 `json:"tags"`
	Content   string                 `json:"content"`
	Link      string                 `json:"link"`
	Image     *string                `json:"image"`
	Comments  []posts.CommentSummary `json:"comments"`
	CreatedOn time.Time              `json:"created_on"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers      int64 `json:"total_users"`
	ActiveUsers     int64 `json:"active_users"`
	StaffUsers      int64 `json:"staff_users"`
	TotalPosts      int64 `json:"total_posts"`
	PostsWithImages int64 `json:"posts_with_images"`
	TotalTags       int64 `json:"total_tags"`
	TotalComments   int64 `json:"total_comments"`
	ActiveTokens    int64 `json:"active_tokens"`
}

func parseID(c *gin.Context, resource string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierr.Respond(c, apierr.NotFound(resource))
		return 0, false
	}
	return uint(id), true
}

func toUserResponse(user models.User, postCount, commentCount int64) UserResponse {
	return UserResponse{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		IsActive:     user.IsActive,
		IsStaff:      user.IsStaff,
		IsSuperuser:  user.IsSuperuser,
		CreatedAt:    user.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		LastLogin:    user.LastLogin,
		PostCount:    postCount,
		CommentCount: commentCount,
	}
}

// countByUser counts rows of model per owner in one grouped query
func (h *Handler) countByUser(ctx context.Context, model interface{}, ids []uint) (map[uint]int64, error) {
	var rows []struct {
		UserID uint
		N      int64
	}
	err := h.db.WithContext(ctx).Model(model).
		Select("user_id, COUNT(*) AS n").
		Where("user_id IN ?", ids).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.N
	}
	return counts, nil
}

// userResponses attaches post and comment counts to users
func (h *Handler) userResponses(ctx context.Context, users []models.User) ([]UserResponse, error) {
	responses := make([]UserResponse, len(users))
	if len(users) == 0 {
		return responses, nil
	}

	ids := make([]uint, len(users))
	for i, user := range users {
		ids[i] = user.ID
	}
	postCounts, err := h.countByUser(ctx, &models.Post{}, ids)
	if err != nil {
		return nil, err
	}
	commentCounts, err := h.countByUser(ctx, &models.Comment{}, ids)
	if err != nil {
		return nil, err
	}

	for i, user := range users {
		responses[i] = toUserResponse(user, postCounts[user.ID], commentCounts[user.ID])
	}
	return responses, nil
}

// respondUser writes a single user with counts
func (h *Handler) respondUser(c *gin.Context, user models.User) {
	responses, err := h.userResponses(c.Request.Context(), []models.User{user})
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to count user content", err))
		return
	}
	c.JSON(http.StatusOK, responses[0])
}

func (h *Handler) findUser(c *gin.Context) (*models.User, bool) {
	id, ok := parseID(c, "User")
	if !ok {
		return nil, false
	}

	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("User"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to fetch user", err))
		}
		return nil, false
	}
	return &user, true
}

// ListUsers returns all users ordered by name (staff only)
func (h *Handler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	query := h.db.WithContext(ctx).Order("name ASC").Order("id ASC")

	// Optional search by email or name
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch users", err))
		return
	}

	responses, err := h.userResponses(ctx, users)
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to count user content", err))
		return
	}

	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (staff only)
func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}
	h.respondUser(c, *user)
}

// UpdateUser changes a user's name, activity or privileges (staff only)
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.findUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	// Prevent staff from locking themselves out
	currentUserID, _ := auth.GetUserID(c)
	if user.ID == currentUserID {
		if (req.IsStaff != nil && !*req.IsStaff) || (req.IsActive != nil && !*req.IsActive) {
			apierr.Respond(c, apierr.Field(apierr.NonFieldErrors, "Cannot demote yourself."))
			return
		}
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			apierr.Respond(c, apierr.Field("name", "This field may not be blank."))
			return
		}
		updates["name"] = name
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.IsStaff != nil && !*req.IsStaff && req.IsSuperuser != nil && *req.IsSuperuser {
		apierr.Respond(c, apierr.Field("is_superuser", "A superuser must also be staff."))
		return
	}
	if req.IsStaff != nil {
		updates["is_staff"] = *req.IsStaff
		// Removing staff also removes superuser
		if !*req.IsStaff {
			updates["is_superuser"] = false
		}
	}
	if req.IsSuperuser != nil {
		updates["is_superuser"] = *req.IsSuperuser
		// Superusers are always staff
		if *req.IsSuperuser {
			updates["is_staff"] = true
		}
	}

	ctx := c.Request.Context()
	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			apierr.Respond(c, apierr.Internal("Failed to update user", err))
			return
		}
	}

	// Reload user
	if err := h.db.WithContext(ctx).First(user, user.ID).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch user", err))
		return
	}

	h.respondUser(c, *user)
}

// DeleteUser removes a user and everything they own (staff only)
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "User")
	if !ok {
		return
	}

	// Prevent staff from deleting themselves
	currentUserID, _ := auth.GetUserID(c)
	if id == currentUserID {
		apierr.Respond(c, apierr.Field(apierr.NonFieldErrors, "Cannot delete yourself."))
		return
	}

	user, ok := h.findUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var owned []models.Post
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Find(&owned).Error; err != nil {
			return err
		}
		postIDs := tx.Model(&models.Post{}).Select("id").Where("user_id = ?", user.ID)
		tagIDs := tx.Model(&models.Tag{}).Select("id").Where("user_id = ?", user.ID)

		// Comments by the user and comments on the user's posts
		if err := tx.Where("user_id = ? OR post_id IN (?)", user.ID, postIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM post_tags WHERE post_id IN (?) OR tag_id IN (?)", postIDs, tagIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Tag{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.AuthToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to delete user", err))
		return
	}

	if h.images != nil {
		for _, p := range owned {
			h.images.Delete(ctx, p.Image, p.ImageThumbnail)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// ListPosts returns every post with its comments inline, newest first.
// An optional user query parameter restricts the list to one author.
func (h *Handler) ListPosts(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id ASC") }).
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order(models.CommentOrder) })

	if raw := c.Query("user"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apierr.Respond(c, apierr.Field("user", "A valid integer is required."))
			return
		}
		query = query.Where("user_id = ?", userID)
	}

	var list []models.Post
	if err := query.Order("id DESC").Find(&list).Error; err != nil {
		apierr.Respond(c, apierr.Internal("Failed to fetch posts", err))
		return
	}

	responses := make([]PostResponse, len(list))
	for i, p := range list {
		base := posts.ToResponse(p, h.images)
		detail := posts.ToDetailResponse(p, h.images)
		responses[i] = PostResponse{
			ID:        p.ID,
			UserID:    p.UserID,
			Title:     p.Title,
			Tags:      base.Tags,
			Content:   p.Content,
			Link:      p.Link,
			Image:     base.Image,
			Comments:  detail.Comments,
			CreatedOn: p.CreatedOn,
		}
	}

	c.JSON(http.StatusOK, responses)
}

// DeletePost removes any user's post (staff only)
func (h *Handler) DeletePost(c *gin.Context) {
	id, ok := parseID(c, "Post")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var post models.Post
	if err := h.db.WithContext(ctx).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("Post"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to fetch post", err))
		}
		return
	}

	if err := posts.DeletePost(ctx, h.db, &post); err != nil {
		apierr.Respond(c, apierr.Internal("Failed to delete post", err))
		return
	}
	if h.images != nil {
		h.images.Delete(ctx, post.Image, post.ImageThumbnail)
	}

	c.Status(http.StatusNoContent)
}

// DeleteComment removes any user's comment (staff only)
func (h *Handler) DeleteComment(c *gin.Context) {
	id, ok := parseID(c, "Comment")
	if !ok {
		return
	}

	result := h.db.WithContext(c.Request.Context()).Delete(&models.Comment{}, id)
	if result.Error != nil {
		apierr.Respond(c, apierr.Internal("Failed to delete comment", result.Error))
		return
	}
	if result.RowsAffected == 0 {
		apierr.Respond(c, apierr.NotFound("Comment"))
		return
	}

	c.Status(http.StatusNoContent)
}

// GetStats returns system-wide statistics (staff only)
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	db := h.db.WithContext(c.Request.Context())

	counts := []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&models.User{}), &stats.TotalUsers},
		{db.Model(&models.User{}).Where("is_active = ?", true), &stats.ActiveUsers},
		{db.Model(&models.User{}).Where("is_staff = ?", true), &stats.StaffUsers},
		{db.Model(&models.Post{}), &stats.TotalPosts},
		{db.Model(&models.Post{}).Where("image <> ''"), &stats.PostsWithImages},
		{db.Model(&models.Tag{}), &stats.TotalTags},
		{db.Model(&models.Comment{}), &stats.TotalComments},
		{db.Model(&models.AuthToken{}), &stats.ActiveTokens},
	}
	for _, count := range counts {
		if err := count.query.Count(count.dest).Error; err != nil {
			apierr.Respond(c, apierr.Internal("Failed to compute stats", err))
			return
		}
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PATCH("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
	rg.GET("/posts", h.ListPosts)
	rg.DELETE("/posts/:id", h.DeletePost)
	rg.DELETE("/comments/:id", h.DeleteComment)
}
