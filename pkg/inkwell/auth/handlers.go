package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/config"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	tokenType string
}

// NewHandler creates an auth handler issuing tokens of tokenType
func NewHandler(db *gorm.DB, tokenType string) *Handler {
	if tokenType == "" {
		tokenType = config.TokenTypeOpaque
	}
	return &Handler{db: db, tokenType: tokenType}
}

type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=5"`
	Name     string `json:"name" binding:"required,max=255"`
}

type TokenRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// UpdateMeRequest is used by PATCH; absent fields are left unchanged
type UpdateMeRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=255"`
	Password *string `json:"password" binding:"omitempty,min=5"`
}

// ReplaceMeRequest is used by PUT
type ReplaceMeRequest struct {
	Name     string  `json:"name" binding:"required,max=255"`
	Password *string `json:"password" binding:"omitempty,min=5"`
}

type UserResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{Email: u.Email, Name: u.Name}
}

// CreateUser registers a new account
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	user, err := CreateUser(c.Request.Context(), h.db, NewUser{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, newUserResponse(user))
}

// CreateToken exchanges credentials for a token
func (h *Handler) CreateToken(c *gin.Context) {
	var req TokenRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := Authenticate(ctx, h.db, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			apierr.Respond(c, apierr.Field(apierr.NonFieldErrors, "Unable to authenticate with provided credentials."))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to authenticate", err))
		}
		return
	}

	token, err := IssueToken(ctx, h.db, h.tokenType, user)
	if err != nil {
		apierr.Respond(c, apierr.Internal("Failed to generate token", err))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// DeleteToken revokes the opaque token used to authenticate this request.
// JWTs are stateless and simply expire.
func (h *Handler) DeleteToken(c *gin.Context) {
	userID, _ := GetUserID(c)
	if tokenID, ok := GetTokenID(c); ok {
		if err := RevokeToken(c.Request.Context(), h.db, userID, tokenID); err != nil {
			apierr.Respond(c, apierr.Internal("Failed to revoke token", err))
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) loadMe(c *gin.Context) (*models.User, bool) {
	userID, _ := GetUserID(c)
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apierr.Respond(c, apierr.NotFound("User"))
		} else {
			apierr.Respond(c, apierr.Internal("Failed to load user", err))
		}
		return nil, false
	}
	return &user, true
}

// Me returns the authenticated user
func (h *Handler) Me(c *gin.Context) {
	user, ok := h.loadMe(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

// UpdateMe applies a partial update to the authenticated user
func (h *Handler) UpdateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}
	h.saveMe(c, req.Name, req.Password)
}

// ReplaceMe applies a full update to the authenticated user
func (h *Handler) ReplaceMe(c *gin.Context) {
	var req ReplaceMeRequest
	if err := apierr.Bind(c, &req); err != nil {
		apierr.Respond(c, err)
		return
	}
	h.saveMe(c, &req.Name, req.Password)
}

func (h *Handler) saveMe(c *gin.Context, name, password *string) {
	user, ok := h.loadMe(c)
	if !ok {
		return
	}

	updates := map[string]interface{}{}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			apierr.Respond(c, apierr.Field("name", "This field may not be blank."))
			return
		}
		updates["name"] = trimmed
		user.Name = trimmed
	}
	if password != nil {
		hash, err := HashPassword(*password)
		if err != nil {
			apierr.Respond(c, apierr.Internal("Failed to process password", err))
			return
		}
		updates["password_hash"] = hash
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(user).Updates(updates).Error; err != nil {
			apierr.Respond(c, apierr.Internal("Failed to update user", err))
			return
		}
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func methodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
}

// RegisterRoutes registers the public signup/login routes on public and the
// authenticated account routes on protected.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.POST("/user/create", h.CreateUser)
	public.POST("/user/token", h.CreateToken)

	protected.DELETE("/user/token", h.DeleteToken)
	protected.GET("/user/me", h.Me)
	// Registered so unauthenticated callers get 401 before method handling
	protected.POST("/user/me", methodNotAllowed)
	protected.PATCH("/user/me", h.UpdateMe)
	protected.PUT("/user/me", h.ReplaceMe)
}
