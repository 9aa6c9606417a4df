package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"gorm.io/gorm"
)

const (
	// ContextKeyUserID is the key for user ID in gin context
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the key for email in gin context
	ContextKeyEmail = "email"
	// ContextKeyIsStaff is the key for the staff flag in gin context
	ContextKeyIsStaff = "is_staff"
	// ContextKeyTokenID is set when the request used an opaque token
	ContextKeyTokenID = "token_id"
)

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// extractToken accepts "Token <key>" and "Bearer <key>"
func extractToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	scheme := strings.ToLower(parts[0])
	if scheme != "token" && scheme != "bearer" {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// TokenAuthMiddleware authenticates the request with an opaque token or a JWT.
// JWTs contain dots, opaque tokens are hex strings without dots.
func TokenAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authentication credentials were not provided")
			return
		}

		token, ok := extractToken(authHeader)
		if !ok {
			unauthorized(c, "Invalid authorization header format")
			return
		}

		ctx := c.Request.Context()
		var userID uint

		if strings.Contains(token, ".") {
			claims, err := ValidateToken(token)
			if err != nil {
				if errors.Is(err, ErrExpiredToken) {
					unauthorized(c, "Token has expired")
				} else {
					unauthorized(c, "Invalid token")
				}
				return
			}
			userID = claims.UserID
		} else {
			authToken, err := ValidateOpaqueToken(ctx, db, token)
			if err != nil {
				unauthorized(c, "Invalid token")
				return
			}
			userID = authToken.UserID
			c.Set(ContextKeyTokenID, authToken.ID)

			// Fire and forget
			go UpdateLastUsed(db, authToken.ID)
		}

		var user models.User
		if err := db.WithContext(ctx).First(&user, userID).Error; err != nil {
			unauthorized(c, "User not found")
			return
		}
		if !user.IsActive {
			unauthorized(c, "User inactive or deleted")
			return
		}

		c.Set(ContextKeyUserID, user.ID)
		c.Set(ContextKeyEmail, user.Email)
		c.Set(ContextKeyIsStaff, user.IsStaff)
		observability.WithUserID(c, user.ID)

		c.Next()
	}
}

// RequireStaff middleware rejects users without the staff flag
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		isStaff, exists := c.Get(ContextKeyIsStaff)
		if !exists {
			unauthorized(c, "Authentication required")
			return
		}

		if staff, _ := isStaff.(bool); !staff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Staff access required"})
			return
		}

		c.Next()
	}
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	return userID.(uint), true
}

// GetTokenID returns the ID of the opaque token used for the request
func GetTokenID(c *gin.Context) (uint, bool) {
	tokenID, exists := c.Get(ContextKeyTokenID)
	if !exists {
		return 0, false
	}
	return tokenID.(uint), true
}
