package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/mikepea/inkwell/pkg/inkwell/config"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"gorm.io/gorm"
)

const (
	// KeyLength is the length of a generated token in bytes (32 bytes = 64 hex chars)
	KeyLength = 32
	// KeyPrefixLength is the number of characters kept in clear for identification
	KeyPrefixLength = 8
)

// generateKey returns a new random opaque token
func generateKey() (string, error) {
	bytes := make([]byte, KeyLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashKey creates a SHA-256 hash of an opaque token
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CreateOpaqueToken stores a new token for userID and returns the raw key.
// The raw key is never persisted.
func CreateOpaqueToken(ctx context.Context, db *gorm.DB, userID uint) (string, error) {
	key, err := generateKey()
	if err != nil {
		return "", err
	}

	token := models.AuthToken{
		UserID:    userID,
		KeyHash:   HashKey(key),
		KeyPrefix: key[:KeyPrefixLength],
	}
	if err := db.WithContext(ctx).Create(&token).Error; err != nil {
		return "", err
	}
	return key, nil
}

// IssueToken returns a credential for user of the requested kind
func IssueToken(ctx context.Context, db *gorm.DB, tokenType string, user *models.User) (string, error) {
	if tokenType == config.TokenTypeJWT {
		return GenerateToken(user.ID, user.Email, user.IsStaff)
	}
	return CreateOpaqueToken(ctx, db, user.ID)
}

// ValidateOpaqueToken looks up a token by the hash of key
func ValidateOpaqueToken(ctx context.Context, db *gorm.DB, key string) (*models.AuthToken, error) {
	var token models.AuthToken
	if err := db.WithContext(ctx).Where("key_hash = ?", HashKey(key)).First(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// RevokeToken deletes the token with tokenID owned by userID
func RevokeToken(ctx context.Context, db *gorm.DB, userID, tokenID uint) error {
	return db.WithContext(ctx).Where("id = ? AND user_id = ?", tokenID, userID).Delete(&models.AuthToken{}).Error
}

// UpdateLastUsed updates the last_used_at timestamp for a token
func UpdateLastUsed(db *gorm.DB, tokenID uint) {
	now := time.Now()
	if err := db.Model(&models.AuthToken{}).Where("id = ?", tokenID).Update("last_used_at", now).Error; err != nil {
		observability.Logger.Warn("failed to update token last_used_at", "token_id", tokenID, "error", err)
	}
}
