package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned when an email/password pair does not
// identify an active user.
var ErrInvalidCredentials = errors.New("unable to authenticate with provided credentials")

// NewUser describes an account to create
type NewUser struct {
	Email       string
	Name        string
	Password    string
	IsStaff     bool
	IsSuperuser bool
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser validates and stores a new user with a hashed password.
// Validation failures are returned as *apierr.Error.
func CreateUser(ctx context.Context, db *gorm.DB, in NewUser) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	fields := apierr.FieldErrors{}
	if email == "" {
		fields.Add("email", "This field is required.")
	}
	if name == "" {
		fields.Add("name", "This field is required.")
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		fields.Add("password", "Ensure this field has at least 5 characters.")
	}
	if len(fields) > 0 {
		return nil, apierr.Validation(fields)
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apierr.Internal("Failed to create user", err)
	}
	if count > 0 {
		return nil, apierr.Field("email", "user with this email already exists.")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apierr.Internal("Failed to process password", err)
	}

	user := models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      in.IsStaff || in.IsSuperuser,
		IsSuperuser:  in.IsSuperuser,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		// A concurrent signup can pass the count above
		if isDuplicateKey(err) {
			return nil, apierr.Field("email", "user with this email already exists.")
		}
		return nil, apierr.Internal("Failed to create user", err)
	}
	return &user, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// CreateSuperuser creates an active staff account with every permission
func CreateSuperuser(ctx context.Context, db *gorm.DB, email, name, password string) (*models.User, error) {
	return CreateUser(ctx, db, NewUser{
		Email:       email,
		Name:        name,
		Password:    password,
		IsStaff:     true,
		IsSuperuser: true,
	})
}

// Authenticate checks credentials and records the login time.
func Authenticate(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(password, user.PasswordHash) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		return nil, err
	}
	user.LastLogin = &now
	return &user, nil
}
