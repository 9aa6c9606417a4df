// Package seed fills a database with demo users, tags, posts and comments.
// It is intended for development only.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/mikepea/inkwell/pkg/inkwell/apierr"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/observability"
	"gorm.io/gorm"
)

// DefaultPassword is the password given to every seeded account
const DefaultPassword = "password123"

// Options controls how much data is generated
type Options struct {
	NumUsers        int
	TagsPerUser     int
	PostsPerUser    int
	CommentsPerPost int
	// MaxDays spreads created_on over the last MaxDays days
	MaxDays  int
	Password string
	// Seed makes generation reproducible when non-zero
	Seed int64
}

// DefaultOptions returns a small but realistic data set
func DefaultOptions() Options {
	return Options{
		NumUsers:        5,
		TagsPerUser:     4,
		PostsPerUser:    6,
		CommentsPerPost: 3,
		MaxDays:         90,
		Password:        DefaultPassword,
	}
}

// Result reports what was created
type Result struct {
	Users    int
	Tags     int
	Posts    int
	Comments int
}

// Factory builds and persists demo entities
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
	rng   *rand.Rand
	// seq numbers generated emails, starting past the highest existing user id
	seq int64
}

// NewFactory creates a Factory bound to db
func NewFactory(db *gorm.DB, opts Options) *Factory {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	//nolint:gosec // Weak random number generator is fine for seeding
	rng := rand.New(rand.NewSource(seed))
	return &Factory{
		db:    db,
		opts:  opts,
		faker: gofakeit.New(seed),
		rng:   rng,
	}
}

// createdOn returns a random time within the configured window
func (f *Factory) createdOn() time.Time {
	back := time.Duration(f.rng.Int63n(int64(f.opts.MaxDays) * int64(24*time.Hour)))
	return time.Now().Add(-back)
}

// nextSeq returns a number not yet used in a generated email by this
// factory or, going by user ids, by an earlier run against the same database
func (f *Factory) nextSeq(ctx context.Context) (int64, error) {
	if f.seq == 0 {
		var maxID int64
		err := f.db.WithContext(ctx).Model(&models.User{}).
			Select("COALESCE(MAX(id), 0)").
			Scan(&maxID).Error
		if err != nil {
			return 0, err
		}
		f.seq = maxID
	}
	f.seq++
	return f.seq, nil
}

// CreateUser stores a user with a generated name and unique email
func (f *Factory) CreateUser(ctx context.Context) (*models.User, error) {
	first, last := f.faker.FirstName(), f.faker.LastName()
	local := strings.ToLower(strings.ReplaceAll(first+"."+last, " ", ""))

	for attempt := 0; attempt < 5; attempt++ {
		seq, err := f.nextSeq(ctx)
		if err != nil {
			return nil, err
		}

		user, err := auth.CreateUser(ctx, f.db, auth.NewUser{
			Email:    fmt.Sprintf("%s.%d@example.com", local, seq),
			Name:     first + " " + last,
			Password: f.opts.Password,
		})
		if err == nil {
			return user, nil
		}
		var appErr *apierr.Error
		if errors.As(err, &appErr) && appErr.Fields["email"] != nil {
			continue
		}
		return nil, err
	}
	return nil, errors.New("could not generate a unique email")
}

// CreateTag stores a tag owned by user
func (f *Factory) CreateTag(ctx context.Context, user *models.User) (*models.Tag, error) {
	tag := &models.Tag{Name: f.faker.HipsterWord(), UserID: user.ID}
	if err := f.db.WithContext(ctx).Create(tag).Error; err != nil {
		return nil, err
	}
	return tag, nil
}

// CreatePost stores a post owned by user carrying a random subset of tags
func (f *Factory) CreatePost(ctx context.Context, user *models.User, tags []models.Tag) (*models.Post, error) {
	post := &models.Post{
		UserID:    user.ID,
		Title:     strings.TrimSuffix(f.faker.Sentence(5), "."),
		Content:   f.faker.Paragraph(2, 4, 10, "\n\n"),
		CreatedOn: f.createdOn(),
	}
	if f.rng.Intn(2) == 0 {
		post.Link = f.faker.URL()
	}
	for _, t := range tags {
		if f.rng.Intn(2) == 0 {
			post.Tags = append(post.Tags, t)
		}
	}

	if err := f.db.WithContext(ctx).Omit("Tags.*").Create(post).Error; err != nil {
		return nil, err
	}
	return post, nil
}

// CreateComment stores a comment by user on post
func (f *Factory) CreateComment(ctx context.Context, user *models.User, post *models.Post) (*models.Comment, error) {
	comment := &models.Comment{
		UserID:    user.ID,
		PostID:    post.ID,
		Content:   f.faker.Sentence(12),
		CreatedOn: post.CreatedOn.Add(time.Duration(f.rng.Intn(72)+1) * time.Hour),
	}
	if err := f.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, err
	}
	return comment, nil
}

// Seed populates the database. Comment authors are drawn from every seeded user.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Result, error) {
	logger := observability.Logger
	logger.InfoContext(ctx, "seeding database", "users", opts.NumUsers, "posts_per_user", opts.PostsPerUser)

	f := NewFactory(db, opts)
	result := &Result{}

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser(ctx)
		if err != nil {
			return result, fmt.Errorf("failed to create user: %w", err)
		}
		users = append(users, user)
		result.Users++
	}

	var posts []*models.Post
	for _, user := range users {
		tags := make([]models.Tag, 0, opts.TagsPerUser)
		for i := 0; i < opts.TagsPerUser; i++ {
			tag, err := f.CreateTag(ctx, user)
			if err != nil {
				return result, fmt.Errorf("failed to create tag: %w", err)
			}
			tags = append(tags, *tag)
			result.Tags++
		}

		for i := 0; i < opts.PostsPerUser; i++ {
			post, err := f.CreatePost(ctx, user, tags)
			if err != nil {
				return result, fmt.Errorf("failed to create post: %w", err)
			}
			posts = append(posts, post)
			result.Posts++
		}
	}

	if len(users) > 0 {
		for _, post := range posts {
			for i := 0; i < opts.CommentsPerPost; i++ {
				author := users[f.rng.Intn(len(users))]
				if _, err := f.CreateComment(ctx, author, post); err != nil {
					return result, fmt.Errorf("failed to create comment: %w", err)
				}
				result.Comments++
			}
		}
	}

	logger.InfoContext(ctx, "seeding complete",
		"users", result.Users,
		"tags", result.Tags,
		"posts", result.Posts,
		"comments", result.Comments,
	)
	return result, nil
}
