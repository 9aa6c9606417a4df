package posts

import (
	"time"

	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/tags"
)

// URLResolver turns a stored media path into a public URL
type URLResolver interface {
	URL(rel string) string
}

// PostResponse is the list form of a post. Tags are referenced by ID.
type PostResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Tags      []uint    `json:"tags"`
	Content   string    `json:"content"`
	Link      string    `json:"link"`
	Image     *string   `json:"image"`
	CreatedOn time.Time `json:"created_on"`
}

// CommentSummary is a comment nested in a post detail
type CommentSummary struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user"`
	Content   string    `json:"content"`
	CreatedOn time.Time `json:"created_on"`
}

// PostDetailResponse nests full tag objects and the post's comments
type PostDetailResponse struct {
	ID        uint               `json:"id"`
	Title     string             `json:"title"`
	Tags      []tags.TagResponse `json:"tags"`
	Content   string             `json:"content"`
	Link      string             `json:"link"`
	Image     *string            `json:"image"`
	Comments  []CommentSummary   `json:"comments"`
	CreatedOn time.Time          `json:"created_on"`
}

// ImageResponse is returned by the upload endpoint
type ImageResponse struct {
	ID    uint    `json:"id"`
	Image *string `json:"image"`
}

func imageURL(urls URLResolver, rel string) *string {
	if rel == "" || urls == nil {
		return nil
	}
	u := urls.URL(rel)
	return &u
}

// ToResponse renders p in list form. p.Tags must be loaded.
func ToResponse(p models.Post, urls URLResolver) PostResponse {
	tagIDs := make([]uint, len(p.Tags))
	for i, t := range p.Tags {
		tagIDs[i] = t.ID
	}
	return PostResponse{
		ID:        p.ID,
		Title:     p.Title,
		Tags:      tagIDs,
		Content:   p.Content,
		Link:      p.Link,
		Image:     imageURL(urls, p.Image),
		CreatedOn: p.CreatedOn,
	}
}

// ToDetailResponse renders p with nested tags and comments
func ToDetailResponse(p models.Post, urls URLResolver) PostDetailResponse {
	tagList := make([]tags.TagResponse, len(p.Tags))
	for i, t := range p.Tags {
		tagList[i] = tags.ToResponse(t)
	}
	comments := make([]CommentSummary, len(p.Comments))
	for i, cm := range p.Comments {
		comments[i] = CommentSummary{
			ID:        cm.ID,
			UserID:    cm.UserID,
			Content:   cm.Content,
			CreatedOn: cm.CreatedOn,
		}
	}
	return PostDetailResponse{
		ID:        p.ID,
		Title:     p.Title,
		Tags:      tagList,
		Content:   p.Content,
		Link:      p.Link,
		Image:     imageURL(urls, p.Image),
		Comments:  comments,
		CreatedOn: p.CreatedOn,
	}
}
