package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/inkwell/pkg/inkwell/auth"
	"github.com/mikepea/inkwell/pkg/inkwell/media"
	"github.com/mikepea/inkwell/pkg/inkwell/models"
	"github.com/mikepea/inkwell/pkg/inkwell/testutil"
	"gorm.io/gorm"
)

func setupTestRouter(t *testing.T, db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	h := NewHandler(db, media.NewStore(t.TempDir(), "/media", 1))
	admin := r.Group("/api/admin")
	admin.Use(auth.TokenAuthMiddleware(db), auth.RequireStaff())
	h.RegisterRoutes(admin)

	return r
}

func createTestUser(t *testing.T, db *gorm.DB, email, name string, staff bool) (*models.User, string) {
	t.Helper()
	user, err := auth.CreateUser(context.Background(), db, auth.NewUser{
		Email:    email,
		Name:     name,
		Password: "password123",
		IsStaff:  staff,
	})
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	token, err := auth.CreateOpaqueToken(context.Background(), db, user.ID)
	if err != nil {
		t.Fatalf("Failed to create token: %v", err)
	}
	return user, token
}

func createTestPost(t *testing.T, db *gorm.DB, userID uint, title string, tags ...models.Tag) *models.Post {
	t.Helper()
	post := &models.Post{UserID: userID, Title: title, Content: "content", Tags: tags}
	if err := db.Omit("Tags.*").Create(post).Error; err != nil {
		t.Fatalf("Failed to create test post: %v", err)
	}
	return post
}

func createTestComment(t *testing.T, db *gorm.DB, userID, postID uint) *models.Comment {
	t.Helper()
	comment := &models.Comment{UserID: userID, PostID: postID, Content: "comment"}
	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create test comment: %v", err)
	}
	return comment
}

func doRequest(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminRequiresStaff(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)
	_, token := createTestUser(t, db, "user@test.com", "User", false)

	w := doRequest(r, "GET", "/api/admin/users", token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	w = doRequest(r, "GET", "/api/admin/users", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestListUsers(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Zed Admin", true)
	createTestUser(t, db, "user1@test.com", "Alice", false)
	createTestUser(t, db, "user2@test.com", "Bob", false)

	w := doRequest(r, "GET", "/api/admin/users", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var users []UserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("Expected 3 users, got %d", len(users))
	}
	if users[0].Name != "Alice" || users[1].Name != "Bob" || users[2].Name != "Zed Admin" {
		t.Errorf("Expected users ordered by name, got %+v", users)
	}
}

func TestListUsersCounts(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	writer, _ := createTestUser(t, db, "writer@test.com", "Writer", false)
	createTestUser(t, db, "idle@test.com", "Idle", false)
	first := createTestPost(t, db, writer.ID, "One")
	createTestPost(t, db, writer.ID, "Two")
	createTestComment(t, db, writer.ID, first.ID)
	createTestComment(t, db, admin.ID, first.ID)
	createTestComment(t, db, admin.ID, first.ID)

	w := doRequest(r, "GET", "/api/admin/users", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var users []UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &users)
	got := map[string][2]int64{}
	for _, u := range users {
		got[u.Email] = [2]int64{u.PostCount, u.CommentCount}
	}
	want := map[string][2]int64{
		"admin@test.com":  {0, 2},
		"writer@test.com": {2, 1},
		"idle@test.com":   {0, 0},
	}
	for email, counts := range want {
		if got[email] != counts {
			t.Errorf("%s: expected posts/comments %v, got %v", email, counts, got[email])
		}
	}
}

func TestUserCountFailure(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	if err := db.Migrator().DropTable(&models.Comment{}); err != nil {
		t.Fatalf("Failed to drop comments: %v", err)
	}

	paths := []string{"/api/admin/users", fmt.Sprintf("/api/admin/users/%d", user.ID), "/api/admin/stats"}
	for _, path := range paths {
		w := doRequest(r, "GET", path, token, nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected status 500, got %d", path, w.Code)
		}
	}
}

func TestListUsersWithSearch(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin User", true)
	createTestUser(t, db, "john@test.com", "John Doe", false)
	createTestUser(t, db, "jane@test.com", "Jane Doe", false)

	w := doRequest(r, "GET", "/api/admin/users?q=doe", token, nil)
	var users []UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &users)
	if len(users) != 2 {
		t.Errorf("Expected 2 users matching 'doe', got %d", len(users))
	}

	w = doRequest(r, "GET", "/api/admin/users?q=JOHN@", token, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &users)
	if len(users) != 1 || users[0].Email != "john@test.com" {
		t.Errorf("Expected john by email, got %+v", users)
	}
}

func TestGetUser(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	post := createTestPost(t, db, user.ID, "Hello")
	createTestComment(t, db, user.ID, post.ID)

	w := doRequest(r, "GET", fmt.Sprintf("/api/admin/users/%d", user.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Email != "user@test.com" || resp.PostCount != 1 || resp.CommentCount != 1 {
		t.Errorf("Unexpected user response %+v", resp)
	}

	w = doRequest(r, "GET", "/api/admin/users/9999", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateUser(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, userToken := createTestUser(t, db, "user@test.com", "User", false)

	w := doRequest(r, "PATCH", fmt.Sprintf("/api/admin/users/%d", user.ID), token, map[string]interface{}{
		"name":         "Renamed",
		"is_superuser": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Name != "Renamed" || !resp.IsSuperuser || !resp.IsStaff {
		t.Errorf("Unexpected user after update %+v", resp)
	}

	// Deactivated users lose API access
	w = doRequest(r, "PATCH", fmt.Sprintf("/api/admin/users/%d", user.ID), token, map[string]interface{}{"is_active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	w = doRequest(r, "GET", "/api/admin/stats", userToken, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected deactivated user to get 401, got %d", w.Code)
	}
}

func TestUpdateUserStaffAndSuperuser(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	path := fmt.Sprintf("/api/admin/users/%d", user.ID)

	w := doRequest(r, "PATCH", path, token, map[string]interface{}{"is_superuser": true})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	// Contradictory flags are rejected and change nothing
	w = doRequest(r, "PATCH", path, token, map[string]interface{}{"is_staff": false, "is_superuser": true})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	// Dropping staff drops superuser with it
	w = doRequest(r, "PATCH", path, token, map[string]interface{}{"is_staff": false})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp UserResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.IsStaff || resp.IsSuperuser {
		t.Errorf("Expected neither staff nor superuser, got %+v", resp)
	}

	var reloaded models.User
	db.First(&reloaded, user.ID)
	if reloaded.IsStaff || reloaded.IsSuperuser {
		t.Errorf("Stored user still privileged: %+v", reloaded)
	}
}

func TestCannotDemoteSelf(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)

	for _, body := range []map[string]interface{}{{"is_staff": false}, {"is_active": false}} {
		w := doRequest(r, "PATCH", fmt.Sprintf("/api/admin/users/%d", admin.ID), token, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: expected status 400, got %d", body, w.Code)
		}
	}

	var reloaded models.User
	db.First(&reloaded, admin.ID)
	if !reloaded.IsStaff || !reloaded.IsActive {
		t.Error("Admin should still be active staff")
	}
}

func TestDeleteUser(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)

	tag := models.Tag{Name: "doomed", UserID: user.ID}
	db.Create(&tag)
	post := createTestPost(t, db, user.ID, "Doomed", tag)
	createTestComment(t, db, user.ID, post.ID)
	createTestComment(t, db, admin.ID, post.ID)
	adminPost := createTestPost(t, db, admin.ID, "Survivor")
	createTestComment(t, db, user.ID, adminPost.ID)

	w := doRequest(r, "DELETE", fmt.Sprintf("/api/admin/users/%d", user.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	checks := []struct {
		name  string
		model interface{}
		where string
		args  []interface{}
	}{
		{"user", &models.User{}, "id = ?", []interface{}{user.ID}},
		{"posts", &models.Post{}, "user_id = ?", []interface{}{user.ID}},
		{"tags", &models.Tag{}, "user_id = ?", []interface{}{user.ID}},
		{"tokens", &models.AuthToken{}, "user_id = ?", []interface{}{user.ID}},
		{"comments", &models.Comment{}, "user_id = ? OR post_id = ?", []interface{}{user.ID, post.ID}},
	}
	for _, c := range checks {
		var count int64
		db.Model(c.model).Where(c.where, c.args...).Count(&count)
		if count != 0 {
			t.Errorf("Expected %s to be deleted, found %d", c.name, count)
		}
	}

	var links int64
	db.Table("post_tags").Where("post_id = ?", post.ID).Count(&links)
	if links != 0 {
		t.Errorf("Expected tag links to be deleted, found %d", links)
	}

	var survivors int64
	db.Model(&models.Post{}).Where("id = ?", adminPost.ID).Count(&survivors)
	if survivors != 1 {
		t.Error("Other users' posts must survive")
	}
}

func TestCannotDeleteSelf(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)

	w := doRequest(r, "DELETE", fmt.Sprintf("/api/admin/users/%d", admin.ID), token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListPosts(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	first := createTestPost(t, db, user.ID, "First")
	second := createTestPost(t, db, admin.ID, "Second")
	comment := createTestComment(t, db, admin.ID, first.ID)

	w := doRequest(r, "GET", "/api/admin/posts", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var list []PostResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("Expected all posts newest first, got %+v", list)
	}
	if len(list[1].Comments) != 1 || list[1].Comments[0].ID != comment.ID {
		t.Errorf("Expected inline comment, got %+v", list[1].Comments)
	}
	if list[1].UserID != user.ID {
		t.Errorf("Expected author %d, got %d", user.ID, list[1].UserID)
	}

	w = doRequest(r, "GET", fmt.Sprintf("/api/admin/posts?user=%d", user.ID), token, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0].ID != first.ID {
		t.Errorf("Expected only the user's post, got %+v", list)
	}
}

func TestDeletePostAndComment(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	_, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	post := createTestPost(t, db, user.ID, "Spam")
	other := createTestPost(t, db, user.ID, "Fine")
	createTestComment(t, db, user.ID, post.ID)
	comment := createTestComment(t, db, user.ID, other.ID)

	w := doRequest(r, "DELETE", fmt.Sprintf("/api/admin/posts/%d", post.ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}
	var count int64
	db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&count)
	if count != 0 {
		t.Error("Comments of the deleted post should be removed")
	}

	w = doRequest(r, "DELETE", fmt.Sprintf("/api/admin/comments/%d", comment.ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	w = doRequest(r, "DELETE", fmt.Sprintf("/api/admin/comments/%d", comment.ID), token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a deleted comment, got %d", w.Code)
	}
	w = doRequest(r, "DELETE", "/api/admin/posts/9999", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	db := testutil.NewDB(t)
	r := setupTestRouter(t, db)

	admin, token := createTestUser(t, db, "admin@test.com", "Admin", true)
	user, _ := createTestUser(t, db, "user@test.com", "User", false)
	post := createTestPost(t, db, user.ID, "One")
	createTestPost(t, db, admin.ID, "Two")
	createTestComment(t, db, admin.ID, post.ID)
	db.Model(post).Update("image", "uploads/post/x.png")

	w := doRequest(r, "GET", "/api/admin/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var stats StatsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.TotalUsers != 2 || stats.StaffUsers != 1 || stats.ActiveUsers != 2 {
		t.Errorf("Unexpected user stats %+v", stats)
	}
	if stats.TotalPosts != 2 || stats.PostsWithImages != 1 || stats.TotalComments != 1 {
		t.Errorf("Unexpected content stats %+v", stats)
	}
	if stats.ActiveTokens != 2 {
		t.Errorf("Expected 2 tokens, got %d", stats.ActiveTokens)
	}
}
