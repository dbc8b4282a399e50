package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/tripshare/backend/internal/config"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store/memory"
)

const testSecret = "test-secret"

type testServer struct {
	t      *testing.T
	store  *memory.Store
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := memory.New()
	srv := New(&config.Config{Port: "0", Backend: config.BackendMemory, JWTSecret: testSecret}, Deps{Store: st})
	t.Cleanup(func() { _ = srv.Close() })
	return &testServer{t: t, store: st, router: srv.RegisterRoutes()}
}

func (ts *testServer) user(name string) *models.User {
	ts.t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", FullName: strings.ToUpper(name[:1]) + name[1:]}
	require.NoError(ts.t, ts.store.CreateUser(context.Background(), u))
	return u
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// do sends body encoded as JSON.
func (ts *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(ts.t, userID))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func draft(title string, vis models.Visibility) gin.H {
	return gin.H{
		"title":       title,
		"description": "Rice terraces and temples",
		"location":    gin.H{"name": "Ubud", "country": "Indonesia"},
		"tripDate":    gin.H{"startDate": "2024-05-01T00:00:00Z", "endDate": "2024-05-10T00:00:00Z"},
		"tags":        []string{" Bali ", "rice"},
		"visibility":  vis,
		"tripType":    "solo",
		"budget":      "budget",
		"rating":      5,
	}
}

func (ts *testServer) createPost(author, title string, vis models.Visibility) string {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/api/posts", author, draft(title, vis))
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	post := decode(ts.t, w)["post"].(map[string]any)
	return post["id"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "up", decode(t, w)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(http.MethodGet, "/api/posts", "", nil)

	w := ts.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",route="/api/posts",status="200"}`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/posts", "/api/posts/p1/like", "/api/posts/p1/comment", "/api/posts/p1/share", "/api/users/u1/follow"} {
		w := ts.do(http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Authentication required", decode(t, w)["error"], path)
	}
}

func TestCreatePost(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")

	w := ts.do(http.MethodPost, "/api/posts", alice.ID, draft("Bali Adventure", models.VisibilityPublic))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Post created successfully", body["message"])
	post := body["post"].(map[string]any)
	assert.Equal(t, []any{"bali", "rice"}, post["tags"])
	assert.Equal(t, "alice", post["author"].(map[string]any)["username"])

	u, err := ts.store.GetUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.TotalTrips)

	bad := draft("", models.VisibilityPublic)
	w = ts.do(http.MethodPost, "/api/posts", alice.ID, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title is required", decode(t, w)["error"])
}

func TestCreatePostRejectsHalfCoordinates(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	body := draft("Ubud", models.VisibilityPublic)
	body["location"] = gin.H{"name": "Ubud", "coordinates": gin.H{"latitude": -8.5}}

	w := ts.do(http.MethodPost, "/api/posts", alice.ID, body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "latitude and longitude must be provided together", decode(t, w)["error"])
}

func TestCreatePostMultipart(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")

	form := func(withFile bool) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fields := map[string]string{
			"title":        "Lisbon weekend",
			"description":  "Trams and pastries",
			"locationName": "Lisbon",
			"latitude":     "38.72",
			"longitude":    "-9.14",
			"startDate":    "2024-06-01",
			"endDate":      "2024-06-03",
			"tags":         "Food, trams ,food",
			"tripType":     "couple",
			"rating":       "4",
		}
		for k, v := range fields {
			require.NoError(t, mw.WriteField(k, v))
		}
		if withFile {
			fw, err := mw.CreateFormFile("media", "tram.png")
			require.NoError(t, err)
			_, err = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
			require.NoError(t, err)
		}
		require.NoError(t, mw.Close())
		return &buf, mw.FormDataContentType()
	}

	send := func(withFile bool) *httptest.ResponseRecorder {
		body, contentType := form(withFile)
		req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+token(t, alice.ID))
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		return w
	}

	w := send(false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode(t, w)["post"].(map[string]any)
	assert.Equal(t, []any{"food", "trams"}, post["tags"])
	assert.Equal(t, "mid-range", post["budget"])
	assert.Equal(t, "public", post["visibility"])
	loc := post["location"].(map[string]any)
	assert.Equal(t, 38.72, loc["coordinates"].(map[string]any)["latitude"])

	w = send(true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Media uploads are not configured", decode(t, w)["error"])
}

func TestPrivatePostAccess(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	id := ts.createPost(alice.ID, "Secret cove", models.VisibilityPrivate)

	w := ts.do(http.MethodGet, "/api/posts/"+id, bob.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Access denied", decode(t, w)["error"])

	w = ts.do(http.MethodGet, "/api/posts/"+id, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/posts/"+id, alice.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodPost, "/api/posts/"+id+"/like", bob.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.do(http.MethodGet, "/api/posts/missing", alice.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Post not found", decode(t, w)["error"])
}

func TestFollowersOnlyPost(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	id := ts.createPost(alice.ID, "Friends only", models.VisibilityFollowers)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/posts/"+id, bob.ID, nil).Code)

	w := ts.do(http.MethodPost, "/api/users/"+alice.ID+"/follow", bob.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "User followed", body["message"])
	assert.Equal(t, true, body["isFollowing"])
	assert.EqualValues(t, 1, body["followersCount"])

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/posts/"+id, bob.ID, nil).Code)
}

func TestLikeToggleAndShareOnce(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	id := ts.createPost(alice.ID, "Bali", models.VisibilityPublic)

	w := ts.do(http.MethodPost, "/api/posts/"+id+"/like", bob.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"message": "Post liked", "likeCount": 1.0, "isLiked": true}, decode(t, w))

	w = ts.do(http.MethodPost, "/api/posts/"+id+"/like", bob.ID, nil)
	assert.Equal(t, map[string]any{"message": "Post unliked", "likeCount": 0.0, "isLiked": false}, decode(t, w))

	for i := 0; i < 3; i++ {
		w = ts.do(http.MethodPost, "/api/posts/"+id+"/share", bob.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode(t, w)["shareCount"])
	}
}

func TestComment(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	id := ts.createPost(alice.ID, "Bali", models.VisibilityPublic)
	path := "/api/posts/" + id + "/comment"

	tests := []struct {
		name       string
		text       string
		wantStatus int
		wantError  string
	}{
		{"too long", strings.Repeat("a", 501), http.StatusBadRequest, "Comment cannot exceed 500 characters"},
		{"blank", "   ", http.StatusBadRequest, "Comment text is required"},
		{"ok", "Great trip!", http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, path, bob.ID, gin.H{"text": tt.text})
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode(t, w)["error"])
			}
		})
	}

	w := ts.do(http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	comments := decode(t, w)["post"].(map[string]any)["comments"].([]any)
	require.Len(t, comments, 1)
	c := comments[0].(map[string]any)
	assert.Equal(t, "Great trip!", c["text"])
	assert.Equal(t, "bob", c["user"].(map[string]any)["username"])
}

func TestSelfFollowForbidden(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")

	w := ts.do(http.MethodPost, "/api/users/"+alice.ID+"/follow", alice.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You cannot follow yourself", decode(t, w)["error"])

	w = ts.do(http.MethodGet, "/api/users/"+alice.ID+"/followers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["followers"])
}

func TestAnonymousFeed(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	pub := ts.createPost(alice.ID, "Public", models.VisibilityPublic)
	ts.createPost(alice.ID, "Followers", models.VisibilityFollowers)
	ts.createPost(alice.ID, "Private", models.VisibilityPrivate)

	w := ts.do(http.MethodGet, "/api/posts?page=1&limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, pub, posts[0].(map[string]any)["id"])
	assert.Equal(t, map[string]any{
		"currentPage": 1.0,
		"totalPages":  1.0,
		"totalPosts":  1.0,
		"hasNext":     false,
		"hasPrev":     false,
	}, body["pagination"])

	w = ts.do(http.MethodGet, "/api/posts", alice.ID, nil)
	assert.Len(t, decode(t, w)["posts"], 3)
}

func TestHugePageNumber(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	ts.createPost(alice.ID, "Bali Adventure", models.VisibilityPublic)

	for _, path := range []string{
		"/api/posts?page=9223372036854775807",
		"/api/posts/search/bali?page=9223372036854775807&limit=100",
		"/api/users/search/ali?page=9223372036854775807",
		"/api/users/" + alice.ID + "/posts?page=9223372036854775807",
	} {
		t.Run(path, func(t *testing.T) {
			w := ts.do(http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusOK, w.Code)
			pagination := decode(t, w)["pagination"].(map[string]any)
			assert.Equal(t, 1.0, pagination["totalPages"])
			assert.Equal(t, false, pagination["hasNext"])
			assert.Equal(t, true, pagination["hasPrev"])
		})
	}
}

func TestDeletePost(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	id := ts.createPost(alice.ID, "Gone soon", models.VisibilityPublic)

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodDelete, "/api/posts/"+id, bob.ID, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodDelete, "/api/posts/"+id, alice.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/posts/"+id, alice.ID, nil).Code)
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	ts.user("alicia")
	ts.createPost(alice.ID, "Bali Adventure", models.VisibilityPublic)
	ts.createPost(alice.ID, "Bali in secret", models.VisibilityPrivate)

	w := ts.do(http.MethodGet, "/api/posts/search/bali", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "bali", body["query"])
	assert.Len(t, body["posts"], 1)
	assert.EqualValues(t, 1, body["pagination"].(map[string]any)["totalPosts"])

	w = ts.do(http.MethodGet, "/api/posts/search/%20", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/api/users/search/ALI", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["users"], 2)
	assert.EqualValues(t, 2, body["pagination"].(map[string]any)["totalUsers"])
}

func TestUserProfile(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.user("alice")
	bob := ts.user("bob")
	ts.createPost(alice.ID, "Public", models.VisibilityPublic)
	ts.createPost(alice.ID, "Followers", models.VisibilityFollowers)

	w := ts.do(http.MethodGet, "/api/users/"+alice.ID, bob.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.EqualValues(t, 2, user["totalTrips"])
	assert.Equal(t, false, user["isFollowing"])
	assert.Len(t, body["posts"], 1)

	w = ts.do(http.MethodGet, "/api/users/"+alice.ID+"/posts", alice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["posts"], 2)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/users/nobody", "", nil).Code)
}
