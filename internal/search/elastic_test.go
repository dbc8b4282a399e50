package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store/memory"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

func TestBuildSearchQueryAnonymous(t *testing.T) {
	q := buildSearchQuery(" Bali ", visibility.Anonymous(), models.NewPage(3, 5))

	raw, err := json.Marshal(q)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.EqualValues(t, 10, got["from"])
	assert.EqualValues(t, 5, got["size"])

	boolQ := got["query"].(map[string]any)["bool"].(map[string]any)
	filters := boolQ["filter"].([]any)
	require.Len(t, filters, 2)
	assert.Equal(t, map[string]any{"term": map[string]any{"is_active": true}}, filters[0])
	assert.Equal(t, map[string]any{"term": map[string]any{"visibility": "public"}}, filters[1])

	should := boolQ["should"].([]any)
	require.Len(t, should, len(matchFields))
	first := should[0].(map[string]any)["wildcard"].(map[string]any)["title"].(map[string]any)
	assert.Equal(t, "*Bali*", first["value"])
	assert.Equal(t, true, first["case_insensitive"])
}

func TestBuildSearchQueryPastResultWindow(t *testing.T) {
	tests := []struct {
		page       models.Page
		from, size int
	}{
		{models.NewPage(100, 100), 9900, 100},
		{models.NewPage(101, 100), 0, 0},
		{models.NewPage(math.MaxInt, 10), 0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page=%d", tt.page.Number), func(t *testing.T) {
			q := buildSearchQuery("bali", visibility.Anonymous(), tt.page)
			assert.Equal(t, tt.from, q["from"])
			assert.Equal(t, tt.size, q["size"])
			assert.Equal(t, true, q["track_total_hits"])
		})
	}
}

func TestVisibilityFilterAuthenticated(t *testing.T) {
	f := visibilityFilter(visibility.NewViewer("me", []string{"b", "a"}))
	scopes := f["bool"].(map[string]any)["should"].([]map[string]any)
	require.Len(t, scopes, 3)
	assert.Equal(t, map[string]any{"term": map[string]any{"author_id": "me"}}, scopes[1])

	followers := scopes[2]["bool"].(map[string]any)["filter"].([]map[string]any)
	assert.Equal(t, map[string]any{"terms": map[string]any{"author_id": []string{"a", "b"}}}, followers[1])

	noFollows := visibilityFilter(visibility.NewViewer("me", nil))
	assert.Len(t, noFollows["bool"].(map[string]any)["should"].([]map[string]any), 2)
}

func TestEscapeWildcard(t *testing.T) {
	tests := []struct{ in, want string }{
		{"bali", "bali"},
		{"50% off?", `50% off\?`},
		{"a*b", `a\*b`},
		{`c:\dir`, `c:\\dir`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeWildcard(tt.in))
	}
}

type bodyRecorder struct {
	mu   sync.Mutex
	last string
}

func (b *bodyRecorder) set(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = s
}

func (b *bodyRecorder) get() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// fakeElastic answers search requests with the given hit ids and records the
// last request body.
func fakeElastic(t *testing.T, total int, ids ...string) (*httptest.Server, *bodyRecorder) {
	t.Helper()
	rec := &bodyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.set(string(body))
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/_search") {
			_, _ = w.Write([]byte(`{"result":"updated"}`))
			return
		}
		hits := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			hits = append(hits, map[string]any{"_id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": map[string]any{
				"total": map[string]any{"value": total, "relation": "eq"},
				"hits":  hits,
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestElasticSearcherHydratesFromStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	author := &models.User{Username: "alice", Email: "a@example.com"}
	require.NoError(t, s.CreateUser(ctx, author))
	kept := &models.Post{AuthorID: author.ID, Title: "Bali Adventure", Visibility: models.VisibilityPublic}
	gone := &models.Post{AuthorID: author.ID, Title: "Bali old", Visibility: models.VisibilityPublic}
	require.NoError(t, s.CreatePost(ctx, kept))
	require.NoError(t, s.CreatePost(ctx, gone))
	require.NoError(t, s.DeactivatePost(ctx, gone.ID, author.ID))

	srv, rec := fakeElastic(t, 2, kept.ID, gone.ID)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	es := NewElasticSearcher(client, "posts", s)

	posts, total, err := es.SearchPosts(ctx, "bali", visibility.Anonymous(), models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, posts, 1)
	assert.Equal(t, kept.ID, posts[0].ID)
	assert.Contains(t, rec.get(), `"case_insensitive":true`)
	assert.Contains(t, rec.get(), `"*bali*"`)

	require.NoError(t, es.Deactivate(ctx, gone.ID))
	assert.Contains(t, rec.get(), `"is_active":false`)
}

func TestDocumentFor(t *testing.T) {
	p := &models.Post{
		ID:         "p1",
		AuthorID:   "u1",
		Title:      "Bali Adventure",
		Location:   models.Location{Name: "Rice terraces", City: "Ubud", Country: "Indonesia"},
		Tags:       []string{"bali"},
		Visibility: models.VisibilityFollowers,
		Active:     true,
	}
	doc := documentFor(p)
	assert.Equal(t, "Ubud", doc.LocationCity)
	assert.Equal(t, "Indonesia", doc.LocationCountry)
	assert.Equal(t, models.VisibilityFollowers, doc.Visibility)
	assert.True(t, doc.IsActive)
}
