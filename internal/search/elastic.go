package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/apperr"
	"github.com/emilythestrangee/tripshare/backend/internal/models"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/visibility"
)

// Text fields use the wildcard type so that case-insensitive substring
// queries behave like the store backends.
const postsMapping = `{
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"author_id": {"type": "keyword"},
			"title": {"type": "wildcard"},
			"description": {"type": "wildcard"},
			"location_name": {"type": "wildcard"},
			"location_city": {"type": "wildcard"},
			"location_country": {"type": "wildcard"},
			"tags": {"type": "wildcard"},
			"visibility": {"type": "keyword"},
			"is_active": {"type": "boolean"},
			"created_at": {"type": "date"}
		}
	}
}`

// maxResultWindow is the index.max_result_window default. Pages past it are
// answered with the total only.
const maxResultWindow = 10000

var matchFields = []string{"title", "description", "location_name", "location_city", "location_country", "tags"}

// ElasticSearcher matches posts in Elasticsearch and loads the hits from the
// post store, which stays the source of truth.
type ElasticSearcher struct {
	client *elasticsearch.Client
	index  string
	posts  store.PostStore
}

func NewElasticSearcher(client *elasticsearch.Client, index string, posts store.PostStore) *ElasticSearcher {
	return &ElasticSearcher{client: client, index: index, posts: posts}
}

type postDocument struct {
	ID              string            `json:"id"`
	AuthorID        string            `json:"author_id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	LocationName    string            `json:"location_name"`
	LocationCity    string            `json:"location_city"`
	LocationCountry string            `json:"location_country"`
	Tags            []string          `json:"tags"`
	Visibility      models.Visibility `json:"visibility"`
	IsActive        bool              `json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
}

func documentFor(p *models.Post) postDocument {
	return postDocument{
		ID:              p.ID,
		AuthorID:        p.AuthorID,
		Title:           p.Title,
		Description:     p.Description,
		LocationName:    p.Location.Name,
		LocationCity:    p.Location.City,
		LocationCountry: p.Location.Country,
		Tags:            p.Tags,
		Visibility:      p.Visibility,
		IsActive:        p.Active,
		CreatedAt:       p.CreatedAt,
	}
}

// EnsureIndex creates the posts index if it does not exist yet.
func (es *ElasticSearcher) EnsureIndex(ctx context.Context) error {
	req := esapi.IndicesCreateRequest{
		Index: es.index,
		Body:  strings.NewReader(postsMapping),
	}
	res, err := req.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

func (es *ElasticSearcher) IndexPost(ctx context.Context, post *models.Post) error {
	body, err := json.Marshal(documentFor(post))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	req := esapi.IndexRequest{
		Index:      es.index,
		DocumentID: post.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}
	log.WithField("post_id", post.ID).Debug("post indexed")
	return nil
}

// Deactivate marks the indexed document inactive so it stops matching.
func (es *ElasticSearcher) Deactivate(ctx context.Context, postID string) error {
	req := esapi.UpdateRequest{
		Index:      es.index,
		DocumentID: postID,
		Body:       strings.NewReader(`{"doc":{"is_active":false}}`),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, es.client)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("error updating document: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID string `json:"_id"`
		} `json:"hits"`
	} `json:"hits"`
}

func (es *ElasticSearcher) SearchPosts(ctx context.Context, text string, viewer visibility.Viewer, page models.Page) ([]models.Post, int64, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildSearchQuery(text, viewer, page)); err != nil {
		return nil, 0, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := es.client.Search(
		es.client.Search.WithContext(ctx),
		es.client.Search.WithIndex(es.index),
		es.client.Search.WithBody(&buf),
		es.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, 0, apperr.Storage("search posts", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, apperr.Storage("search posts", errors.New(res.String()))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, apperr.Storage("search posts", fmt.Errorf("failed to parse response: %w", err))
	}

	posts := make([]models.Post, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		p, err := es.posts.GetPost(ctx, hit.ID)
		if apperr.KindOf(err) == apperr.KindNotFound {
			// Deactivated after the last index refresh.
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, *p)
	}
	return posts, parsed.Hits.Total.Value, nil
}

func buildSearchQuery(text string, viewer visibility.Viewer, page models.Page) map[string]any {
	pattern := "*" + escapeWildcard(strings.TrimSpace(text)) + "*"
	should := make([]map[string]any, 0, len(matchFields))
	for _, field := range matchFields {
		should = append(should, map[string]any{
			"wildcard": map[string]any{
				field: map[string]any{
					"value":            pattern,
					"case_insensitive": true,
				},
			},
		})
	}

	from, size := page.Offset(), page.Size
	if from > maxResultWindow-size {
		from, size = 0, 0
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"is_active": true}},
					visibilityFilter(viewer),
				},
				"should":               should,
				"minimum_should_match": 1,
			},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc"}},
			{"id": map[string]any{"order": "desc"}},
		},
		"from":             from,
		"size":             size,
		"track_total_hits": true,
		"_source":          false,
	}
}

// visibilityFilter mirrors visibility.Decide for active posts.
func visibilityFilter(viewer visibility.Viewer) map[string]any {
	public := map[string]any{"term": map[string]any{"visibility": string(models.VisibilityPublic)}}
	if viewer.IsAnonymous() {
		return public
	}
	scopes := []map[string]any{
		public,
		{"term": map[string]any{"author_id": viewer.ID}},
	}
	if followed := viewer.FollowedAuthors(); len(followed) > 0 {
		scopes = append(scopes, map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"visibility": string(models.VisibilityFollowers)}},
					{"terms": map[string]any{"author_id": followed}},
				},
			},
		})
	}
	return map[string]any{
		"bool": map[string]any{
			"should":               scopes,
			"minimum_should_match": 1,
		},
	}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}
