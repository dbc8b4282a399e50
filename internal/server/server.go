package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/emilythestrangee/tripshare/backend/internal/cache"
	"github.com/emilythestrangee/tripshare/backend/internal/config"
	"github.com/emilythestrangee/tripshare/backend/internal/database"
	"github.com/emilythestrangee/tripshare/backend/internal/docstore"
	"github.com/emilythestrangee/tripshare/backend/internal/feed"
	"github.com/emilythestrangee/tripshare/backend/internal/graph"
	"github.com/emilythestrangee/tripshare/backend/internal/handlers"
	"github.com/emilythestrangee/tripshare/backend/internal/interaction"
	"github.com/emilythestrangee/tripshare/backend/internal/media"
	"github.com/emilythestrangee/tripshare/backend/internal/middleware"
	"github.com/emilythestrangee/tripshare/backend/internal/monitoring"
	"github.com/emilythestrangee/tripshare/backend/internal/publish"
	"github.com/emilythestrangee/tripshare/backend/internal/search"
	"github.com/emilythestrangee/tripshare/backend/internal/store"
	"github.com/emilythestrangee/tripshare/backend/internal/store/memory"
)

// Deps are the backends a server runs on. Only Store is required.
type Deps struct {
	Store    store.Store
	Cache    *cache.PostCache
	Elastic  *search.ElasticSearcher
	Uploader media.Uploader
	// closeCache releases the redis client when the server owns it.
	closeCache func() error
}

type Server struct {
	cfg       *config.Config
	deps      Deps
	publisher *publish.Publisher
	handler   *handlers.Handler
	registry  *prometheus.Registry
}

// Open connects the configured backends and builds the server.
func Open(ctx context.Context, cfg *config.Config) (*Server, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps := Deps{Store: st}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pc := cache.NewPostCache(client, cfg.PostCacheTTL)
		if err := pc.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, post cache disabled")
			_ = client.Close()
		} else {
			deps.Cache = pc
			deps.closeCache = client.Close
			log.WithField("addr", cfg.RedisAddr).Info("post cache enabled")
		}
	}

	if cfg.ElasticsearchURL != "" {
		es, err := openElastic(ctx, cfg, st)
		if err != nil {
			log.WithError(err).Warn("elasticsearch unavailable, searching the store instead")
		} else {
			deps.Elastic = es
			log.WithField("index", cfg.ElasticsearchIndex).Info("elasticsearch search enabled")
		}
	}

	if u := media.NewSupabaseUploader(cfg.SupabaseURL, cfg.SupabaseKey, cfg.BucketName); u != nil {
		deps.Uploader = u
	} else {
		log.Info("media storage not configured, uploads disabled")
	}

	return New(cfg, deps), nil
}

func openElastic(ctx context.Context, cfg *config.Config, posts store.PostStore) (*search.ElasticSearcher, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{cfg.ElasticsearchURL}})
	if err != nil {
		return nil, fmt.Errorf("error creating elasticsearch client: %w", err)
	}
	es := search.NewElasticSearcher(client, cfg.ElasticsearchIndex, posts)
	if err := es.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return es, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMongo:
		s, err := docstore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory:
		log.Warn("using the in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// New wires the domain services over deps. Optional collaborators that are
// nil are left out entirely so no typed nil reaches an interface.
func New(cfg *config.Config, deps Deps) *Server {
	var (
		postCache   feed.PostCache
		invalidator interaction.Invalidator
		searcher    search.Searcher = search.NewStoreSearcher(deps.Store)
		pubOpts     []publish.Option
	)
	if deps.Cache != nil {
		postCache = deps.Cache
		invalidator = deps.Cache
		pubOpts = append(pubOpts, publish.WithCache(deps.Cache))
	}
	if deps.Elastic != nil {
		searcher = deps.Elastic
		pubOpts = append(pubOpts, publish.WithIndexer(deps.Elastic))
	}
	if deps.Uploader != nil {
		pubOpts = append(pubOpts, publish.WithUploader(deps.Uploader))
	}

	f := feed.New(deps.Store, postCache)
	publisher := publish.New(deps.Store, pubOpts...)
	handler := handlers.NewHandler(handlers.Services{
		Feed:      f,
		Engine:    interaction.New(deps.Store, invalidator),
		Graph:     graph.New(deps.Store),
		Search:    search.NewIndex(deps.Store, searcher, f),
		Publisher: publisher,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	monitoring.Register(registry)

	return &Server{
		cfg:       cfg,
		deps:      deps,
		publisher: publisher,
		handler:   handler,
		registry:  registry,
	}
}

// HTTPServer wraps the router in an http.Server listening on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         "0.0.0.0:" + s.cfg.Port,
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Close waits for background indexing and releases the backends.
func (s *Server) Close() error {
	s.publisher.Wait()
	var errs []error
	if s.deps.closeCache != nil {
		errs = append(errs, s.deps.closeCache())
	}
	errs = append(errs, s.deps.Store.Close())
	return errors.Join(errs...)
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	secret := []byte(s.cfg.JWTSecret)
	h := s.handler

	api := r.Group("/api")
	{
		// Public reads
		api.GET("/users/search/:query", h.User.SearchUsers)
		api.GET("/users/:userId/followers", h.User.GetFollowers)
		api.GET("/users/:userId/following", h.User.GetFollowing)

		// Reads that depend on who is asking
		optional := api.Group("")
		optional.Use(middleware.OptionalAuthMiddleware(secret))
		{
			optional.GET("/posts", h.Post.GetPosts)
			optional.GET("/posts/search/:query", h.Post.SearchPosts)
			optional.GET("/posts/:id", h.Post.GetPost)
			optional.GET("/users/:userId", h.User.GetUserProfile)
			optional.GET("/users/:userId/posts", h.User.GetUserPosts)
		}

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			protected.POST("/posts", h.Post.CreatePost)
			protected.DELETE("/posts/:id", h.Post.DeletePost)
			protected.POST("/posts/:id/like", h.Post.LikePost)
			protected.POST("/posts/:id/comment", h.Comment.CreateComment)
			protected.POST("/posts/:id/share", h.Post.SharePost)
			protected.POST("/users/:userId/follow", h.User.FollowUser)
		}
	}

	return r
}

func (s *Server) healthHandler(c *gin.Context) {
	stats := s.deps.Store.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	if s.deps.Cache != nil {
		stats["cache"] = "up"
		if err := s.deps.Cache.Ping(c.Request.Context()); err != nil {
			stats["cache"] = "down"
		}
	}
	c.JSON(status, stats)
}
