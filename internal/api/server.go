package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/config"
	"github.com/ah-its-andy/mediaconv/internal/convert"
	"github.com/ah-its-andy/mediaconv/internal/engine"
	"github.com/ah-its-andy/mediaconv/internal/history"
	"github.com/ah-its-andy/mediaconv/internal/store"
)

// EngineClient is the slice of the engine adapter the handlers use
// directly (health probe and file inspection).
type EngineClient interface {
	Probe(ctx context.Context) (engine.Info, error)
	ProbeFile(ctx context.Context, path string) (engine.MediaInfo, error)
}

type Server struct {
	Router *gin.Engine

	cfg        *config.Config
	store      *store.Store
	engine     EngineClient
	converters map[catalog.Category]convert.Converter
	history    *history.History
	log        *zap.Logger
}

func NewServer(
	cfg *config.Config,
	st *store.Store,
	eng EngineClient,
	converters map[catalog.Category]convert.Converter,
	hist *history.History,
	log *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())

	s := &Server{
		Router:     g,
		cfg:        cfg,
		store:      st,
		engine:     eng,
		converters: converters,
		history:    hist,
		log:        log,
	}

	api := g.Group("/api")
	api.POST("/convert", s.handleConvert)
	api.GET("/download/:name", s.handleDownload)
	api.DELETE("/files/:name", s.handleDelete)
	api.GET("/formats", s.handleFormats)
	api.GET("/health", s.handleHealth)
	api.GET("/info/:name", s.handleInfo)
	api.GET("/history", s.handleHistory)
	api.GET("/stats", s.handleStats)

	return s
}

func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr()))
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr(),
		Handler: s.Router,
	}
	return srv.ListenAndServe()
}
