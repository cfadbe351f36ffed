package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zots0127/io/blobs"
	"github.com/zots0127/io/query"
)

const (
	paramDigest = "sha1"

	headerContentType = "Content-Type"
)

var log = logrus.WithField("logger", "server")

// Server is the io service root
type Server struct {
	Engine      *gin.Engine
	store       blobs.Store
	events      *blobs.EventStream
	apiKey      string
	listen      string
	promHandler http.Handler
}

func newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), engineMetrics())
	return engine
}

// New creates a new server - params are injected dependencies
func New(store blobs.Store, events *blobs.EventStream, listenAddress string, apiKey string, zipkinURL string) (*Server, error) {

	setTracer(listenAddress, zipkinURL)

	s := &Server{
		store:       store,
		events:      events,
		Engine:      newEngine(),
		apiKey:      apiKey,
		listen:      listenAddress,
		promHandler: promhttp.Handler(),
	}

	s.Engine.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	s.Engine.GET("/metrics", s.handlePrometheusMetrics)

	s.Engine.GET("/events", s.apiKeyAuth(), func(c *gin.Context) {
		query.WSHandler(s.events, c.Writer, c.Request)
	})

	createBlobAPI(s)

	return s, nil
}

func createBlobAPI(s *Server) {

	api := s.Engine.Group("/api")
	api.Use(s.apiKeyAuth())
	{
		api.POST("/store", s.handleStoreBlob)
		api.GET("/file/:sha1", s.handleGetBlob)
		api.DELETE("/file/:sha1", s.handleDeleteBlob)
		api.GET("/exists/:sha1", s.handleExistsBlob)
		api.GET("/blobs", s.handleListBlobs)
	}
}

func (s *Server) handleStoreBlob(c *gin.Context) {

	var content io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			renderError(ErrMissingFile, c)
			return
		}
		defer file.Close()
		content = file
	} else {
		content = c.Request.Body
	}

	entry, err := s.store.Store(c.Request.Context(), content)
	if err != nil {
		renderError(err, c)
		return
	}

	blobSizeBytes.Observe(float64(entry.Length))
	s.events.Publish(blobs.Event{Type: blobs.EventBlobStored, Digest: entry.Digest, Length: entry.Length})

	c.JSON(http.StatusOK, gin.H{"sha1": entry.Digest})
}

func (s *Server) handleGetBlob(c *gin.Context) {

	digest, err := blobs.ParseDigest(c.Param(paramDigest))
	if err != nil {
		renderError(ErrInvalidDigest, c)
		return
	}

	r, err := s.store.Read(c.Request.Context(), digest)
	if err != nil {
		renderError(err, c)
		return
	}
	defer r.Close()

	c.Header(headerContentType, "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, r); err != nil {
		// headers are gone at this point, the connection is all we can abort
		log.WithField("digest", digest).WithError(err).Error("Error writing blob response")
		c.Abort()
		return
	}
}

func (s *Server) handleDeleteBlob(c *gin.Context) {

	digest, err := blobs.ParseDigest(c.Param(paramDigest))
	if err != nil {
		renderError(ErrInvalidDigest, c)
		return
	}

	removed, err := s.store.Delete(c.Request.Context(), digest)
	if err != nil {
		renderError(err, c)
		return
	}

	if removed {
		s.events.Publish(blobs.Event{Type: blobs.EventBlobDeleted, Digest: digest})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Blob deleted"})
}

func (s *Server) handleExistsBlob(c *gin.Context) {

	digest, err := blobs.ParseDigest(c.Param(paramDigest))
	if err != nil {
		renderError(ErrInvalidDigest, c)
		return
	}

	exists, err := s.store.Exists(c.Request.Context(), digest)
	if err != nil {
		renderError(err, c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) handleListBlobs(c *gin.Context) {

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		renderError(ErrInvalidPaging, c)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		renderError(ErrInvalidPaging, c)
		return
	}

	entries, err := s.store.List(c.Request.Context(), offset, limit)
	if err != nil {
		renderError(err, c)
		return
	}
	if entries == nil {
		entries = []*blobs.Entry{}
	}

	c.JSON(http.StatusOK, gin.H{"blobs": entries})
}

func (s *Server) handlePrometheusMetrics(c *gin.Context) {
	s.promHandler.ServeHTTP(c.Writer, c.Request)
}

// Run starts the server
func (s *Server) Run() {
	log.WithField("listen_url", s.listen).Info("Starting io storage server")

	s.Engine.Run(s.listen)
}
