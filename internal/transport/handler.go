package transport

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-photo-search/internal/config"
	apperrors "go-photo-search/internal/errors"
	"go-photo-search/internal/logger"
	"go-photo-search/internal/observer"
	"go-photo-search/internal/search"
	"go-photo-search/pkg/models"
)

// SessionHeader names the client's query stream. Searches sharing a value
// supersede one another.
const SessionHeader = "X-Search-Session"

// invalidImageMessage is shown whenever the query image cannot be used.
const invalidImageMessage = "select a valid image"

func NewHandler(searcher *search.Searcher, sessions *search.Sessions, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()

	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	r.POST("/search", searchImages(searcher, sessions, cfg))
	r.POST("/compare", compareImages(searcher))
	r.GET("/metrics", metricsHandler(metrics))

	return r
}

func searchImages(s *search.Searcher, sessions *search.Sessions, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		opts, err := categoryOptions(c.QueryArray("category"))
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid category", err)
			return
		}

		var run func(context.Context, search.Options) (*search.Result, error)
		if isMultipart(c) {
			query, err := readFormImage(c, "image")
			if err != nil {
				respondUploadError(c, err)
				return
			}
			run = func(ctx context.Context, o search.Options) (*search.Result, error) {
				if key := sessionKey(c, sessions); key != "" {
					defer sessions.Release(key)
					return sessions.Acquire(key).SearchBySimilarImage(ctx, query, o)
				}
				return s.SearchBySimilarImage(ctx, query, o)
			}
		} else {
			var req models.SearchRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				if tooLarge(err) {
					respondError(c, http.StatusRequestEntityTooLarge, "request body too large",
						apperrors.NewTooLargeError("request body too large", err))
					return
				}
				respondError(c, http.StatusBadRequest, "invalid request format", err)
				return
			}
			more, err := categoryOptions(req.Categories)
			if err != nil {
				respondError(c, apperrors.GetStatusCode(err), "invalid category", err)
				return
			}
			opts.Categories = append(opts.Categories, more.Categories...)
			run = func(ctx context.Context, o search.Options) (*search.Result, error) {
				if key := sessionKey(c, sessions); key != "" {
					defer sessions.Release(key)
					return sessions.Acquire(key).SearchByImageLocation(ctx, req.ImageURL, o)
				}
				return s.SearchByImageLocation(ctx, req.ImageURL, o)
			}
		}

		result, err := run(ctx, opts)
		if err != nil {
			respondSearchError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SearchResponse{
			SearchID:       result.SearchID,
			Matches:        result.Matches,
			CandidateCount: result.CandidateCount,
			FailedCount:    result.FailedCount,
			Message:        result.Advisory,
			ProcessingMs:   result.Duration.Milliseconds(),
		})
	}
}

func compareImages(s *search.Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := readFormImage(c, "image_a")
		if err != nil {
			respondUploadError(c, err)
			return
		}
		b, err := readFormImage(c, "image_b")
		if err != nil {
			respondUploadError(c, err)
			return
		}

		breakdown, err := s.Compare(a, b)
		if err != nil {
			respondInvalidImage(c, err)
			return
		}
		c.JSON(http.StatusOK, breakdown)
	}
}

func metricsHandler(m *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, m.GetMetrics())
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// sessionKey is empty when the caller did not ask for session ordering.
func sessionKey(c *gin.Context, sessions *search.Sessions) string {
	if sessions == nil {
		return ""
	}
	return strings.TrimSpace(c.GetHeader(SessionHeader))
}

func categoryOptions(values []string) (search.Options, error) {
	var opts search.Options
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			category, ok := models.ParseCategory(part)
			if !ok {
				return opts, apperrors.NewValidationError("unknown category "+strings.TrimSpace(part), nil)
			}
			opts.Categories = append(opts.Categories, category)
		}
	}
	return opts, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func readFormImage(c *gin.Context, field string) ([]byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		if tooLarge(err) {
			return nil, apperrors.NewTooLargeError("request body too large", err)
		}
		return nil, apperrors.NewValidationError("missing image field "+field, err)
	}
	return readUpload(header)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable upload", err)
	}
	return data, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// Middleware and helper functions
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}).Info("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, search.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return apperrors.StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondSearchError maps search failures onto replies. Any problem with the
// query image itself, fetched or uploaded, is reported the same way.
func respondSearchError(c *gin.Context, err error) {
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeDecode), apperrors.IsType(err, apperrors.ErrorTypeFetch):
		respondInvalidImage(c, err)
	case errors.Is(err, search.ErrSuperseded):
		respondError(c, http.StatusConflict, "search superseded by a newer search", err)
	default:
		respondError(c, determineStatusCode(err), "search failed", err)
	}
}

// respondUploadError answers an unreadable upload. Oversized bodies are not
// an image problem and get their own status.
func respondUploadError(c *gin.Context, err error) {
	if apperrors.IsType(err, apperrors.ErrorTypeTooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, "request body too large", err)
		return
	}
	respondInvalidImage(c, err)
}

func respondInvalidImage(c *gin.Context, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"ip":   c.ClientIP(),
	}).Warn("Rejected query image")

	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, models.ErrorResponse{
		Error:   http.StatusText(http.StatusUnprocessableEntity),
		Message: invalidImageMessage,
		Type:    string(apperrors.TypeOf(err)),
	})
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	errType := ""
	if err != nil {
		errType = string(apperrors.TypeOf(err))
	}
	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   statusText(code),
		Message: message,
		Type:    errType,
	})
}

func statusText(code int) string {
	if code == apperrors.StatusClientClosedRequest {
		return "Client Closed Request"
	}
	return http.StatusText(code)
}
