package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/session"
	"github.com/menta2k/nonverb/pkg/types"
)

// MaxUploadSize bounds uploaded images.
const MaxUploadSize = 10 << 20

// RegisterRoutes wires the control surface to the Gin router.
func RegisterRoutes(router *gin.Engine, ctrl *session.Controller) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Snapshot())
	})

	router.GET("/frame.jpg", func(c *gin.Context) {
		snap := ctrl.Snapshot()
		img := snap.Display
		if snap.Phase == types.PhaseLiveFeed {
			live, err := ctrl.LiveFrame()
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			img = live
		}
		if img == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "nothing to display"})
			return
		}
		data, mime, err := raster.Encode(img, raster.DefaultEncodeOptions())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode frame"})
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, mime, data)
	})

	router.POST("/capture", func(c *gin.Context) {
		err := ctrl.Capture(c.Request.Context())
		respond(c, ctrl, err, http.StatusAccepted)
	})

	router.POST("/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
		if len(data) > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		err = ctrl.Upload(c.Request.Context(), data)
		respond(c, ctrl, err, http.StatusAccepted)
	})

	router.POST("/reset", func(c *gin.Context) {
		err := ctrl.Reset(c.Request.Context())
		respond(c, ctrl, err, http.StatusOK)
	})
}

// respond maps controller outcomes to status codes. With ?wait=true an
// accepted submission is awaited before the snapshot is returned.
func respond(c *gin.Context, ctrl *session.Controller, err error, okStatus int) {
	switch {
	case err == nil:
		if c.Query("wait") == "true" {
			ctrl.Wait()
			okStatus = http.StatusOK
		}
		c.JSON(okStatus, ctrl.Snapshot())
	case errors.Is(err, session.ErrSubmissionInFlight), errors.Is(err, session.ErrResetRequired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": ctrl.Snapshot()})
	case errors.Is(err, session.ErrNotStarted), errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case types.KindOf(err) != types.KindUnknown:
		c.JSON(http.StatusUnprocessableEntity, ctrl.Snapshot())
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// requestLogger logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
