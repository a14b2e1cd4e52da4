package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/caption-forge/internal/caption"
	"github.com/yourusername/caption-forge/internal/config"
	"github.com/yourusername/caption-forge/internal/jobs"
)

// recordGetter はジョブ状態を参照します。
type recordGetter interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

func setupJobs(cfg *config.Config, rdb *redis.Client, service *caption.Service, logger *log.Logger) (*jobs.Manager, error) {
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(rdb, time.Duration(ttlMinutes)*time.Minute)
	return jobs.NewManager(cfg, service, store, logger)
}

func jobStatusHandler(getter recordGetter, msgs caption.Messages, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		lang := c.GetHeader("Accept-Language")
		if getter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":    caption.CodeQueueDisabled,
				"message": msgs.T(lang, "error_queue_disabled", nil),
			})
			return
		}

		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    caption.CodeInvalidInput,
				"message": msgs.T(lang, "error_invalid_input", nil),
			})
			return
		}

		record, err := getter.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			logger.Printf("failed to load job %s: %v", jobID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    caption.CodeInternal,
				"message": msgs.T(lang, "error_internal_error", nil),
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": msgs.T(lang, "error_job_not_found", nil),
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"operation": record.Operation,
			"status":    record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
				"message": record.Progress.Message,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.Meta != nil {
			payload["meta"] = record.Meta
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}
