package router

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/cuongbtq/alumni-core/internal/api/handler"
	"github.com/cuongbtq/alumni-core/internal/rbac"
	"github.com/cuongbtq/alumni-core/internal/registration"
	"github.com/cuongbtq/alumni-core/internal/validation"
)

// ServiceName is reported by the health check.
const ServiceName = "alumni-api-service"

// RegisterValidators adds the custom binding tags to gin's validator engine.
func RegisterValidators(ids *registration.IDFormat) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	if ids == nil {
		ids = registration.NewIDFormat("")
	}
	return validation.Register(v, ids)
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	if err := RegisterValidators(deps.IDs); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(CorrelationIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	if deps.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = deps.MaxUploadBytes
	}

	r.GET("/health", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				deps.Logger.ErrorContext(c.Request.Context(), "Health check failed",
					slog.String("error", err.Error()),
				)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "service": ServiceName})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
	})

	jobHandler := handler.NewJobHandler(deps)
	paymentHandler := handler.NewPaymentHandler(deps)
	verificationHandler := handler.NewVerificationHandler(deps)
	adminHandler := handler.NewAdminHandler(deps)

	authed := AuthMiddleware(deps.Verifier, deps.Logger)
	cron := CronKeyMiddleware(deps.CronSecret)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("/validate-token", paymentHandler.ValidateToken)
			payments.GET("/registration/:token", paymentHandler.RegistrationLanding)
			payments.POST("/mark-token-used", paymentHandler.MarkTokenUsed)
			payments.POST("/verify-signature", paymentHandler.VerifySignature)
			payments.POST("/webhook", paymentHandler.Webhook)
		}

		v1.POST("/verification/submit", authed, verificationHandler.Submit)
		v1.POST("/uploads/evidence", authed, verificationHandler.UploadEvidence)
		v1.POST("/uploads/evidence/presign", authed, verificationHandler.PresignEvidence)

		// Scheduled trigger, authenticated by the cron key instead of a user token.
		v1.POST("/admin/process-pdf/next", cron, jobHandler.ProcessNextPDF)
		v1.GET("/admin/process-pdf/next", cron, func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		admin := v1.Group("/admin", authed)
		{
			admin.POST("/souvenirs", RequirePermission(rbac.PermUploadMedia), adminHandler.UploadSouvenir)
			admin.POST("/payments/registration-link", RequirePermission(rbac.PermManagePaymentSettings), paymentHandler.CreateRegistrationLink)

			admin.GET("/alumni-export", RequirePermission(rbac.PermExportAlumniData), adminHandler.ExportAlumni)
			admin.POST("/alumni-imports", RequirePermission(rbac.PermManageUserProfiles), adminHandler.ImportAlumni)
			admin.GET("/alumni-imports", RequirePermission(rbac.PermManageUserProfiles), adminHandler.ListImports)

			admin.POST("/process-pdf", RequirePermission(rbac.PermAccessAdmin), jobHandler.ProcessPDF)

			jobs := admin.Group("/jobs", RequirePermission(rbac.PermAccessAdmin))
			{
				jobs.POST("", jobHandler.CreateJob)
				jobs.GET("", jobHandler.ListJobs)
				jobs.GET("/stats", jobHandler.GetJobStats)
				jobs.POST("/cleanup", jobHandler.CleanupJobs)
				jobs.GET("/:job_id", jobHandler.GetJob)
			}
		}
	}

	return r, nil
}
