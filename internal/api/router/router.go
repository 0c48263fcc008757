package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gatepass/config"
	"gatepass/internal/api/handler"
	"gatepass/internal/api/middleware"
	"gatepass/internal/model"
	"gatepass/pkg/jwt"
	"gatepass/pkg/redis"
)

const (
	defaultBodyLimit = 1 << 20  // 1MB
	importBodyLimit  = 10 << 20 // 10MB，表格上传
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时 Token 黑名单与扫码限流降级关闭
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	db *gorm.DB,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	var (
		checker middleware.TokenChecker
		limiter middleware.RateLimiter
	)
	if rdb != nil {
		checker = rdb
		limiter = rdb
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))

	// ── 健康检查与指标 ──
	r.GET("/health", healthHandler(db))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	admin := middleware.RoleAuth(model.RoleAdmin)
	registrar := middleware.RoleAuth(model.RoleAdmin, model.RoleRegistrar)
	scanner := middleware.RoleAuth(model.RoleAdmin, model.RoleScanner)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		v1.POST("/auth/login", middleware.BodyLimit(defaultBodyLimit), h.Auth.Login)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, checker))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentOperator)
			authorized.POST("/operators", admin, middleware.BodyLimit(defaultBodyLimit), h.Auth.CreateOperator)

			// 登记与凭证
			credentials := authorized.Group("/credentials")
			{
				credentials.POST("", registrar, middleware.BodyLimit(defaultBodyLimit), h.Credential.Register)
				credentials.POST("/bulk", registrar, middleware.BodyLimit(importBodyLimit), h.Credential.RegisterBulk)
				credentials.POST("/import", registrar, middleware.BodyLimit(importBodyLimit), h.Credential.Import)
				credentials.GET("/import/template", registrar, h.Credential.ImportTemplate)
				credentials.GET("", registrar, h.Credential.List)
				credentials.GET("/:id", registrar, h.Credential.Get)
				credentials.GET("/:id/qr", registrar, h.Credential.QRCode)
				credentials.DELETE("/:id", admin, h.Credential.Delete)
			}

			// 入口扫码
			authorized.POST("/scans",
				scanner,
				middleware.RateLimit(limiter, cfg.CheckIn.ScanRateLimit, cfg.CheckIn.ScanRateWindow),
				middleware.BodyLimit(defaultBodyLimit),
				h.Scan.Scan)

			// 批次
			batches := authorized.Group("/batches")
			{
				batches.GET("", registrar, h.Report.ListBatches)
				batches.GET("/:id/members", registrar, h.Report.GetBatchMembers)
			}

			// 统计（所有角色）
			authorized.GET("/stats", h.Report.Stats)

			// 导出
			export := authorized.Group("/export")
			{
				export.GET("/entry-log", admin, h.Report.ExportEntryLog)
				export.GET("/batches/:id", registrar, h.Report.ExportBatch)
			}
		}
	}

	return r
}

// healthHandler 数据库可达时返回 200，否则 503
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
