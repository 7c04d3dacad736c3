package routes

import (
	"net/http"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/controllers"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	authCtl := controllers.NewAuthController(s)
	userCtl := controllers.NewUserController(s)
	productCtl := controllers.NewProductController(s)
	importCtl := controllers.NewImportController(s)
	requestCtl := controllers.NewRequestController(s)
	reissueCtl := controllers.NewReIssueController(s)
	dashCtl := controllers.NewDashboardController(s)
	auditCtl := controllers.NewAuditController(s)

	// 复用的中间件
	authMW := app.AuthRequired(a.Tokens, s.Repo)
	activeMW := app.ActiveOnly()
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)
	idemMW := app.Idempotent(a.Idem)
	loginLimit := app.AuthRateLimit()

	r.GET("/healthz", func(c *app.Ctx) {
		ctx := c.Request.Context()
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "redis": err.Error()})
			return
		}
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})

	api := r.Group("/api", app.NewRateLimiter(rate.Every(time.Minute/300), 100).Middleware())

	// ------------------------------
	// 登录 / 令牌（公开）
	// ------------------------------
	pub := api.Group("", loginLimit)
	{
		pub.POST("/auth/register", authCtl.Register)
		pub.POST("/auth/login", authCtl.Login)
		pub.POST("/refresh-token", authCtl.RefreshToken)
		pub.POST("/auth/passkey/login/begin", s.BeginPasskeyLogin)
		pub.POST("/auth/passkey/login/finish", s.FinishPasskeyLogin)
	}

	// 未激活用户也能验证令牌、登出
	authed := api.Group("", authMW, seenMW)
	{
		authed.GET("/verify-token", authCtl.VerifyToken)
		authed.POST("/auth/logout", authCtl.Logout)
	}

	// 以下都要求账号已激活
	user := authed.Group("", activeMW, idemMW)
	admin := user.Group("", adminMW)

	// Passkey 绑定
	user.POST("/auth/passkey/add/begin", s.BeginAddCredential)
	user.POST("/auth/passkey/add/finish", s.FinishAddCredential)

	// ------------------------------
	// 用户
	// ------------------------------
	user.GET("/users/stats", userCtl.Stats)
	user.PUT("/users/update/:rollNo", userCtl.UpdateUser)
	admin.GET("/users/get", userCtl.ListUsers)
	admin.GET("/users/get/:rollNo", userCtl.GetUser)

	// ------------------------------
	// 元件库存
	// ------------------------------
	user.GET("/products/get", productCtl.List)
	user.GET("/products/get/:id", productCtl.Get)
	admin.POST("/products/add", productCtl.Add)
	admin.PUT("/products/update/:id", productCtl.Update)
	admin.GET("/products/export", productCtl.Export)
	admin.POST("/products/import/parse", importCtl.Parse)
	admin.POST("/products/import/preview", importCtl.Preview)
	admin.POST("/products/import/commit", importCtl.Commit)

	// ------------------------------
	// 借用申请
	// ------------------------------
	user.GET("/request/user", requestCtl.Mine)
	user.GET("/request/get/:id", requestCtl.Get)
	user.POST("/request/add", requestCtl.Add)
	admin.GET("/request/get", requestCtl.List)
	admin.GET("/request/user-get/:rollNo", requestCtl.ByRollNo)
	admin.PUT("/request/approve/:id", requestCtl.Approve)
	admin.PUT("/request/reject/:id", requestCtl.Reject)
	admin.PUT("/request/collect/:id", requestCtl.Collect)
	admin.POST("/request/return/:requestId", requestCtl.Return)

	// ------------------------------
	// 延期
	// ------------------------------
	user.GET("/reIssued/get/:id", reissueCtl.Get)
	user.GET("/reIssued/request/:requestId", reissueCtl.ForRequest)
	user.POST("/reIssued/add/:requestId", reissueCtl.Add)
	admin.GET("/reIssued/pending", reissueCtl.Pending)
	admin.PUT("/reIssued/review/:id", reissueCtl.Review)

	// ------------------------------
	// 看板 / 审计（仅管理员）
	// ------------------------------
	admin.GET("/dashboard/summary", dashCtl.Summary)
	admin.GET("/dashboard/monthly", dashCtl.Monthly)
	admin.GET("/dashboard/low-stock", dashCtl.LowStock)
	admin.GET("/dashboard/top-products", dashCtl.TopProducts)
	admin.GET("/dashboard/calendar", dashCtl.Calendar)
	admin.GET("/audit/get", auditCtl.List)
}
