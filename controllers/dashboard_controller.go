package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/ledger"
	"lab_lending_tool/models"
	"lab_lending_tool/stats"

	"github.com/gin-gonic/gin"
)

type DashboardController struct{ *Srv }

func NewDashboardController(s *Srv) *DashboardController { return &DashboardController{Srv: s} }

// cached 先查 Redis，未命中再计算并写回
func cached[T any](dc *DashboardController, c *gin.Context, key string, compute func() (T, error)) {
	var v T
	slot, hit := dc.Dash.Get(c.Request.Context(), key, &v)
	if hit {
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, v)
		return
	}
	v, err := compute()
	if err != nil {
		fail(c, err)
		return
	}
	dc.Dash.Set(c.Request.Context(), slot, v)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, v)
}

func (dc *DashboardController) threshold(c *gin.Context) int {
	if n, err := strconv.Atoi(c.Query("threshold")); err == nil && n > 0 {
		return n
	}
	if dc.Cfg.LowStockThreshold > 0 {
		return dc.Cfg.LowStockThreshold
	}
	return stats.DefaultLowStockThreshold
}

// GET /api/dashboard/summary
func (dc *DashboardController) Summary(c *gin.Context) {
	th := dc.threshold(c)
	cached(dc, c, fmt.Sprintf("summary:%d", th), func() (stats.Summary, error) {
		ctx := c.Request.Context()
		reqs, err := dc.Repo.RequestsForStats(ctx, db.RequestQuery{})
		if err != nil {
			return stats.Summary{}, err
		}
		products, err := dc.Repo.AllProducts(ctx)
		if err != nil {
			return stats.Summary{}, err
		}
		return stats.Summarize(reqs, products, th, dc.clock()), nil
	})
}

// GET /api/dashboard/monthly?year=2025
func (dc *DashboardController) Monthly(c *gin.Context) {
	year := dc.clock().In(ledger.IST).Year()
	if y := c.Query("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil || n < 2000 || n > 3000 {
			c.JSON(http.StatusBadRequest, app.H{"error": "invalid year"})
			return
		}
		year = n
	}
	cached(dc, c, fmt.Sprintf("monthly:%d", year), func() ([]stats.MonthBucket, error) {
		from := time.Date(year, 1, 1, 0, 0, 0, 0, ledger.IST)
		to := from.AddDate(1, 0, 0)
		reqs, err := dc.Repo.RequestsForStats(c.Request.Context(), db.RequestQuery{From: &from, To: &to})
		if err != nil {
			return nil, err
		}
		return stats.Monthly(reqs, year), nil
	})
}

// GET /api/dashboard/low-stock?threshold=5
func (dc *DashboardController) LowStock(c *gin.Context) {
	th := dc.threshold(c)
	cached(dc, c, fmt.Sprintf("low-stock:%d", th), func() ([]models.ProductView, error) {
		products, err := dc.Repo.AllProducts(c.Request.Context())
		if err != nil {
			return nil, err
		}
		return stats.LowStock(products, th), nil
	})
}

// GET /api/dashboard/top-products?limit=10
func (dc *DashboardController) TopProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	cached(dc, c, fmt.Sprintf("top:%d", limit), func() ([]stats.ProductDemand, error) {
		ctx := c.Request.Context()
		reqs, err := dc.Repo.RequestsForStats(ctx, db.RequestQuery{})
		if err != nil {
			return nil, err
		}
		products, err := dc.Repo.AllProducts(ctx)
		if err != nil {
			return nil, err
		}
		names := make(map[string]string, len(products))
		for _, p := range products {
			names[p.ID] = p.Name
		}
		return stats.TopRequested(reqs, names, limit), nil
	})
}

// GET /api/dashboard/calendar?from=2025-03-01&to=2025-03-31
func (dc *DashboardController) Calendar(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var f, t time.Time
	if from != nil {
		f = *from
	}
	if to != nil {
		t = *to
	}
	key := fmt.Sprintf("calendar:%s:%s", c.Query("from"), c.Query("to"))
	cached(dc, c, key, func() ([]stats.Event, error) {
		reqs, err := dc.Repo.RequestsForStats(c.Request.Context(), db.RequestQuery{})
		if err != nil {
			return nil, err
		}
		return stats.Calendar(reqs, f, t, dc.clock()), nil
	})
}
