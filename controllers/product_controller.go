package controllers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/inventory"
	"lab_lending_tool/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductController struct{ *Srv }

func NewProductController(s *Srv) *ProductController { return &ProductController{Srv: s} }

// GET /api/products/get?q=&lowStock=5&page=&size=
func (pc *ProductController) List(c *gin.Context) {
	page, size := pageParams(c)
	low, _ := strconv.Atoi(c.Query("lowStock"))
	res, err := pc.Repo.ListProducts(c.Request.Context(), db.ProductQuery{Q: c.Query("q"), LowStock: low, Page: page, Size: size})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/products/get/:id
func (pc *ProductController) Get(c *gin.Context) {
	p, err := pc.Repo.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p.View())
}

// POST /api/products/add
func (pc *ProductController) Add(c *gin.Context) {
	var in inventory.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := pc.Repo.CreateProduct(c.Request.Context(), in, app.ActorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	pc.changed(c)
	c.JSON(http.StatusCreated, p.View())
}

// PUT /api/products/update/:id
func (pc *ProductController) Update(c *gin.Context) {
	var in inventory.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	p, err := pc.Repo.UpdateProduct(c.Request.Context(), c.Param("id"), in, app.ActorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	pc.changed(c)
	c.JSON(http.StatusOK, p.View())
}

var exportHeaders = []string{"productName", "description", "quantity", "damagedQuantity", "inStock", "issued"}

// GET /api/products/export?format=xlsx|csv
func (pc *ProductController) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		c.JSON(http.StatusBadRequest, app.H{"error": "format must be xlsx or csv"})
		return
	}
	products, err := pc.Repo.AllProducts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	name := fmt.Sprintf("products-%s.%s", pc.clock().In(time.UTC).Format("20060102"), format)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)

	if format == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		w := csv.NewWriter(c.Writer)
		_ = w.Write(exportHeaders)
		for _, p := range products {
			_ = w.Write([]string{
				p.Name, p.Description,
				strconv.Itoa(p.Quantity), strconv.Itoa(p.DamagedQuantity),
				strconv.Itoa(p.InStock), strconv.Itoa(p.Issued()),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			logger.For(c).Warn("csv export failed", zap.Error(err))
		}
		return
	}

	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, []any{p.Name, p.Description, p.Quantity, p.DamagedQuantity, p.InStock, p.Issued()})
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := inventory.WriteXLSX(c.Writer, "Products", exportHeaders, rows); err != nil {
		logger.For(c).Warn("xlsx export failed", zap.Error(err))
	}
}
