package controllers

import (
	"net/http"

	"lab_lending_tool/app"
	"lab_lending_tool/inventory"
	"lab_lending_tool/session"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20

type ImportController struct{ *Srv }

func NewImportController(s *Srv) *ImportController { return &ImportController{Srv: s} }

// POST /api/products/import/parse  multipart: file
// 解析表头并猜测列映射，整张表暂存在 Redis
func (ic *ImportController) Parse(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "file is required (max 10MB)"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	sheet, err := inventory.ParseSheet(fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	mapping := inventory.MatchHeaders(sheet.Headers)
	token, err := ic.Imports.Save(c.Request.Context(), &session.StagedImport{
		Filename: fh.Filename,
		OwnerID:  c.GetString("userID"),
		Sheet:    sheet,
		Mapping:  mapping,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"token":   token,
		"headers": sheet.Headers,
		"rows":    len(sheet.Rows),
		"fields":  inventory.Fields,
		"mapping": mapping,
		"missing": mapping.Missing(),
	})
}

type mappingReq struct {
	Token   string            `json:"token" binding:"required"`
	Mapping inventory.Mapping `json:"mapping"`
}

// check 按确认后的映射计算所有行并校验
func (ic *ImportController) check(c *gin.Context) (*mappingReq, *inventory.Report, bool) {
	var in mappingReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return nil, nil, false
	}
	ctx := c.Request.Context()
	imp, err := ic.Imports.Load(ctx, in.Token)
	if err != nil {
		fail(c, err)
		return nil, nil, false
	}
	if imp.OwnerID != c.GetString("userID") {
		c.JSON(http.StatusForbidden, app.H{"error": "import belongs to another user"})
		return nil, nil, false
	}

	m := imp.Mapping
	if in.Mapping != nil {
		m = in.Mapping
	}
	m, dup := m.Clean(len(imp.Sheet.Headers))
	if dup {
		c.JSON(http.StatusBadRequest, app.H{"error": "a column is mapped to more than one field"})
		return nil, nil, false
	}
	if missing := m.Missing(); len(missing) > 0 {
		c.JSON(http.StatusBadRequest, app.H{"error": "required fields are not mapped", "missing": missing})
		return nil, nil, false
	}

	existing, err := ic.Repo.ProductKeys(ctx)
	if err != nil {
		fail(c, err)
		return nil, nil, false
	}
	rep := inventory.CheckBatch(inventory.BuildRows(imp.Sheet, m), existing)
	rep.Mapping = m
	return &in, &rep, true
}

// POST /api/products/import/preview
func (ic *ImportController) Preview(c *gin.Context) {
	_, rep, ok := ic.check(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// POST /api/products/import/commit  还有问题时整批拒绝
func (ic *ImportController) Commit(c *gin.Context) {
	in, rep, ok := ic.check(c)
	if !ok {
		return
	}
	if !rep.Valid {
		c.JSON(http.StatusUnprocessableEntity, app.H{"error": "batch has issues", "report": rep})
		return
	}
	n, err := ic.Repo.ImportProducts(c.Request.Context(), rep.Rows, app.ActorOf(c))
	if err != nil {
		fail(c, err)
		return
	}
	_ = ic.Imports.Delete(c.Request.Context(), in.Token)
	ic.changed(c)
	c.JSON(http.StatusCreated, app.H{"ok": true, "imported": n})
}
