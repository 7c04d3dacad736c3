package controllers

import (
	"net/http"
	"strings"

	"lab_lending_tool/app"
	"lab_lending_tool/db"
	"lab_lending_tool/ledger"
	"lab_lending_tool/models"

	"github.com/gin-gonic/gin"
)

type RequestController struct{ *Srv }

func NewRequestController(s *Srv) *RequestController { return &RequestController{Srv: s} }

// requestView 附带按 IST 计算的到期信息
type requestView struct {
	*models.Request
	Timing *ledger.Timing `json:"timing,omitempty"`
}

func (rc *RequestController) view(r *models.Request) requestView {
	v := requestView{Request: r}
	if t, ok := ledger.ComputeTiming(r, rc.clock()); ok {
		v.Timing = &t
	}
	return v
}

func (rc *RequestController) views(rs []models.Request) []requestView {
	out := make([]requestView, 0, len(rs))
	for i := range rs {
		out = append(out, rc.view(&rs[i]))
	}
	return out
}

// listQuery 列表过滤条件，status 接受别名
type listQuery struct {
	Status string `form:"status" binding:"omitempty,loanstatus"`
	Q      string `form:"q"`
	From   string `form:"from"`
	To     string `form:"to"`
}

func (rc *RequestController) query(c *gin.Context) (db.RequestQuery, bool) {
	page, size := pageParams(c)
	var in listQuery
	if err := c.ShouldBindQuery(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "unknown status " + c.Query("status")})
		return db.RequestQuery{}, false
	}
	q := db.RequestQuery{Q: in.Q, Page: page, Size: size}
	if in.Status != "" {
		norm, _ := ledger.NormalizeStatus(in.Status)
		q.Status = string(norm)
	}
	var err error
	if q.From, err = parseDay(in.From); err != nil {
		badRequest(c, err)
		return q, false
	}
	if q.To, err = parseDay(in.To); err != nil {
		badRequest(c, err)
		return q, false
	}
	return q, true
}

func (rc *RequestController) list(c *gin.Context, q db.RequestQuery) {
	res, err := rc.Repo.ListRequests(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": rc.views(res.Items), "total": res.Total})
}

// GET /api/request/get  管理员看全部
func (rc *RequestController) List(c *gin.Context) {
	q, ok := rc.query(c)
	if !ok {
		return
	}
	rc.list(c, q)
}

// GET /api/request/user  当前用户自己的申请
func (rc *RequestController) Mine(c *gin.Context) {
	q, ok := rc.query(c)
	if !ok {
		return
	}
	q.UserID = c.GetString("userID")
	rc.list(c, q)
}

// GET /api/request/user-get/:rollNo
func (rc *RequestController) ByRollNo(c *gin.Context) {
	q, ok := rc.query(c)
	if !ok {
		return
	}
	u, err := rc.Repo.FindUserByRollNo(c.Request.Context(), c.Param("rollNo"))
	if err != nil {
		fail(c, err)
		return
	}
	q.UserID = u.ID
	rc.list(c, q)
}

// GET /api/request/get/:id  id 可以是 uuid 或 REQ- 编号；非管理员只能看自己的
func (rc *RequestController) Get(c *gin.Context) {
	req, err := rc.Repo.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !c.GetBool("isAdmin") && req.UserID != c.GetString("userID") {
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, rc.view(req))
}

type addRequestReq struct {
	RequestedProducts []ledger.Line `json:"requestedProducts" binding:"required,min=1,dive"`
	RequestedDays     int           `json:"requestedDays" binding:"required"`
	ReferenceStaff    string        `json:"referenceStaff"`
	Description       string        `json:"description"`
}

// POST /api/request/add
func (rc *RequestController) Add(c *gin.Context) {
	var in addRequestReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	req, err := rc.Repo.CreateRequest(c.Request.Context(), app.CurrentUser(c), ledger.NewRequestInput{
		Lines:          in.RequestedProducts,
		RequestedDays:  in.RequestedDays,
		ReferenceStaff: in.ReferenceStaff,
		Description:    in.Description,
	}, rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusCreated, rc.view(req))
}

type approveReq struct {
	// 不传则按申请原样发放
	Issued            []ledger.Line `json:"issued" binding:"omitempty,dive"`
	AdminApprovedDays int           `json:"adminApprovedDays" binding:"required"`
	CollectionDate    string        `json:"collectionDate"`
	AdminMessage      string        `json:"adminMessage"`
}

// PUT /api/request/approve/:id
func (rc *RequestController) Approve(c *gin.Context) {
	var in approveReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	collect, err := parseDay(in.CollectionDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	lines := in.Issued
	if len(lines) == 0 {
		req, err := rc.Repo.GetRequest(ctx, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		for _, l := range req.RequestedProducts {
			lines = append(lines, ledger.Line{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	req, err := rc.Repo.ApproveRequest(ctx, c.Param("id"), ledger.ApproveInput{
		Lines:             lines,
		AdminApprovedDays: in.AdminApprovedDays,
		CollectionDate:    collect,
		Message:           in.AdminMessage,
	}, app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusOK, rc.view(req))
}

type rejectReq struct {
	AdminMessage string `json:"adminMessage" binding:"required"`
}

// PUT /api/request/reject/:id
func (rc *RequestController) Reject(c *gin.Context) {
	var in rejectReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	req, err := rc.Repo.RejectRequest(c.Request.Context(), c.Param("id"), strings.TrimSpace(in.AdminMessage), app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusOK, rc.view(req))
}

// PUT /api/request/collect/:id
func (rc *RequestController) Collect(c *gin.Context) {
	req, err := rc.Repo.CollectRequest(c.Request.Context(), c.Param("id"), app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusOK, rc.view(req))
}

type returnReq struct {
	ProductID           string `json:"productId"`
	ProductName         string `json:"productName"`
	ReturnQuantity      int    `json:"returnQuantity"`
	DamagedQuantity     int    `json:"damagedQuantity"`
	UserDamagedQuantity int    `json:"userDamagedQuantity"`
	ReplacedQuantity    int    `json:"replacedQuantity"`
}

// POST /api/request/return/:requestId
func (rc *RequestController) Return(c *gin.Context) {
	var in returnReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if in.ProductID == "" && strings.TrimSpace(in.ProductName) == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "productId or productName is required"})
		return
	}
	req, out, err := rc.Repo.RecordReturn(c.Request.Context(), c.Param("requestId"), db.ReturnSubmission{
		ProductID:   in.ProductID,
		ProductName: in.ProductName,
		ReturnInput: ledger.ReturnInput{
			ReturnQuantity:      in.ReturnQuantity,
			DamagedQuantity:     in.DamagedQuantity,
			UserDamagedQuantity: in.UserDamagedQuantity,
			ReplacedQuantity:    in.ReplacedQuantity,
		},
	}, app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	if out.NoOp {
		c.JSON(http.StatusOK, app.H{"request": rc.view(req), "event": nil, "completed": false})
		return
	}
	rc.changed(c)
	c.JSON(http.StatusOK, app.H{
		"request":   rc.view(req),
		"event":     out.Event,
		"completed": out.Completed,
	})
}
