package controllers

import (
	"net/http"

	"lab_lending_tool/app"
	"lab_lending_tool/ledger"

	"github.com/gin-gonic/gin"
)

type ReIssueController struct{ *Srv }

func NewReIssueController(s *Srv) *ReIssueController { return &ReIssueController{Srv: s} }

// ownsOrAdmin 非管理员只能看自己申请下的延期
func (rc *ReIssueController) ownsOrAdmin(c *gin.Context, requestRef string) bool {
	if c.GetBool("isAdmin") {
		return true
	}
	req, err := rc.Repo.GetRequest(c.Request.Context(), requestRef)
	if err != nil {
		fail(c, err)
		return false
	}
	if req.UserID != c.GetString("userID") {
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
		return false
	}
	return true
}

// GET /api/reIssued/get/:id
func (rc *ReIssueController) Get(c *gin.Context) {
	ri, err := rc.Repo.GetReIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !rc.ownsOrAdmin(c, ri.RequestID) {
		return
	}
	c.JSON(http.StatusOK, ri)
}

// GET /api/reIssued/request/:requestId
func (rc *ReIssueController) ForRequest(c *gin.Context) {
	ref := c.Param("requestId")
	if !rc.ownsOrAdmin(c, ref) {
		return
	}
	items, err := rc.Repo.ListReIssues(c.Request.Context(), ref)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

// GET /api/reIssued/pending  管理员待审列表
func (rc *ReIssueController) Pending(c *gin.Context) {
	items, err := rc.Repo.ListPendingReIssues(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

type addReIssueReq struct {
	RequestedDays      int    `json:"requestedDays" binding:"required"`
	RequestDescription string `json:"requestDescription" binding:"required"`
}

// POST /api/reIssued/add/:requestId
func (rc *ReIssueController) Add(c *gin.Context) {
	var in addReIssueReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ri, err := rc.Repo.CreateReIssue(c.Request.Context(), c.Param("requestId"), in.RequestedDays, in.RequestDescription, app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusCreated, ri)
}

type reviewReIssueReq struct {
	Status             string `json:"status" binding:"required"`
	AdminApprovedDays  int    `json:"adminApprovedDays"`
	AdminReturnMessage string `json:"adminReturnMessage"`
}

// PUT /api/reIssued/review/:id  status: approved|accepted|rejected
func (rc *ReIssueController) Review(c *gin.Context) {
	var in reviewReIssueReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	decision, ok := ledger.NormalizeReIssueStatus(in.Status)
	if !ok {
		c.JSON(http.StatusBadRequest, app.H{"error": "status must be approved or rejected"})
		return
	}
	ri, req, err := rc.Repo.ReviewReIssue(c.Request.Context(), c.Param("id"), ledger.ReviewInput{
		Decision:          decision,
		AdminApprovedDays: in.AdminApprovedDays,
		Message:           in.AdminReturnMessage,
	}, app.ActorOf(c), rc.clock())
	if err != nil {
		fail(c, err)
		return
	}
	rc.changed(c)
	c.JSON(http.StatusOK, app.H{"reIssue": ri, "request": req})
}
