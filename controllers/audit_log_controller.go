package controllers

import (
	"net/http"

	"lab_lending_tool/db"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// GET /api/audit/get?action=request.approve&actorId=&targetId=&page=&size=
func (ac *AuditController) List(c *gin.Context) {
	page, size := pageParams(c)
	res, err := ac.Repo.ListAuditLogs(c.Request.Context(), db.AuditQuery{
		Action:   c.Query("action"),
		ActorID:  c.Query("actorId"),
		TargetID: c.Query("targetId"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
