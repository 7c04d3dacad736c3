// controllers/webauthn_controller.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"lab_lending_tool/app"
	"lab_lending_tool/logger"
	"lab_lending_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ===== 添加 Passkey（已登录） =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	u := app.CurrentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.waUserFor(ctx, u)
	if err != nil {
		fail(c, err)
		return
	}
	exclude := make([]protocol.CredentialDescriptor, 0, len(wUser.creds))
	for _, cr := range wUser.creds {
		exclude = append(exclude, cr.Descriptor())
	}

	opts, sd, err := s.WA.BeginRegistration(
		wUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
		webauthn.WithExclusions(exclude),
	)
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.Passkeys.SaveReg(ctx, u.ID, sd); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	u := app.CurrentUser(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.waUserFor(ctx, u)
	if err != nil {
		fail(c, err)
		return
	}
	sd, err := s.Passkeys.LoadReg(ctx, u.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}

	if err := s.Repo.AddCredential(ctx, &models.Credential{
		UserID:          u.ID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}); err != nil {
		fail(c, err)
		return
	}
	n, _ := s.Repo.CountCredentials(ctx, u.ID)
	c.JSON(http.StatusOK, app.H{"ok": true, "credentials": n})
}

// ===== Passkey 登录（可发现凭据） =====

type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginPasskeyLogin(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	opts, sd, err := s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	if err != nil {
		fail(c, err)
		return
	}
	sid := uuid.NewString()
	if err := s.Passkeys.SaveAuth(ctx, sid, sd); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishPasskeyLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing sessionId"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	sd, err := s.Passkeys.LoadAuth(ctx, sid)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}

	handler := func(rawID, _ []byte) (webauthn.User, error) {
		u, err := s.Repo.FindUserByCredentialID(ctx, rawID)
		if err != nil {
			return nil, protocol.ErrBadRequest.WithDetails("credential not found")
		}
		return s.waUserFor(ctx, u)
	}
	user, cred, err := s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
		return
	}
	wu := user.(*waUser)
	if err := s.Repo.UpdateCredentialUse(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning); err != nil {
		logger.For(c).Warn("update credential use failed", zap.String("user_id", wu.user.ID), zap.Error(err))
	}

	pair, err := s.issueTokens(c, &wu.user)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}
