package httpapi

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lizztt/tunzadent"
)

type registerRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required"`
	PasswordConfirm string `json:"password_confirm" binding:"required"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone"`
	Role            string `json:"role"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.Register(requestContext(c), tunzadent.RegistrationRequest{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
		Role:            req.Role,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account_id": result.AccountID,
		"email":      result.Email,
		"message":    "verification email sent",
	})
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

func (s *Server) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.VerifyEmail(requestContext(c), req.Token)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if result.AlreadyVerified {
		c.JSON(http.StatusOK, gin.H{
			"email":   result.Email,
			"message": "email already verified",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"email":   result.Email,
		"message": "email verified",
	})
}

type resendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) resendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	already, err := s.engine.ResendVerification(requestContext(c), req.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if already {
		c.JSON(http.StatusOK, gin.H{"message": "email already verified"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.Login(requestContext(c), tunzadent.LoginRequest{
		Username:         req.Username,
		Password:         req.Password,
		SecondFactorCode: req.Code,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	switch result.Step {
	case tunzadent.StepEmailVerificationRequired:
		c.JSON(http.StatusForbidden, gin.H{
			"requires_email_verification": true,
			"email":                       result.Email,
		})
	case tunzadent.StepSecondFactorSetupRequired:
		c.JSON(http.StatusForbidden, gin.H{
			"requires_2fa_setup": true,
			"account_id":         result.AccountID,
		})
	case tunzadent.StepSecondFactorRequired:
		c.JSON(http.StatusUnauthorized, gin.H{
			"requires_2fa": true,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"access":  result.AccessToken,
			"refresh": result.RefreshToken,
			"user":    profileBody(result.Account),
		})
	}
}

type beginEnrollmentRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

func (s *Server) beginEnrollment(c *gin.Context) {
	var req beginEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	setup, err := s.engine.BeginEnrollment(requestContext(c), req.AccountID, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"qr_code":          base64.StdEncoding.EncodeToString(setup.QRCodePNG),
	})
}

type confirmEnrollmentRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

func (s *Server) confirmEnrollment(c *gin.Context) {
	var req confirmEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.engine.ConfirmEnrollment(requestContext(c), req.AccountID, req.Password, req.Code)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"backup_codes": result.BackupCodes,
		"access":       result.AccessToken,
		"refresh":      result.RefreshToken,
		"user":         profileBody(result.Account),
	})
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	access, refresh, err := s.engine.Refresh(requestContext(c), req.Refresh)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":  access,
		"refresh": refresh,
	})
}

func (s *Server) regenerateBackupCodes(c *gin.Context) {
	auth := authFromContext(c)

	codes, err := s.engine.RegenerateBackupCodes(requestContext(c), auth.AccountID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	auth := authFromContext(c)
	if err := s.engine.ChangePassword(requestContext(c), auth.AccountID, req.OldPassword, req.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed; please log in again"})
}

func (s *Server) logout(c *gin.Context) {
	auth := authFromContext(c)
	if err := s.engine.Logout(requestContext(c), auth.SessionID); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) getProfile(c *gin.Context) {
	auth := authFromContext(c)

	account, err := s.engine.GetAccount(requestContext(c), auth.AccountID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profileBody(account))
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
}

func (s *Server) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	auth := authFromContext(c)
	account, err := s.engine.UpdateProfile(requestContext(c), auth.AccountID, tunzadent.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Email:     req.Email,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profileBody(account))
}

func profileBody(account *tunzadent.Account) gin.H {
	if account == nil {
		return gin.H{}
	}
	return gin.H{
		"id":             account.ID,
		"username":       account.Username,
		"email":          account.Email,
		"first_name":     account.FirstName,
		"last_name":      account.LastName,
		"phone":          account.Phone,
		"role":           account.Role,
		"email_verified": account.EmailVerified,
		"two_fa_enabled": account.SecondFactorEnabled,
	}
}
