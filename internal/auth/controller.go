package auth

import (
	"errors"
	"net/http"

	"lodging/internal/shared/middleware"
	"lodging/internal/shared/utils/response"
	"lodging/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) *Controller {
	return &Controller{
		service:   service,
		validator: validator.New(),
	}
}

func (c *Controller) Register(ctx *gin.Context) {
	var req RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}

	if err := c.validator.Struct(&req); err != nil {
		response.RespondBindingError(ctx, "Validation failed", err)
		return
	}

	resp, err := c.service.Register(ctx.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserAlreadyExists):
			response.RespondError(ctx, http.StatusConflict, "User with this email already exists")
		case errors.Is(err, ErrInvalidRole):
			response.RespondError(ctx, http.StatusBadRequest, "Role must be STAFF or ADMIN")
		default:
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to register user")
		}
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusCreated, "User registered successfully", resp, nil)
}

func (c *Controller) Login(ctx *gin.Context) {
	var req LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}

	if err := c.validator.Struct(&req); err != nil {
		response.RespondBindingError(ctx, "Validation failed", err)
		return
	}

	resp, err := c.service.Login(ctx.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			logger.GetDefault().LogAuthFailure(ctx.Request.Context(), "invalid credentials", ctx.ClientIP())
			response.RespondError(ctx, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, ErrAccountDisabled):
			logger.GetDefault().LogAuthFailure(ctx.Request.Context(), "account disabled", ctx.ClientIP())
			response.RespondError(ctx, http.StatusForbidden, "Account is disabled")
		default:
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to login")
		}
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Login successful", resp, nil)
}

func (c *Controller) RefreshToken(ctx *gin.Context) {
	var req RefreshTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}

	if err := c.validator.Struct(&req); err != nil {
		response.RespondBindingError(ctx, "Validation failed", err)
		return
	}

	tokenPair, err := c.service.RefreshToken(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenRevoked):
			response.RespondError(ctx, http.StatusUnauthorized, "Invalid or expired refresh token")
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAccountDisabled):
			response.RespondError(ctx, http.StatusUnauthorized, "Account is not available")
		default:
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to refresh token")
		}
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Token refreshed successfully", tokenPair, nil)
}

func (c *Controller) Logout(ctx *gin.Context) {
	var req LogoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}

	if err := c.service.Logout(ctx.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			response.RespondError(ctx, http.StatusBadRequest, "Invalid refresh token")
			return
		}
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to logout")
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Logged out successfully", nil, nil)
}

func (c *Controller) ChangePassword(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}

	if err := c.validator.Struct(&req); err != nil {
		response.RespondBindingError(ctx, "Validation failed", err)
		return
	}

	err := c.service.ChangePassword(ctx.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.RespondError(ctx, http.StatusUnauthorized, "Current password is incorrect")
		case errors.Is(err, ErrUserNotFound):
			response.RespondError(ctx, http.StatusNotFound, "User not found")
		default:
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to change password")
		}
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Password changed successfully", nil, nil)
}

func (c *Controller) GetMe(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		response.RespondError(ctx, http.StatusUnauthorized, "User not authenticated")
		return
	}

	operator, err := c.service.GetOperator(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.RespondError(ctx, http.StatusNotFound, "User not found")
			return
		}
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to load user")
		return
	}

	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "User data retrieved successfully", operator, nil)
}

// ListOperators handles GET /api/v1/auth/operators
func (c *Controller) ListOperators(ctx *gin.Context) {
	operators, err := c.service.ListOperators(ctx.Request.Context())
	if err != nil {
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
		response.RespondError(ctx, http.StatusInternalServerError, "Failed to list operators")
		return
	}
	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Operators retrieved successfully", operators, nil)
}

// SetOperatorActive handles PATCH /api/v1/auth/operators/:id
func (c *Controller) SetOperatorActive(ctx *gin.Context) {
	actorID, _ := currentUserID(ctx)
	targetID := ctx.Param("id")
	if _, err := uuid.Parse(targetID); err != nil {
		response.RespondError(ctx, http.StatusBadRequest, "Invalid operator ID")
		return
	}

	var req SetActiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondBindingError(ctx, "Invalid request body", err)
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondBindingError(ctx, "Validation failed", err)
		return
	}

	operator, err := c.service.SetOperatorActive(ctx.Request.Context(), actorID, targetID, *req.Active)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			response.RespondError(ctx, http.StatusNotFound, "Operator not found")
		case errors.Is(err, ErrSelfDeactivation):
			response.RespondError(ctx, http.StatusConflict, "You cannot disable your own account")
		default:
			logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
			response.RespondError(ctx, http.StatusInternalServerError, "Failed to update operator")
		}
		return
	}
	response.RespondJSON(ctx, response.StatusSuccess, http.StatusOK, "Operator updated successfully", operator, nil)
}

func currentUserID(ctx *gin.Context) (string, bool) {
	v, ok := ctx.Get(middleware.ContextUserID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
