package http

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	appsvc "github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/service"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/infra/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RefreshCookie = "refreshToken"

type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// HealthFunc reports whether the backing stores are reachable.
type HealthFunc func(ctx context.Context) error

type Handler struct {
	svc       appsvc.Service
	log       *zap.Logger
	cookies   CookieConfig
	uploadDir string
	health    HealthFunc
}

func NewHandler(svc appsvc.Service, log *zap.Logger, cookies CookieConfig, uploadDir string, health HealthFunc) *Handler {
	return &Handler{svc: svc, log: log, cookies: cookies, uploadDir: uploadDir, health: health}
}

// Register mounts every route. auth guards the session-bound routes and
// credLimit the login and refresh endpoints.
func (h *Handler) Register(r gin.IRouter, auth, credLimit gin.HandlerFunc) {
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	users := r.Group("/api/v1/users")
	users.POST("/register", h.register)
	users.POST("/login", credLimit, h.login)
	users.POST("/refresh-token", credLimit, h.refresh)

	secured := users.Group("", auth)
	secured.POST("/logout", h.logout)
	secured.POST("/change-password", h.changePassword)
	secured.GET("/current-user", h.currentUser)
	secured.PATCH("/update-account", h.updateAccount)
	secured.PATCH("/avatar", h.updateAvatar)
	secured.PATCH("/cover-image", h.updateCoverImage)
}

func (h *Handler) register(c *gin.Context) {
	var body dto.RegisterDTO
	if err := c.ShouldBind(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	avatar, err := h.saveUpload(c, "avatar")
	if err != nil {
		h.handleError(c, err)
		return
	}
	cover, err := h.saveUpload(c, "coverImage")
	if err != nil {
		discard(avatar)
		h.handleError(c, err)
		return
	}
	// no-op for files the media host already consumed
	defer discard(avatar, cover)
	body.AvatarPath, body.CoverPath = avatar, cover

	h.log.Info("/register", zap.String("user", fingerprint(body.Email)))

	profile, err := h.svc.Register(c.Request.Context(), body)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, profile, "user registered successfully")
}

func (h *Handler) login(c *gin.Context) {
	var body dto.LoginDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Info("/login", zap.String("user", fingerprint(body.Username+body.Email)))

	session, err := h.svc.Login(c.Request.Context(), body)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.issueCookies(c, session.TokenPair)
	response.Success(c, http.StatusOK, gin.H{
		"user":         session.User,
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
	}, "user logged in successfully")
}

func (h *Handler) refresh(c *gin.Context) {
	var body dto.RefreshDTO
	if raw, err := c.Cookie(RefreshCookie); err == nil && raw != "" {
		body.RefreshToken = raw
	} else if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			response.Error(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	pair, err := h.svc.Refresh(c.Request.Context(), body)
	if err != nil {
		h.handleError(c, err)
		return
	}

	h.issueCookies(c, pair)
	response.Success(c, http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "access token refreshed")
}

func (h *Handler) logout(c *gin.Context) {
	profile, claims, ok := identity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized request")
		return
	}

	in := dto.LogoutDTO{UserID: profile.ID, AccessJTI: claims.ID}
	if claims.ExpiresAt != nil {
		in.AccessExp = claims.ExpiresAt.Time
	}
	if err := h.svc.Logout(c.Request.Context(), in); err != nil {
		h.handleError(c, err)
		return
	}

	h.clearCookies(c)
	response.Success(c, http.StatusOK, gin.H{}, "user logged out")
}

func (h *Handler) changePassword(c *gin.Context) {
	profile, _, ok := identity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var body dto.ChangePasswordDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), profile.ID, body); err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{}, "password changed successfully")
}

func (h *Handler) currentUser(c *gin.Context) {
	profile, _, ok := identity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized request")
		return
	}
	current, err := h.svc.CurrentUser(c.Request.Context(), profile.ID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, current, "current user fetched successfully")
}

func (h *Handler) updateAccount(c *gin.Context) {
	profile, _, ok := identity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var body dto.UpdateAccountDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.svc.UpdateAccount(c.Request.Context(), profile.ID, body)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated, "account details updated successfully")
}

func (h *Handler) updateAvatar(c *gin.Context) {
	h.updateImage(c, "avatar", h.svc.UpdateAvatar, "avatar updated successfully")
}

func (h *Handler) updateCoverImage(c *gin.Context) {
	h.updateImage(c, "coverImage", h.svc.UpdateCoverImage, "cover image updated successfully")
}

func (h *Handler) updateImage(
	c *gin.Context,
	field string,
	update func(context.Context, uuid.UUID, string) (model.Profile, error),
	message string,
) {
	profile, _, ok := identity(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "unauthorized request")
		return
	}

	path, err := h.saveUpload(c, field)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer discard(path)

	updated, err := update(c.Request.Context(), profile.ID, path)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated, message)
}

func (h *Handler) healthCheck(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			response.Error(c, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()}, "ok")
}

func (h *Handler) issueCookies(c *gin.Context, pair model.TokenPair) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(middleware.AccessCookie, pair.AccessToken, int(pair.AccessTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(RefreshCookie, pair.RefreshToken, int(pair.RefreshTTL.Seconds()), "/", h.cookies.Domain, h.cookies.Secure, true)
}

func (h *Handler) clearCookies(c *gin.Context) {
	c.SetSameSite(h.cookies.SameSite)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", h.cookies.Domain, h.cookies.Secure, true)
}

// saveUpload stores the multipart file under field in the upload dir.
// A missing file yields an empty path.
func (h *Handler) saveUpload(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		return "", customErrors.NewInvalidArgument(fmt.Sprintf("%s: %v", field, err))
	}

	dst := filepath.Join(h.uploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", customErrors.WrapInternal(err, "save upload")
	}
	return dst, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case customErrors.IsInvalidArgument(err):
		response.Error(c, http.StatusBadRequest, publicMessage(err, customErrors.ErrInvalidArgument))
	case customErrors.IsInvalidCredentials(err):
		response.Error(c, http.StatusUnauthorized, "invalid user credentials")
	case customErrors.IsTokenReused(err):
		response.Error(c, http.StatusUnauthorized, customErrors.ErrTokenReused.Error())
	case customErrors.IsUnauthorized(err):
		response.Error(c, http.StatusUnauthorized, publicMessage(err, customErrors.ErrUnauthorized))
	case customErrors.IsAlreadyExists(err):
		response.Error(c, http.StatusConflict, publicMessage(err, customErrors.ErrAlreadyExists))
	case customErrors.IsNotFound(err):
		response.Error(c, http.StatusNotFound, publicMessage(err, customErrors.ErrNotFound))
	default:
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "internal server error")
	}
}

// publicMessage strips the sentinel prefix added by the error constructors.
func publicMessage(err, kind error) string {
	msg := strings.TrimPrefix(err.Error(), kind.Error()+": ")
	if msg == "" {
		return kind.Error()
	}
	return msg
}

func identity(c *gin.Context) (model.Profile, token.Claims, bool) {
	p, ok := middleware.CurrentProfile(c)
	if !ok {
		return model.Profile{}, token.Claims{}, false
	}
	cl, ok := middleware.CurrentClaims(c)
	return p, cl, ok
}

func fingerprint(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(strings.ToLower(s))))
}

func discard(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
