package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/http/response"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/token"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Register(ctx context.Context, in dto.RegisterDTO) (model.Profile, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *mockService) Login(ctx context.Context, in dto.LoginDTO) (model.Session, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *mockService) Refresh(ctx context.Context, in dto.RefreshDTO) (model.TokenPair, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(model.TokenPair), args.Error(1)
}

func (m *mockService) Logout(ctx context.Context, in dto.LogoutDTO) error {
	return m.Called(ctx, in).Error(0)
}

func (m *mockService) ChangePassword(ctx context.Context, id uuid.UUID, in dto.ChangePasswordDTO) error {
	return m.Called(ctx, id, in).Error(0)
}

func (m *mockService) Authenticate(ctx context.Context, raw string) (model.Profile, token.Claims, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(model.Profile), args.Get(1).(token.Claims), args.Error(2)
}

func (m *mockService) CurrentUser(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *mockService) UpdateAccount(ctx context.Context, id uuid.UUID, in dto.UpdateAccountDTO) (model.Profile, error) {
	args := m.Called(ctx, id, in)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *mockService) UpdateAvatar(ctx context.Context, id uuid.UUID, path string) (model.Profile, error) {
	args := m.Called(ctx, id, path)
	return args.Get(0).(model.Profile), args.Error(1)
}

func (m *mockService) UpdateCoverImage(ctx context.Context, id uuid.UUID, path string) (model.Profile, error) {
	args := m.Called(ctx, id, path)
	return args.Get(0).(model.Profile), args.Error(1)
}

var (
	alice       = model.Profile{ID: uuid.New(), Username: "alice", Email: "alice@example.com", WatchHistory: []string{}}
	aliceClaims = token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "access-jti",
			Subject:   alice.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Kind: token.KindAccess,
	}
)

func setupRouter(t *testing.T, svc *mockService, health HealthFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, zap.NewNop(), CookieConfig{Secure: true, SameSite: http.SameSiteLaxMode}, t.TempDir(), health)

	r := gin.New()
	h.Register(r, middleware.RequireAuth(svc, zap.NewNop()), func(c *gin.Context) { c.Next() })
	return r
}

func authorize(svc *mockService, req *http.Request) {
	svc.On("Authenticate", mock.Anything, "good-access").Return(alice, aliceClaims, nil)
	req.Header.Set("Authorization", "Bearer good-access")
}

func jsonRequest(method, path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (response.Envelope, map[string]any) {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	data, _ := env.Data.(map[string]any)
	return env, data
}

func cookies(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestHandler_Login(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)

	in := dto.LoginDTO{Username: "alice", Password: "Secr3t!"}
	svc.On("Login", mock.Anything, in).Return(model.Session{
		TokenPair: model.TokenPair{AccessToken: "AT1", RefreshToken: "RT1", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		User:      alice,
	}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/users/login", in))

	assert.Equal(t, http.StatusOK, w.Code)
	env, data := decode(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, http.StatusOK, env.StatusCode)
	assert.Equal(t, "AT1", data["accessToken"])
	assert.Equal(t, "RT1", data["refreshToken"])
	user := data["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "refreshToken")

	jar := cookies(w)
	require.Contains(t, jar, middleware.AccessCookie)
	require.Contains(t, jar, RefreshCookie)
	assert.Equal(t, "RT1", jar[RefreshCookie].Value)
	assert.True(t, jar[RefreshCookie].HttpOnly)
	assert.True(t, jar[RefreshCookie].Secure)
	assert.Equal(t, 3600, jar[RefreshCookie].MaxAge)
	svc.AssertExpectations(t)
}

func TestHandler_LoginErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"unknown user", customErrors.NewNotFound("user does not exist"), http.StatusNotFound, "user does not exist"},
		{"wrong password", customErrors.ErrInvalidCredentials, http.StatusUnauthorized, "invalid user credentials"},
		{"bad input", customErrors.NewInvalidArgument("password is required"), http.StatusBadRequest, "password is required"},
		{"store down", customErrors.WrapInternal(errors.New("dial tcp"), "Login"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockService)
			r := setupRouter(t, svc, nil)
			svc.On("Login", mock.Anything, mock.Anything).Return(model.Session{}, tc.err)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/users/login", dto.LoginDTO{Username: "x", Password: "y"}))

			assert.Equal(t, tc.code, w.Code)
			env, _ := decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tc.code, env.StatusCode)
			assert.Equal(t, tc.msg, env.Message)
			assert.Empty(t, cookies(w))
		})
	}
}

func TestHandler_Refresh(t *testing.T) {
	pair := model.TokenPair{AccessToken: "AT2", RefreshToken: "RT2", AccessTTL: time.Minute, RefreshTTL: time.Hour}

	t.Run("cookie", func(t *testing.T) {
		svc := new(mockService)
		r := setupRouter(t, svc, nil)
		svc.On("Refresh", mock.Anything, dto.RefreshDTO{RefreshToken: "RT1"}).Return(pair, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookie, Value: "RT1"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "RT2", data["refreshToken"])
		assert.Equal(t, "RT2", cookies(w)[RefreshCookie].Value)
	})

	t.Run("body", func(t *testing.T) {
		svc := new(mockService)
		r := setupRouter(t, svc, nil)
		svc.On("Refresh", mock.Anything, dto.RefreshDTO{RefreshToken: "RT1"}).Return(pair, nil)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", dto.RefreshDTO{RefreshToken: "RT1"}))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("reused", func(t *testing.T) {
		svc := new(mockService)
		r := setupRouter(t, svc, nil)
		svc.On("Refresh", mock.Anything, dto.RefreshDTO{RefreshToken: "RT0"}).Return(model.TokenPair{}, customErrors.ErrTokenReused)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, jsonRequest(http.MethodPost, "/api/v1/users/refresh-token", dto.RefreshDTO{RefreshToken: "RT0"}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		env, _ := decode(t, w)
		assert.Equal(t, "refresh token is expired or used", env.Message)
	})

	t.Run("missing", func(t *testing.T) {
		svc := new(mockService)
		r := setupRouter(t, svc, nil)
		svc.On("Refresh", mock.Anything, dto.RefreshDTO{}).Return(model.TokenPair{}, customErrors.NewUnauthorized("unauthorized request"))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		env, _ := decode(t, w)
		assert.Equal(t, "unauthorized request", env.Message)
	})
}

func TestHandler_Logout(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	authorize(svc, req)
	svc.On("Logout", mock.Anything, dto.LogoutDTO{
		UserID:    alice.ID,
		AccessJTI: "access-jti",
		AccessExp: aliceClaims.ExpiresAt.Time,
	}).Return(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	jar := cookies(w)
	require.Contains(t, jar, middleware.AccessCookie)
	require.Contains(t, jar, RefreshCookie)
	assert.Equal(t, "", jar[RefreshCookie].Value)
	assert.True(t, jar[RefreshCookie].MaxAge < 0)
	svc.AssertExpectations(t)
}

func TestHandler_SecuredRoutesRequireAuth(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)
	svc.On("Authenticate", mock.Anything, "").Return(model.Profile{}, token.Claims{}, customErrors.NewUnauthorized("unauthorized request"))

	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/users/logout"},
		{http.MethodPost, "/api/v1/users/change-password"},
		{http.MethodGet, "/api/v1/users/current-user"},
		{http.MethodPatch, "/api/v1/users/update-account"},
		{http.MethodPatch, "/api/v1/users/avatar"},
		{http.MethodPatch, "/api/v1/users/cover-image"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, rt.path)
	}
	svc.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestHandler_ChangePassword(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)

	in := dto.ChangePasswordDTO{OldPassword: "old", NewPassword: "new", ConfirmPassword: "new"}
	req := jsonRequest(http.MethodPost, "/api/v1/users/change-password", in)
	authorize(svc, req)
	svc.On("ChangePassword", mock.Anything, alice.ID, in).Return(customErrors.ErrInvalidCredentials)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_CurrentUserAndUpdate(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)
	svc.On("CurrentUser", mock.Anything, alice.ID).Return(alice, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	authorize(svc, req)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, alice.ID.String(), data["id"])

	in := dto.UpdateAccountDTO{Email: "taken@example.com"}
	svc.On("UpdateAccount", mock.Anything, alice.ID, in).Return(model.Profile{}, customErrors.NewAlreadyExists("email already in use"))
	req = jsonRequest(http.MethodPatch, "/api/v1/users/update-account", in)
	req.Header.Set("Authorization", "Bearer good-access")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	env, _ := decode(t, w)
	assert.Equal(t, "email already in use", env.Message)
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandler_Register(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)

	var avatarPath string
	svc.On("Register", mock.Anything, mock.MatchedBy(func(in dto.RegisterDTO) bool {
		if in.Username != "alice" || in.AvatarPath == "" || in.CoverPath != "" {
			return false
		}
		if _, err := os.Stat(in.AvatarPath); err != nil {
			return false
		}
		avatarPath = in.AvatarPath
		return strings.HasSuffix(in.AvatarPath, ".png")
	})).Return(alice, nil)

	req := multipartRequest(t, http.MethodPost, "/api/v1/users/register",
		map[string]string{"username": "alice", "email": "alice@example.com", "fullName": "Alice", "password": "Secr3t!"},
		map[string]string{"avatar": "me.PNG"})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	env, data := decode(t, w)
	assert.Equal(t, http.StatusCreated, env.StatusCode)
	assert.Equal(t, "alice", data["username"])

	_, err := os.Stat(avatarPath)
	assert.True(t, os.IsNotExist(err), "temp upload must not outlive the request")
	svc.AssertExpectations(t)
}

func TestHandler_UpdateAvatar(t *testing.T) {
	svc := new(mockService)
	r := setupRouter(t, svc, nil)

	updated := alice
	updated.AvatarURL = "https://cdn/new.png"
	svc.On("UpdateAvatar", mock.Anything, alice.ID, mock.MatchedBy(func(p string) bool { return p != "" })).Return(updated, nil)

	req := multipartRequest(t, http.MethodPatch, "/api/v1/users/avatar", nil, map[string]string{"avatar": "new.png"})
	authorize(svc, req)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "https://cdn/new.png", data["avatar"])
}

func TestHandler_Health(t *testing.T) {
	svc := new(mockService)

	w := httptest.NewRecorder()
	setupRouter(t, svc, func(context.Context) error { return nil }).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	setupRouter(t, svc, func(context.Context) error { return errors.New("redis down") }).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_Metrics(t *testing.T) {
	w := httptest.NewRecorder()
	setupRouter(t, new(mockService), nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "invalid refresh token", publicMessage(customErrors.NewUnauthorized("invalid refresh token"), customErrors.ErrUnauthorized))
	assert.Equal(t, "not found", publicMessage(customErrors.ErrNotFound, customErrors.ErrNotFound))
}
