package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonmw "github.com/Majnu04/doflow-sub001/internal/common/http/middleware"
	"github.com/Majnu04/doflow-sub001/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type traceResponse struct {
	TraceID    string `json:"trace_id"`
	CtxTraceID string `json:"ctx_trace_id"`
	CtxReqID   string `json:"ctx_request_id"`
	CtxUserID  string `json:"ctx_user_id"`
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/trace", func(c *gin.Context) {
		traceID, _ := c.Get("trace_id")
		s, _ := traceID.(string)
		ctx := c.Request.Context()
		reqID, _ := ctx.Value(contextkey.RequestID).(string)
		ctxTrace, _ := ctx.Value(contextkey.TraceID).(string)
		c.JSON(http.StatusOK, traceResponse{
			TraceID:    s,
			CtxTraceID: ctxTrace,
			CtxReqID:   reqID,
			CtxUserID:  contextkey.UserIDFrom(ctx),
		})
	})
	return router
}

func TestTraceContextMiddleware(t *testing.T) {
	cases := []struct {
		name        string
		cfg         commonmw.TraceContextConfig
		headers     map[string]string
		wantTraceID string
		wantUserID  string
	}{
		{
			name: "generate trace and request id",
			cfg:  commonmw.TraceContextConfig{AllowUserIDHeader: true},
		},
		{
			name:        "preserve trace and user id",
			cfg:         commonmw.TraceContextConfig{AllowUserIDHeader: true, WriteUserIDHeader: true},
			headers:     map[string]string{"X-Trace-Id": "trace-123", "X-User-Id": "learner-1"},
			wantTraceID: "trace-123",
			wantUserID:  "learner-1",
		},
		{
			name:    "user header ignored when not trusted",
			cfg:     commonmw.TraceContextConfig{},
			headers: map[string]string{"X-User-Id": "spoofed"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(commonmw.TraceContextMiddlewareWithConfig(tc.cfg))
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			router.ServeHTTP(rec, req)

			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.TraceID == "" || resp.CtxTraceID != resp.TraceID {
				t.Fatalf("expected trace id in gin and request context, got %+v", resp)
			}
			if resp.CtxReqID == "" || rec.Header().Get("X-Request-Id") != resp.CtxReqID {
				t.Fatalf("expected request id header to match context")
			}
			if tc.wantTraceID != "" && resp.TraceID != tc.wantTraceID {
				t.Fatalf("expected trace id %s, got %s", tc.wantTraceID, resp.TraceID)
			}
			if resp.CtxUserID != tc.wantUserID {
				t.Fatalf("expected user id %q, got %q", tc.wantUserID, resp.CtxUserID)
			}
		})
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "test-secret"
	verifier := commonmw.NewTokenVerifier(secret, "doflow")
	now := time.Now()

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantUserID string
	}{
		{
			name:       "missing token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "valid token",
			header: "Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": "learner-9", "iss": "doflow", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusOK,
			wantUserID: "learner-9",
		},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": "learner-9", "iss": "doflow", "exp": now.Add(-time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong issuer",
			header: "Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": "learner-9", "iss": "other", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong secret",
			header: "Bearer " + signToken(t, "other-secret", jwt.MapClaims{
				"sub": "learner-9", "iss": "doflow", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "refresh token rejected",
			header: "Bearer " + signToken(t, secret, jwt.MapClaims{
				"sub": "learner-9", "iss": "doflow", "typ": "refresh", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(
				commonmw.TraceContextMiddlewareWithConfig(commonmw.TraceContextConfig{}),
				commonmw.AuthMiddleware(verifier),
			)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var resp traceResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response failed: %v", err)
			}
			if resp.CtxUserID != tc.wantUserID {
				t.Fatalf("expected user id %q, got %q", tc.wantUserID, resp.CtxUserID)
			}
		})
	}
}
