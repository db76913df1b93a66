package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-admin-secret-with-enough-length"

func adminRouter() *gin.Engine {
	router := gin.New()
	router.Use(ErrorHandler(), AdminAuth(testSecret))
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"staff": c.GetString(StaffIDKey), "role": c.GetString(StaffRoleKey)})
	})
	return router
}

func callAdmin(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := adminRouter()

	staffToken, err := IssueStaffToken("staff-1", RoleStaff, time.Hour, []byte(testSecret))
	require.NoError(t, err)
	guestToken, err := IssueStaffToken("guest-1", "customer", time.Hour, []byte(testSecret))
	require.NoError(t, err)
	expiredToken, err := IssueStaffToken("staff-1", RoleAdmin, -time.Hour, []byte(testSecret))
	require.NoError(t, err)
	foreignToken, err := IssueStaffToken("staff-1", RoleAdmin, time.Hour, []byte("some-other-secret"))
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, StaffClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "x", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name          string
		authorization string
		status        int
		contains      string
	}{
		{"valid staff token", "Bearer " + staffToken, http.StatusOK, `"staff":"staff-1"`},
		{"missing header", "", http.StatusUnauthorized, "Authentication required"},
		{"not a bearer token", "Basic abc", http.StatusUnauthorized, "Authentication required"},
		{"wrong role", "Bearer " + guestToken, http.StatusForbidden, "Staff access required"},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized, "Your session has expired"},
		{"wrong secret", "Bearer " + foreignToken, http.StatusUnauthorized, "Invalid token"},
		{"alg none", "Bearer " + noneToken, http.StatusUnauthorized, "Invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := callAdmin(router, tt.authorization)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestParseStaffToken_RequiresSubjectAndExpiry(t *testing.T) {
	noSubject, err := IssueStaffToken("", RoleAdmin, time.Hour, []byte(testSecret))
	require.NoError(t, err)
	_, err = ParseStaffToken(noSubject, []byte(testSecret))
	assert.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, StaffClaims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "staff-1"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = ParseStaffToken(noExpiry, []byte(testSecret))
	assert.Error(t, err)

	claims, err := ParseStaffToken(mustToken(t, "staff-2", RoleAdmin), []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "staff-2", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func mustToken(t *testing.T, subject, role string) string {
	t.Helper()
	token, err := IssueStaffToken(subject, role, time.Hour, []byte(testSecret))
	require.NoError(t, err)
	return token
}
