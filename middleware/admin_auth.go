package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/vinetrail/vinetrail-backend/errors"
)

// Staff roles accepted on the admin API.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// StaffClaims are the claims carried by an admin API token.
type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseStaffToken validates an HS256 token signed with secret and returns its claims.
func ParseStaffToken(tokenString string, secret []byte) (*StaffClaims, error) {
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Unauthorized("token_expired", "Your session has expired")
		}
		return nil, apperrors.Unauthorized("invalid_token", "Invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return nil, apperrors.Unauthorized("invalid_claims", "Invalid token structure")
	}
	return claims, nil
}

// IssueStaffToken signs a token for subject with the given role. Used by the
// operations CLI and tests.
func IssueStaffToken(subject, role string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// AdminAuth requires a bearer token whose role is staff or admin.
func AdminAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			_ = c.Error(apperrors.Unauthorized("missing_auth", "Authentication required"))
			c.Abort()
			return
		}

		claims, err := ParseStaffToken(strings.TrimSpace(tokenString), key)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if claims.Role != RoleStaff && claims.Role != RoleAdmin {
			_ = c.Error(apperrors.Forbidden("Staff access required", ""))
			c.Abort()
			return
		}

		c.Set(StaffIDKey, claims.Subject)
		c.Set(StaffRoleKey, claims.Role)
		c.Next()
	}
}
