package middleware

import (
	"errors"
	"net/http"
	"strings"

	"properpakistan-api/internal/delivery/http/response"
	"properpakistan-api/internal/domain"
	"properpakistan-api/pkg/apperror"
	"properpakistan-api/pkg/auth"
	"properpakistan-api/pkg/logger"
	"properpakistan-api/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const AuthCookieName = "auth_token"

// bearerToken reads the access token from the Authorization header, then the
// auth_token cookie.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := c.Cookie(AuthCookieName); err == nil {
		return cookie
	}
	return ""
}

// VerifyToken authenticates the request against the Supabase JWT and stores the
// subject and email. It does not touch the database, so /auth/sync can run
// before a profile exists.
func VerifyToken(verifier *auth.Verifier, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			m.AuthFailure("missing_token")
			response.Error(c, http.StatusUnauthorized, "Not authorized, no token", nil)
			c.Abort()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			reason := "invalid_token"
			message := "Not authorized, token failed"
			if errors.Is(err, jwt.ErrTokenExpired) {
				reason = "expired_token"
				message = "Not authorized, token expired"
			}
			m.AuthFailure(reason)
			logger.Log.Debug("Token validation failed", "error", err)
			response.Error(c, http.StatusUnauthorized, message, nil)
			c.Abort()
			return
		}

		c.Set(string(domain.KeyUserID), claims.Subject)
		c.Set(string(domain.KeyUserEmail), claims.Email)
		c.Next()
	}
}

// LoadProfile resolves the caller's profile and sets the role from the
// database. The JWT role claim is "authenticated" for every user and is never
// trusted for authorization.
func LoadProfile(authUC domain.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(string(domain.KeyUserID))
		profile, err := authUC.GetCurrentUser(c.Request.Context(), userID)
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == http.StatusNotFound {
				response.Error(c, http.StatusNotFound, "User not found", nil)
			} else {
				logger.Log.Error("Profile lookup failed", "user_id", userID, "error", err)
				response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
			}
			c.Abort()
			return
		}

		c.Set(string(domain.KeyUserRole), profile.Role)
		c.Set("profile", profile)
		c.Next()
	}
}

// RequireAdmin must run after LoadProfile.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(string(domain.KeyUserRole)) != domain.RoleAdmin {
			response.Error(c, http.StatusForbidden, "Access denied. Admin privileges required.", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
