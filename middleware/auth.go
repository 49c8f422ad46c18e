package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const UserContextKey = "userID"

// Auth resolves the calling user. A bearer JWT signed with secret names the
// user in its "sub" (or "user_id") claim and, when present, always decides
// the outcome. Without one the gateway's X-User-ID header is trusted, so the
// service must only be reachable through the gateway. An empty secret
// disables the JWT path.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID string
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") && len(secret) > 0 {
			id, err := userFromToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
				return
			}
			userID = id
		} else {
			userID = c.GetHeader("X-User-ID")
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(UserContextKey, userID)
		c.Next()
	}
}

func userFromToken(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	for _, key := range []string{"sub", "user_id"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("token has no subject")
}

func GetUserID(c *gin.Context) (string, error) {
	if id := c.GetString(UserContextKey); id != "" {
		return id, nil
	}
	return "", errors.New("user ID not found in context")
}
