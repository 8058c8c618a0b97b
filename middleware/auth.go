// middleware/auth.go

package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/aegis-authz/aegis/logging"
)

// PrincipalClaims carries the caller identity extracted from a bearer token.
type PrincipalClaims struct {
	jwt.StandardClaims
	PrincipalName string `json:"principal_name"`
}

// AuthMiddleware verifies the Authorization bearer token and stores the
// caller's principal ID on the request context. Decisions about what that
// principal may do belong to the evaluator, not here.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			logger.Warn("No Authorization token provided", zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		claims, err := parsePrincipalToken(tokenString, jwtSecret)
		if err != nil {
			logger.Warn("Token verification failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set("principalID", claims.Subject)
		c.Set("principalName", claims.PrincipalName)

		c.Next()
	}
}

func parsePrincipalToken(tokenString, jwtSecret string) (*PrincipalClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &PrincipalClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*PrincipalClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token or wrong claims type")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token carries no subject")
	}
	return claims, nil
}
