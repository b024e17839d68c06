package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	config "NexusProject/global/config"
	"NexusProject/tools/errs"
	jwtlib "NexusProject/tools/security"
)

// context keys the REST modules read the verified identity from
const (
	CtxUserIDKey   = "authUserID"   // int64
	CtxUserNameKey = "authUserName" // string
	CtxUserEmail   = "authUserEmail"
)

type Options struct {
	HeaderToken               string // default "Authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "Authorization",
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the bearer token and aborts with the matching code
// error when it is missing or invalid.
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))
		if opts.EnableAuthorizationBearer && strings.HasPrefix(strings.ToLower(token), "bearer ") {
			token = strings.TrimSpace(token[len("bearer "):])
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenMissing)
			return
		}

		claims, err := jwtlib.Verify(jwtlib.DefaultOptions(config.GetJwtSecret()), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, errs.ErrTokenInvalid)
			return
		}

		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUserNameKey, claims.Name)
		c.Set(CtxUserEmail, claims.Email)
		c.Next()
	}
}

// UserID reads the verified caller id out of the request context.
func UserID(c *gin.Context) int64 {
	if v, ok := c.Get(CtxUserIDKey); ok {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
