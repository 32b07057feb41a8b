package utils

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// Cabeceras de identidad que añade el gateway delante de los servicios.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

const userContextKey = "currentUser"

// User es la identidad del llamante.
type User struct {
	ID    string
	Email string
	Name  string
}

// RequireUser rechaza con 401 las peticiones sin X-User-ID.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if id == "" {
			SendUnauthorized(c, "missing "+HeaderUserID+" header")
			c.Abort()
			return
		}
		c.Set(userContextKey, User{
			ID:    id,
			Email: strings.TrimSpace(c.GetHeader(HeaderUserEmail)),
			Name:  strings.TrimSpace(c.GetHeader(HeaderUserName)),
		})
		c.Next()
	}
}

// CurrentUser devuelve la identidad fijada por RequireUser.
func CurrentUser(c *gin.Context) User {
	if v, ok := c.Get(userContextKey); ok {
		if u, ok := v.(User); ok {
			return u
		}
	}
	return User{}
}
