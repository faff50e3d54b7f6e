package httpapi

import (
	"net/http"

	"taskplanner-admin/internal/auth"
	"taskplanner-admin/internal/rbac"

	"github.com/gin-gonic/gin"
)

var self = map[string]string{rbac.CondTarget: "self"}

// Mount registers the /v1 auth and admin routes on r.
// Public: login, refresh. Everything else passes the guard first.
func Mount(r gin.IRouter, h Handlers, g *auth.Guard) {
	v1 := r.Group("/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)

		// Logout skips the session check so a repeated logout stays a no-op 200.
		// A stale token can only re-invalidate its own ended session here.
		authGroup.POST("/logout", g.Middleware(auth.Requirement{}), h.Logout)
		authGroup.POST("/logout-all", g.Middleware(auth.Requirement{
			Resource: rbac.ResourceSessions, Action: rbac.ActionDelete, Context: self, CheckSession: true,
		}), h.LogoutAll)
		authGroup.GET("/me", g.Middleware(auth.Requirement{CheckSession: true}), h.Me)
		authGroup.GET("/sessions", g.Middleware(auth.Requirement{
			Resource: rbac.ResourceSessions, Action: rbac.ActionRead, Context: self, CheckSession: true,
		}), h.Sessions)
		authGroup.POST("/permissions/check", g.Middleware(auth.Requirement{CheckSession: true}), h.CheckPermission)
	}

	admin := v1.Group("/admin")
	{
		admin.GET("/ping", g.Middleware(auth.Requirement{MinRole: rbac.RoleViewer, CheckSession: true}), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		admin.GET("/admins/:admin_id/sessions", g.Middleware(auth.Requirement{
			Resource: rbac.ResourceSessions, Action: rbac.ActionRead, CheckSession: true,
		}), h.AdminSessions)
		admin.POST("/admins/:admin_id/logout-all", g.Middleware(auth.Requirement{
			Resource: rbac.ResourceSessions, Action: rbac.ActionDelete, CheckSession: true,
		}), h.AdminLogoutAll)
	}
}
