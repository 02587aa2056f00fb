package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/yapi/app"
	"github.com/upb/yapi/handlers"
	"github.com/upb/yapi/middleware"
)

// Permission slugs guarding the management endpoints
const (
	PermUserBrowse   = "user-browse"
	PermUserCreate   = "user-create"
	PermUserEdit     = "user-edit"
	PermUserDelete   = "user-delete"
	PermUserManage   = "user-manage"
	PermGroupBrowse  = "group-browse"
	PermGroupCreate  = "group-create"
	PermGroupEdit    = "group-edit"
	PermGroupDelete  = "group-delete"
	healthcheckRoute = "/api/healthcheck"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	logger := deps.Logger

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestMeta)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(chimw.StripSlashes)
	if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
		r.Use(chimw.Timeout(timeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", deps.Config.Security.TokenHeader},
		ExposedHeaders:   []string{"Allow", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	if deps.Unavailable != nil {
		r.Use(middleware.Unavailable(deps.Unavailable, isHealthcheck, logger))
		mountHealth(r, deps.HealthHandler)
		return r
	}

	r.Use(deps.AuthMiddleware.Gateway)

	r.Get("/", deps.HealthHandler.HandleIndex)
	mountHealth(r, deps.HealthHandler)

	// Authentication
	r.Get("/api/auth", deps.AuthHandler.HandleAuthenticate)
	r.Post("/api/auth", deps.AuthHandler.HandleAuthenticate)
	r.HandleFunc("/api/auth/validate", deps.AuthHandler.HandleValidate)
	r.Post("/api/logout", deps.AuthHandler.HandleLogout)
	r.Post("/api/bootstrap", deps.BootstrapHandler.HandleBootstrap)

	require := deps.AuthMiddleware.RequirePermission

	// Users
	users := deps.UserHandler
	r.Get("/api/users/me", users.HandleMe)
	r.With(require(PermUserBrowse)).Get("/api/users", users.HandleListUsers)
	r.With(require(PermUserCreate)).Post("/api/users", users.HandleCreateUser)
	r.With(require(PermUserBrowse)).Get("/api/users/{id}", users.HandleGetUser)
	r.With(require(PermUserEdit)).Patch("/api/users/{id}", users.HandleUpdateUser)
	r.With(require(PermUserDelete)).Delete("/api/users/{id}", users.HandleDeleteUser)
	r.With(require(PermGroupEdit)).Put("/api/users/{id}/groups/{groupID}", users.HandleAddToGroup)
	r.With(require(PermGroupEdit)).Delete("/api/users/{id}/groups/{groupID}", users.HandleRemoveFromGroup)
	r.With(require(PermUserEdit)).Put("/api/users/{id}/attributes/{name}", users.HandleSetAttribute)
	r.With(require(PermUserEdit)).Delete("/api/users/{id}/attributes/{name}", users.HandleDeleteAttribute)

	// Roles and permissions
	r.Group(func(r chi.Router) {
		r.Use(require(PermUserManage))
		roles := deps.RoleHandler
		r.Get("/api/roles", roles.HandleListRoles)
		r.Post("/api/roles", roles.HandleCreateRole)
		r.Get("/api/roles/{id}", roles.HandleGetRole)
		r.Put("/api/roles/{id}/permissions/{permissionID}", roles.HandleGrantPermission)
		r.Delete("/api/roles/{id}/permissions/{permissionID}", roles.HandleRevokePermission)
		r.Get("/api/permissions", roles.HandleListPermissions)
		r.Post("/api/permissions", roles.HandleCreatePermission)
	})

	// Groups
	groups := deps.GroupHandler
	r.With(require(PermGroupBrowse)).Get("/api/groups", groups.HandleListGroups)
	r.With(require(PermGroupCreate)).Post("/api/groups", groups.HandleCreateGroup)
	r.With(require(PermGroupDelete)).Delete("/api/groups/{id}", groups.HandleDeleteGroup)

	return r
}

func mountHealth(r chi.Router, h *handlers.HealthHandler) {
	r.HandleFunc(healthcheckRoute, h.HandleHealthcheck)
	r.Get(healthcheckRoute+"/ready", h.HandleReadiness)
}

func isHealthcheck(path string) bool {
	path = strings.TrimSuffix(path, "/")
	return path == healthcheckRoute || strings.HasPrefix(path, healthcheckRoute+"/")
}
