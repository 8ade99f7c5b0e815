// admin.go - privacy-conscious visitor tracking and the owner dashboard
package main

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const adminCookie = "admin_token"

// Privacy-conscious visitor tracking middleware
func visitorTrackingMiddleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip tracking for static files, fragments and admin pages
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/static/") ||
			strings.HasPrefix(path, "/images/") ||
			strings.HasPrefix(path, "/files/") ||
			strings.HasPrefix(path, "/admin/") ||
			strings.HasPrefix(path, "/api/") ||
			strings.HasPrefix(path, "/chat") ||
			strings.HasPrefix(path, "/favicon") ||
			path == "/healthz" ||
			c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		// Respect Do Not Track header
		if c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}

		ip, userAgent, at := c.ClientIP(), c.GetHeader("User-Agent"), time.Now()
		go func() {
			if err := store.RecordVisit(ip, userAgent, path, at); err != nil {
				log.Printf("Error recording visitor: %v", err)
			}
		}()
		c.Next()
	}
}

// adminCredentials falls back to development defaults only in debug mode.
// In release mode an unset password disables the login.
func (a *App) adminCredentials() (string, string, bool) {
	username, password := a.cfg.AdminUsername, a.cfg.AdminPassword
	if username == "" {
		username = "admin"
	}
	if password == "" {
		if gin.Mode() != gin.DebugMode {
			return "", "", false
		}
		log.Println("WARNING: Using default admin password. Set ADMIN_PASSWORD environment variable.")
		password = "admin123"
	}
	return username, password, true
}

// Middleware to check admin authentication
func (a *App) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

func setupAdminRoutes(r *gin.Engine, a *App) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title": "Privacy Policy",
			"site":  a.site,
		})
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{
			"title": "Admin Login",
		})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		username := c.PostForm("username")
		password := c.PostForm("password")
		hashed := a.store.hashIP(c.ClientIP())

		wantUser, wantPass, enabled := a.adminCredentials()
		if enabled &&
			subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1 &&
			subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1 {
			// 24 hours
			c.SetCookie(adminCookie, a.adminToken, 3600*24, "/admin", "", false, true)
			log.Printf("Admin login successful from %s", hashed)
			c.Redirect(http.StatusFound, "/admin/dashboard")
			return
		}

		log.Printf("Failed admin login attempt from %s", hashed)
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"title": "Admin Login",
			"error": "Invalid credentials",
		})
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", false, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(a.adminAuthMiddleware())

	adminGroup.GET("/dashboard", func(c *gin.Context) {
		stats, err := a.store.Stats(time.Now())
		if err != nil {
			log.Printf("Error loading admin stats: %v", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}

		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"stats":        stats,
			"chatSessions": a.chats.Len(),
		})
	})

	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := a.store.Stats(time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// Privacy compliance: purge expired visitor data now rather than waiting
	// for the janitor.
	adminGroup.POST("/privacy/cleanup", func(c *gin.Context) {
		rows, err := a.store.CleanupOldVisitors(time.Now(), visitorRetention)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup complete", "removed": rows})
	})

	adminGroup.GET("/export/stats", func(c *gin.Context) {
		stats, err := a.store.Stats(time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		log.Printf("Admin stats exported by %s", a.store.hashIP(c.ClientIP()))
		c.JSON(http.StatusOK, stats)
	})
}
