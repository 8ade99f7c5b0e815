package main

import (
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	chatCookie       = "chat_session"
	visitorRetention = 365 * 24 * time.Hour
)

// App wires the site content to the HTTP routes and their collaborators.
type App struct {
	cfg        *Config
	site       *Site
	bot        *ChatBot
	chats      *ChatStore
	store      *Store
	mailer     Mailer
	adminToken string
}

func NewApp(cfg *Config, site *Site, store *Store, mailer Mailer) *App {
	bot := NewChatBot(site)
	return &App{
		cfg:        cfg,
		site:       site,
		bot:        bot,
		chats:      NewChatStore(bot),
		store:      store,
		mailer:     mailer,
		adminToken: generateToken(),
	}
}

func loadTemplates() *template.Template {
	funcs := template.FuncMap{
		"projectURL": ProjectURL,
		"join":       strings.Join,
		"lower":      strings.ToLower,
		"isUser":     func(m Message) bool { return m.Role == RoleUser },
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// Router builds the gin engine with every page, fragment and API route.
func (a *App) Router() *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(loadTemplates())
	r.Use(tracingMiddleware())
	r.Use(visitorTrackingMiddleware(a.store))

	r.Static("/images", "./images")
	r.Static("/static", "./static")
	r.Static("/files", "./files")

	// Home page route
	r.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{
			"site":     a.site,
			"active":   a.site.Category(""),
			"greeting": a.bot.Greeting(),
		})
	})

	r.GET("/projects/:slug", func(c *gin.Context) {
		project, ok := a.site.ProjectBySlug(c.Param("slug"))
		if !ok {
			a.notFound(c)
			return
		}
		c.HTML(http.StatusOK, "project.html", gin.H{
			"site":    a.site,
			"project": project,
		})
	})

	// Skills tab content
	r.GET("/skills", func(c *gin.Context) {
		c.HTML(http.StatusOK, "skills.html", gin.H{
			"site":   a.site,
			"active": a.site.Category(c.Query("category")),
		})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupContactRoutes(r, a)
	setupChatRoutes(r, a)
	setupSolarRoutes(r)
	setupAPIRoutes(r, a)
	setupAdminRoutes(r, a)

	r.NoRoute(a.notFound)

	return r
}

func (a *App) notFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, "not-found.html", gin.H{
		"site": a.site,
		"path": c.Request.URL.Path,
	})
}

func setupChatRoutes(r *gin.Engine, a *App) {
	render := func(c *gin.Context, sess ChatSession) {
		// Session cookie: no MaxAge, so closing the browser ends the chat.
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(chatCookie, sess.ID, 0, "/", "", false, true)
		c.HTML(http.StatusOK, "chat.html", gin.H{
			"chat": sess,
			"site": a.site,
		})
	}
	sessionID := func(c *gin.Context) string {
		id, _ := c.Cookie(chatCookie)
		return id
	}

	r.GET("/chat", func(c *gin.Context) {
		render(c, a.chats.Get(sessionID(c)))
	})

	r.POST("/chat/toggle", func(c *gin.Context) {
		render(c, a.chats.Toggle(sessionID(c)))
	})

	r.POST("/chat/messages", func(c *gin.Context) {
		_, span := tracer.Start(c.Request.Context(), "chat.reply")
		sess, reply, rule := a.chats.Send(sessionID(c), c.PostForm("message"))
		if reply != "" {
			span.SetAttributes(attribute.String("chat.rule", rule))
			a.recordChat(sess.Messages[len(sess.Messages)-2].Content, rule)
		}
		span.End()
		render(c, sess)
	})

	r.POST("/chat/reset", func(c *gin.Context) {
		render(c, a.chats.Reset(sessionID(c)))
	})
}

func (a *App) recordChat(question, rule string) {
	if err := a.store.RecordChatQuery(question, rule, time.Now()); err != nil {
		log.Printf("Error recording chat query: %v", err)
	}
}

func setupAPIRoutes(r *gin.Engine, a *App) {
	api := r.Group("/api")

	api.GET("/projects", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.site.Projects)
	})

	api.GET("/projects/:slug", func(c *gin.Context) {
		project, ok := a.site.ProjectBySlug(c.Param("slug"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": ErrProjectNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, project)
	})

	api.GET("/skills", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.site.Categories)
	})

	api.POST("/chat", func(c *gin.Context) {
		var req struct {
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}
		question := truncateRunes(strings.TrimSpace(req.Message), maxChatInput)
		if question == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
			return
		}

		_, span := tracer.Start(c.Request.Context(), "chat.reply")
		reply, rule := a.bot.Reply(question)
		span.SetAttributes(attribute.String("chat.rule", rule))
		a.recordChat(question, rule)
		span.End()

		c.JSON(http.StatusOK, gin.H{"reply": reply, "rule": rule})
	})
}

// runJanitor sweeps idle chat sessions and expired visitor rows until ctx
// is cancelled.
func (a *App) runJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	a.cleanup()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cleanup()
		}
	}
}

func (a *App) cleanup() {
	if n := a.chats.Sweep(a.cfg.ChatSessionTTL); n > 0 {
		log.Printf("Dropped %d idle chat sessions", n)
	}
	rows, err := a.store.CleanupOldVisitors(time.Now(), visitorRetention)
	if err != nil {
		log.Printf("Error cleaning up old visitor data: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("Privacy cleanup: Removed %d visitor records older than 12 months", rows)
	}
}
