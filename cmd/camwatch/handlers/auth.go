package handlers

import (
	"crypto/subtle"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionUserKey is the session key holding the logged in user.
const SessionUserKey = "user"

type AuthHandler struct {
	User       string
	Password   string
	TemplateFS embed.FS
}

func (h *AuthHandler) LoginPage(c *gin.Context) {
	tmpl := template.Must(template.ParseFS(h.TemplateFS, "templates/login.html"))
	tmpl.Execute(c.Writer, nil)
}

func (h *AuthHandler) valid(user, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(h.User))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(h.Password))
	return u&p == 1
}

func (h *AuthHandler) Login(c *gin.Context) {
	session := sessions.Default(c)
	formUser := c.PostForm("username")
	formPassword := c.PostForm("password")

	if !h.valid(formUser, formPassword) {
		slog.Warn("Failed login", "user", formUser, "remote", c.ClientIP())
		c.Status(http.StatusUnauthorized)
		tmpl := template.Must(template.ParseFS(h.TemplateFS, "templates/login.html"))
		tmpl.Execute(c.Writer, gin.H{"error": "Invalid credentials"})
		return
	}

	session.Set(SessionUserKey, h.User)
	if err := session.Save(); err != nil {
		slog.Error("Failed to save session", "error", err)
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.Redirect(http.StatusFound, "/login")
}
