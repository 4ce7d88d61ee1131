package auth

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/habilita/habilita/internal/backend"
	"github.com/habilita/habilita/internal/platform/httpx"
	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/internal/view"
)

const (
	loginPath = "/auth/login"
	returnKey = "return_to"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// RequireSession lets requests through only when the session holds a backend
// token, and attaches that token to the request context for the backend
// client. Pages redirect to the login form; API calls get a 401 problem.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token := ""
		if sess != nil {
			token = sess.BackendToken()
		}
		if token == "" {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			if sess != nil && r.Method == http.MethodGet {
				sess.Set(returnKey, r.URL.RequestURI())
			}
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(backend.WithToken(r.Context(), token)))
	})
}

type loginForm struct {
	Username string `validate:"required,max=150"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

var fieldMessages = map[string]string{
	"Username": "Ingrese su usuario.",
	"Password": "Ingrese su contraseña.",
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				errs[fieldErr.Field()] = fieldMessages[fieldErr.Field()]
			}
		}
	}
	if len(errs) > 0 {
		h.renderLogin(w, r, http.StatusBadRequest, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs})
		return
	}

	identity, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		errs["general"] = "Usuario o contraseña inválidos."
		h.renderLogin(w, r, http.StatusUnauthorized, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs})
		return
	case err != nil:
		h.logger.Error("login", slog.Any("error", err))
		errs["general"] = backend.Message(err)
		h.renderLogin(w, r, http.StatusBadGateway, loginPageData{Form: loginForm{Username: form.Username}, Errors: errs})
		return
	}

	target := "/"
	if sess == nil {
		h.logger.Error("session missing during login")
	} else {
		if back := sess.Get(returnKey); strings.HasPrefix(back, "/") && !strings.HasPrefix(back, "//") {
			target = back
		}
		sess.Delete(returnKey)
		if h.sessionManager != nil {
			if err := h.sessionManager.Renew(r.Context(), sess); err != nil {
				h.logger.Warn("renew session", slog.Any("error", err))
			}
		}
		sess.SetUser(identity.Username)
		sess.SetBackendToken(identity.Token)
		sess.SetDisplayName(identity.Name)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Bienvenido, " + identity.Name + "."})

		expiresAt := time.Now().Add(h.sessionTTL())
		if err := h.service.RegisterSession(r.Context(), sess.ID, identity.Username, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
			h.logger.Warn("register session", slog.Any("error", err))
		}
	}
	h.logger.Info("user signed in", slog.String("user", identity.Username))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		if h.sessionManager != nil {
			h.sessionManager.Destroy(sess)
		}
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) sessionTTL() time.Duration {
	if h.sessionManager == nil {
		return 0
	}
	return h.sessionManager.TTL()
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	var (
		flash     *shared.FlashMessage
		csrfToken string
	)
	if sess != nil {
		flash = sess.PopFlash()
		csrfToken, _ = h.csrfManager.EnsureToken(r.Context(), sess)
	}
	viewData := view.TemplateData{
		Title:       "Iniciar sesión",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	var buf bytes.Buffer
	if err := h.templates.Execute(&buf, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ShowLoginForTest exposes the login form handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) { h.showLogin(w, r) }

// HandleLoginForTest exposes the login submit handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) { h.handleLogin(w, r) }

// HandleLogoutForTest exposes the logout handler for tests.
func (h *Handler) HandleLogoutForTest(w http.ResponseWriter, r *http.Request) { h.handleLogout(w, r) }
