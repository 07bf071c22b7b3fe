package controllers

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/gorilla/mux"

	"github.com/iota-uz/orgadmin/modules/org/presentation/templates/components/orgui"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/application"
	"github.com/iota-uz/orgadmin/pkg/composables"
)

type OrgUIController struct {
	app      application.Application
	org      *services.OrgService
	basePath string
}

func NewOrgUIController(app application.Application) application.Controller {
	return &OrgUIController{
		app:      app,
		org:      app.Service(services.OrgService{}).(*services.OrgService),
		basePath: "/admin/organizations",
	}
}

func (c *OrgUIController) Key() string {
	return c.basePath
}

func (c *OrgUIController) Register(r *mux.Router) {
	r.HandleFunc(c.basePath, c.TreePage).Methods(http.MethodGet)
	r.HandleFunc("/health", c.Health).Methods(http.MethodGet)
}

// TreePage renders the whole tree server-side; the page's CSRF meta tag is
// what API clients bootstrap their token from.
func (c *OrgUIController) TreePage(w http.ResponseWriter, r *http.Request) {
	logger := composables.UseLogger(r.Context())

	forest, err := c.org.GetTree(r.Context())
	if err != nil {
		logger.WithError(err).Error("failed to load org tree")
		http.Error(w, "failed to load organizations", http.StatusInternalServerError)
		return
	}

	token, _ := composables.UseCSRFToken(r.Context())
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(orgui.Page(orgui.PageProps{
		Title:     "Organizations",
		CSRFToken: token,
		APIBase:   APIPrefix,
		Forest:    forest,
	})).ServeHTTP(w, r)
}

func (c *OrgUIController) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := c.org.Stats(r.Context()); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("health check failed")
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
