package org

import (
	"github.com/iota-uz/orgadmin/modules/org/handlers"
	"github.com/iota-uz/orgadmin/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgadmin/modules/org/presentation/controllers"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/application"
)

type ModuleOptions struct {
	// Repository defaults to in-process storage when nil.
	Repository services.OrgRepository
	// Cache may be nil to disable tree caching.
	Cache services.TreeCache
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	repo := m.options.Repository
	if repo == nil {
		repo = persistence.NewMemoryOrgRepository()
	}
	cache := m.options.Cache
	if cache == nil {
		cache = services.NoopTreeCache{}
	}

	app.RegisterServices(
		services.NewOrgService(repo, cache, app.EventPublisher()),
	)
	handlers.RegisterTreeEventHandlers(app, cache)

	app.RegisterControllers(
		controllers.NewOrgAPIController(app),
		controllers.NewOrgUIController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "org"
}
