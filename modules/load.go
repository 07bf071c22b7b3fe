package modules

import (
	"github.com/iota-uz/orgadmin/modules/org"
	"github.com/iota-uz/orgadmin/pkg/application"
)

// BuiltInModules is everything the server binary mounts.
func BuiltInModules(orgOptions *org.ModuleOptions) []application.Module {
	return []application.Module{
		org.NewModule(orgOptions),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.LoadModules(app, externalModules...)
}
