package application

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/pkg/logging"
)

type stubController struct{ key string }

func (c *stubController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(w http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet)
}

func (c *stubController) Key() string { return c.key }

type treeService struct{ name string }

type stubModule struct {
	name string
	err  error
}

func (m stubModule) Name() string { return m.name }

func (m stubModule) Register(app Application) error {
	if m.err != nil {
		return m.err
	}
	app.RegisterServices(&treeService{name: m.name})
	return nil
}

func TestApplication_ControllersAreKeyedAndOrdered(t *testing.T) {
	app := New(&ApplicationOptions{Logger: logging.Discard()})
	app.RegisterControllers(&stubController{key: "/b"}, &stubController{key: "/a"}, &stubController{key: "/b"})

	got := app.Controllers()
	require.Len(t, got, 2)
	require.Equal(t, "/a", got[0].Key())
	require.Equal(t, "/b", got[1].Key())
	require.NotNil(t, app.EventPublisher())
}

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{Logger: logging.Discard()})
	require.NoError(t, LoadModules(app, stubModule{name: "org"}))

	svc := app.Service(treeService{}).(*treeService)
	require.Equal(t, "org", svc.name)
	require.Panics(t, func() { app.Service(stubController{}) })
}

func TestLoadModules_StopsOnError(t *testing.T) {
	app := New(&ApplicationOptions{Logger: logging.Discard()})
	err := LoadModules(app, stubModule{name: "broken", err: errors.New("no pool")}, stubModule{name: "org"})
	require.ErrorContains(t, err, "module broken")
	require.Empty(t, app.Services())
}

func TestSeeder_RunsInOrder(t *testing.T) {
	app := New(&ApplicationOptions{Logger: logging.Discard()})
	var order []int
	s := NewSeeder()
	s.Register(
		func(ctx context.Context, app Application) error { order = append(order, 1); return nil },
		func(ctx context.Context, app Application) error { order = append(order, 2); return nil },
	)
	require.NoError(t, s.Seed(context.Background(), app))
	require.Equal(t, []int{1, 2}, order)
}
