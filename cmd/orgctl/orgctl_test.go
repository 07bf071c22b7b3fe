package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgadmin/modules/org"
	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgadmin/pkg/application"
	"github.com/iota-uz/orgadmin/pkg/logging"
	"github.com/iota-uz/orgadmin/pkg/middleware"
	"github.com/iota-uz/orgadmin/pkg/server"
)

func ptr[T any](v T) *T { return &v }

// P(1) -> A(2), B(3), C(4); A -> D(5)
func startServer(t *testing.T) string {
	t.Helper()
	logger := logging.Discard()
	repo := persistence.NewMemoryOrgRepository(
		orgtree.Node{ID: 1, OrgType: "company", Name: "P"},
		orgtree.Node{ID: 2, OrgType: "department", Name: "A", ParentID: ptr[int64](1), DisplayOrder: 0},
		orgtree.Node{ID: 3, OrgType: "department", Name: "B", ParentID: ptr[int64](1), DisplayOrder: 1},
		orgtree.Node{ID: 4, OrgType: "department", Name: "C", ParentID: ptr[int64](1), DisplayOrder: 2},
		orgtree.Node{ID: 5, OrgType: "team", Name: "D", ParentID: ptr[int64](2), DisplayOrder: 0},
	)
	app := application.New(&application.ApplicationOptions{Logger: logger})
	app.RegisterMiddleware(
		middleware.WithLogger(logger, middleware.DefaultLoggerOptions()),
		middleware.CSRF(middleware.CSRFOptions{
			AuthKey:     []byte(strings.Repeat("s", 32)),
			CookieName:  "csrf_token",
			HeaderName:  "X-CSRFToken",
			APIPrefixes: []string{"/admin/api/"},
		}, logger),
	)
	require.NoError(t, application.LoadModules(app, org.NewModule(&org.ModuleOptions{Repository: repo})))

	srv := httptest.NewServer(server.NewHTTPServer(app, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--base-url", baseURL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTreePrintsIndentedNodes(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "tree")
	require.NoError(t, err)
	require.Equal(t, strings.Join([]string{
		"P [1] (company)",
		"  A [2] (department)",
		"    D [5] (team)",
		"  B [3] (department)",
		"  C [4] (department)",
		"",
	}, "\n"), out)
}

func TestReorderBeforeSibling(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "reorder", "4", "--before", "2")
	require.NoError(t, err)
	require.Equal(t, "saved 4,2,3\n", out)

	out, err = run(t, url, "tree")
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "C [4]"), strings.Index(out, "A [2]"))
}

func TestReorderAfterSiblingAsJSON(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "--json", "reorder", "2", "--after", "4")
	require.NoError(t, err)
	require.JSONEq(t, `{"outcome":"saved","parent_id":1,"order":[3,4,2]}`, out)
}

func TestReorderAcrossParentsIsUsageError(t *testing.T) {
	url := startServer(t)

	_, err := run(t, url, "reorder", "5", "--before", "3")
	require.Error(t, err)
	require.Equal(t, exitUsage, exitCode(err))
}

func TestExplicitOrderRejectedByServer(t *testing.T) {
	url := startServer(t)

	_, err := run(t, url, "reorder", "--parent", "1", "--order", "4,2")
	require.Error(t, err)
	require.Equal(t, exitRejected, exitCode(err))
	require.Contains(t, err.Error(), "ORG_INVALID_ORDER")

	out, err := run(t, url, "reorder", "--parent", "1", "--order", "3,2,4")
	require.NoError(t, err)
	require.Equal(t, "saved 3,2,4\n", out)
}

func TestMoveGuardsOwnSubtree(t *testing.T) {
	url := startServer(t)

	_, err := run(t, url, "move", "2", "--parent", "5")
	require.Error(t, err)
	require.Equal(t, exitRejected, exitCode(err))

	out, err := run(t, url, "move", "5", "--parent", "root")
	require.NoError(t, err)
	require.Equal(t, "saved\n", out)

	out, err = run(t, url, "tree")
	require.NoError(t, err)
	require.Contains(t, out, "\nD [5] (team)\n")
}

func TestCreatePrintsNewID(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "create", "--type", "team", "--name", "Ops", "--code", "OPS", "--parent", "3")
	require.NoError(t, err)
	require.Equal(t, "6\n", out)

	_, err = run(t, url, "create", "--type", "team", "--name", "Ops 2", "--code", "OPS")
	require.Error(t, err)
	require.Equal(t, exitRejected, exitCode(err))
}

func TestDashboardPrintsStatsAndTypes(t *testing.T) {
	url := startServer(t)

	out, err := run(t, url, "dashboard")
	require.NoError(t, err)
	require.Contains(t, out, "total=5 roots=1 max_depth=2\n")
	require.Contains(t, out, "  department: 3\n")
	require.Contains(t, out, "types: company, division, department, team, branch\n")
	require.Contains(t, out, "    D [5] (team)\n")
}

const seedYAML = `version: 1
units:
  - name: Sales
    type: division
    code: SALES
    children:
      - name: North
        type: team
      - name: South
        type: team
  - name: Support
    type: department
`

func TestSeedCreatesSubtree(t *testing.T) {
	url := startServer(t)
	path := filepath.Join(t.TempDir(), "units.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	out, err := run(t, url, "seed", "-f", path, "--dry-run")
	require.NoError(t, err)
	require.Equal(t, "4 units would be created\n", out)

	out, err = run(t, url, "seed", "-f", path, "--parent", "1")
	require.NoError(t, err)
	require.Equal(t, "6\tSales\n7\tNorth\n8\tSouth\n9\tSupport\n", out)

	out, err = run(t, url, "tree")
	require.NoError(t, err)
	require.Contains(t, out, "  Sales [6] (division) SALES\n    North [7] (team)\n    South [8] (team)\n  Support [9] (department)\n")
}

func TestParseSeedRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no units":       "version: 1\nunits: []\n",
		"unknown field":  "units:\n  - name: A\n    type: team\n    colour: red\n",
		"missing name":   "units:\n  - type: team\n",
		"missing type":   "units:\n  - name: A\n",
		"duplicate code": "units:\n  - name: A\n    type: team\n    code: X\n    children:\n      - name: B\n        type: team\n        code: X\n",
		"bad version":    "version: 7\nunits:\n  - name: A\n    type: team\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(body))
			require.Error(t, err)
		})
	}

	f, err := parseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Equal(t, 4, f.Count())
}

func TestParseParent(t *testing.T) {
	p, err := parseParent("root")
	require.NoError(t, err)
	require.Nil(t, p)

	p, err = parseParent(" 12 ")
	require.NoError(t, err)
	require.Equal(t, int64(12), *p)

	_, err = parseParent("-3")
	require.Error(t, err)
}
