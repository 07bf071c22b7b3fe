package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
	"github.com/iota-uz/orgadmin/modules/org/presentation/controllers/dtos"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/application"
	"github.com/iota-uz/orgadmin/pkg/composables"
	"github.com/iota-uz/orgadmin/pkg/httpapi"
)

const APIPrefix = "/admin/api/organizations"

// maxBodyBytes bounds request bodies; a reorder of a few thousand ids fits.
const maxBodyBytes = 1 << 20

type OrgAPIController struct {
	app       application.Application
	org       *services.OrgService
	apiPrefix string
}

func NewOrgAPIController(app application.Application) application.Controller {
	return &OrgAPIController{
		app:       app,
		org:       app.Service(services.OrgService{}).(*services.OrgService),
		apiPrefix: APIPrefix,
	}
}

func (c *OrgAPIController) Key() string {
	return c.apiPrefix
}

func (c *OrgAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("", c.instrumentAPI("org.list", c.List)).Methods(http.MethodGet)
	api.HandleFunc("", c.instrumentAPI("org.create", c.Create)).Methods(http.MethodPost)
	api.HandleFunc("/reorder", c.instrumentAPI("org.reorder", c.Reorder)).Methods(http.MethodPost)
	api.HandleFunc("/stats", c.instrumentAPI("org.stats", c.Stats)).Methods(http.MethodGet)
	api.HandleFunc("/types", c.instrumentAPI("org.types", c.Types)).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}/move", c.instrumentAPI("org.move", c.Move)).Methods(http.MethodPost)
}

// List serves ?format=tree (default) or ?format=flat.
func (c *OrgAPIController) List(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "tree":
		forest, err := c.org.GetTree(r.Context())
		if err != nil {
			writeServiceError(w, r, requestID, err)
			return
		}
		if forest == nil {
			forest = []orgtree.TreeNode{}
		}
		writeOK(w, forest)
	case "flat":
		nodes, err := c.org.ListFlat(r.Context())
		if err != nil {
			writeServiceError(w, r, requestID, err)
			return
		}
		if nodes == nil {
			nodes = []orgtree.Node{}
		}
		writeOK(w, nodes)
	default:
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "format must be tree or flat")
	}
}

func (c *OrgAPIController) Reorder(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req dtos.ReorderDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", "invalid json body")
		return
	}
	if msg, ok := req.Ok(); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", msg)
		return
	}

	if err := c.org.Reorder(r.Context(), req.ToOrder()); err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeOK(w, nil)
}

func (c *OrgAPIController) Move(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_QUERY", "invalid id")
		return
	}

	var req dtos.MoveDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", "invalid json body")
		return
	}
	if msg, ok := req.Ok(); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", msg)
		return
	}

	if err := c.org.Move(r.Context(), id, req.NewParentID); err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	writeOK(w, nil)
}

func (c *OrgAPIController) Create(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var req dtos.CreateDTO
	if err := decodeJSON(w, r, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", "invalid json body")
		return
	}
	if msg, ok := req.Ok(); !ok {
		writeAPIError(w, http.StatusBadRequest, requestID, "ORG_INVALID_BODY", msg)
		return
	}

	node, err := c.org.Create(r.Context(), req.ToInput())
	if err != nil {
		writeServiceError(w, r, requestID, err)
		return
	}
	if err := httpapi.WriteJSON(w, http.StatusCreated, &httpapi.Result{Success: true, Data: node}); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Warn("failed to write response")
	}
}

func (c *OrgAPIController) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.org.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, requestIDFrom(r), err)
		return
	}
	writeOK(w, stats)
}

func (c *OrgAPIController) Types(w http.ResponseWriter, r *http.Request) {
	writeOK(w, c.org.Types(r.Context()))
}

func requestIDFrom(r *http.Request) string {
	id, _ := composables.UseRequestID(r.Context())
	return id
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after json body")
	}
	return nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	composables.UseLogger(r.Context()).WithError(err).Error("org api request failed")
	writeAPIError(w, http.StatusInternalServerError, requestID, "ORG_INTERNAL", "internal error")
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteFailure(w, status, code, message, meta)
}

func writeOK(w http.ResponseWriter, data any) {
	_ = httpapi.WriteOK(w, data)
}
