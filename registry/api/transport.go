// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the registry facade over HTTP in the AAS registry
// route shape. Identifiers in paths arrive base64url-encoded.
package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/industrial-twin/twinhub/pkg/errors"
	"github.com/industrial-twin/twinhub/registry"
	"github.com/industrial-twin/twinhub/twins"
)

// bpnHeader carries the authenticated partner identity, extracted
// upstream by the connector's data plane.
const bpnHeader = "Edc-Bpn"

// MakeHandler returns the HTTP handler of the registry facade. stackID
// selects the enablement service stack this deployment serves.
func MakeHandler(svc registry.Service, logger *slog.Logger, stackID string) http.Handler {
	h := handler{svc: svc, logger: logger, stackID: stackID}

	r := chi.NewRouter()
	r.Route("/shell-descriptors", func(r chi.Router) {
		r.Get("/", h.listShells)
		r.Route("/{shellID}", func(r chi.Router) {
			r.Get("/", h.viewShell)
			r.Get("/asset-links", h.listAssetLinks)
			r.Get("/submodel-descriptors", h.listSubmodels)
			r.Get("/submodel-descriptors/{submodelID}", h.viewSubmodel)
		})
	})
	r.Get("/lookup/shellsByAssetLink", h.lookupShells)

	return r
}

type handler struct {
	svc     registry.Service
	logger  *slog.Logger
	stackID string
}

func (h handler) listShells(w http.ResponseWriter, r *http.Request) {
	query := registry.DescriptorQuery{
		PartnerBPN: r.Header.Get(bpnHeader),
		AssetKind:  twins.AssetKind(r.URL.Query().Get("assetKind")),
		AssetType:  r.URL.Query().Get("assetType"),
		Limit:      intQuery(r, "limit"),
		Cursor:     r.URL.Query().Get("cursor"),
	}

	page, err := h.svc.ListShellDescriptors(r.Context(), h.stackID, query)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, pagedResponse{
		PagingMetadata: pagingMetadata{Cursor: page.Cursor},
		Result:         page.Descriptors,
	})
}

func (h handler) viewShell(w http.ResponseWriter, r *http.Request) {
	shellID, err := pathID(r, "shellID")
	if err != nil {
		h.encodeError(w, err)
		return
	}

	sd, err := h.svc.ViewShellDescriptor(r.Context(), h.stackID, shellID, r.Header.Get(bpnHeader))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sd)
}

func (h handler) listAssetLinks(w http.ResponseWriter, r *http.Request) {
	shellID, err := pathID(r, "shellID")
	if err != nil {
		h.encodeError(w, err)
		return
	}

	ids, err := h.svc.ListAssetLinks(r.Context(), h.stackID, shellID, r.Header.Get(bpnHeader))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, ids)
}

func (h handler) listSubmodels(w http.ResponseWriter, r *http.Request) {
	shellID, err := pathID(r, "shellID")
	if err != nil {
		h.encodeError(w, err)
		return
	}

	page, err := h.svc.ListSubmodelDescriptors(r.Context(), h.stackID, shellID, r.Header.Get(bpnHeader), intQuery(r, "limit"), r.URL.Query().Get("cursor"))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, pagedResponse{
		PagingMetadata: pagingMetadata{Cursor: page.Cursor},
		Result:         page.Descriptors,
	})
}

func (h handler) viewSubmodel(w http.ResponseWriter, r *http.Request) {
	shellID, err := pathID(r, "shellID")
	if err != nil {
		h.encodeError(w, err)
		return
	}
	submodelID, err := pathID(r, "submodelID")
	if err != nil {
		h.encodeError(w, err)
		return
	}

	sd, err := h.svc.ViewSubmodelDescriptor(r.Context(), h.stackID, shellID, submodelID, r.Header.Get(bpnHeader))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sd)
}

func (h handler) lookupShells(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.LookupShells(r.Context(), h.stackID, r.URL.Query()["assetIds"], r.Header.Get(bpnHeader), intQuery(r, "limit"), r.URL.Query().Get("cursor"))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, pagedResponse{
		PagingMetadata: pagingMetadata{Cursor: page.Cursor},
		Result:         page.IDs,
	})
}

type pagingMetadata struct {
	Cursor string `json:"cursor,omitempty"`
}

type pagedResponse struct {
	PagingMetadata pagingMetadata `json:"paging_metadata"`
	Result         any            `json:"result"`
}

func (h handler) respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to encode response", slog.Any("error", err))
	}
}

func (h handler) encodeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Contains(err, errors.ErrNotFound):
		code = http.StatusNotFound
	case errors.Contains(err, errors.ErrNotAuthorized):
		code = http.StatusForbidden
	case errors.Contains(err, errors.ErrMalformedEntity):
		code = http.StatusBadRequest
	default:
		code = http.StatusInternalServerError
	}
	h.respond(w, code, map[string]string{"message": err.Error()})
}

func pathID(r *http.Request, name string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(chi.URLParam(r, name))
	if err != nil {
		return "", errors.Wrap(errors.ErrMalformedEntity, err)
	}
	return string(raw), nil
}

func intQuery(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
