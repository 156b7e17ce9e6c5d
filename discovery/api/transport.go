// Copyright (c) Industrial Twin Contributors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the discovery orchestrator over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/industrial-twin/twinhub/discovery"
	"github.com/industrial-twin/twinhub/pkg/errors"
)

// MakeHandler returns the HTTP handler of the discovery orchestrator.
func MakeHandler(svc discovery.Service, logger *slog.Logger) http.Handler {
	h := handler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Route("/discover", func(r chi.Router) {
		r.Post("/shells", h.discoverShells)
		r.Post("/shell", h.discoverShell)
		r.Post("/submodels", h.discoverSubmodels)
		r.Post("/submodel", h.discoverSubmodel)
		r.Post("/submodels/semantic-ids", h.discoverBySemanticIDs)
	})
	r.Route("/partners/{bpn}/registries", func(r chi.Router) {
		r.Get("/", h.knownRegistries)
		r.Delete("/", h.forgetPartner)
	})

	return r
}

type handler struct {
	svc    discovery.Service
	logger *slog.Logger
}

type discoverRequest struct {
	BPN         string               `json:"bpn"`
	ShellID     string               `json:"shellId,omitempty"`
	SubmodelID  string               `json:"submodelId,omitempty"`
	Query       discovery.QuerySpec  `json:"query,omitempty"`
	Policies    []discovery.Policy   `json:"policies,omitempty"`
	Governance  discovery.Governance `json:"governance,omitempty"`
	SemanticIDs []string             `json:"semanticIds,omitempty"`
}

func (h handler) discoverShells(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.encodeError(w, err)
		return
	}

	result, err := h.svc.DiscoverShells(r.Context(), req.BPN, req.Query, req.Policies)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

func (h handler) discoverShell(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.encodeError(w, err)
		return
	}

	sd, err := h.svc.DiscoverShell(r.Context(), req.BPN, req.ShellID, req.Policies)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, sd)
}

func (h handler) discoverSubmodels(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.encodeError(w, err)
		return
	}

	result, err := h.svc.DiscoverSubmodels(r.Context(), req.BPN, req.ShellID, req.Governance)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

func (h handler) discoverSubmodel(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.encodeError(w, err)
		return
	}

	outcome, err := h.svc.DiscoverSubmodel(r.Context(), req.BPN, req.ShellID, req.SubmodelID, req.Governance)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, outcome)
}

func (h handler) discoverBySemanticIDs(w http.ResponseWriter, r *http.Request) {
	req, err := decode(r)
	if err != nil {
		h.encodeError(w, err)
		return
	}

	result, err := h.svc.DiscoverSubmodelBySemanticIDs(r.Context(), req.BPN, req.ShellID, req.SemanticIDs, req.Governance)
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

func (h handler) knownRegistries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.KnownRegistries(r.Context(), chi.URLParam(r, "bpn"))
	if err != nil {
		h.encodeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"count":      len(entries),
		"registries": entries,
	})
}

func (h handler) forgetPartner(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ForgetPartner(r.Context(), chi.URLParam(r, "bpn")); err != nil {
		h.encodeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(r *http.Request) (discoverRequest, error) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return discoverRequest{}, errors.Wrap(errors.ErrMalformedEntity, err)
	}
	if req.BPN == "" {
		return discoverRequest{}, errors.Wrap(errors.ErrMalformedEntity, errors.New("missing bpn"))
	}
	return req, nil
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
	case errors.Contains(err, errors.ErrMalformedEntity):
		code = http.StatusBadRequest
	default:
		code = http.StatusBadGateway
	}
	h.respond(w, code, map[string]string{"message": err.Error()})
}
