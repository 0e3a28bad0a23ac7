package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"propertyvet/internal/platform/tracing"
	"propertyvet/pkg/platform/middleware/auth"
	"propertyvet/pkg/platform/middleware/metadata"
	"propertyvet/pkg/platform/middleware/requestid"
	"propertyvet/pkg/platform/middleware/requesttime"
)

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(a.http.Middleware)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if a.validator != nil {
			r.Use(auth.RequireAuth(a.validator, a.log))
		}
		a.handler.Register(r)
	})

	return tracing.Middleware("propertyvet")(r)
}
