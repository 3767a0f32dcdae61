package http

import (
	"log/slog"
	"net/http"

	"github.com/chiwei-platform/bkapp-engine/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(
	appH *ApplicationHandler,
	modelH *AppModelHandler,
	mountH *MountHandler,
	deployH *DeployHandler,
	domainH *DomainHandler,
	apiToken string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))
	r.Use(bodySizeLimitMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/bkapps/applications", func(r chi.Router) {
		r.Use(authMiddleware(apiToken))
		r.Post("/", appH.Create)
		r.Get("/", appH.List)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", appH.Get)
			r.Delete("/", appH.Delete)
			r.Post("/modules/", appH.AddModule)

			r.Route("/modules/{module}", func(r chi.Router) {
				// BkApp 模型
				r.Route("/bkapp_model", func(r chi.Router) {
					r.Post("/", modelH.Init)
					r.Get("/manifests/current/", modelH.GetCurrent)
					r.Put("/manifests/current/", modelH.UpdateCurrent)
					r.Get("/revisions/", modelH.ListRevisions)
					r.Get("/revisions/{id}/", modelH.GetRevision)
					r.Get("/process_specs/", modelH.ListProcessSpecs)
					r.Post("/process_specs/", modelH.ApplyProcessSpecs)
					r.Get("/manual_scaling/", modelH.GetManualScaling)
					r.Delete("/manual_scaling/", modelH.ResetManualScaling)
					r.Post("/app_desc/", modelH.ApplyAppDesc)
				})

				// 挂载
				r.Route("/mounts", func(r chi.Router) {
					r.Get("/", mountH.List)
					r.Post("/", mountH.Create)
					r.Delete("/{id}/", mountH.Delete)
					r.Put("/sources/", mountH.UpsertSource)
				})

				r.Route("/envs/{env}", func(r chi.Router) {
					r.Post("/deploys/", deployH.Create)
					r.Get("/deploys/", deployH.List)
					r.Get("/deploys/latest_succeeded/", deployH.LatestSucceeded)
					r.Get("/deploys/any_succeeded/", deployH.AnySucceeded)
					r.Post("/deploys/{id}/conditions/", deployH.IngestCondition)
					r.Post("/offline/", deployH.Offline)

					r.Get("/domains/", domainH.ListAppDomains)
					r.Put("/domains/", domainH.AssignHosts)
					r.Post("/domains/autogen/", domainH.SyncAutoGen)
					r.Put("/domains/target/", domainH.SwitchTarget)
					r.Get("/ingresses/", domainH.ListIngresses)

					r.Post("/custom_domains/", domainH.CreateCustom)
					r.Get("/custom_domains/", domainH.ListCustom)
					r.Post("/custom_domains/sync/", domainH.SyncCustom)
					r.Delete("/custom_domains/{id}/", domainH.DeleteCustom)
				})
			})
		})
	})

	return r
}
