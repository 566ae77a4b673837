package console

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts all console endpoints onto the given router
// under the /api prefix.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/credential", h.GetCredential)
		r.Put("/credential", h.SubmitCredential)

		r.Route("/factors", func(r chi.Router) {
			r.Get("/", h.ListFactors)
			r.Post("/refresh", h.RefreshFactors)
			r.Post("/range", h.ApplyRange)
			r.Put("/{hour}/edit", h.EditFactor)
			r.Post("/{hour}/save", h.SaveFactor)
		})

		r.Route("/calories", func(r chi.Router) {
			r.Get("/", h.GetCalories)
			r.Post("/refresh", h.RefreshCalories)
			r.Put("/edit", h.EditCalories)
			r.Post("/save", h.SaveCalories)
		})

		r.Route("/calculator", func(r chi.Router) {
			r.Get("/", h.GetCalculator)
			r.Post("/reload", h.ReloadCalculator)
			r.Put("/working", h.EditWorking)
			r.Post("/submit", h.Submit)
		})
	})
}
