package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(metricsMiddleware)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/payments", func(r chi.Router) {
		r.Post("/orders", handler.CreateOrder)
		r.Get("/orders/{orderId}", handler.GetOrder)
		r.Post("/orders/{orderId}/checkout", handler.InitiateCheckout)
		r.Get("/orders/{orderId}/events", handler.OrderEvents)
		r.Post("/webhook/key2pay", handler.Webhook)
		r.Get("/return", handler.Return)
	})

	return &Server{Router: r}
}
