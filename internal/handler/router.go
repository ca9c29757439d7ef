package handler

import (
	"net/http"

	"github.com/Fi44er/invest_bot/utils"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(adminHandler *AdminHandler, logger *utils.Logger) *mux.Router {
	router := mux.NewRouter()

	adminHandler.RegisterRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(recoverer(logger))
	router.Use(loggingMiddleware(logger))

	return router
}
