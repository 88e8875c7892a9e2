package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/webshop-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware интернет-магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты: регистрация, вход, витрина и отзывы.
		r.Post("/users/register", h.Register)
		r.Post("/users/login", h.Login)

		r.Get("/goods", h.GetProducts)
		r.Get("/goods/{id}", h.GetProduct)
		r.Get("/goods/group", h.GetGroups)
		r.Get("/order/comment", h.GetComments)

		r.Post("/order/alipay/callback", h.AlipayCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/users/{id}", h.GetUser)

			r.Post("/users/address", h.CreateAddr)
			r.Get("/users/address", h.GetAddrs)
			r.Put("/users/address/{id}", h.UpdateAddr)
			r.Delete("/users/address/{id}", h.DeleteAddr)
			r.Put("/users/address/{id}/default", h.SetDefaultAddr)

			r.Post("/goods/collect", h.CreateCollect)
			r.Get("/goods/collect", h.GetCollects)
			r.Delete("/goods/collect/{id}", h.DeleteCollect)

			r.Post("/cart/goods", h.AddToCart)
			r.Get("/cart/goods", h.GetCart)
			r.Put("/cart/goods/{id}/checked", h.ToggleCartLine)
			r.Put("/cart/goods/{id}/number", h.UpdateCartLineNumber)
			r.Delete("/cart/goods/{id}", h.DeleteCartLine)

			r.Post("/order/submit", h.SubmitOrder)
			r.Get("/order/order", h.GetOrders)
			r.Get("/order/order/{id}", h.GetOrder)
			r.Put("/order/order/{id}", h.CloseOrder)

			r.Post("/order/comment", h.SubmitComments)

			r.Post("/order/alipay", h.CreatePayment)
			r.Get("/order/alipay", h.GetPayResult)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
