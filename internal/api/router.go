package api

import (
	"log"
	"net/http"
	"time"

	"github.com/example/ec-shop-core/internal/api/middleware"
	"github.com/example/ec-shop-core/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every endpoint. Authentication is optional on all /api
// routes; the domain services decide what an anonymous caller may do.
func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: log.Default(), NoColor: true}))
	r.Use(chimw.Recoverer)
	if requestTimeout > 0 {
		r.Use(chimw.Timeout(requestTimeout))
	}

	r.Get("/healthz", handlers.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(jwtService))

		// Auth
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandlers.Register)
			r.Post("/login", authHandlers.Login)
			r.Post("/refresh", authHandlers.Refresh)
			r.Post("/logout", authHandlers.Logout)
			r.With(middleware.AuthMiddleware(jwtService)).Get("/me", authHandlers.Me)
		})

		// Cart
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCart)
			r.Delete("/", handlers.ClearCart)
			r.Post("/items", handlers.AddToCart)
			r.Delete("/items/{productID}", handlers.RemoveFromCart)
		})

		// Products
		r.Route("/products", func(r chi.Router) {
			r.Get("/", handlers.ListProducts)
			r.Post("/", handlers.CreateProduct)
			r.Get("/{id}", handlers.GetProduct)
			r.Put("/{id}", handlers.UpdateProduct)
			r.Patch("/{id}", handlers.PatchProduct)
			r.Delete("/{id}", handlers.DeleteProduct)
		})

		// Categories
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", handlers.ListCategories)
			r.Post("/", handlers.CreateCategory)
			r.Get("/{id}", handlers.GetCategory)
			r.Put("/{id}", handlers.UpdateCategory)
			r.Delete("/{id}", handlers.DeleteCategory)
			r.Get("/{id}/products", handlers.ListCategoryProducts)
		})

		// Orders
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handlers.ListOrders)
			r.Post("/", handlers.PlaceOrder)
			r.Get("/{id}", handlers.GetOrder)
			r.Put("/{id}", handlers.UpdateOrder)
			r.Delete("/{id}", handlers.DeleteOrder)
		})
	})

	return r
}
