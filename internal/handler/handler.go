package handler

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finapi/internal/middleware"
	"github.com/Dan9191/finapi/internal/service"
)

type Handler struct {
	users      *service.UserService
	statements *service.StatementService
	log        *logrus.Logger
	validate   *validator.Validate
	now        func() time.Time
}

func NewHandler(users *service.UserService, statements *service.StatementService, log *logrus.Logger) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		users:      users,
		statements: statements,
		log:        log,
		validate:   validate,
		now:        time.Now,
	}
}

// RegisterRoutes mounts the API under /api/v1 on r
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	// Public routes
	api.HandleFunc("/users", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.Login).Methods(http.MethodPost)

	// Protected routes
	authRouter := api.NewRoute().Subrouter()
	authRouter.Use(middleware.AuthMiddleware(h.users))
	authRouter.HandleFunc("/profile", h.Profile).Methods(http.MethodGet)
	authRouter.HandleFunc("/statements/balance", h.GetBalance).Methods(http.MethodGet)
	authRouter.HandleFunc("/statements/deposit", h.Deposit).Methods(http.MethodPost)
	authRouter.HandleFunc("/statements/withdraw", h.Withdraw).Methods(http.MethodPost)
	authRouter.HandleFunc("/statements/transfer/{user_id}", h.Transfer).Methods(http.MethodPost)
	authRouter.HandleFunc("/statements/{statement_id}", h.GetStatement).Methods(http.MethodGet)
}

// Health reports that the process is serving requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
