package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liraexchange/internal/api/handlers"
	"liraexchange/internal/api/middleware"
	"liraexchange/internal/service"
	"liraexchange/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Rates     service.RateServiceInterface
	Exchanges service.ExchangeServiceInterface
	Wallets   service.WalletServiceInterface

	// CachedRates - кэш фонового обновления котировок, может быть nil
	CachedRates handlers.CachedRates

	Logger         *utils.Logger
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter // nil - без ограничения
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /rates/
//	│   ├── GET / - активные котировки
//	│   └── POST /quote - расчёт обмена
//	├── /exchanges/ (X-User-ID)
//	│   ├── POST / - создать заявку
//	│   ├── GET / - мои заявки
//	│   └── GET /{id} - заявка
//	├── /wallets/ (X-User-ID)
//	│   ├── POST / - новый кошелёк
//	│   ├── POST /external - внешний адрес
//	│   ├── GET / - мои кошельки
//	│   ├── GET /{id}/transactions - история в сети
//	│   └── PUT /{id}/deactivate - вывести из оборота
//	└── /admin/ (X-User-Role: admin)
//	    ├── POST /rates/seed
//	    ├── GET /exchanges
//	    ├── PUT /exchanges/{id}/confirm-source|complete|fail|refund|notes
//	    ├── GET /wallets
//	    ├── POST /wallets/hot
//	    └── POST /wallets/hot/import
//
// /health, /metrics
//
// Middleware применяется в следующем порядке:
// 1. Recovery
// 2. Logging
// 3. CORS
// 4. RateLimit
// 5. Identify (разбор заголовков, без отказа)
// 6. RequireUser / RequireAdmin (только для защищенных маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = utils.L()
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(deps.RateLimiter.Middleware())
	router.Use(middleware.Identify)

	rateHandler := handlers.NewRateHandler(deps.Rates, deps.Exchanges, deps.CachedRates)
	exchangeHandler := handlers.NewExchangeHandler(deps.Exchanges)
	walletHandler := handlers.NewWalletHandler(deps.Wallets)
	adminHandler := handlers.NewAdminHandler(deps.Exchanges, deps.Wallets)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Публичные котировки
	api.HandleFunc("/rates", rateHandler.GetRates).Methods("GET")
	api.HandleFunc("/rates/quote", rateHandler.Quote).Methods("POST")

	// Маршруты пользователя
	user := api.NewRoute().Subrouter()
	user.Use(middleware.RequireUser)

	user.HandleFunc("/exchanges", exchangeHandler.CreateExchange).Methods("POST")
	user.HandleFunc("/exchanges", exchangeHandler.ListExchanges).Methods("GET")
	user.HandleFunc("/exchanges/{id}", exchangeHandler.GetExchange).Methods("GET")

	user.HandleFunc("/wallets", walletHandler.CreateWallet).Methods("POST")
	user.HandleFunc("/wallets/external", walletHandler.RegisterExternal).Methods("POST")
	user.HandleFunc("/wallets", walletHandler.ListWallets).Methods("GET")
	user.HandleFunc("/wallets/{id}/transactions", walletHandler.ListTransactions).Methods("GET")
	user.HandleFunc("/wallets/{id}/deactivate", walletHandler.Deactivate).Methods("PUT")

	// Маршруты оператора
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)

	admin.HandleFunc("/rates/seed", rateHandler.SeedRates).Methods("POST")
	admin.HandleFunc("/exchanges", adminHandler.ListExchanges).Methods("GET")
	admin.HandleFunc("/exchanges/{id}/confirm-source", adminHandler.ConfirmSource).Methods("PUT")
	admin.HandleFunc("/exchanges/{id}/complete", adminHandler.Complete).Methods("PUT")
	admin.HandleFunc("/exchanges/{id}/fail", adminHandler.Fail).Methods("PUT")
	admin.HandleFunc("/exchanges/{id}/refund", adminHandler.Refund).Methods("PUT")
	admin.HandleFunc("/exchanges/{id}/notes", adminHandler.UpdateNotes).Methods("PUT")
	admin.HandleFunc("/wallets", adminHandler.ListOperatorWallets).Methods("GET")
	admin.HandleFunc("/wallets/hot", adminHandler.CreateHotWallet).Methods("POST")
	admin.HandleFunc("/wallets/hot/import", adminHandler.ImportHotWallet).Methods("POST")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
