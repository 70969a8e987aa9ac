package router

import (
	"time"

	"clinica/internal/config"
	"clinica/internal/handler"
	"clinica/internal/infra"
	"clinica/internal/middleware"
	"clinica/internal/repository"
	"clinica/internal/service"
	"clinica/internal/worker"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Deps carries the infrastructure built by the composition root.
// RDB may be nil: jobs then run inline and /health reports redis disabled.
type Deps struct {
	DB      *gorm.DB
	RDB     *redis.Client
	Breaker *infra.CircuitBreaker
	Metrics *infra.Metrics
	Stop    <-chan struct{} // closes background goroutines (rate limiter purge)
}

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.Env, cfg.CORSOrigins))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.ErrorHandler())

	// ── Repositories ─────────────────────────────────────────────────────────
	timeout := cfg.StoreCallTimeout()
	usuarioRepo := repository.NewUsuarioRepository(deps.DB, timeout)
	paqueteRepo := repository.NewPaqueteRepository(deps.DB, timeout)
	reglaRepo := repository.NewReglaDescuentoRepository(deps.DB, timeout)
	compraRepo := repository.NewCompraRepository(deps.DB, timeout)
	usuarioPaqueteRepo := repository.NewUsuarioPaqueteRepository(deps.DB, timeout)
	terapiaRepo := repository.NewTerapiaRepository(deps.DB, timeout)

	// ── Services ─────────────────────────────────────────────────────────────
	// Without redis the dispatcher stays a nil interface so validation bumps
	// discount usage inline and skips notifications.
	var dispatcher service.Despachador
	if deps.RDB != nil {
		dispatcher = worker.NewDispatcher(deps.RDB)
	}

	descuentoSvc := service.NewDescuentoService(reglaRepo, usuarioRepo, paqueteRepo)
	asignacionSvc := service.NewAsignacionService(usuarioRepo, paqueteRepo, usuarioPaqueteRepo, service.AsignacionConfig{
		VigenciaMeses:  cfg.VigenciaMeses,
		WorkersMasivos: cfg.BulkAssignWorkers,
		Breaker:        deps.Breaker,
		Metrics:        deps.Metrics,
	})
	compraSvc := service.NewCompraService(compraRepo, paqueteRepo, usuarioRepo, descuentoSvc,
		infra.NewCodificadorBase64(cfg.MaxComprobanteBytes), deps.Metrics)
	validacionSvc := service.NewValidacionService(compraRepo, usuarioRepo, reglaRepo, asignacionSvc, dispatcher, deps.Metrics)
	usuarioPaqueteSvc := service.NewUsuarioPaqueteService(usuarioPaqueteRepo)
	terapiaSvc := service.NewTerapiaService(terapiaRepo, usuarioRepo)

	// ── Handlers ─────────────────────────────────────────────────────────────
	comprasH := handler.NewComprasHandler(compraSvc, validacionSvc, cfg.MaxComprobanteBytes)
	descuentosH := handler.NewDescuentosHandler(descuentoSvc)
	asignacionesH := handler.NewAsignacionesHandler(asignacionSvc)
	usuarioPaquetesH := handler.NewUsuarioPaquetesHandler(usuarioPaqueteSvc)
	terapiasH := handler.NewTerapiasHandler(terapiaSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.DB, deps.RDB, deps.Breaker))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	staff := []string{middleware.RolAdministrador, middleware.RolFisioterapeuta}
	admin := middleware.RequireRole(middleware.RolAdministrador)

	v1 := r.Group("/v1",
		middleware.JWTAuth(cfg.JWTSecret),
		middleware.RateLimiter(cfg.RateLimitPerMinute, time.Minute, deps.Stop),
	)
	{
		compras := v1.Group("/compras")
		{
			compras.POST("", comprasH.Registrar)
			compras.GET("", comprasH.Listar)
			compras.GET("/:id", comprasH.Obtener)
			compras.DELETE("/:id", comprasH.Cancelar)
			compras.POST("/:id/validacion", admin, comprasH.Validar)
		}

		v1.GET("/descuentos/calcular", descuentosH.Calcular)

		asignaciones := v1.Group("/asignaciones", admin)
		{
			asignaciones.POST("", asignacionesH.Asignar)
			asignaciones.POST("/masivo", asignacionesH.AsignarMasivo)
		}

		ups := v1.Group("/usuario-paquetes")
		{
			ups.GET("/:id", usuarioPaquetesH.Obtener)
			ups.PATCH("/:id/estado", admin, usuarioPaquetesH.CambiarEstado)
			ups.POST("/:id/sesiones", middleware.RequireRole(staff...), usuarioPaquetesH.RegistrarSesion)
		}

		usuarios := v1.Group("/usuarios/:id", middleware.RequireRole(staff...))
		{
			usuarios.GET("/paquetes", usuarioPaquetesH.ListarPorUsuario)
			usuarios.GET("/terapias", terapiasH.ListarPorUsuario)
		}
		v1.GET("/mis-paquetes", usuarioPaquetesH.ListarPorUsuario)
		v1.GET("/mis-terapias", terapiasH.ListarPorUsuario)

		terapias := v1.Group("/terapias", middleware.RequireRole(staff...))
		{
			terapias.POST("/asignaciones", terapiasH.Asignar)
			terapias.GET("/asignaciones/:id/progreso", terapiasH.ListarPorAsignacion)
			terapias.PATCH("/progreso/:id", terapiasH.ActualizarProgreso)
			terapias.POST("/progreso/:id/abandonar", terapiasH.Abandonar)
		}
	}

	// Swagger UI (handler annotations), only outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
