package handler

import (
	"net/http"
	"time"

	"clinica/internal/apierror"
	"clinica/internal/dto"
	"clinica/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AsignacionesHandler struct{ svc service.AsignacionService }

func NewAsignacionesHandler(svc service.AsignacionService) *AsignacionesHandler {
	return &AsignacionesHandler{svc: svc}
}

// Asignar godoc
// @Summary      Asignar paquete a un usuario
// @Description  Asignación directa por un administrador, sin compra. Falla con 409 si el usuario ya tiene el paquete activo.
// @Tags         asignaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AsignarPaqueteRequest true "Asignación"
// @Success      201  {object} dto.AsignacionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/asignaciones [post]
func (h *AsignacionesHandler) Asignar(c *gin.Context) {
	adminID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.AsignarPaqueteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	sol, ok := plantillaAsignacion(c, req.PaqueteID, req.FechaInicio, req.FisioterapeutaID)
	if !ok {
		return
	}
	sol.UsuarioID = uuid.MustParse(req.UsuarioID)
	sol.Precio = req.PrecioFinal
	sol.Descuento = req.Descuento
	sol.MetodoPago = req.MetodoPago
	sol.AsignadoPor = &adminID
	sol.Notas = req.Notas

	res, err := h.svc.Asignar(c.Request.Context(), sol)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.AsignacionResponse{
		UsuarioPaqueteID: res.UsuarioPaqueteID.String(),
		Estrategia:       res.Estrategia,
		Mensaje:          res.Mensaje,
	})
}

// AsignarMasivo godoc
// @Summary      Asignar paquete a varios usuarios
// @Description  Cada usuario se procesa de forma independiente. 200 si todos tuvieron éxito o todos fallaron, 207 si el resultado es mixto.
// @Tags         asignaciones
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AsignacionMasivaRequest true "Asignación masiva"
// @Success      200  {object} dto.AsignacionMasivaResponse
// @Success      207  {object} dto.AsignacionMasivaResponse
// @Router       /v1/asignaciones/masivo [post]
func (h *AsignacionesHandler) AsignarMasivo(c *gin.Context) {
	adminID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.AsignacionMasivaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	plantilla, ok := plantillaAsignacion(c, req.PaqueteID, req.FechaInicio, req.FisioterapeutaID)
	if !ok {
		return
	}
	plantilla.Precio = req.PrecioFinal
	plantilla.MetodoPago = req.MetodoPago
	plantilla.AsignadoPor = &adminID
	plantilla.Notas = req.Notas

	ids := make([]uuid.UUID, len(req.UsuarioIDs))
	for i, raw := range req.UsuarioIDs {
		ids[i] = uuid.MustParse(raw)
	}

	resp := h.svc.AsignarMasivo(c.Request.Context(), ids, plantilla)
	respondMasivo(c, resp)
}

// respondMasivo answers 207 with codigo fallo_parcial on mixed outcomes.
func respondMasivo(c *gin.Context, resp dto.AsignacionMasivaResponse) {
	if err := service.FalloParcial(resp); err != nil {
		c.JSON(http.StatusMultiStatus, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// plantillaAsignacion parses the fields shared by single and bulk requests.
// uuid fields were already checked by the validator.
func plantillaAsignacion(c *gin.Context, paqueteID, fechaInicio string, fisioterapeutaID *string) (service.SolicitudAsignacion, bool) {
	inicio, err := time.Parse("2006-01-02", fechaInicio)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("fecha_inicio_invalida", "fecha_inicio debe tener formato AAAA-MM-DD"))
		return service.SolicitudAsignacion{}, false
	}
	sol := service.SolicitudAsignacion{
		PaqueteID:   uuid.MustParse(paqueteID),
		FechaInicio: inicio,
	}
	if fisioterapeutaID != nil {
		id := uuid.MustParse(*fisioterapeutaID)
		sol.FisioterapeutaID = &id
	}
	return sol, true
}
