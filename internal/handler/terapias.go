package handler

import (
	"net/http"

	"clinica/internal/dto"
	"clinica/internal/service"

	"github.com/gin-gonic/gin"
)

type TerapiasHandler struct{ svc service.TerapiaService }

func NewTerapiasHandler(svc service.TerapiaService) *TerapiasHandler {
	return &TerapiasHandler{svc: svc}
}

// Asignar godoc
// @Summary      Asignar terapia a varios usuarios
// @Description  Crea una unidad de seguimiento por usuario válido; los inválidos se reportan individualmente.
// @Tags         terapias
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AsignarTerapiaRequest true "Asignación"
// @Success      201  {object} dto.AsignacionTerapiaResponse
// @Success      207  {object} dto.AsignacionTerapiaResponse
// @Router       /v1/terapias/asignaciones [post]
func (h *TerapiasHandler) Asignar(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.AsignarTerapiaRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AsignarTerapia(c.Request.Context(), req, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	switch {
	case service.FalloParcial(resp.AsignacionMasivaResponse) != nil:
		c.JSON(http.StatusMultiStatus, resp)
	case resp.Exitosos == 0:
		c.JSON(http.StatusOK, resp)
	default:
		c.JSON(http.StatusCreated, resp)
	}
}

func (h *TerapiasHandler) ListarPorAsignacion(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListarPorAsignacion(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListarPorUsuario serves /v1/usuarios/:id/terapias (staff) and
// /v1/mis-terapias (caller).
func (h *TerapiasHandler) ListarPorUsuario(c *gin.Context) {
	usuarioID, ok := actor(c)
	if !ok {
		return
	}
	if c.Param("id") != "" {
		if usuarioID, ok = paramUUID(c, "id"); !ok {
			return
		}
	}
	resp, err := h.svc.ListarPorUsuario(c.Request.Context(), usuarioID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TerapiasHandler) ActualizarProgreso(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.ActualizarProgresoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ActualizarProgreso(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TerapiasHandler) Abandonar(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Abandonar(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
