package handler

import (
	"net/http"

	"clinica/internal/dto"
	"clinica/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UsuarioPaquetesHandler struct{ svc service.UsuarioPaqueteService }

func NewUsuarioPaquetesHandler(svc service.UsuarioPaqueteService) *UsuarioPaquetesHandler {
	return &UsuarioPaquetesHandler{svc: svc}
}

func (h *UsuarioPaquetesHandler) Obtener(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Obtener(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !esStaff(c) {
		uid, ok := actor(c)
		if !ok {
			return
		}
		if resp.UsuarioID != uid.String() {
			respondError(c, service.ErrUsuarioPaqueteNoEncontrado)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// ListarPorUsuario serves both /v1/usuarios/:id/paquetes (staff) and
// /v1/mis-paquetes (caller).
func (h *UsuarioPaquetesHandler) ListarPorUsuario(c *gin.Context) {
	var usuarioID uuid.UUID
	if c.Param("id") != "" {
		id, ok := paramUUID(c, "id")
		if !ok {
			return
		}
		usuarioID = id
	} else {
		id, ok := actor(c)
		if !ok {
			return
		}
		usuarioID = id
	}
	resp, err := h.svc.ListarPorUsuario(c.Request.Context(), usuarioID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CambiarEstado godoc
// @Summary      Cambiar estado de un paquete asignado
// @Tags         usuario-paquetes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CambiarEstadoRequest true "Nuevo estado"
// @Success      200  {object} dto.UsuarioPaqueteResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/usuario-paquetes/{id}/estado [patch]
func (h *UsuarioPaquetesHandler) CambiarEstado(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.CambiarEstadoRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CambiarEstado(c.Request.Context(), id, req.Estado, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegistrarSesion consumes one session of the entitlement.
func (h *UsuarioPaquetesHandler) RegistrarSesion(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	actorID, ok := actor(c)
	if !ok {
		return
	}
	resp, err := h.svc.RegistrarSesion(c.Request.Context(), id, actorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
