package handler

import (
	"net/http"

	"clinica/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DescuentosHandler struct{ svc service.DescuentoService }

func NewDescuentosHandler(svc service.DescuentoService) *DescuentosHandler {
	return &DescuentosHandler{svc: svc}
}

type calcularDescuentoQuery struct {
	PaqueteID string `form:"paquete_id" validate:"required,uuid"`
	UsuarioID string `form:"usuario_id" validate:"omitempty,uuid"` // staff only
}

// Calcular godoc
// @Summary      Previsualizar descuento
// @Description  Devuelve el mejor descuento vigente para el usuario y paquete, sin registrar nada.
// @Tags         descuentos
// @Produce      json
// @Security     BearerAuth
// @Param        paquete_id query string true "UUID del paquete"
// @Success      200  {object} dto.DescuentoCalculado
// @Router       /v1/descuentos/calcular [get]
func (h *DescuentosHandler) Calcular(c *gin.Context) {
	var q calcularDescuentoQuery
	if !bindFormAndValidate(c, &q) {
		return
	}
	usuarioID, ok := actor(c)
	if !ok {
		return
	}
	if q.UsuarioID != "" && esStaff(c) {
		usuarioID = uuid.MustParse(q.UsuarioID)
	}
	resp, err := h.svc.CalcularDescuento(c.Request.Context(), usuarioID, uuid.MustParse(q.PaqueteID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
