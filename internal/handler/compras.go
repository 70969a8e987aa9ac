package handler

import (
	"io"
	"net/http"

	"clinica/internal/apierror"
	"clinica/internal/dto"
	"clinica/internal/service"

	"github.com/gin-gonic/gin"
)

type ComprasHandler struct {
	svc            service.CompraService
	validacion     service.ValidacionService
	maxComprobante int64
}

func NewComprasHandler(svc service.CompraService, validacion service.ValidacionService, maxComprobante int64) *ComprasHandler {
	return &ComprasHandler{svc: svc, validacion: validacion, maxComprobante: maxComprobante}
}

// Registrar godoc
// @Summary      Registrar compra de paquete
// @Description  Crea la compra en estado pendiente con el comprobante adjunto (multipart). No asigna el paquete.
// @Tags         compras
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Success      201  {object} dto.CompraResponse
// @Failure      400  {object} apierror.APIError
// @Router       /v1/compras [post]
func (h *ComprasHandler) Registrar(c *gin.Context) {
	usuarioID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.RegistrarCompraRequest
	if !bindFormAndValidate(c, &req) {
		return
	}

	comprobante, ok := h.leerComprobante(c)
	if !ok {
		return
	}

	resp, err := h.svc.RegistrarCompra(c.Request.Context(), usuarioID, req, comprobante)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// leerComprobante reads the optional "comprobante" file part.
func (h *ComprasHandler) leerComprobante(c *gin.Context) (*dto.ComprobantePago, bool) {
	fh, err := c.FormFile("comprobante")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, true
		}
		c.JSON(http.StatusBadRequest, apierror.WithCode("comprobante_invalido", "No se pudo leer el comprobante"))
		return nil, false
	}
	if h.maxComprobante > 0 && fh.Size > h.maxComprobante {
		c.JSON(http.StatusRequestEntityTooLarge, apierror.WithCode("comprobante_muy_grande", "El comprobante excede el tamaño máximo permitido"))
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("comprobante_invalido", "No se pudo leer el comprobante"))
		return nil, false
	}
	defer f.Close()
	contenido, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("comprobante_invalido", "No se pudo leer el comprobante"))
		return nil, false
	}
	return &dto.ComprobantePago{
		Nombre:    fh.Filename,
		TipoMIME:  fh.Header.Get("Content-Type"),
		Contenido: contenido,
	}, true
}

// Listar godoc
// @Summary      Listar compras
// @Description  Administradores ven todas; los usuarios solo las propias.
// @Tags         compras
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object} dto.CompraListResponse
// @Router       /v1/compras [get]
func (h *ComprasHandler) Listar(c *gin.Context) {
	var filter dto.CompraFilter
	if !bindFormAndValidate(c, &filter) {
		return
	}
	if !esStaff(c) {
		id, ok := actor(c)
		if !ok {
			return
		}
		filter.UsuarioID = id.String()
	}
	resp, err := h.svc.Listar(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ComprasHandler) Obtener(c *gin.Context) {
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
			respondError(c, service.ErrCompraNoEncontrada)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Cancelar godoc
// @Summary      Cancelar compra pendiente
// @Tags         compras
// @Security     BearerAuth
// @Success      204
// @Failure      409  {object} apierror.APIError
// @Router       /v1/compras/{id} [delete]
func (h *ComprasHandler) Cancelar(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	usuarioID, ok := actor(c)
	if !ok {
		return
	}
	if err := h.svc.CancelarCompra(c.Request.Context(), id, usuarioID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Validar godoc
// @Summary      Validar o rechazar compra
// @Description  Finaliza una compra pendiente. Al validar se asigna el paquete automáticamente; si la asignación falla la compra queda validada y se informa el motivo.
// @Tags         compras
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.ValidarCompraRequest true "Decisión"
// @Success      200  {object} dto.ValidacionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/compras/{id}/validacion [post]
func (h *ComprasHandler) Validar(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	revisorID, ok := actor(c)
	if !ok {
		return
	}
	var req dto.ValidarCompraRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.validacion.Validar(c.Request.Context(), id, req, revisorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
