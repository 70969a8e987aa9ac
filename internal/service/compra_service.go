package service

import (
	"bytes"
	"context"
	"strings"
	"time"

	"clinica/internal/dto"
	"clinica/internal/infra"
	"clinica/internal/model"
	"clinica/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CompraService interface {
	RegistrarCompra(ctx context.Context, usuarioID uuid.UUID, req dto.RegistrarCompraRequest, comprobante *dto.ComprobantePago) (*dto.CompraResponse, error)
	// CancelarCompra lets the purchaser withdraw a purchase still pending review.
	CancelarCompra(ctx context.Context, compraID, usuarioID uuid.UUID) error
	Listar(ctx context.Context, filter dto.CompraFilter) (*dto.CompraListResponse, error)
	Obtener(ctx context.Context, id uuid.UUID) (*dto.CompraResponse, error)
}

type compraService struct {
	compras    repository.CompraRepository
	paquetes   repository.PaqueteRepository
	usuarios   repository.UsuarioRepository
	descuentos DescuentoService
	codec      infra.CodificadorComprobante
	metrics    *infra.Metrics
	ahora      func() time.Time
}

func NewCompraService(
	compras repository.CompraRepository,
	paquetes repository.PaqueteRepository,
	usuarios repository.UsuarioRepository,
	descuentos DescuentoService,
	codec infra.CodificadorComprobante,
	metrics *infra.Metrics,
) CompraService {
	return &compraService{
		compras:    compras,
		paquetes:   paquetes,
		usuarios:   usuarios,
		descuentos: descuentos,
		codec:      codec,
		metrics:    metrics,
		ahora:      time.Now,
	}
}

const metodoEfectivo = "efectivo"

// ── RegistrarCompra ───────────────────────────────────────────────────────────
//   1. Package must exist and be active
//   2. Resolve the best discount
//   3. Encode the proof of payment
//   4. Insert the purchase as "pendiente"
// No entitlement is created and nothing is reserved until an administrator
// validates the purchase.

func (s *compraService) RegistrarCompra(ctx context.Context, usuarioID uuid.UUID, req dto.RegistrarCompraRequest, comprobante *dto.ComprobantePago) (*dto.CompraResponse, error) {
	paqueteID, err := uuid.Parse(req.PaqueteID)
	if err != nil {
		return nil, invalida("paquete_id_invalido", "paquete_id inválido")
	}

	paquete, err := s.paquetes.FindByID(ctx, paqueteID)
	if err != nil {
		return nil, desdeStore(err, ErrPaqueteNoEncontrado)
	}
	if !paquete.Activo {
		return nil, ErrPaqueteNoEncontrado
	}
	usuario, err := s.usuarios.FindByID(ctx, usuarioID)
	if err != nil {
		return nil, desdeStore(err, ErrUsuarioNoEncontrado)
	}
	if !usuario.Activo {
		return nil, ErrUsuarioNoEncontrado
	}

	fechaPago, err := parseFechaOpcional(req.FechaPago)
	if err != nil {
		return nil, invalida("fecha_pago_invalida", "fecha_pago debe tener formato AAAA-MM-DD")
	}

	compra := &model.Compra{
		ID:                uuid.New(),
		UsuarioID:         usuarioID,
		PaqueteID:         paquete.ID,
		MetodoPago:        req.MetodoPago,
		Banco:             req.Banco,
		NumeroTransaccion: req.NumeroTransaccion,
		FechaPago:         fechaPago,
		HoraPago:          req.HoraPago,
		EstadoCompra:      model.CompraPendiente,
		Notas:             req.Notas,
	}

	if err := s.adjuntarComprobante(compra, comprobante); err != nil {
		return nil, err
	}

	d := s.descuentos.MejorDescuento(ctx, usuario, paquete)
	compra.PrecioBase = d.PrecioBase
	compra.DescuentoAplicado = d.Monto
	compra.PrecioFinal = d.PrecioFinal
	compra.ReglaDescuentoID = d.ReglaID

	if err := s.compras.Create(ctx, compra); err != nil {
		log.Error().Err(err).
			Str("usuario_id", usuarioID.String()).
			Str("paquete_id", paquete.ID.String()).
			Msg("compra: insert failed")
		return nil, persistencia(err)
	}

	s.metrics.IncCompra("registrada")
	log.Info().
		Str("compra_id", compra.ID.String()).
		Str("usuario_id", usuarioID.String()).
		Str("precio_final", compra.PrecioFinal.StringFixed(2)).
		Msg("compra: registered, pending review")

	compra.Paquete = paquete
	resp := compraToResponse(compra)
	resp.Mensaje = "Compra registrada. Un administrador revisará tu comprobante de pago."
	return resp, nil
}

// adjuntarComprobante validates and encodes the proof. It is required for
// every payment method except cash.
func (s *compraService) adjuntarComprobante(c *model.Compra, comp *dto.ComprobantePago) error {
	if comp == nil || len(comp.Contenido) == 0 {
		if c.MetodoPago == metodoEfectivo {
			return nil
		}
		return invalida("comprobante_requerido", "El comprobante de pago es obligatorio")
	}
	if !tipoComprobantePermitido(comp.TipoMIME) {
		return invalida("comprobante_tipo_invalido", "El comprobante debe ser una imagen o un PDF")
	}
	blob, err := s.codec.Codificar(bytes.NewReader(comp.Contenido))
	if err != nil {
		return &Error{Kind: KindInvalidRequest, Codigo: "comprobante_invalido", Mensaje: "No se pudo procesar el comprobante", Err: err}
	}
	nombre, tipo := comp.Nombre, comp.TipoMIME
	c.ComprobanteBase64 = &blob
	c.ComprobanteNombre = &nombre
	c.ComprobanteTipo = &tipo
	return nil
}

func tipoComprobantePermitido(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(mime, "image/") || mime == "application/pdf"
}

func parseFechaOpcional(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ── CancelarCompra ────────────────────────────────────────────────────────────

func (s *compraService) CancelarCompra(ctx context.Context, compraID, usuarioID uuid.UUID) error {
	c, err := s.compras.FindByID(ctx, compraID)
	if err != nil {
		return desdeStore(err, ErrCompraNoEncontrada)
	}
	// Other users' purchases look missing rather than forbidden.
	if c.UsuarioID != usuarioID {
		return ErrCompraNoEncontrada
	}
	if c.EstadoCompra != model.CompraPendiente {
		return ErrCompraFinalizada
	}
	ok, err := s.compras.Finalizar(ctx, compraID, repository.FinalizacionCompra{
		Estado:      model.CompraCancelada,
		RevisadoPor: &usuarioID,
		Fecha:       s.ahora(),
	})
	if err != nil {
		log.Error().Err(err).Str("compra_id", compraID.String()).Msg("compra: cancel failed")
		return persistencia(err)
	}
	if !ok {
		return ErrCompraFinalizada
	}
	s.metrics.IncCompra("cancelada")
	log.Info().Str("compra_id", compraID.String()).Msg("compra: cancelled by purchaser")
	return nil
}

// ── Consultas ─────────────────────────────────────────────────────────────────

func (s *compraService) Listar(ctx context.Context, filter dto.CompraFilter) (*dto.CompraListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.UsuarioID != "" {
		if _, err := uuid.Parse(filter.UsuarioID); err != nil {
			return nil, invalida("usuario_id_invalido", "usuario_id inválido")
		}
	}
	compras, total, err := s.compras.List(ctx, filter)
	if err != nil {
		return nil, persistencia(err)
	}
	data := make([]dto.CompraResponse, 0, len(compras))
	for i := range compras {
		data = append(data, *compraToResponse(&compras[i]))
	}
	return &dto.CompraListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *compraService) Obtener(ctx context.Context, id uuid.UUID) (*dto.CompraResponse, error) {
	c, err := s.compras.FindByID(ctx, id)
	if err != nil {
		return nil, desdeStore(err, ErrCompraNoEncontrada)
	}
	return compraToResponse(c), nil
}

func compraToResponse(c *model.Compra) *dto.CompraResponse {
	resp := &dto.CompraResponse{
		ID:                   c.ID.String(),
		UsuarioID:            c.UsuarioID.String(),
		PaqueteID:            c.PaqueteID.String(),
		PrecioBase:           c.PrecioBase,
		DescuentoAplicado:    c.DescuentoAplicado,
		PrecioFinal:          c.PrecioFinal,
		MetodoPago:           c.MetodoPago,
		EstadoCompra:         c.EstadoCompra,
		MotivoRechazo:        c.MotivoRechazo,
		AsignacionCompletada: c.AsignacionCompletada,
		ErrorAsignacion:      c.ErrorAsignacion,
		CreatedAt:            c.CreatedAt.Format(time.RFC3339),
	}
	if c.Paquete != nil {
		resp.Paquete = c.Paquete.Nombre
	}
	if c.UsuarioPaqueteID != nil {
		s := c.UsuarioPaqueteID.String()
		resp.UsuarioPaqueteID = &s
	}
	if c.FechaValidacion != nil {
		s := c.FechaValidacion.Format(time.RFC3339)
		resp.FechaValidacion = &s
	}
	return resp
}
