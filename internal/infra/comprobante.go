package infra

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrComprobanteVacio is returned when the uploaded proof has no content.
var ErrComprobanteVacio = errors.New("comprobante vacío")

// CodificadorComprobante turns a proof-of-payment upload into the opaque
// string stored on the purchase row.
type CodificadorComprobante interface {
	Codificar(r io.Reader) (string, error)
}

type codificadorBase64 struct {
	maxBytes int64
}

// NewCodificadorBase64 returns an encoder that rejects inputs larger than
// maxBytes (no limit when maxBytes <= 0).
func NewCodificadorBase64(maxBytes int64) CodificadorComprobante {
	return &codificadorBase64{maxBytes: maxBytes}
}

func (c *codificadorBase64) Codificar(r io.Reader) (string, error) {
	if c.maxBytes > 0 {
		r = io.LimitReader(r, c.maxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("leer comprobante: %w", err)
	}
	if len(raw) == 0 {
		return "", ErrComprobanteVacio
	}
	if c.maxBytes > 0 && int64(len(raw)) > c.maxBytes {
		return "", fmt.Errorf("comprobante excede %d bytes", c.maxBytes)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
