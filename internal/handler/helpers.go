package handler

import (
	"errors"
	"net/http"
	"reflect"

	"clinica/internal/apierror"
	"clinica/internal/middleware"
	"clinica/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails; the
// caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

// bindFormAndValidate is bindAndValidate for query strings and multipart forms.
func bindFormAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBind(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Parametros invalidos: "+err.Error()))
		return false
	}
	return validateStruct(c, req)
}

func validateStruct(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range ves {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// statusFor maps a service error kind onto its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidRequest:
		return http.StatusBadRequest
	case service.KindDuplicate, service.KindAlreadyFinalized:
		return http.StatusConflict
	case service.KindPersistence:
		return http.StatusServiceUnavailable
	case service.KindPartialFailure:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the envelope for a service error. Anything that is not
// a *service.Error is an internal failure and goes through ErrorHandler.
func respondError(c *gin.Context, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		_ = c.Error(err)
		return
	}
	codigo := se.Codigo
	if codigo == "" {
		codigo = string(se.Kind)
	}
	c.JSON(statusFor(se.Kind), apierror.WithCode(codigo, se.Mensaje))
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.WithCode("id_invalido", "ID invalido"))
		return uuid.Nil, false
	}
	return id, true
}

// actor returns the authenticated user's id from the JWT claims.
func actor(c *gin.Context) (uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Autenticacion requerida"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token invalido o expirado"))
		return uuid.Nil, false
	}
	return id, true
}

// esStaff reports whether the caller may act on other users' data.
func esStaff(c *gin.Context) bool {
	claims := middleware.GetClaims(c)
	return claims != nil && (claims.Rol == middleware.RolAdministrador || claims.Rol == middleware.RolFisioterapeuta)
}
