package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jhoicas/ecf-api/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Violaciones con el nombre JSON del campo (recipient.fiscal_id, lines[0].description).
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateBody valida las etiquetas del DTO y devuelve un *domain.ValidationError
// con todas las violaciones.
func validateBody(body any) error {
	err := validate.Struct(body)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe.Namespace()), reasonFor(fe))
	}
	return verr
}

// fieldPath quita el nombre del struct raíz del namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "requerido"
	case "len":
		return "longitud debe ser " + fe.Param()
	case "min":
		return "mínimo " + fe.Param()
	case "numeric":
		return "debe ser numérico"
	case "email":
		return "correo inválido"
	case "uppercase":
		return "debe ir en mayúsculas"
	default:
		return "no cumple " + fe.Tag()
	}
}
