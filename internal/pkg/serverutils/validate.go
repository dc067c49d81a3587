package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidationError lists the fields that failed their tags.
type ValidationError struct {
	Fields []string
}

func (e ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Fields, ", ")
}

// ParseAndValidate decodes the body into req and checks its validate tags.
func ParseAndValidate(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	return Validate(req)
}

func Validate(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return out
}
