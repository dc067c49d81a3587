package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SuccessResponse(message string, data interface{}) Response {
	return Response{Success: true, Code: fiber.StatusOK, Message: message, Data: data}
}

func ErrorResponse(code int, message string) Response {
	return Response{Success: false, Code: code, Message: message, Error: message}
}

// ErrorHandler renders any error that reaches fiber as the JSON envelope.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		code = fiber.StatusBadRequest
	}
	return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
}
