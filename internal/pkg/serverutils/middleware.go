package serverutils

import (
	"errors"

	"github.com/FazeelAhmedKhan-dev/RegiSphere/pkg/tracker"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// ValidateRequest runs struct tag validation on a request body.
func ValidateRequest(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return NewHttpError(fiber.StatusBadRequest, "Validation failed: "+verrs.Error())
		}
		return NewHttpError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandlerMiddleware translates service-layer errors into JSON error
// responses so controllers can simply return them.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code := fiber.StatusInternalServerError
		message := err.Error()

		var httpErr *HttpError
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &httpErr):
			code = httpErr.Code
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.Is(err, tracker.ErrSessionNotFound):
			code = fiber.StatusNotFound
			message = "Session not found"
		case errors.Is(err, tracker.ErrDuplicateSession):
			code = fiber.StatusConflict
			message = "Session already exists"
		}

		return ctx.Status(code).JSON(fiber.Map{"error": message})
	}
}
