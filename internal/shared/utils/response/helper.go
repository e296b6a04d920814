package response

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

func RespondError(c *gin.Context, code int, message string) {
	RespondJSON(c, StatusError, code, message, nil, nil)
}

// RespondRetryLater answers 409 with a Retry-After hint for callers that lost
// a lock race and can safely repeat the request.
func RespondRetryLater(c *gin.Context, message string, after int) {
	c.Header("Retry-After", strconv.Itoa(after))
	RespondError(c, http.StatusConflict, message)
}

// RespondBindingError answers 400 for a request gin could not bind. Validator
// failures are reported per field, anything else as the raw error text.
func RespondBindingError(c *gin.Context, message string, err error) {
	RespondJSON(c, StatusError, http.StatusBadRequest, message, nil, BindingDetails(err))
}

func BindingDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}
