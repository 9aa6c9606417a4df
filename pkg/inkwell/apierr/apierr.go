// Package apierr renders API errors in a single JSON shape.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// NonFieldErrors is the key used for errors that do not belong to one field
const NonFieldErrors = "non_field_errors"

// FieldErrors maps a request field name to its error messages
type FieldErrors map[string][]string

// Add appends a message for field
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Error is an application error carrying its HTTP status
type Error struct {
	Status  int
	Code    string
	Message string
	Fields  FieldErrors
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the JSON body of every error response
type Response struct {
	Error  string      `json:"error"`
	Code   string      `json:"code,omitempty"`
	Fields FieldErrors `json:"fields,omitempty"`
}

// Validation builds a 400 error with field errors
func Validation(fields FieldErrors) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: "Validation failed",
		Fields:  fields,
	}
}

// Field builds a 400 error for a single field
func Field(field, message string) *Error {
	return Validation(FieldErrors{field: {message}})
}

// NotFound builds a 404 error for the named resource
func NotFound(resource string) *Error {
	return &Error{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: resource + " not found",
	}
}

// Internal wraps an unexpected error
func Internal(message string, err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
		Err:     err,
	}
}

// Respond writes err as JSON and aborts the request.
// Errors that are not *Error are reported as 500 without leaking details.
func Respond(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Internal("Internal server error", err)
	}
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	c.AbortWithStatusJSON(appErr.Status, Response{
		Error:  appErr.Message,
		Code:   appErr.Code,
		Fields: appErr.Fields,
	})
}

// Bind binds the JSON body into obj and translates binding failures into a
// validation error.
func Bind(c *gin.Context, obj interface{}) *Error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return FromBinding(err)
	}
	return nil
}

// FromBinding converts an error returned by gin binding into field errors
func FromBinding(err error) *Error {
	fields := FieldErrors{}

	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError

	switch {
	case errors.As(err, &verrs):
		for _, fe := range verrs {
			fields.Add(fe.Field(), messageFor(fe))
		}
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = NonFieldErrors
		}
		fields.Add(field, fmt.Sprintf("Expected a value of type %s.", typeErr.Type.String()))
	case errors.As(err, &syntaxErr):
		fields.Add(NonFieldErrors, "JSON parse error.")
	case errors.Is(err, io.EOF):
		fields.Add(NonFieldErrors, "Request body is empty.")
	default:
		fields.Add(NonFieldErrors, err.Error())
	}

	return Validation(fields)
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "url":
		return "Enter a valid URL."
	default:
		return fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
	}
}

// jsonFieldName reports validation errors under the JSON name of the field
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}
