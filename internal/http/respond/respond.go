package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("respond: encode payload failed", slog.Any("error", err))
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// maxBodyBytes bounds request bodies read by Decode.
const maxBodyBytes = 1 << 20

// ErrBadRequest wraps every decoding or validation failure.
var ErrBadRequest = errors.New("bad request")

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON payload", ErrBadRequest)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrBadRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
