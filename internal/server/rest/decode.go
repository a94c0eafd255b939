package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tasktracker/internal/common"
)

// maxBodyBytes caps request bodies at 1 MiB.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads a single JSON object from the body into dest. An empty
// body leaves dest untouched. Unknown keys are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return decodeError(err)
	}
	if decoder.More() {
		return common.NewValidationError("body", "Unexpected extra JSON data")
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		return errBodyTooLarge
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return common.NewValidationError("body", "Malformed JSON")
	case errors.As(err, &typeErr):
		return common.NewValidationError(typeErr.Field, "Invalid value type")
	}

	if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return common.NewValidationError(strings.Trim(name, `"`), "Unknown field")
	}

	// Errors from custom unmarshalers such as models.Date.
	return common.NewValidationError("body", err.Error())
}

// serverOwned lists keys that clients may echo back but never control. They
// are accepted and discarded so that DisallowUnknownFields does not reject
// a task or user object sent back verbatim.
type serverOwned struct {
	ID        json.RawMessage `json:"id"`
	MongoID   json.RawMessage `json:"_id"`
	User      json.RawMessage `json:"user"`
	Owner     json.RawMessage `json:"owner"`
	CreatedAt json.RawMessage `json:"createdAt"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}
