package resthttp

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-linker/core"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to its HTTP envelope. Provider error bodies
// stay in server logs; the envelope carries only the text code and message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	textCode := core.ServiceErrorInternal
	message := "internal error"

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code > 0 {
			status = rich.Code
		}
		if rich.TextCode != "" {
			textCode = rich.TextCode
		}
		if rich.Message != "" {
			message = rich.Message
		}
	} else if err != nil {
		message = err.Error()
	}

	writeJSON(w, status, errorEnvelope{Error: errorBody{
		TextCode: textCode,
		Message:  message,
	}})
}
