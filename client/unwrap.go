package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"manualqa/internal"
)

// envelope is the optional {"success":..,"data":..} wrapper around bodies
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// unwrapEnvelope returns the payload inside an envelope, or body unchanged
// when it is not one. A 2xx envelope reporting success=false is a failure.
func unwrapEnvelope(body []byte) ([]byte, *internal.RawFailure) {
	if len(body) == 0 || body[0] != '{' {
		return body, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil {
		return body, nil
	}
	if !*env.Success {
		return nil, &internal.RawFailure{
			StatusCode: http.StatusUnprocessableEntity,
			Body:       body,
		}
	}
	if len(env.Data) == 0 {
		return nil, nil
	}
	return env.Data, nil
}

func decodeResponse(body []byte, out interface{}, state *callState) error {
	payload, failure := unwrapEnvelope(body)
	if failure != nil {
		ce := internal.Classify(*failure, internal.FailureContext{
			Operation: state.operation,
			Method:    state.method,
			Path:      state.path,
			Attempt:   state.attempt,
		})
		return &ce
	}

	if out == nil || len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return internal.AsClassified(fmt.Errorf("%s %s: decode response: %w", state.method, state.path, err))
	}
	return nil
}
