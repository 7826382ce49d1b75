// Package apis wraps the methods of the Cate WebAPI service in typed calls.
package apis

import (
	"encoding/json"
	"fmt"

	"github.com/shaharia-lab/cate/webapi"
)

// Caller submits a single remote call. *webapi.Client satisfies it.
type Caller interface {
	Call(method string, params any, onProgress webapi.ProgressHandler) *webapi.Job
}

func decode[T any](method string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return v, nil
}
