package webapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// inboundFrameSchema describes the frames a Cate WebAPI server may send.
const inboundFrameSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"jsonrpc": {"type": "string"},
		"id": {"type": "integer"},
		"progress": {
			"type": "object",
			"properties": {
				"message": {"type": "string"},
				"worked": {"type": "number"},
				"total": {"type": "number"}
			}
		},
		"error": {
			"type": "object",
			"required": ["code", "message"],
			"properties": {
				"code": {"type": "integer"},
				"message": {"type": "string"}
			}
		}
	}
}`

type frameValidator struct {
	schema *gojsonschema.Schema
}

func newFrameValidator() (*frameValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(inboundFrameSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid inbound frame schema: %w", err)
	}
	return &frameValidator{schema: schema}, nil
}

func (v *frameValidator) validate(data []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
