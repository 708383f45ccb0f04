package httpadapter

import (
	"github.com/xeipuuv/gojsonschema"
)

const postMessageSchema = `{
  "type": "object",
  "properties": {
    "content": {"type": "string"},
    "role": {"type": "string", "enum": ["user"]}
  },
  "required": ["content"]
}`

var postMessageLoader = gojsonschema.NewStringLoader(postMessageSchema)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// bodyValidator checks request bodies against a JSON schema before decoding.
type bodyValidator struct {
	schema *gojsonschema.Schema
}

func newBodyValidator() (*bodyValidator, error) {
	schema, err := gojsonschema.NewSchema(postMessageLoader)
	if err != nil {
		return nil, err
	}
	return &bodyValidator{schema: schema}, nil
}

// validate returns per-field problems; a nil slice means the body is acceptable.
func (v *bodyValidator) validate(body []byte) []fieldError {
	res, err := v.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return []fieldError{{Field: "(root)", Message: "body must be a JSON object"}}
	}
	if res.Valid() {
		return nil
	}

	out := make([]fieldError, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		field := e.Field()
		if e.Type() == "required" {
			if p, ok := e.Details()["property"].(string); ok {
				field = p
			}
		}
		out = append(out, fieldError{Field: field, Message: e.Description()})
	}
	return out
}
