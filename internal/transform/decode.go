package transform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request is the wire form of a transform call.
type Request struct {
	Op             string          `json:"op"`
	Args           json.RawMessage `json:"args"`
	File           string          `json:"file,omitempty"`
	ClientRevision *int64          `json:"clientRevision,omitempty"`
	WriteID        string          `json:"writeId,omitempty"`
}

// Shared schema fragments.
const (
	idSchema        = `{"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_-]*$"}`
	placementFields = `"parentId": ` + idSchema + `, "afterId": ` + idSchema
	propsSchema     = `{"type": "object", "propertyNames": {"pattern": "^[A-Za-z_][A-Za-z0-9_-]*$"}}`
	generatorSchema = `{"type": "object", "required": ["expr"], "properties": {"expr": {"type": "string", "minLength": 1}}, "additionalProperties": false}`
)

func object(required []string, fields string) string {
	if required == nil {
		required = []string{}
	}
	req, _ := json.Marshal(required)
	return `{"type": "object", "required": ` + string(req) + `, "properties": {` + fields + `}, "additionalProperties": false}`
}

type opDecoder struct {
	schema string
	decode func([]byte) (Operation, error)
}

func decodeAs[T Operation]() func([]byte) (Operation, error) {
	return func(b []byte) (Operation, error) {
		var op T
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&op); err != nil {
			return nil, err
		}
		return op, nil
	}
}

var registry = map[string]opDecoder{
	"setText": {
		object([]string{"id", "text"}, `"id": `+idSchema+`, "text": {"type": "string"}`),
		decodeAs[SetText](),
	},
	"setTextNodeContent": {
		object([]string{"id", "text"}, `"id": `+idSchema+`, "text": {"type": "string"}`),
		decodeAs[SetTextNodeContent](),
	},
	"setNodeProps": {
		object([]string{"id"}, `"id": `+idSchema+`, "props": `+propsSchema+`, "remove": {"type": "array", "items": {"type": "string"}}`),
		decodeAs[SetNodeProps](),
	},
	"setSlotProps": {
		object([]string{"id"}, `"id": `+idSchema+`, "refresh": {"type": "string"}, "transition": {"type": "string"}, "props": `+propsSchema),
		decodeAs[SetSlotProps](),
	},
	"setSlotGenerator": {
		object([]string{"id", "generator"}, `"id": `+idSchema+`, "generator": `+generatorSchema),
		decodeAs[SetSlotGenerator](),
	},
	"replaceNode": {
		object([]string{"id", "node"}, `"id": `+idSchema+`, "node": {"type": "object", "required": ["id", "kind"]}`),
		decodeAs[ReplaceNode](),
	},
	"removeNode": {
		object([]string{"id"}, `"id": `+idSchema),
		decodeAs[RemoveNode](),
	},
	"addPage": {
		object(nil, placementFields+`, "id": `+idSchema+`, "title": {"type": "string"}`),
		decodeAs[AddPage](),
	},
	"addSection": {
		object(nil, placementFields+`, "id": `+idSchema+`, "title": {"type": "string"}`),
		decodeAs[AddSection](),
	},
	"addParagraph": {
		object([]string{"text"}, placementFields+`, "id": `+idSchema+`, "text": {"type": "string"}`),
		decodeAs[AddParagraph](),
	},
	"addFigure": {
		object(nil, placementFields+`, "id": `+idSchema+`, "bankName": `+idSchema+
			`, "tags": {"type": "array", "items": {"type": "string"}}, "src": {"type": "string"}, "caption": {"type": "string"}`),
		decodeAs[AddFigure](),
	},
	"addCallout": {
		object([]string{"text"}, placementFields+`, "id": `+idSchema+`, "tone": {"type": "string"}, "text": {"type": "string"}`),
		decodeAs[AddCallout](),
	},
	"addTable": {
		object([]string{"columns"}, placementFields+`, "id": `+idSchema+
			`, "columns": {"type": "array", "minItems": 1, "items": {"type": "string"}}`+
			`, "rows": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}`),
		decodeAs[AddTable](),
	},
	"addSlot": {
		object([]string{"generator"}, placementFields+`, "id": `+idSchema+`, "generator": `+generatorSchema+
			`, "refresh": {"type": "string"}, "transition": {"type": "string"}`),
		decodeAs[AddSlot](),
	},
	"moveNode": {
		object([]string{"id", "targetId"}, `"id": `+idSchema+`, "targetId": `+idSchema+`, "index": {"type": "integer", "minimum": 0}`),
		decodeAs[MoveNode](),
	},
	"setSource": {
		object([]string{"source"}, `"source": {"type": "string"}`),
		decodeAs[SetSource](),
	},
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compiledSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[string]*jsonschema.Schema, len(registry))
		for name, d := range registry {
			sch, err := jsonschema.CompileString("livedoc://ops/"+name+".json", d.schema)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema for %s: %w", name, err)
				return
			}
			schemas[name] = sch
		}
	})
	return schemas, schemasErr
}

// Operations returns the supported operation names, sorted.
func Operations() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode validates args against the schema of op and decodes them into the
// matching Operation. Unknown ops fail with unsupported-operation; args of
// the wrong shape fail with invalid-arguments.
func Decode(file, op string, args json.RawMessage) (Operation, error) {
	d, ok := registry[op]
	if !ok {
		return nil, newError(file, CodeUnsupportedOperation, "", "unsupported operation %q (supported: %s)",
			op, strings.Join(Operations(), ", "))
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var doc any
	if err := json.Unmarshal(args, &doc); err != nil {
		return nil, newError(file, CodeInvalidArguments, "", "%s: args are not valid JSON: %v", op, err)
	}
	all, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	if err := all[op].Validate(doc); err != nil {
		return nil, newError(file, CodeInvalidArguments, "", "%s: %v", op, err)
	}
	o, err := d.decode(args)
	if err != nil {
		return nil, newError(file, CodeInvalidArguments, "", "%s: %v", op, err)
	}
	return o, nil
}

// DecodeRequest decodes the operation carried by a request.
func DecodeRequest(file string, req Request) (Operation, error) {
	return Decode(file, req.Op, req.Args)
}

// EncodeRequest builds the wire request carrying op.
func EncodeRequest(op Operation, writeID string) (Request, error) {
	args, err := json.Marshal(op)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s: %w", op.Name(), err)
	}
	return Request{Op: op.Name(), Args: args, WriteID: writeID}, nil
}
