package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

// Result is the JSON object a tool returns on success.
type Result map[string]any

// Param describes one tool argument for LLM function calling and the CLI.
type Param struct {
	Name        string
	Type        string // string, integer, boolean, array
	Description string
	Required    bool
	Enum        []string
}

type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type tool interface {
	descriptor() Descriptor
	run(ctx context.Context, d *Dispatcher, actor tenant.Actor, raw json.RawMessage) (Result, error)
}

type validator interface {
	validate() error
}

// spec binds a tool's argument type to its pipeline:
// decode, validate, authorize, then execute.
type spec[A any] struct {
	name        string
	description string
	params      []Param
	op          func(args *A) auth.Operation
	exec        func(ctx context.Context, d *Dispatcher, actor tenant.Actor, args *A) (Result, error)
}

func (s spec[A]) descriptor() Descriptor {
	props := make(map[string]any, len(s.params))
	required := []string{}
	for _, p := range s.params {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		switch {
		case p.Type == "array" && len(p.Enum) > 0:
			prop["items"] = map[string]any{"type": "string", "enum": p.Enum}
		case p.Type == "array":
			prop["items"] = map[string]any{"type": "string"}
		case len(p.Enum) > 0:
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Descriptor{
		Name:        s.name,
		Description: s.description,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           props,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

func (s spec[A]) run(ctx context.Context, d *Dispatcher, actor tenant.Actor, raw json.RawMessage) (Result, error) {
	args := new(A)
	if err := decodeArgs(raw, args); err != nil {
		return nil, err
	}
	if v, ok := any(args).(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	if err := auth.Authorize(s.op(args), actor.Role); err != nil {
		return nil, err
	}
	return s.exec(ctx, d, actor, args)
}

func always[A any](op auth.Operation) func(*A) auth.Operation {
	return func(*A) auth.Operation { return op }
}

func decodeArgs(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid("Invalid arguments: %s.", describeDecodeError(err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return invalid("Invalid arguments: trailing data after the JSON object.")
	}
	return nil
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type)
	}
	msg := err.Error()
	if field, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		return "unknown argument " + field
	}
	return strings.TrimPrefix(msg, "json: ")
}
