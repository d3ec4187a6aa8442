package apihttp

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tradedesk/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaExecuteAll   = "execute_all.json"
	schemaExitToken    = "exit_token.json"
	schemaClientCreate = "client_create.json"
)

// payloadSchemas 编译内嵌的请求体 JSON Schema。
type payloadSchemas map[string]*jsonschema.Schema

func loadSchemas() (payloadSchemas, error) {
	out := make(payloadSchemas)
	for _, name := range []string{schemaExecuteAll, schemaExitToken, schemaClientCreate} {
		raw, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			return nil, err
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// decode validates body against the named schema, then unmarshals it into dst.
func (p payloadSchemas) decode(name string, body []byte, dst any) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: malformed json: %v", domain.ErrInvalidRequest, err)
	}
	if s, ok := p[name]; ok {
		if err := s.Validate(doc); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
