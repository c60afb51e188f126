package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// snapshotSchema 只约束必填结构，可选字段全部交给解码默认值。
const snapshotSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["symbol", "current_price", "position"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "current_price": {"type": "number", "exclusiveMinimum": 0},
    "position": {
      "type": "object",
      "required": ["side", "volume", "entry_price"],
      "properties": {
        "side": {"type": "string"},
        "volume": {"type": "number", "exclusiveMinimum": 0},
        "entry_price": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "timeframes": {"type": "object"},
    "ml_prediction": {
      "type": "object",
      "properties": {
        "direction": {"enum": ["BUY", "SELL", "HOLD", "buy", "sell", "hold"]},
        "confidence": {"type": "number", "minimum": 0, "maximum": 100}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func snapshotSchemaCompiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("snapshot.json", strings.NewReader(snapshotSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("snapshot.json")
	})
	return compiledSchema, schemaErr
}

// ValidateSnapshotJSON 用 JSON Schema 校验入站快照的必填结构。
func ValidateSnapshotJSON(raw string) error {
	schema, err := snapshotSchemaCompiled()
	if err != nil {
		return fmt.Errorf("snapshot schema 编译失败: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("snapshot 结构校验失败: %w", err)
	}
	return nil
}
