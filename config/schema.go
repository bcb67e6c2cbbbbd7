package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error

	// cue values are not safe for concurrent use.
	validateMu sync.Mutex
)

func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("configuration schema: %w", err)
			return
		}
		schemaVal = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaVal, schemaErr
}

// Validate checks a decoded configuration document against the schema.
// Unknown keys and out of range values are rejected.
func Validate(raw map[string]any) error {
	validateMu.Lock()
	defer validateMu.Unlock()

	ctx, def, err := schema()
	if err != nil {
		return err
	}
	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return err
	}
	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
