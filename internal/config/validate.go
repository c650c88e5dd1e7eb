package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validation error codes (E200-E299)
const (
	ErrSchemaViolation = "E200" // value violates a schema constraint
	ErrSchemaInternal  = "E201" // schema or config could not be evaluated
)

// ValidationError represents a configuration constraint failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
)

func schema() (*cue.Context, cue.Value) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaDef = schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue")).
			LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaDef
}

// schemaMu serialises evaluation; a cue.Context is not safe for concurrent use.
var schemaMu sync.Mutex

// Validate checks cfg against the embedded schema.
// Returns all errors found (does not fail-fast).
func Validate(cfg Config) []ValidationError {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	ctx, def := schema()
	if err := def.Err(); err != nil {
		return []ValidationError{{Code: ErrSchemaInternal, Message: fmt.Sprintf("schema: %v", err)}}
	}

	// Nil slices encode as null, which the list constraints reject.
	if cfg.Annotator.Delays == nil {
		cfg.Annotator.Delays = []time.Duration{}
	}
	if cfg.Annotator.Fail == nil {
		cfg.Annotator.Fail = []uint64{}
	}

	v := ctx.Encode(cfg)
	if err := v.Err(); err != nil {
		return []ValidationError{{Code: ErrSchemaInternal, Message: fmt.Sprintf("encode config: %v", err)}}
	}

	err := def.Unify(v).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchemaViolation,
		})
	}
	return errs
}
