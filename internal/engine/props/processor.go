package props

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/kode4food/argyll/worker/internal/engine/condition"
	"github.com/kode4food/argyll/worker/pkg/piece"
	"github.com/kode4food/argyll/worker/pkg/util"
)

type (
	// Processor casts and validates resolved property values according to
	// their declared types
	Processor struct {
		validate *validator.Validate
		files    FileLoader
	}

	// Errors maps property names to a message or to nested Errors
	Errors map[string]any
)

const (
	msgRequired = "Expected a value for a required property"
	msgNumber   = "Expected a number"
	msgDate     = "Expected an ISO 8601 date"
	msgJSON     = "Expected valid JSON"
	msgObject   = "Expected an object"
	msgArray    = "Expected an array"
	msgText     = "Expected text"
	msgFile     = "Expected a file url or base64 data uri"
	msgAuth     = "Expected a connection"
)

var ErrPropsInvalid = errors.New("invalid properties")

// NewProcessor creates a processor that loads FILE properties through files
func NewProcessor(files FileLoader) *Processor {
	return &Processor{
		validate: validator.New(),
		files:    files,
	}
}

// Process casts values for every declared property. Undeclared values pass
// through untouched. A non-empty Errors means the input must be rejected
func (p *Processor) Process(
	ctx context.Context, props piece.Properties, values map[string]any,
) (map[string]any, Errors) {
	res := maps.Clone(values)
	if res == nil {
		res = map[string]any{}
	}
	errs := Errors{}
	for name, prop := range props {
		v, err := p.processProp(ctx, prop, values[name])
		if err != nil {
			errs[name] = err
			continue
		}
		if v != nil {
			res[name] = v
		}
	}
	return res, errs
}

// ProcessAuth validates an authentication value against the auth property
// of a piece
func (p *Processor) ProcessAuth(
	ctx context.Context, prop *piece.Property, value any,
) (any, Errors) {
	if prop == nil {
		return value, Errors{}
	}
	v, err := p.processProp(ctx, prop, value)
	if err != nil {
		return nil, Errors{"auth": err}
	}
	return v, Errors{}
}

func (p *Processor) processProp(
	ctx context.Context, prop *piece.Property, value any,
) (any, any) {
	if isMissing(value) {
		if prop.Default != nil {
			value = prop.Default
		} else if prop.Required {
			return nil, msgRequired
		} else {
			return nil, nil
		}
	}

	v, err := p.cast(ctx, prop, value)
	if err != nil {
		return nil, err
	}
	if prop.Format != "" {
		if s, ok := v.(string); ok {
			if ferr := p.validate.Var(s, prop.Format); ferr != nil {
				return nil, fmt.Sprintf("Expected format %s", prop.Format)
			}
		}
	}
	return v, nil
}

func (p *Processor) cast(
	ctx context.Context, prop *piece.Property, value any,
) (any, any) {
	switch prop.Type {
	case piece.ShortText, piece.LongText, piece.SecretText:
		switch value.(type) {
		case map[string]any, []any:
			if prop.Type == piece.SecretText {
				return nil, msgText
			}
		}
		return util.Stringify(value), nil

	case piece.Number:
		n := condition.ToNumber(value)
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, msgNumber
		}
		return n, nil

	case piece.Checkbox:
		if s, ok := value.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, nil
			}
		}
		return condition.Truthy(value), nil

	case piece.DateTime:
		t, ok := condition.ParseDate(value)
		if !ok {
			return nil, msgDate
		}
		return t.UTC().Format(time.RFC3339Nano), nil

	case piece.FileProp:
		return p.castFile(ctx, value)

	case piece.JSON:
		s, ok := value.(string)
		if !ok {
			return value, nil
		}
		if !gjson.Valid(s) {
			return nil, msgJSON
		}
		return gjson.Parse(s).Value(), nil

	case piece.Object, piece.CustomAuth:
		return p.castObject(ctx, prop, value)

	case piece.BasicAuth:
		return p.castObject(ctx, prop.WithProps(basicAuthProps), value)

	case piece.OAuth2:
		obj, ok := asObject(value)
		if !ok {
			return nil, msgAuth
		}
		if gjson.Get(util.Stringify(obj), "access_token").String() == "" {
			return nil, Errors{"access_token": msgRequired}
		}
		return obj, nil

	case piece.Array:
		return p.castArray(ctx, prop, value)

	case piece.StaticMultiSelect, piece.MultiSelect:
		list, ok := condition.AsList(value)
		if !ok {
			return nil, msgArray
		}
		return list, nil

	default:
		return value, nil
	}
}

var basicAuthProps = piece.Properties{
	"username": piece.NewProperty("username", piece.ShortText).AsRequired(),
	"password": piece.NewProperty("password", piece.SecretText).AsRequired(),
}

func (p *Processor) castObject(
	ctx context.Context, prop *piece.Property, value any,
) (any, any) {
	obj, ok := asObject(value)
	if !ok {
		return nil, msgObject
	}
	if len(prop.Props) == 0 {
		return obj, nil
	}
	res, errs := p.Process(ctx, prop.Props, obj)
	if len(errs) > 0 {
		return nil, errs
	}
	return res, nil
}

func (p *Processor) castArray(
	ctx context.Context, prop *piece.Property, value any,
) (any, any) {
	list, ok := condition.AsList(value)
	if !ok {
		return nil, msgArray
	}
	if len(prop.Props) == 0 {
		return list, nil
	}
	res := make([]any, len(list))
	errs := Errors{}
	for i, elem := range list {
		obj, ok := asObject(elem)
		if !ok {
			errs[strconv.Itoa(i)] = msgObject
			continue
		}
		v, e := p.Process(ctx, prop.Props, obj)
		if len(e) > 0 {
			errs[strconv.Itoa(i)] = e
			continue
		}
		res[i] = v
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return res, nil
}

func (p *Processor) castFile(ctx context.Context, value any) (any, any) {
	switch v := value.(type) {
	case *piece.File:
		return v, nil
	case string:
		if p.files == nil {
			return nil, msgFile
		}
		f, err := p.files.Load(ctx, v)
		if err != nil {
			return nil, err.Error()
		}
		return f, nil
	default:
		return nil, msgFile
	}
}

// Err converts non-empty errors into an error listing every property
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	b, _ := json.Marshal(e)
	return fmt.Errorf("%w: %s", ErrPropsInvalid, b)
}

func asObject(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	case string:
		if !gjson.Valid(v) {
			return nil, false
		}
		res, ok := gjson.Parse(v).Value().(map[string]any)
		return res, ok
	default:
		return nil, false
	}
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
