package props_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/engine/props"
	"github.com/kode4food/argyll/worker/pkg/piece"
)

func TestProcessCasts(t *testing.T) {
	p := props.NewProcessor(nil)
	defs := piece.Properties{
		"text":  piece.NewProperty("text", piece.ShortText),
		"num":   piece.NewProperty("num", piece.Number),
		"flag":  piece.NewProperty("flag", piece.Checkbox),
		"when":  piece.NewProperty("when", piece.DateTime),
		"json":  piece.NewProperty("json", piece.JSON),
		"multi": piece.NewProperty("multi", piece.MultiSelect),
		"dflt":  piece.NewProperty("dflt", piece.Number).WithDefault(5),
	}
	res, errs := p.Process(context.Background(), defs, map[string]any{
		"text":  12.5,
		"num":   "42",
		"flag":  "false",
		"when":  "2024-03-01",
		"json":  `{"a":[1,2]}`,
		"multi": `["x","y"]`,
		"extra": "kept",
	})

	assert.Empty(t, errs)
	assert.Equal(t, "12.5", res["text"])
	assert.Equal(t, 42.0, res["num"])
	assert.Equal(t, false, res["flag"])
	assert.Equal(t, "2024-03-01T00:00:00Z", res["when"])
	assert.Equal(t, map[string]any{"a": []any{1.0, 2.0}}, res["json"])
	assert.Equal(t, []any{"x", "y"}, res["multi"])
	assert.Equal(t, 5.0, res["dflt"])
	assert.Equal(t, "kept", res["extra"])
}

func TestProcessErrors(t *testing.T) {
	p := props.NewProcessor(nil)
	defs := piece.Properties{
		"req":   piece.NewProperty("req", piece.ShortText).AsRequired(),
		"num":   piece.NewProperty("num", piece.Number),
		"when":  piece.NewProperty("when", piece.DateTime),
		"json":  piece.NewProperty("json", piece.JSON),
		"email": piece.NewProperty("email", piece.ShortText).WithFormat("email"),
		"obj": piece.NewProperty("obj", piece.Object).WithProps(
			piece.Properties{
				"id": piece.NewProperty("id", piece.Number).AsRequired(),
			},
		),
	}
	_, errs := p.Process(context.Background(), defs, map[string]any{
		"req":   "",
		"num":   "forty",
		"when":  "yesterday-ish",
		"json":  "{broken",
		"email": "not-an-email",
		"obj":   map[string]any{},
	})

	assert.Len(t, errs, 6)
	assert.Contains(t, errs, "req")
	assert.Equal(t, props.Errors{
		"id": "Expected a value for a required property",
	}, errs["obj"])
	assert.ErrorIs(t, errs.Err(), props.ErrPropsInvalid)
	assert.Nil(t, props.Errors{}.Err())
}

func TestProcessArrayOfObjects(t *testing.T) {
	p := props.NewProcessor(nil)
	defs := piece.Properties{
		"rows": piece.NewProperty("rows", piece.Array).WithProps(
			piece.Properties{
				"qty": piece.NewProperty("qty", piece.Number).AsRequired(),
			},
		),
	}

	res, errs := p.Process(context.Background(), defs, map[string]any{
		"rows": []any{map[string]any{"qty": "2"}},
	})
	assert.Empty(t, errs)
	assert.Equal(t, []any{map[string]any{"qty": 2.0}}, res["rows"])

	_, errs = p.Process(context.Background(), defs, map[string]any{
		"rows": []any{map[string]any{}, "x"},
	})
	assert.Len(t, errs["rows"], 2)
}

func TestProcessAuth(t *testing.T) {
	p := props.NewProcessor(nil)

	basic := piece.NewProperty("auth", piece.BasicAuth).AsRequired()
	_, errs := p.ProcessAuth(context.Background(), basic, map[string]any{
		"username": "u",
	})
	assert.Equal(t, props.Errors{"auth": props.Errors{
		"password": "Expected a value for a required property",
	}}, errs)

	oauth := piece.NewProperty("auth", piece.OAuth2).AsRequired()
	v, errs := p.ProcessAuth(context.Background(), oauth, map[string]any{
		"access_token": "abc",
	})
	assert.Empty(t, errs)
	assert.Equal(t, map[string]any{"access_token": "abc"}, v)

	_, errs = p.ProcessAuth(context.Background(), oauth, map[string]any{})
	assert.Len(t, errs, 1)

	v, errs = p.ProcessAuth(context.Background(), nil, "anything")
	assert.Empty(t, errs)
	assert.Equal(t, "anything", v)
}

func TestProcessFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("remote-bytes"))
		},
	))
	defer srv.Close()

	p := props.NewProcessor(props.NewHTTPFileLoader(srv.Client(), 64))
	defs := piece.Properties{
		"inline": piece.NewProperty("inline", piece.FileProp),
		"remote": piece.NewProperty("remote", piece.FileProp),
	}
	data := base64.StdEncoding.EncodeToString([]byte("hello"))
	res, errs := p.Process(context.Background(), defs, map[string]any{
		"inline": "data:text/plain;base64," + data,
		"remote": srv.URL + "/reports/q1.csv",
	})
	if !assert.Empty(t, errs) {
		return
	}

	inline := res["inline"].(*piece.File)
	assert.Equal(t, []byte("hello"), inline.Data)
	assert.Equal(t, data, inline.Base64())

	remote := res["remote"].(*piece.File)
	assert.Equal(t, "q1.csv", remote.Filename)
	assert.Equal(t, "csv", remote.Extension)
	assert.Equal(t, []byte("remote-bytes"), remote.Data)

	small := props.NewProcessor(props.NewHTTPFileLoader(srv.Client(), 4))
	_, errs = small.Process(context.Background(), defs, map[string]any{
		"remote": srv.URL + "/big.bin",
	})
	assert.Equal(t, props.ErrFileTooLarge.Error(), errs["remote"])

	_, errs = small.Process(context.Background(), defs, map[string]any{
		"inline": "ftp://example.com/x",
	})
	assert.Contains(t, errs, "inline")
}
