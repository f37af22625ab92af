package render

import (
	"bytes"
	"maps"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

type Options struct {
	// Strict fails rendering when a template references a missing map key.
	Strict bool
	// Funcs are added on top of sprig, replacing functions of the same name.
	Funcs template.FuncMap
}

type Engine struct {
	funcs  template.FuncMap
	strict bool
}

func NewEngine(opts Options) *Engine {
	fm := sprig.TxtFuncMap()
	// only nil and empty strings/bytes fall back; 0 and false are values.
	fm["default"] = func(def any, v any) any {
		if v == nil {
			return def
		}
		switch x := v.(type) {
		case string:
			if x == "" {
				return def
			}
		case []byte:
			if len(x) == 0 {
				return def
			}
		}
		return v
	}
	maps.Copy(fm, opts.Funcs)
	return &Engine{funcs: fm, strict: opts.Strict}
}

func (e *Engine) RenderString(name, tpl string, data map[string]any) (string, error) {
	t := template.New(name).Funcs(e.funcs)
	if e.strict {
		t = t.Option("missingkey=error")
	}
	t, err := t.Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
