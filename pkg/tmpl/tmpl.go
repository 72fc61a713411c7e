package tmpl

import (
	"bytes"
	"text/template"
)

func Render(name, text string, data interface{}) (string, error) {
	funcs := map[string]interface{}{}
	tpl := template.New(name).Option("missingkey=error").Funcs(funcs)
	tpl, err := tpl.Parse(text)
	if err != nil {
		return "", err
	}
	buf := &bytes.Buffer{}
	if err := tpl.Execute(buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderAll renders each of texts with the same data, keeping their order.
func RenderAll(name string, texts []string, data interface{}) ([]string, error) {
	rendered := make([]string, len(texts))
	for i, text := range texts {
		r, err := Render(name, text, data)
		if err != nil {
			return nil, err
		}
		rendered[i] = r
	}
	return rendered, nil
}
