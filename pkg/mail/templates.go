package mail

import (
	"errors"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	"sync"
	texttemplate "text/template"
)

// Templates renders message bodies from a file system. Text templates use
// text/template, HTML templates use html/template so context values are
// escaped. Parsed templates are cached by name.
type Templates struct {
	fsys fs.FS

	mu   sync.RWMutex
	text map[string]*texttemplate.Template
	html map[string]*htmltemplate.Template
}

// NewTemplates creates a renderer reading template files from fsys.
func NewTemplates(fsys fs.FS) *Templates {
	return &Templates{
		fsys: fsys,
		text: make(map[string]*texttemplate.Template),
		html: make(map[string]*htmltemplate.Template),
	}
}

// RenderText renders the named text template with data.
func (t *Templates) RenderText(name string, data any) (string, error) {
	t.mu.RLock()
	tmpl, ok := t.text[name]
	t.mu.RUnlock()
	if !ok {
		parsed, err := texttemplate.ParseFS(t.fsys, name)
		if err != nil {
			return "", errors.Join(ErrTemplate, err)
		}
		t.mu.Lock()
		t.text[name] = parsed
		t.mu.Unlock()
		tmpl = parsed
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", errors.Join(ErrTemplate, err)
	}
	return b.String(), nil
}

// RenderHTML renders the named HTML template with data.
func (t *Templates) RenderHTML(name string, data any) (string, error) {
	t.mu.RLock()
	tmpl, ok := t.html[name]
	t.mu.RUnlock()
	if !ok {
		parsed, err := htmltemplate.ParseFS(t.fsys, name)
		if err != nil {
			return "", errors.Join(ErrTemplate, err)
		}
		t.mu.Lock()
		t.html[name] = parsed
		t.mu.Unlock()
		tmpl = parsed
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", errors.Join(ErrTemplate, err)
	}
	return b.String(), nil
}
