// Package view renders email messages from text templates.
package view

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"text/template"

	"github.com/willemschots/webauth/internal/email"
)

// ErrMultilineSubject is returned when a subject renders to more than one line.
var ErrMultilineSubject = errors.New("subject spans multiple lines")

// viewName restricts view names, they are used to build filenames.
var viewName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// View is a parsed email template. A template file defines one
// template per email.TemplateElement.
type View struct {
	name     string
	elements map[email.TemplateElement]*template.Template
}

// Parse parses <name>.tmpl from the root of fsys.
func Parse(fsys fs.FS, name string) (*View, error) {
	if !viewName.MatchString(name) {
		return nil, fmt.Errorf("invalid view name %q", name)
	}

	tmpl, err := template.New(name).Option("missingkey=error").ParseFS(fsys, name+".tmpl")
	if err != nil {
		return nil, err
	}

	v := &View{
		name:     name,
		elements: make(map[email.TemplateElement]*template.Template, 2),
	}

	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementBody} {
		t := tmpl.Lookup(string(el))
		if t == nil {
			return nil, fmt.Errorf("view %s: missing %s template", name, el)
		}
		v.elements[el] = t
	}

	return v, nil
}

// Render renders a single element. The subject is trimmed and must fit on
// a single line, it ends up in a mail header.
func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	t, ok := v.elements[element]
	if !ok {
		return fmt.Errorf("view %s: unknown element %q", v.name, element)
	}

	if element != email.ElementSubject {
		return t.Execute(w, data)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return err
	}

	subject := strings.TrimSpace(buf.String())
	if strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("view %s: %w", v.name, ErrMultilineSubject)
	}

	_, err := io.WriteString(w, subject)
	return err
}
