package view

import (
	"io"
	"io/fs"
	"sync"

	"github.com/willemschots/webauth/internal/email"
)

// FSRenderer renders the views found in a file system. Views are parsed
// on first use and cached afterwards. It's safe for concurrent use.
type FSRenderer struct {
	fs fs.FS

	mu    sync.RWMutex
	views map[string]*View
}

func NewFSRenderer(fs fs.FS) *FSRenderer {
	return &FSRenderer{
		fs:    fs,
		views: make(map[string]*View),
	}
}

// Preload parses the named views, so that missing or broken templates
// are found at startup instead of when the first email is sent.
func (r *FSRenderer) Preload(names ...string) error {
	for _, name := range names {
		_, err := r.view(name)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *FSRenderer) Render(w io.Writer, name string, element email.TemplateElement, data any) error {
	v, err := r.view(name)
	if err != nil {
		return err
	}

	return v.Render(w, element, data)
}

func (r *FSRenderer) view(name string) (*View, error) {
	r.mu.RLock()
	v, ok := r.views[name]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.views[name] = v
	r.mu.Unlock()

	return v, nil
}
