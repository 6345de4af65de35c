package view

import (
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"text/template"

	"github.com/willemschots/accounts/internal/email"
)

// View is a template used to render email messages.
//
// The subject and text elements are rendered as plain text, the html
// element is rendered with contextual escaping.
type View struct {
	text *template.Template
	html *htmltemplate.Template
}

// Parse parses the file system and returns a view for the given name.
// fs is expected to contain *.tmpl files in the root directory.
func Parse(fs fs.FS, name string) (*View, error) {
	// Validate the view name, just to be sure.
	//
	// Generally these will be hardcoded, but if for some reason we end
	// up with user input as a view name, we want to error. These view names
	// are used to construct filenames and we don't want to inadvertently
	// allow directory traversal.
	if err := validateName(name); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s.tmpl", name)
	text, err := template.New(name).ParseFS(fs, filename)
	if err != nil {
		return nil, err
	}

	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementText} {
		if text.Lookup(string(el)) == nil {
			return nil, fmt.Errorf("missing %s template", el)
		}
	}

	v := &View{text: text}

	if text.Lookup(string(email.ElementHTML)) != nil {
		v.html, err = htmltemplate.New(name).ParseFS(fs, filename)
		if err != nil {
			return nil, err
		}
	}

	return v, nil
}

func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	switch element {
	case email.ElementSubject, email.ElementText:
		return v.text.ExecuteTemplate(w, string(element), data)
	case email.ElementHTML:
		if v.html == nil {
			return email.ErrMissingElement
		}
		return v.html.ExecuteTemplate(w, string(element), data)
	default:
		return fmt.Errorf("unknown element %q: %w", element, email.ErrMissingElement)
	}
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty view name")
	}

	for _, c := range name {
		if !validViewRune(c) {
			return fmt.Errorf("invalid character %v in view name: %s", c, name)
		}
	}
	return nil
}

func validViewRune(r rune) bool {
	if r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		return true
	}

	return false
}
