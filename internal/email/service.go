package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementText    TemplateElement = "text"
	ElementHTML    TemplateElement = "html"
)

// ErrMissingElement is returned by a Renderer when a template does not
// define the requested (optional) element.
var ErrMissingElement = errors.New("template element not defined")

// Message is a rendered email, ready to be handed to a Sender.
type Message struct {
	From     Address
	To       Address
	CC       []Address
	Subject  string
	HTMLBody string
	TextBody string
}

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service renders templated emails and sends them.
type Service struct {
	renderer Renderer
	sender   Sender
	from     Address
}

func NewService(renderer Renderer, sender Sender, from Address) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		from:     from,
	}
}

// Send renders the template with the given name and sends it to the recipient.
// Templates must define a subject and a text element, the html element is optional.
func (s *Service) Send(ctx context.Context, name string, to Address, data any) error {
	msg := Message{
		From: s.from,
		To:   to,
	}

	var err error
	msg.Subject, err = s.render(name, ElementSubject, data)
	if err != nil {
		return err
	}

	// Subjects are single line.
	msg.Subject = strings.Join(strings.Fields(msg.Subject), " ")

	msg.TextBody, err = s.render(name, ElementText, data)
	if err != nil {
		return err
	}

	msg.HTMLBody, err = s.render(name, ElementHTML, data)
	if err != nil && !errors.Is(err, ErrMissingElement) {
		return err
	}

	err = s.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}

	return nil
}

func (s *Service) render(name string, element TemplateElement, data any) (string, error) {
	var b strings.Builder
	err := s.renderer.Render(&b, name, element, data)
	if err != nil {
		return "", fmt.Errorf("failed to render %s of %s email: %w", element, name, err)
	}

	return strings.TrimSpace(b.String()), nil
}
