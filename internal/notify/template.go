package notify

import (
	"bytes"
	"context"
	"errors"
	"text/template"
)

// DefaultInvoiceTemplate renders the invoice delivery message.
const DefaultInvoiceTemplate = `Invoice {{.InvoiceID}} is ready.
Document: {{.DocumentPath}}`

// InvoiceTemplateData provides fields for the delivery message.
type InvoiceTemplateData struct {
	InvoiceID    string
	DocumentPath string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to
// DefaultInvoiceTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultInvoiceTemplate
	}
	parsed, err := template.New("invoice-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data InvoiceTemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("invoice template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// DocumentChannel adapts a notification Channel to invoice delivery: it
// renders the delivery message and sends it over the wrapped channel.
type DocumentChannel struct {
	channel  Channel
	template *Template
}

// NewDocumentChannel constructs a DocumentChannel.
func NewDocumentChannel(channel Channel, tpl *Template) (*DocumentChannel, error) {
	if channel == nil {
		return nil, errors.New("document channel: nil channel")
	}
	if tpl == nil {
		defaultTpl, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		tpl = defaultTpl
	}
	return &DocumentChannel{channel: channel, template: tpl}, nil
}

// Name identifies the underlying channel.
func (d *DocumentChannel) Name() string { return d.channel.Name() }

// Send renders and delivers the invoice message.
func (d *DocumentChannel) Send(ctx context.Context, invoiceID, documentPath string) error {
	message, err := d.template.Render(InvoiceTemplateData{
		InvoiceID:    invoiceID,
		DocumentPath: documentPath,
	})
	if err != nil {
		return err
	}
	return d.channel.Send(ctx, "invoice ready", message)
}
