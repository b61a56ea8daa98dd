package mail

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"net/url"
	"os"
	"strings"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/environment"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// TaskName is the registered name of the email task.
const TaskName = "send_email"

// DefaultRetries is the number of retries after a transient delivery failure.
const DefaultRetries = 2

// Mailer renders templated messages and delivers them through a Sender,
// either directly or as the spooled send_email task.
type Mailer struct {
	env       environment.Environment
	from      string
	staticURL string
	templates *Templates
	sender    Sender
	console   Sender
	logger    *slog.Logger
	task      *spool.Task
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSender sets the delivery backend.
func WithSender(s Sender) Option {
	return func(m *Mailer) {
		if s != nil {
			m.sender = s
		}
	}
}

// WithConsoleSender sets where mail to test addresses goes outside production.
func WithConsoleSender(s Sender) Option {
	return func(m *Mailer) {
		if s != nil {
			m.console = s
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMailer creates a Mailer reading templates from fsys. Without WithSender
// a Postmark sender is built from the configured tokens; outside production
// a missing token falls back to the console sender.
func NewMailer(cfg Config, fsys fs.FS, opts ...Option) (*Mailer, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: template file system is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.DefaultFromEmail) == "" {
		return nil, fmt.Errorf("%w: DefaultFromEmail is required", ErrInvalidConfig)
	}
	staticURL, err := resolveStaticURL(cfg)
	if err != nil {
		return nil, err
	}

	m := &Mailer{
		env:       environment.Parse(cfg.Environment),
		from:      cfg.DefaultFromEmail,
		staticURL: staticURL,
		templates: NewTemplates(fsys),
		console:   NewConsoleSender(os.Stdout),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("mail"))

	if m.sender == nil {
		switch {
		case cfg.PostmarkServerToken != "":
			pm, err := NewPostmarkSender(cfg)
			if err != nil {
				return nil, err
			}
			m.sender = pm
		case m.env.IsProduction():
			return nil, fmt.Errorf("%w: a sender or Postmark tokens are required in production", ErrInvalidConfig)
		default:
			m.sender = m.console
		}
	}
	return m, nil
}

// resolveStaticURL prefers the public static URL and otherwise joins the
// static path onto the site URL.
func resolveStaticURL(cfg Config) (string, error) {
	if cfg.PublicStaticURL != "" {
		return cfg.PublicStaticURL, nil
	}
	base, err := url.Parse(cfg.SiteURL)
	if err != nil {
		return "", fmt.Errorf("%w: SiteURL: %v", ErrInvalidConfig, err)
	}
	ref, err := url.Parse(cfg.StaticURL)
	if err != nil {
		return "", fmt.Errorf("%w: StaticURL: %v", ErrInvalidConfig, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Register adds the send_email task to sp. Mailer.Send is usable afterwards.
func (m *Mailer) Register(sp *spool.Spooler) (*spool.Task, error) {
	task, err := sp.Register(spool.Descriptor{
		Name: TaskName,
		Func: m.run,
		Params: []spool.Param{
			spool.Arg("to"),
			spool.Arg("text_template"),
			spool.Arg("subject"),
			spool.OptionalArg("context"),
			spool.OptionalArg("html_template"),
			spool.OptionalArg("from_address"),
			spool.OptionalArg("tags"),
			spool.Kwarg("spoolable_ctx"),
		},
		EnvelopeParam: "spoolable_ctx",
		Retries:       DefaultRetries,
		RetryOn:       []error{ErrTransient},
		BulkyParams:   []string{"context"},
	})
	if err != nil {
		return nil, err
	}
	m.task = task
	return task, nil
}

// MustRegister is like Register but panics on error.
func (m *Mailer) MustRegister(sp *spool.Spooler) *spool.Task {
	task, err := m.Register(sp)
	if err != nil {
		panic(err)
	}
	return task
}

// Send invokes the send_email task for msg. When the spooler can defer, the
// message is queued and only a submission error is returned.
func (m *Mailer) Send(ctx context.Context, msg Message, opts ...spool.InvokeOption) error {
	if m.task == nil {
		return ErrNotRegistered
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	kwargs := make(map[string]any)
	if len(msg.Context) > 0 {
		kwargs["context"] = msg.Context
	}
	if msg.HTMLTemplate != "" {
		kwargs["html_template"] = msg.HTMLTemplate
	}
	if msg.From != "" {
		kwargs["from_address"] = msg.From
	}
	if len(msg.Tags) > 0 {
		kwargs["tags"] = msg.Tags
	}
	return m.task.Invoke(ctx, []any{msg.To, msg.TextTemplate, msg.Subject}, kwargs, opts...)
}

type sendEmailArgs struct {
	To           Recipients     `json:"to"`
	TextTemplate string         `json:"text_template"`
	Subject      string         `json:"subject"`
	Context      map[string]any `json:"context"`
	HTMLTemplate string         `json:"html_template"`
	FromAddress  string         `json:"from_address"`
	Tags         []string       `json:"tags"`
	Envelope     spool.Envelope `json:"spoolable_ctx"`
}

func (m *Mailer) run(ctx context.Context, call *spool.Call) error {
	var args sendEmailArgs
	if err := call.Bind(&args); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	msg := Message{
		To:           args.To,
		Subject:      args.Subject,
		TextTemplate: args.TextTemplate,
		HTMLTemplate: args.HTMLTemplate,
		Context:      args.Context,
		From:         args.FromAddress,
		Tags:         args.Tags,
	}
	return m.deliver(ctx, msg, args.Envelope)
}

// deliver renders msg and hands it to the sender. Rejections are logged and
// swallowed. Transient failures are returned for the spooler to retry.
func (m *Mailer) deliver(ctx context.Context, msg Message, env spool.Envelope) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	email, err := m.Render(msg)
	if err != nil {
		return err
	}

	if !m.environment(ctx).IsProduction() && allTestAddresses(email.To) {
		return m.console.Send(ctx, email)
	}

	err = m.sender.Send(ctx, email)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidRecipient):
		m.logger.WarnContext(ctx, "email recipient rejected",
			slog.Any("to", email.To),
			logger.Error(err))
		return nil
	case errors.Is(err, ErrRejected):
		m.logger.ErrorContext(ctx, "email rejected by provider",
			slog.Any("to", email.To),
			slog.String("subject", email.Subject),
			logger.Error(err))
		return nil
	}

	m.logger.WarnContext(ctx, "email delivery failed",
		slog.Bool("deferred", env.Deferred()),
		logger.Attempt(env.Attempt()),
		logger.Error(err))
	return err
}

// environment prefers the environment carried by ctx over the configured one.
func (m *Mailer) environment(ctx context.Context) environment.Environment {
	if env, ok := environment.Lookup(ctx); ok {
		return env
	}
	return m.env
}

// Render builds the deliverable email for msg without sending it.
func (m *Mailer) Render(msg Message) (Email, error) {
	data := map[string]any{"static_url": m.staticURL}
	maps.Copy(data, msg.Context)

	text, err := m.templates.RenderText(msg.TextTemplate, data)
	if err != nil {
		return Email{}, err
	}
	email := Email{
		From:     msg.From,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: strings.Trim(text, "\n"),
		Tags:     msg.Tags,
	}
	if email.From == "" {
		email.From = m.from
	}
	if msg.HTMLTemplate != "" {
		if email.HTMLBody, err = m.templates.RenderHTML(msg.HTMLTemplate, data); err != nil {
			return Email{}, err
		}
	}
	return email, nil
}
