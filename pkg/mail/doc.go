// Package mail provides the send_email spoolable task: templated messages
// rendered from an fs.FS and delivered through Postmark.
//
// A Mailer owns the templates and the delivery backend. Registering it on a
// spool.Spooler adds the send_email task, after which Mailer.Send either
// queues the message for a worker or, when the spooler cannot defer, sends it
// in the calling goroutine.
//
//	m, err := mail.NewMailer(cfg, templatesFS)
//	if err != nil {
//	    return err
//	}
//	m.MustRegister(spooler)
//
//	err = m.Send(ctx, mail.Message{
//	    To:           []string{"user@example.com"},
//	    Subject:      "Your credit has arrived",
//	    TextTemplate: "emails/credit.txt",
//	    HTMLTemplate: "emails/credit.html",
//	    Context:      map[string]any{"amount": "£10.00"},
//	    Tags:         []string{"credit"},
//	})
//
// # Delivery rules
//
// Template contexts always carry static_url, built from PUBLIC_STATIC_URL or
// SITE_URL joined with STATIC_URL. Outside production, messages addressed
// only to test domains (ending in "@local" or ".local") are written to the
// console sender. Provider rejections are logged and dropped, a bad recipient
// as a warning and anything else as an error. Transient failures wrap
// ErrTransient and are retried by the spooler up to DefaultRetries times.
package mail
