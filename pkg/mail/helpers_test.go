package mail_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/mail"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, email mail.Email) error {
	return m.Called(ctx, email).Error(0)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var templatesFS = fstest.MapFS{
	"emails/credit.txt":  {Data: []byte("\nHello {{.name}},\nsee {{.static_url}}images/logo.png\n\n")},
	"emails/credit.html": {Data: []byte(`<p>Hello {{.name}}</p><img src="{{.static_url}}images/logo.png">`)},
	"emails/broken.txt":  {Data: []byte("Hello {{.name")},
}

func testConfig(env string) mail.Config {
	return mail.Config{
		Environment:      env,
		DefaultFromEmail: "noreply@example.com",
		SiteURL:          "https://example.com",
		StaticURL:        "/static/",
	}
}

func newMailer(t *testing.T, env string, opts ...mail.Option) *mail.Mailer {
	t.Helper()
	opts = append([]mail.Option{mail.WithLogger(logger.Discard())}, opts...)
	m, err := mail.NewMailer(testConfig(env), templatesFS, opts...)
	require.NoError(t, err)
	return m
}

func syncSpooler() *spool.Spooler {
	return spool.New(
		spool.WithLogger(logger.Discard()),
		spool.WithSyncRetryDelay(0),
	)
}

func slogTo(w *safeBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
