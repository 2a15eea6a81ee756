package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/upload"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	mailAttempts  = 3
	mailRetryWait = 2 * time.Second
	mailTimeout   = 30 * time.Second
)

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// errMailTransient marks a Graph response worth retrying.
var errMailTransient = errors.New("transient graph error")

// mailer sends recorder alerts from a shared mailbox through Microsoft Graph.
type mailer struct {
	endpoint   string
	recipients []graphRecipient
	client     *http.Client
	retryWait  time.Duration
}

// newMailer checks cfg and prepares an app-only Graph client. No token is
// fetched until the first alert.
func newMailer(cfg *types.GraphConfig) (*mailer, error) {
	switch {
	case !guidPattern.MatchString(cfg.TenantID):
		return nil, fmt.Errorf("tenant ID %q is not a GUID", cfg.TenantID)
	case !guidPattern.MatchString(cfg.ClientID):
		return nil, fmt.Errorf("client ID %q is not a GUID", cfg.ClientID)
	case cfg.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case cfg.FromAddress == "":
		return nil, errors.New("from address (shared mailbox) is required")
	}

	recipients := parseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return nil, errors.New("no recipients configured")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, cfg.TenantID),
		Scopes:       []string{graphScope},
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: mailTimeout})

	return &mailer{
		endpoint:   graphBaseURL + "/users/" + url.PathEscape(cfg.FromAddress) + "/sendMail",
		recipients: recipients,
		client:     creds.Client(ctx),
		retryWait:  mailRetryWait,
	}, nil
}

type graphMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

// parseRecipients splits a comma-separated address list.
func parseRecipients(list string) []graphRecipient {
	var out []graphRecipient
	for addr := range strings.SplitSeq(list, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			var r graphRecipient
			r.EmailAddress.Address = addr
			out = append(out, r)
		}
	}
	return out
}

// uploadAbandoned mails the operators that a recording stays on the appliance.
func (m *mailer) uploadAbandoned(ctx context.Context, hostname string, a upload.Abandoned) error {
	subject, body := uploadAbandonedEmail(hostname, a)
	return m.send(ctx, subject, body)
}

// uploadAbandonedEmail builds the subject and body of an upload abandonment alert.
func uploadAbandonedEmail(hostname string, a upload.Abandoned) (subject, body string) {
	subject = "[ALERT] Upload Abandoned - " + hostname
	body = fmt.Sprintf(
		"A recording upload was abandoned at %s.\n\n"+
			"Host: %s\n"+
			"File: %s\n"+
			"First attempt: %s\n"+
			"Attempts: %d\n"+
			"Last error: %s\n\n"+
			"The file is kept on the recorder and will not be retried until restart.",
		util.HumanTime(), hostname, a.Filename, a.FirstAttempt.Local().Format(time.DateTime), a.Attempts, a.LastError,
	)
	return subject, body
}

func (m *mailer) send(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(graphMailRequest{Message: graphMessage{
		Subject:      subject,
		Body:         graphBody{ContentType: "Text", Content: body},
		ToRecipients: m.recipients,
	}})
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	var lastErr error
	for attempt := range mailAttempts {
		wait := m.retryWait << attempt
		lastErr = m.post(ctx, payload, &wait)
		if !errors.Is(lastErr, errMailTransient) || attempt == mailAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

// post makes one sendMail call. A Retry-After header on a throttled response
// replaces *wait.
func (m *mailer) post(ctx context.Context, payload []byte, wait *time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errMailTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			*wait = time.Duration(s) * time.Second
		}
		return fmt.Errorf("%w: throttled: %s", errMailTransient, detail)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", errMailTransient, resp.StatusCode, detail)
	default:
		return fmt.Errorf("graph sendMail status %d: %s", resp.StatusCode, detail)
	}
}
