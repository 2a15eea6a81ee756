// Package notify delivers operator notifications for recorder events.
package notify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/recording"
	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/upload"
)

// deliveryTimeout bounds one notification including retries.
const deliveryTimeout = 2 * time.Minute

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// Config selects the notification channels.
type Config struct {
	WebhookURL string
	Graph      GraphConfig
	Zabbix     types.ZabbixConfig
}

// Notifier sends webhook, email and Zabbix notifications without blocking
// the caller.
type Notifier struct {
	webhookURL string
	mail       *mailer       // nil when email is off
	zabbix     *zabbixSender // nil when Zabbix is off
	hostname   string
	wg         sync.WaitGroup
}

// NewNotifier returns a Notifier for cfg. Email settings that are present but
// unusable are reported once here and email stays off.
func NewNotifier(cfg *Config) *Notifier {
	n := &Notifier{webhookURL: cfg.WebhookURL}
	n.hostname, _ = os.Hostname()

	g := &cfg.Graph
	if g.TenantID != "" || g.ClientID != "" || g.FromAddress != "" || g.Recipients != "" {
		m, err := newMailer(g)
		if err != nil {
			slog.Warn("email notifications disabled", "error", err)
		} else {
			n.mail = m
		}
	}
	if cfg.Zabbix.IsConfigured() {
		n.zabbix = newZabbixSender(&cfg.Zabbix)
	}
	return n
}

// RecordingSaved announces a kept recording on the webhook and Zabbix.
func (n *Notifier) RecordingSaved(res recording.Result) {
	if res.Disposition != recording.Keep {
		return
	}
	filename := filepath.Base(res.Path)
	if n.webhookURL != "" {
		n.deliver("webhook", func(context.Context) error {
			return SendRecordingSavedWebhook(n.webhookURL, res.ID, filename, res.Seconds)
		})
	}
	if n.zabbix != nil {
		n.deliver("zabbix", func(ctx context.Context) error {
			return n.zabbix.recordingSaved(ctx, filename, res.Seconds)
		})
	}
}

// UploadAbandoned alerts operators on every channel that a recording will
// stay on the appliance.
func (n *Notifier) UploadAbandoned(a upload.Abandoned) {
	if n.webhookURL != "" {
		n.deliver("webhook", func(context.Context) error {
			return SendUploadAbandonedWebhook(n.webhookURL, a.Filename, a.Attempts, a.LastError)
		})
	}
	if n.mail != nil {
		n.deliver("email", func(ctx context.Context) error {
			return n.mail.uploadAbandoned(ctx, n.hostname, a)
		})
	}
	if n.zabbix != nil {
		n.deliver("zabbix", func(ctx context.Context) error {
			return n.zabbix.uploadAbandoned(ctx, a.Filename, a.Attempts)
		})
	}
}

// deliver runs send in the background and logs the outcome.
func (n *Notifier) deliver(channel string, send func(context.Context) error) {
	n.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			slog.Error("notification failed", "channel", channel, "error", err)
			return
		}
		slog.Info("notification sent", "channel", channel)
	})
}

// Wait blocks until pending notifications have been delivered or have failed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
