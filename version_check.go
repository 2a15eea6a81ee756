package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-autorecorder/internal/types"
	"github.com/oszuidwest/zwfm-autorecorder/internal/util"
	"golang.org/x/mod/semver"
)

const (
	githubRepo           = "oszuidwest/zwfm-autorecorder"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // Keeps the first request off the startup path
	versionCheckTimeout  = 30 * time.Second
	versionMaxRetries    = 3
	versionRetryDelay    = time.Minute
	versionMaxRetryDelay = 10 * time.Minute
)

// releaseURL is the GitHub endpoint describing the latest release.
var releaseURL = "https://api.github.com/repos/" + githubRepo + "/releases/latest"

// checkResult classifies the outcome of one release lookup.
type checkResult uint8

const (
	checkDone  checkResult = iota // Answered, possibly without a new release
	checkRetry                    // Transient failure
)

// VersionChecker polls for new releases and reports update availability.
// It is safe for concurrent use.
type VersionChecker struct {
	url    string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // For conditional requests (304 Not Modified)

	cancel context.CancelFunc
}

// NewVersionChecker starts polling in the background until Stop is called.
func NewVersionChecker() *VersionChecker {
	ctx, cancel := context.WithCancel(context.Background())
	vc := &VersionChecker{
		url:    releaseURL,
		client: &http.Client{Timeout: versionCheckTimeout},
		cancel: cancel,
	}
	go vc.run(ctx)
	return vc
}

// Stop stops the background poll.
func (vc *VersionChecker) Stop() {
	vc.cancel()
}

func (vc *VersionChecker) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	if !sleepCtx(ctx, versionCheckDelay) {
		return
	}
	for {
		vc.checkWithRetry(ctx)
		if !sleepCtx(ctx, versionCheckInterval) {
			return
		}
	}
}

// checkWithRetry performs the version check, backing off between failures.
func (vc *VersionChecker) checkWithRetry(ctx context.Context) {
	backoff := util.NewBackoff(versionRetryDelay, versionMaxRetryDelay)
	for attempt := range versionMaxRetries {
		if vc.check(ctx) == checkDone {
			return
		}
		slog.Debug("version check failed", "attempt", attempt+1)
		if attempt < versionMaxRetries-1 && !sleepCtx(ctx, backoff.Next()) {
			return
		}
	}
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check retrieves the latest release information once.
func (vc *VersionChecker) check(ctx context.Context) checkResult {
	ctx, cancel := context.WithTimeoutCause(ctx, versionCheckTimeout, errors.New("github API request timeout"))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.url, http.NoBody)
	if err != nil {
		return checkDone
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-autorecorder/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := vc.client.Do(req)
	if err != nil {
		return checkRetry
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		// Unchanged, or no releases published yet
		return checkDone
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return checkRetry
	default:
		return checkDone
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return checkRetry
	}
	if release.Draft || release.Prerelease {
		return checkDone
	}
	if release.TagName == "" {
		return checkRetry
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		vc.etag = newEtag
	}
	vc.mu.Unlock()

	slog.Debug("latest release", "version", release.TagName)
	return checkDone
}

// Info returns the running and latest known versions.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}

	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}

	return info
}

// normalizeVersion returns a normalized version string.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion returns the version in canonical semver format.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// isNewerVersion reports whether latest is newer than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare(canonicalVersion(latest), canonicalVersion(current)) > 0
}
