package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/targets"
	"github.com/dmitrijs2005/loadgate/internal/timex"
)

const (
	// TXTRecordPrefix precedes the token in a DNS TXT proof.
	TXTRecordPrefix = "loadgate-verification="
	// WellKnownPath serves the token as plain text for the HTTP proof.
	WellKnownPath = "/.well-known/loadgate-verification.txt"

	verificationTokenSize = 16
)

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// NormalizeHost reduces a job target (bare host, host:port or URL) to the
// lower-case host that ownership is recorded for.
func NormalizeHost(target string) (string, error) {
	t := strings.TrimSpace(target)
	if strings.Contains(t, "://") {
		u, err := url.Parse(t)
		if err != nil {
			return "", common.NewValidationError("target", "is not a valid URL")
		}
		t = u.Hostname()
	} else if h, _, err := net.SplitHostPort(t); err == nil {
		t = h
	}
	t = strings.TrimSuffix(strings.ToLower(strings.Trim(t, "[]")), ".")

	if t == "" || len(t) > 253 {
		return "", common.NewValidationError("target", "host is empty or too long")
	}
	if net.ParseIP(t) == nil && !hostnamePattern.MatchString(t) {
		return "", common.NewValidationError("target", "is not a valid host name")
	}
	return t, nil
}

// TXTResolver is satisfied by *net.Resolver.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// TargetService manages hosts a tenant may load-test. A host becomes
// usable once its owner publishes the verification token either as a DNS
// TXT record or at WellKnownPath.
type TargetService struct {
	targets  targets.Repository
	resolver TXTResolver
	client   *http.Client
	logger   logging.Logger
	now      timex.Clock
}

func NewTargetService(repo targets.Repository, resolver TXTResolver, client *http.Client, logger logging.Logger) *TargetService {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &TargetService{
		targets:  repo,
		resolver: resolver,
		client:   client,
		logger:   logger.With("module", "targets"),
		now:      timex.UTCNow,
	}
}

// Add registers host for userID with a fresh verification token.
func (s *TargetService) Add(ctx context.Context, userID int64, host string) (*models.Target, error) {
	h, err := NormalizeHost(host)
	if err != nil {
		return nil, err
	}
	token, err := common.MakeRandHexString(verificationTokenSize)
	if err != nil {
		return nil, fmt.Errorf("%w: token generation: %v", common.ErrInternal, err)
	}
	return s.targets.Create(ctx, &models.Target{UserID: userID, Host: h, Token: token})
}

func (s *TargetService) List(ctx context.Context, userID int64) ([]*models.Target, error) {
	return s.targets.ListByUser(ctx, userID)
}

// Verify checks the ownership proof of target id and records success.
// Verifying an already verified target is a no-op.
func (s *TargetService) Verify(ctx context.Context, actor *models.User, id int64) (*models.Target, error) {
	t, err := s.targets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, t.UserID); err != nil {
		return nil, err
	}
	if t.Verified() {
		return t, nil
	}

	if !s.checkTXT(ctx, t) && !s.checkWellKnown(ctx, t) {
		return nil, fmt.Errorf("%w: verification token for %s not found in DNS TXT or at %s", common.ErrForbidden, t.Host, WellKnownPath)
	}

	verified, err := s.targets.MarkVerified(ctx, t.ID, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "target verified", "target_id", t.ID, "user_id", t.UserID, "host", t.Host)
	return verified, nil
}

func (s *TargetService) checkTXT(ctx context.Context, t *models.Target) bool {
	if s.resolver == nil {
		return false
	}
	records, err := s.resolver.LookupTXT(ctx, t.Host)
	if err != nil {
		var dnsErr *net.DNSError
		if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
			s.logger.Debug(ctx, "txt lookup failed", "host", t.Host, "error", err)
		}
		return false
	}
	want := TXTRecordPrefix + t.Token
	for _, r := range records {
		if strings.TrimSpace(r) == want {
			return true
		}
	}
	return false
}

func (s *TargetService) checkWellKnown(ctx context.Context, t *models.Target) bool {
	for _, scheme := range []string{"https", "http"} {
		u := url.URL{Scheme: scheme, Host: t.Host, Path: WellKnownPath}
		if s.fetchToken(ctx, u.String()) == t.Token {
			return true
		}
	}
	return false
}

func (s *TargetService) fetchToken(ctx context.Context, endpoint string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug(ctx, "well-known fetch failed", "url", endpoint, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
