package core

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

const digestMD5 = "MD5"

// AuthService owns the token lifecycle of both endpoints. Tokens are read
// from the store on every call, so the persisted row is the only cache.
type AuthService struct {
	store   repository.ConfigStore
	onprem  OnPremAPI
	payroll PayrollAPI
	now     func() time.Time
}

func NewAuthService(store repository.ConfigStore, onprem OnPremAPI, payroll PayrollAPI) *AuthService {
	return &AuthService{store: store, onprem: onprem, payroll: payroll, now: time.Now}
}

// GetValidToken returns the persisted token of endpoint, authenticating when
// there is none. Validity is not checked; callers invalidate on a 401.
func (s *AuthService) GetValidToken(ctx context.Context, endpoint model.Endpoint) (string, error) {
	cfg, err := s.store.GetEndpointConfig(ctx)
	if err != nil {
		return "", err
	}

	switch endpoint {
	case model.EndpointOnPrem:
		if cfg.OnPremToken != "" {
			return cfg.OnPremToken, nil
		}
		return s.authenticateOnPrem(ctx, cfg)
	case model.EndpointCloud:
		if cfg.CloudToken != "" {
			return cfg.CloudToken, nil
		}
		session, err := s.authenticateCloud(ctx, cfg)
		if err != nil {
			return "", err
		}
		return session.Token, nil
	default:
		return "", fmt.Errorf("%w: unknown endpoint %q", ErrConfiguration, endpoint)
	}
}

// Invalidate drops the persisted token so the next GetValidToken authenticates.
func (s *AuthService) Invalidate(ctx context.Context, endpoint model.Endpoint) error {
	log.Ctx(ctx).Info().Str("endpoint", string(endpoint)).Msg("Invalidating token")
	switch endpoint {
	case model.EndpointOnPrem:
		return s.store.ClearOnPremToken(ctx)
	case model.EndpointCloud:
		return s.store.ClearCloudToken(ctx)
	default:
		return fmt.Errorf("%w: unknown endpoint %q", ErrConfiguration, endpoint)
	}
}

// TestConnection authenticates against endpoint from scratch and reports the
// outcome as a message. It never returns an error.
func (s *AuthService) TestConnection(ctx context.Context, endpoint model.Endpoint) (bool, string) {
	cfg, err := s.store.GetEndpointConfig(ctx)
	if err != nil {
		return false, fmt.Sprintf("Could not read configuration: %v", err)
	}

	var token string
	switch endpoint {
	case model.EndpointOnPrem:
		token, err = s.authenticateOnPrem(ctx, cfg)
	case model.EndpointCloud:
		var session *payroll.Session
		if session, err = s.authenticateCloud(ctx, cfg); err == nil {
			token = session.Token
		}
	default:
		return false, fmt.Sprintf("Unknown endpoint %q", endpoint)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("endpoint", string(endpoint)).Msg("Connection test failed")
		return false, err.Error()
	}
	return true, fmt.Sprintf("Authentication successful. Token: %s...", tokenPrefix(token))
}

// Login forces a fresh cloud login and returns the stored session.
func (s *AuthService) Login(ctx context.Context) (*payroll.Session, error) {
	cfg, err := s.store.GetEndpointConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.authenticateCloud(ctx, cfg)
}

// Logout forgets the cloud token and its account metadata.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.store.ClearCloudToken(ctx)
}

func (s *AuthService) authenticateOnPrem(ctx context.Context, cfg *model.EndpointConfig) (string, error) {
	if cfg.OnPremHost == "" || cfg.OnPremUsername == "" || cfg.OnPremPassword == "" {
		return "", fmt.Errorf("%w: on-prem host, username and password are required", ErrConfiguration)
	}
	logger := log.Ctx(ctx).With().Str("endpoint", string(model.EndpointOnPrem)).Str("host", cfg.OnPremHost).Logger()

	first, err := s.onprem.Authorize(ctx, cfg.OnPremHost, onprem.AuthorizeRequest{UserName: cfg.OnPremUsername})
	if err != nil {
		return "", fmt.Errorf("on-prem authorize: %w", err)
	}

	token := first.Token
	switch {
	case first.StatusCode == http.StatusOK && token != "":
		logger.Debug().Msg("Device issued a token without a challenge")
	case first.StatusCode == http.StatusUnauthorized:
		token, err = s.answerChallenge(ctx, cfg, first.Challenge)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: on-prem authorize returned HTTP %d", ErrAuthentication, first.StatusCode)
	}

	if err := s.store.SetOnPremToken(ctx, token, s.now()); err != nil {
		return "", fmt.Errorf("persist on-prem token: %w", err)
	}
	logger.Info().Str("token_prefix", tokenPrefix(token)).Msg("On-prem authentication successful")
	return token, nil
}

func (s *AuthService) answerChallenge(ctx context.Context, cfg *model.EndpointConfig, ch *onprem.Challenge) (string, error) {
	if ch == nil || ch.RandomKey == "" || ch.Realm == "" {
		return "", fmt.Errorf("%w: invalid challenge response", ErrAuthentication)
	}
	if !strings.EqualFold(ch.EncryptType, digestMD5) {
		return "", fmt.Errorf("%w: %w: %q", ErrAuthentication, ErrUnsupportedEncryption, ch.EncryptType)
	}

	second, err := s.onprem.Authorize(ctx, cfg.OnPremHost, onprem.AuthorizeRequest{
		UserName:  cfg.OnPremUsername,
		Password:  encryptPassword(cfg.OnPremPassword, ch.RandomKey),
		RandomKey: ch.RandomKey,
		Realm:     ch.Realm,
	})
	if err != nil {
		return "", fmt.Errorf("on-prem authorize: %w", err)
	}
	if second.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: on-prem authorize returned HTTP %d: %s", ErrAuthentication, second.StatusCode, second.Body)
	}
	if second.Token == "" {
		return "", fmt.Errorf("%w: on-prem authorize succeeded without a token", ErrAuthentication)
	}
	return second.Token, nil
}

func (s *AuthService) authenticateCloud(ctx context.Context, cfg *model.EndpointConfig) (*payroll.Session, error) {
	if cfg.CloudURL == "" || cfg.CloudUsername == "" || cfg.CloudPassword == "" {
		return nil, fmt.Errorf("%w: cloud URL, username and password are required", ErrConfiguration)
	}

	session, err := s.payroll.Login(ctx, cfg.CloudURL, cfg.CloudUsername, cfg.CloudPassword)
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return nil, fmt.Errorf("cloud login: %w", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if err := s.store.SetCloudToken(ctx, session.Token, session.Metadata, s.now()); err != nil {
		return nil, fmt.Errorf("persist cloud token: %w", err)
	}
	log.Ctx(ctx).Info().Str("endpoint", string(model.EndpointCloud)).
		Str("token_prefix", tokenPrefix(session.Token)).Msg("Cloud login successful")
	return session, nil
}

// encryptPassword computes hex(MD5(hex(MD5(password)) + randomKey)).
func encryptPassword(password, randomKey string) string {
	inner := md5.Sum([]byte(password))
	outer := md5.Sum([]byte(hex.EncodeToString(inner[:]) + randomKey))
	return hex.EncodeToString(outer[:])
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
