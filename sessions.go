package datagate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartSession opens a session for cred lasting the configured TTL. Client
// metadata is taken from the context.
func (s *Service) StartSession(ctx context.Context, cred *Credential) Result[*Session] {
	if cred == nil {
		return Fail[*Session](ReasonTamper, "no identity to start a session for")
	}
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Session](res)
	}

	session := &Session{
		Token:        uuid.NewString(),
		CredentialID: cred.ID,
		Timestamp:    time.Now(),
		TTLSeconds:   int64(s.config.SessionTTL / time.Second),
		IPAddress:    GetIPAddress(ctx),
		UserAgent:    GetUserAgent(ctx),
	}
	if err := s.directory.CreateSession(ctx, session); err != nil {
		return FromError[*Session](err)
	}

	s.metrics.sessionStarted()
	s.logger.Info("session started",
		zap.String("username", cred.Username),
		zap.String("session", session.ID))
	return OkWith(session)
}

// EndSession ends the session identified by token. Ending it again fails
// with Idempotency; unknown tokens fail with NotFound.
func (s *Service) EndSession(ctx context.Context, token string) Status {
	if res := s.requireDirectory(); !res.Success() {
		return res
	}

	session, err := s.directory.FindSession(ctx, token)
	if err != nil {
		return FromError[Empty](err)
	}
	if session.Ended() {
		return Fail[Empty](ReasonIdempotency, "session already ended")
	}

	now := time.Now()
	session.EndTimestamp = &now
	if err := s.directory.EndSession(ctx, session); err != nil {
		return FromError[Empty](err)
	}

	s.metrics.sessionEnded()
	s.logger.Info("session ended", zap.String("session", session.ID))
	return Ok[Empty]()
}

// ActiveSession returns the session for token when it is neither ended nor
// expired. Anything else is reported as NotFound.
func (s *Service) ActiveSession(ctx context.Context, token string) Result[*Session] {
	if res := s.requireDirectory(); !res.Success() {
		return Recast[*Session](res)
	}

	session, err := s.directory.FindSession(ctx, token)
	if err != nil {
		return FromError[*Session](err)
	}
	if !session.Active(time.Now()) {
		return Fail[*Session](ReasonNotFound, "session is not active")
	}
	return OkWith(session)
}

// Authenticate verifies the password, starts a session and authenticates
// broker with the credential.
func (s *Service) Authenticate(ctx context.Context, broker *AuthBroker, username, password string) Result[*Session] {
	verified := s.VerifyPassword(ctx, username, password)
	cred, ok := verified.Get()
	if !ok {
		return Recast[*Session](verified)
	}
	session := s.StartSession(ctx, cred)
	if !session.Success() {
		return session
	}
	if broker != nil {
		if err := broker.Authenticate(cred); err != nil {
			return FromError[*Session](err)
		}
	}
	return session
}
