package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/paperquiz-backend/internal/attempt"
	"github.com/stemsi/paperquiz-backend/internal/config"
)

// Auth-state messages published on a user's auth channel.
const (
	AuthEventSignedOut = "signed_out"
	AuthEventSignedIn  = "signed_in"
)

// ErrMissingSubject is returned for tokens that carry no user.
var ErrMissingSubject = errors.New("token has no subject")

// Claims are the claims of a bearer token issued by the external auth provider.
// The user ID is the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// UserID returns the authenticated user.
func (c *Claims) UserID() string { return c.Subject }

// IdentitySession is an attempt.Identity that holds a live subscription and
// must be closed when the attempt ends.
type IdentitySession interface {
	attempt.Identity
	Close() error
}

// AuthService validates bearer tokens and carries auth-state changes over
// Redis Pub/Sub. It issues no tokens.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
	log zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg: cfg,
		rdb: rdb,
		log: log.With().Str("component", "auth_service").Logger(),
	}
}

// ValidateToken parses and validates an HS256 JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

// RevokeSessions announces that userID signed out. Every live attempt of
// the user is closed without submission. Returns the number of listeners.
func (s *AuthService) RevokeSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.rdb.Publish(ctx, config.CacheKey.AuthChannel(userID), AuthEventSignedOut).Result()
	if err != nil {
		return 0, fmt.Errorf("publish sign-out: %w", err)
	}
	s.log.Info().Str("user_id", userID).Int64("listeners", n).Msg("Sessions revoked")
	return n, nil
}

// OpenSession subscribes to the user's auth channel and returns the
// identity handed to an attempt.
func (s *AuthService) OpenSession(ctx context.Context, userID string) (IdentitySession, error) {
	pubsub := s.rdb.Subscribe(ctx, config.CacheKey.AuthChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe auth channel: %w", err)
	}

	sess := newAuthSession(userID)
	sess.closer = pubsub.Close
	go sess.listen(pubsub.Channel(), s.log)
	return sess, nil
}

// AuthSession fans auth-state changes of one user out to its subscribers.
type AuthSession struct {
	userID string

	mu     sync.Mutex
	subs   map[int]func(signedIn bool)
	nextID int

	closer    func() error
	closeOnce sync.Once
}

func newAuthSession(userID string) *AuthSession {
	return &AuthSession{
		userID: userID,
		subs:   make(map[int]func(bool)),
	}
}

// UserID implements attempt.Identity.
func (a *AuthSession) UserID() string { return a.userID }

// Subscribe implements attempt.Identity.
func (a *AuthSession) Subscribe(fn func(signedIn bool)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// notify calls every subscriber outside the lock, so a subscriber may
// unsubscribe from inside its callback.
func (a *AuthSession) notify(signedIn bool) {
	a.mu.Lock()
	fns := make([]func(bool), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(signedIn)
	}
}

func (a *AuthSession) listen(ch <-chan *redis.Message, log zerolog.Logger) {
	for msg := range ch {
		switch msg.Payload {
		case AuthEventSignedOut:
			a.notify(false)
		case AuthEventSignedIn:
			a.notify(true)
		default:
			log.Warn().Str("user_id", a.userID).Str("payload", msg.Payload).Msg("Unknown auth event")
		}
	}
}

// Close drops the Redis subscription. Safe to call more than once.
func (a *AuthSession) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.closer != nil {
			err = a.closer()
		}
	})
	return err
}
