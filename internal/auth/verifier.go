package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenValidator validates structural and contextual properties of JWT tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Validate checks issuer, audience and the time-based claims against now.
func (v TokenValidator) Validate(tok jwt.Token, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, options...)
}

// Verifier checks bearer tokens issued by the store API locally so the user
// id is known without a round trip.
type Verifier struct {
	algorithm jwa.SignatureAlgorithm
	key       any
	validator TokenValidator
	now       func() time.Time
}

// VerifierConfig configures NewVerifier. Key is the shared secret for HS*
// algorithms and a PEM encoded public key otherwise.
type VerifierConfig struct {
	Key       string
	Algorithm string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// NewVerifier builds a verifier. An empty key yields a nil verifier and no error.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Key) == "" {
		return nil, nil
	}
	var alg jwa.SignatureAlgorithm
	name := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if name == "" {
		name = "HS256"
	}
	if err := alg.Accept(name); err != nil {
		return nil, fmt.Errorf("auth: algorithm %q: %w", name, err)
	}
	if alg == jwa.NoSignature {
		return nil, errors.New("auth: none algorithm is not allowed")
	}
	var key any
	if strings.HasPrefix(name, "HS") {
		key = []byte(cfg.Key)
	} else {
		parsed, err := jwk.ParseKey([]byte(cfg.Key), jwk.WithPEM(true))
		if err != nil {
			return nil, fmt.Errorf("auth: parse verify key: %w", err)
		}
		key = parsed
	}
	return &Verifier{
		algorithm: alg,
		key:       key,
		validator: TokenValidator{Issuer: cfg.Issuer, Audience: cfg.Audience, ClockSkew: cfg.ClockSkew},
		now:       time.Now,
	}, nil
}

// WithNow overrides the verifier clock.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify validates token and returns its subject.
func (v *Verifier) Verify(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", ErrInvalidToken
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if algorithm != v.algorithm {
		return "", fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, algorithm)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(v.algorithm, v.key), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if err := v.validator.Validate(parsed, v.now()); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	subject := parsed.Subject()
	if subject == "" {
		if id, ok := parsed.Get("id"); ok {
			subject, _ = id.(string)
		}
	}
	if subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return subject, nil
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("token missing protected headers")
		}
		alg := headers.Algorithm()
		switch {
		case alg == "":
			return "", errors.New("token missing algorithm")
		case alg == jwa.NoSignature:
			return "", errors.New("token uses none algorithm")
		case algorithm == "":
			algorithm = alg
		case algorithm != alg:
			return "", errors.New("mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
