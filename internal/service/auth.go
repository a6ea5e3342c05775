package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/faucetdb/askdb/internal/config"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrKeyRevoked         = errors.New("api key revoked")
)

// KeyPrefix starts every generated API key.
const KeyPrefix = "askdb_"

const jwtIssuer = "askdb"

// APIKeyPrincipal identifies the caller behind an API key. KeyID is zero
// for keys listed in the configuration file.
type APIKeyPrincipal struct {
	KeyID int64
	Label string
}

type JWTPrincipal struct {
	Subject string
}

// AuthService authenticates API keys and bearer tokens.
type AuthService struct {
	store      *config.Store
	jwtSecret  []byte
	staticKeys [][sha256.Size]byte
}

// NewAuthService creates an AuthService. staticKeys are raw keys from the
// configuration file; store may be nil when only static keys are used.
func NewAuthService(store *config.Store, jwtSecret string, staticKeys []string) *AuthService {
	s := &AuthService{
		store:     store,
		jwtSecret: []byte(jwtSecret),
	}
	for _, k := range staticKeys {
		if k == "" {
			continue
		}
		s.staticKeys = append(s.staticKeys, sha256.Sum256([]byte(k)))
	}
	return s
}

// ValidateAPIKey checks rawKey against the configured keys, then against
// the key hashes in the store.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*APIKeyPrincipal, error) {
	if rawKey == "" {
		return nil, ErrInvalidCredentials
	}
	digest := sha256.Sum256([]byte(rawKey))
	matched := 0
	for i := range s.staticKeys {
		// every key is compared so timing does not reveal the position
		matched |= subtle.ConstantTimeCompare(digest[:], s.staticKeys[i][:])
	}
	if matched == 1 {
		return &APIKeyPrincipal{Label: "config"}, nil
	}

	if s.store == nil {
		return nil, ErrInvalidCredentials
	}
	key, err := s.store.GetAPIKeyByHash(ctx, hex.EncodeToString(digest[:]))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !key.IsActive {
		return nil, ErrKeyRevoked
	}
	if key.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	// Update last used timestamp (fire and forget)
	go s.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

	return &APIKeyPrincipal{
		KeyID: key.ID,
		Label: key.Label,
	}, nil
}

// ValidateJWT verifies an HS256 bearer token issued by IssueJWT.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*JWTPrincipal, error) {
	if len(s.jwtSecret) == 0 {
		return nil, ErrInvalidCredentials
	}
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(jwtIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidCredentials
	}

	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	return &JWTPrincipal{Subject: claims.Subject}, nil
}

// IssueJWT creates a signed token for subject that expires after ttl.
func (s *AuthService) IssueJWT(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    jwtIssuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GenerateAPIKey returns a new random key and the prefix stored alongside
// its hash for identification.
func GenerateAPIKey() (rawKey, prefix string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	rawKey = KeyPrefix + hex.EncodeToString(b)
	return rawKey, rawKey[:len(KeyPrefix)+8], nil
}
