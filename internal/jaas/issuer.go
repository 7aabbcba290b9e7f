// Package jaas issues and exchanges RS256 tokens for hosted video rooms.
package jaas

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultDomain = "8x8.vc"
	DefaultTTL    = 24 * time.Hour
)

type Config struct {
	AppID      string
	KeyID      string
	PrivateKey string
	Domain     string
	TTL        time.Duration
}

type User struct {
	ID        int64
	Name      string
	Email     string
	Avatar    string
	Moderator bool
}

type Meeting struct {
	ID   int64
	Name string
}

type UserClaim struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
	Moderator string `json:"moderator"`
}

type FeatureClaim struct {
	Livestreaming string `json:"livestreaming"`
	Recording     string `json:"recording"`
	Moderation    string `json:"moderation"`
}

type MeetingClaim struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ContextClaim struct {
	User     UserClaim     `json:"user"`
	Features FeatureClaim  `json:"features"`
	Meeting  *MeetingClaim `json:"meeting,omitempty"`
}

// Claims is the room token payload. Audience is a bare string on the wire.
type Claims struct {
	Audience string       `json:"aud"`
	Room     string       `json:"room"`
	Context  ContextClaim `json:"context"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	key *rsa.PrivateKey
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.AppID == "" {
		return nil, errors.New("jaas app id is required")
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, errors.New("jaas private key is required")
	}
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Issuer{cfg: cfg, key: key, now: time.Now}, nil
}

func (i *Issuer) Domain() string { return i.cfg.Domain }

func (i *Issuer) AppID() string { return i.cfg.AppID }

// RoomName is "<app id>/odoo-meeting-<meeting id>".
func (i *Issuer) RoomName(meetingID int64) string {
	return i.cfg.AppID + "/" + strings.ToLower("odoo-meeting-"+strconv.FormatInt(meetingID, 10))
}

func (i *Issuer) Issue(u User, m *Meeting) (string, error) {
	now := i.now()
	flag := strconv.FormatBool(u.Moderator)
	claims := Claims{
		Audience: "jitsi",
		Room:     "*",
		Context: ContextClaim{
			User: UserClaim{
				ID:        strconv.FormatInt(u.ID, 10),
				Name:      u.Name,
				Email:     EmailOrFallback(u.Email, u.ID),
				Avatar:    u.Avatar,
				Moderator: flag,
			},
			Features: FeatureClaim{Livestreaming: flag, Recording: flag, Moderation: flag},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat",
			Subject:   i.cfg.AppID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
			NotBefore: jwt.NewNumericDate(now.Add(-10 * time.Second)),
		},
	}
	if m != nil {
		claims.Context.Meeting = &MeetingClaim{ID: m.ID, Name: m.Name}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.cfg.KeyID
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign room token: %w", err)
	}
	return signed, nil
}

func EmailOrFallback(email string, userID int64) string {
	if email != "" {
		return email
	}
	return fmt.Sprintf("user%d@odoo.local", userID)
}

// ParsePrivateKey accepts PKCS#1 or PKCS#8 RSA keys, including keys whose
// line breaks were lost or escaped when stored in settings.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(RepairPEM(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse jaas private key: %w", err)
	}
	return key, nil
}

// RepairPEM rebuilds a PEM block with its body wrapped at 64 columns.
func RepairPEM(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, `\n`, "\n"))
	label := "PRIVATE KEY"
	if start := strings.Index(s, "-----BEGIN "); start >= 0 {
		rest := s[start+len("-----BEGIN "):]
		if end := strings.Index(rest, "-----"); end >= 0 {
			label = rest[:end]
			s = rest[end+len("-----"):]
		}
	}
	if end := strings.Index(s, "-----END "); end >= 0 {
		s = s[:end]
	}
	body := strings.Join(strings.Fields(s), "")

	var b strings.Builder
	b.WriteString("-----BEGIN " + label + "-----\n")
	for len(body) > 64 {
		b.WriteString(body[:64])
		b.WriteByte('\n')
		body = body[64:]
	}
	if body != "" {
		b.WriteString(body)
		b.WriteByte('\n')
	}
	b.WriteString("-----END " + label + "-----\n")
	return b.String()
}
