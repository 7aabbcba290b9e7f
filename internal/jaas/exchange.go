package jaas

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ryadrakem/mms-V2/internal/jsonrpc"
	"github.com/ryadrakem/mms-V2/internal/metrics"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrUserNotFound    = errors.New("user not found")
)

type Request struct {
	UserID    int64 `json:"-"`
	MeetingID int64 `json:"meeting_id"`
	SessionID int64 `json:"session_id,omitempty"`
}

// Grant is the token endpoint result.
type Grant struct {
	Success     bool   `json:"success"`
	Token       string `json:"token,omitempty"`
	Domain      string `json:"domain,omitempty"`
	RoomName    string `json:"room_name,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	UserEmail   string `json:"user_email,omitempty"`
	IsModerator bool   `json:"is_moderator"`
	AppID       string `json:"app_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Service grants room tokens from records: the meeting, the calling user
// and the user's participant row, which decides moderation.
type Service struct {
	store   recordstore.Store
	issuer  *Issuer
	metrics *metrics.Metrics
}

func NewService(store recordstore.Store, issuer *Issuer, m *metrics.Metrics) *Service {
	return &Service{store: store, issuer: issuer, metrics: m}
}

func (s *Service) Exchange(ctx context.Context, req Request) (Grant, error) {
	g, err := s.exchange(ctx, req)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.TokensIssued.WithLabelValues(status).Inc()
	}
	return g, err
}

func (s *Service) exchange(ctx context.Context, req Request) (Grant, error) {
	if req.MeetingID == 0 {
		return Grant{}, ErrMeetingNotFound
	}
	meetings, err := s.store.Read(ctx, model.ModelMeeting, []int64{req.MeetingID}, []string{"name"})
	if err != nil {
		return Grant{}, err
	}
	if len(meetings) == 0 {
		return Grant{}, ErrMeetingNotFound
	}

	users, err := s.store.Read(ctx, model.ModelUser, []int64{req.UserID}, []string{"name", "email", "avatar_url"})
	if err != nil {
		return Grant{}, err
	}
	if len(users) == 0 {
		return Grant{}, ErrUserNotFound
	}

	rows, err := s.store.SearchRead(ctx, model.ModelParticipant, recordstore.Domain{
		recordstore.Eq("meeting_id", req.MeetingID),
		recordstore.Eq("user_id", req.UserID),
	}, []string{"is_host"})
	if err != nil {
		return Grant{}, err
	}
	moderator := len(rows) > 0 && rows[0].Bool("is_host")

	user := User{
		ID:        req.UserID,
		Name:      users[0].String("name"),
		Email:     users[0].String("email"),
		Avatar:    users[0].String("avatar_url"),
		Moderator: moderator,
	}
	token, err := s.issuer.Issue(user, &Meeting{ID: req.MeetingID, Name: meetings[0].String("name")})
	if err != nil {
		return Grant{}, fmt.Errorf("generate authentication token: %w", err)
	}

	return Grant{
		Success:     true,
		Token:       token,
		Domain:      s.issuer.Domain(),
		RoomName:    s.issuer.RoomName(req.MeetingID),
		UserName:    user.Name,
		UserEmail:   EmailOrFallback(user.Email, user.ID),
		IsModerator: moderator,
		AppID:       s.issuer.AppID(),
	}, nil
}

// Client exchanges tokens against a remote token endpoint. The caller's
// identity travels in the bearer token, so Request.UserID is ignored.
type Client struct {
	url string
	rpc *jsonrpc.Client
}

func NewClient(url, bearer string, hc *http.Client) *Client {
	headers := http.Header{}
	if bearer != "" {
		headers.Set("Authorization", "Bearer "+bearer)
	}
	return &Client{url: url, rpc: &jsonrpc.Client{HTTP: hc, Headers: headers}}
}

func (c *Client) Exchange(ctx context.Context, req Request) (Grant, error) {
	var g Grant
	if err := c.rpc.Call(ctx, c.url, req, &g); err != nil {
		return Grant{}, err
	}
	if !g.Success {
		msg := g.Error
		if msg == "" {
			msg = "Authentication failed"
		}
		return g, errors.New(msg)
	}
	return g, nil
}
