package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"guest-delivery/internal/resilience/retry"
)

// TwilioConfig configures the text-message transport.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// From is the sending number; MessagingServiceSID takes precedence when set.
	From                string
	MessagingServiceSID string
	RatePerSecond       float64
}

type twilioMessageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSMS sends text messages through the Twilio REST API.
type TwilioSMS struct {
	config   TwilioConfig
	api      twilioMessageAPI
	limiter  *RateLimiter
	retryCfg retry.Config
}

// NewTwilioSMS creates the transport. Without credentials it reports unconfigured.
func NewTwilioSMS(config TwilioConfig) *TwilioSMS {
	s := &TwilioSMS{
		config:   config,
		limiter:  NewRateLimiter(config.RatePerSecond, 1),
		retryCfg: retry.ProviderConfig(),
	}
	if config.AccountSID != "" && config.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: config.AccountSID,
			Password: config.AuthToken,
		})
		s.api = client.Api
	}
	return s
}

// Configured reports whether credentials and a sender are present.
func (s *TwilioSMS) Configured() bool {
	return s != nil && s.api != nil && (s.config.From != "" || s.config.MessagingServiceSID != "")
}

// SendText sends body to the E.164 number to and returns the message SID.
func (s *TwilioSMS) SendText(ctx context.Context, to, body string) (string, error) {
	if !s.Configured() {
		return "", errors.New("twilio not configured")
	}
	if err := s.limiter.Allow(ctx); err != nil {
		return "", fmt.Errorf("twilio rate limit wait: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetBody(body)
	if s.config.MessagingServiceSID != "" {
		params.SetMessagingServiceSid(s.config.MessagingServiceSID)
	} else {
		params.SetFrom(s.config.From)
	}

	var sid string
	err := retry.WithBackoff(ctx, s.retryCfg, func() error {
		msg, err := s.api.CreateMessage(params)
		if err != nil {
			return classifyTwilioError(err)
		}
		if msg == nil || msg.Sid == nil {
			return errors.New("twilio response missing message sid")
		}
		if msg.ErrorCode != nil && *msg.ErrorCode != 0 {
			text := ""
			if msg.ErrorMessage != nil {
				text = *msg.ErrorMessage
			}
			return &ClientError{Provider: "twilio", StatusCode: http.StatusBadRequest,
				Message: fmt.Sprintf("error %d: %s", *msg.ErrorCode, text)}
		}
		sid = *msg.Sid
		return nil
	})
	if err != nil {
		return "", err
	}
	return sid, nil
}

func classifyTwilioError(err error) error {
	var restErr *twilioclient.TwilioRestError
	if !errors.As(err, &restErr) {
		return err
	}
	msg := fmt.Sprintf("code %d: %s", restErr.Code, restErr.Message)
	return classifyStatus("twilio", restErr.Status, nil, []byte(msg))
}
