// Package provider holds the outbound notification clients: voice calls and
// SMS through a Twilio-style REST API, email through a JSON relay. All three
// are consumed through narrow interfaces so campaigns and broadcasts can be
// tested against fakes.
package provider

import "context"

// VoiceProvider places an outbound call. The callback URL renders the spoken
// message when the callee answers.
type VoiceProvider interface {
	PlaceCall(ctx context.Context, to, callbackURL string) (callSID string, err error)
}

// SMSProvider sends a single text message.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, body string) (messageSID string, err error)
}

// EmailProvider sends a single email.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}
