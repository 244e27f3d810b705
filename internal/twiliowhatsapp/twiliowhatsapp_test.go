package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "123456", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Body != "Hello Test" || msgs[0].MediaURL != "" {
		t.Errorf("unexpected message %+v", msgs[0])
	}
}

func TestMockClient_SendMedia(t *testing.T) {
	mock := NewMockClient()
	if err := mock.SendMedia(context.Background(), "+1 (555) 123-4567", "caption", "https://cdn.example/a.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := mock.Messages()[0]
	if got.To != "15551234567" || got.MediaURL != "https://cdn.example/a.png" {
		t.Errorf("unexpected message %+v", got)
	}
}

func TestMockClient_Error(t *testing.T) {
	mock := NewMockClient()
	mock.Err = errors.New("twilio down")
	if err := mock.SendMedia(context.Background(), "15551234567", "x", "u"); err == nil {
		t.Error("expected configured error")
	}
	if len(mock.Messages()) != 0 {
		t.Error("failed send must not be recorded")
	}
}

func TestCanonicalizeRecipient(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+1 (555) 123-4567", "15551234567", false},
		{"15551234567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizeRecipient(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizeRecipient(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("expected whatsapp: prefix, got %q", c.fromWhats)
	}
}
