package discord

import "testing"

func TestParseCredentials(t *testing.T) {
	t.Parallel()

	creds, err := parseCredentials(map[string]any{
		"bot_token":  "token-123",
		"public_key": " abcdef ",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if creds.BotToken != "token-123" {
		t.Fatalf("unexpected token: %q", creds.BotToken)
	}
	if creds.PublicKey != "abcdef" {
		t.Fatalf("unexpected public key: %q", creds.PublicKey)
	}
}

func TestParseCredentialsCamelCaseKeys(t *testing.T) {
	t.Parallel()

	creds, err := parseCredentials(map[string]any{"botToken": "token-123"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if creds.BotToken != "token-123" {
		t.Fatalf("unexpected token: %q", creds.BotToken)
	}
}

func TestParseCredentialsRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := parseCredentials(map[string]any{"public_key": "abc"}); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("  hello  "); got != "hello" {
		t.Fatalf("unexpected result: %q", got)
	}
	long := make([]byte, maxMessageLen+100)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(string(long))
	if len(got) != maxMessageLen {
		t.Fatalf("unexpected length: %d", len(got))
	}
	if got[maxMessageLen-1] != '.' {
		t.Fatalf("expected ellipsis suffix")
	}
}
