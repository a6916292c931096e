package sources

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"taskharvest/internal/models"
)

func TestSinceTime(t *testing.T) {
	lookback := 24 * time.Hour

	t.Run("nil cursor falls back to lookback", func(t *testing.T) {
		got := sinceTime(nil, parseWikiPosition, lookback)
		want := time.Now().UTC().Add(-lookback)
		if diff := got.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("sinceTime = %v, want about %v", got, want)
		}
	})

	t.Run("cursor position wins", func(t *testing.T) {
		cursor := &models.SyncCursor{Position: "2026-02-01T09:00:00Z"}
		got := sinceTime(cursor, parseWikiPosition, lookback)
		want := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("sinceTime = %v, want %v", got, want)
		}
	})

	t.Run("unparseable position falls back to lookback", func(t *testing.T) {
		cursor := &models.SyncCursor{Position: "not-a-time"}
		got := sinceTime(cursor, parseWikiPosition, lookback)
		want := time.Now().UTC().Add(-lookback)
		if diff := got.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("sinceTime = %v, want about %v", got, want)
		}
	})
}

func TestAsCredentialError(t *testing.T) {
	t.Run("401 becomes bad credentials", func(t *testing.T) {
		err := asCredentialError(&googleapi.Error{Code: 401, Message: "Invalid Credentials"})
		if !errors.Is(err, ErrBadCredentials) {
			t.Errorf("err = %v, want ErrBadCredentials", err)
		}
	})

	t.Run("403 becomes bad credentials", func(t *testing.T) {
		err := asCredentialError(&googleapi.Error{Code: 403, Message: "insufficient scope"})
		if !errors.Is(err, ErrBadCredentials) {
			t.Errorf("err = %v, want ErrBadCredentials", err)
		}
	})

	t.Run("server error passes through", func(t *testing.T) {
		in := &googleapi.Error{Code: 503, Message: "backend unavailable"}
		err := asCredentialError(in)
		if errors.Is(err, ErrBadCredentials) {
			t.Errorf("transient outage reported as bad credentials: %v", err)
		}
		if err != error(in) {
			t.Errorf("err = %v, want the original error", err)
		}
	})

	t.Run("wrapped auth error is still detected", func(t *testing.T) {
		wrapped := fmt.Errorf("call failed: %w", &googleapi.Error{Code: 401})
		if !errors.Is(asCredentialError(wrapped), ErrBadCredentials) {
			t.Error("auth error lost inside a wrap")
		}
	})

	t.Run("plain error passes through", func(t *testing.T) {
		in := errors.New("connection refused")
		if err := asCredentialError(in); err != in {
			t.Errorf("err = %v, want the original error", err)
		}
	})
}

func TestParseChatPosition(t *testing.T) {
	got, ok := parseChatPosition("1767225600.000200")
	if !ok {
		t.Fatal("parseChatPosition rejected a valid ts")
	}
	if got.Unix() != 1767225600 {
		t.Errorf("parseChatPosition = %v, want epoch 1767225600", got)
	}

	if _, ok := parseChatPosition("garbage"); ok {
		t.Error("parseChatPosition accepted garbage")
	}
}
