package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ApartmentHunter/internal/domain"
)

func TestNotifierPostsListing(t *testing.T) {
	t.Parallel()

	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier("token123", "42", srv.URL, 0)
	listing := domain.Listing{
		Title:    "3 חדרים בבת גלים",
		Price:    domain.IntPtr(3500),
		Rooms:    domain.FloatPtr(3),
		Location: "בת גלים",
		URL:      "https://www.yad2.co.il/realestate/item/abc",
	}
	if err := n.Notify(context.Background(), listing); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotChat != "42" {
		t.Fatalf("unexpected chat id: %s", gotChat)
	}
	for _, want := range []string{"3 חדרים בבת גלים", "3500 ₪", "3 rooms", "https://www.yad2.co.il/realestate/item/abc"} {
		if !strings.Contains(gotText, want) {
			t.Fatalf("message %q missing %q", gotText, want)
		}
	}
}

func TestNotifierReportsHTTPFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewNotifier("token", "1", srv.URL, 0).Notify(context.Background(), domain.Listing{Title: "x"})
	if !errors.Is(err, domain.ErrNotifyFailure) {
		t.Fatalf("expected ErrNotifyFailure, got %v", err)
	}
}

func TestNotifierDeliversEveryMessageWhenUnpaced(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("token", "1", srv.URL, 0)
	for i := 0; i < 7; i++ {
		if err := n.Notify(context.Background(), domain.Listing{Title: "x"}); err != nil {
			t.Fatalf("Notify %d returned error: %v", i, err)
		}
	}
	if got := calls.Load(); got != 7 {
		t.Fatalf("expected 7 messages, got %d", got)
	}
}

func TestNotifierPacesMessages(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// One message per second: the second send cannot fit a 50ms deadline.
	n := NewNotifier("token", "1", srv.URL, 60)
	if err := n.Notify(context.Background(), domain.Listing{Title: "first"}); err != nil {
		t.Fatalf("first Notify returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := n.Notify(ctx, domain.Listing{Title: "second"}); !errors.Is(err, domain.ErrNotifyFailure) {
		t.Fatalf("expected paced send to fail on deadline, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single delivered message, got %d", got)
	}
}

func TestNotifierRequiresCredentials(t *testing.T) {
	t.Parallel()

	err := NewNotifier("", "", "", 0).Notify(context.Background(), domain.Listing{})
	if !errors.Is(err, domain.ErrNotifyFailure) {
		t.Fatalf("expected ErrNotifyFailure, got %v", err)
	}
}

func TestFormatMessageHandlesMissingFields(t *testing.T) {
	t.Parallel()

	msg := FormatMessage(domain.Listing{Title: "דירה", PetsAllowed: domain.PetsAllowed})
	for _, want := range []string{"price on request", "rooms unknown", "pets allowed"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}
