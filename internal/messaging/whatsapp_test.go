package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSendText_SinglePart(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.MessagingProduct != "whatsapp" || req.To != "911234567890" {
			t.Errorf("unexpected request: %+v", req)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		bodies = append(bodies, req.Text.Body)
		fmt.Fprintf(w, `{"messages":[{"id":"wamid.%d"}]}`, len(bodies))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "10001", "tok", 5*time.Second, 4096, 0)
	id, err := c.SendText(context.Background(), "911234567890", "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if id != "wamid.1" || len(bodies) != 1 {
		t.Errorf("id = %q, sends = %d", id, len(bodies))
	}
}

func TestSendText_SplitsLongBodiesInOrder(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		bodies = append(bodies, req.Text.Body)
		fmt.Fprintf(w, `{"messages":[{"id":"wamid.%d"}]}`, len(bodies))
	}))
	defer srv.Close()

	// 25-rune cap; the text splits at spaces.
	c := NewClient(srv.URL, "10001", "tok", 5*time.Second, 25, 0)
	text := "one two three four five six seven eight nine ten"
	id, err := c.SendText(context.Background(), "911234567890", text)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(bodies) < 2 {
		t.Fatalf("sends = %d, want >= 2", len(bodies))
	}
	if id != fmt.Sprintf("wamid.%d", len(bodies)) {
		t.Errorf("returned id %q is not the last part's", id)
	}
	for i, b := range bodies {
		if utf8.RuneCountInString(b) > 25 {
			t.Errorf("part %d exceeds cap: %q", i, b)
		}
	}
	if joined := strings.Join(bodies, " "); joined != text {
		t.Errorf("parts reassemble to %q, want %q", joined, text)
	}
}

func TestSendText_HourlyCap(t *testing.T) {
	sends := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sends++
		fmt.Fprint(w, `{"messages":[{"id":"wamid.x"}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "10001", "tok", 5*time.Second, 4096, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.SendText(ctx, "911234567890", "hello"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if _, err := c.SendText(ctx, "911234567890", "hello"); err != ErrSendCapExceeded {
		t.Fatalf("third send err = %v, want ErrSendCapExceeded", err)
	}
	if sends != 2 {
		t.Errorf("transport sends = %d, want 2", sends)
	}
}

func TestSendText_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "10001", "bad", 5*time.Second, 4096, 0)
	if _, err := c.SendText(context.Background(), "911234567890", "hello"); err == nil {
		t.Fatal("want error for 401 response")
	}
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "fields=name") {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"name":"Ramesh","profile_pic":"https://cdn.example/r.jpg"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "10001", "tok", 5*time.Second, 4096, 0)
	p, err := c.FetchProfile(context.Background(), "911234567890")
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if p.DisplayName != "Ramesh" || p.AvatarURL == "" {
		t.Errorf("unexpected profile: %+v", p)
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitText(short) = %v", got)
	}

	parts := splitText("abcdefghij", 4) // no spaces: hard cuts
	if len(parts) != 3 {
		t.Fatalf("parts = %v", parts)
	}
	if strings.Join(parts, "") != "abcdefghij" {
		t.Errorf("hard-cut parts lose content: %v", parts)
	}
}

func TestWindow_ResetsOnHourRollover(t *testing.T) {
	w := NewWindow()
	clock := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	w.Incr()
	w.Incr()
	if got := w.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}

	clock = clock.Add(45 * time.Minute) // 11:15, new hour window
	if got := w.Count(); got != 0 {
		t.Fatalf("Count after rollover = %d, want 0", got)
	}
	if got := w.Incr(); got != 1 {
		t.Fatalf("Incr after rollover = %d, want 1", got)
	}
}
