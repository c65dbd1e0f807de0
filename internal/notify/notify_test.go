package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
)

func TestForBatch(t *testing.T) {
	tests := []struct {
		name     string
		result   domain.BatchResult
		wantType NotificationType
		wantMsg  string
	}{
		{
			name:     "all succeeded",
			result:   domain.BatchResult{Succeeded: 3, Total: 3},
			wantType: NotifySuccess,
			wantMsg:  "3/3 worlds converted",
		},
		{
			name:     "partial failure",
			result:   domain.BatchResult{Succeeded: 1, Total: 3},
			wantType: NotifyError,
			wantMsg:  "1/3 worlds converted",
		},
		{
			name:     "cancelled",
			result:   domain.BatchResult{Succeeded: 2, Total: 5, Cancelled: true},
			wantType: NotifyWarning,
			wantMsg:  "2/5 worlds converted (cancelled)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := ForBatch(tt.result)
			if n.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", n.Type, tt.wantType)
			}
			if n.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", n.Message, tt.wantMsg)
			}
			if n.Title != "Batch conversion finished" {
				t.Errorf("Title = %q", n.Title)
			}
		})
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(context.Background(), Notification{
		Title:   "Batch conversion finished",
		Message: "4/4 worlds converted",
		Type:    NotifySuccess,
		RunID:   "abc123",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var msg SlackMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if msg.Text != "Batch conversion finished" {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(msg.Attachments))
	}
	if msg.Attachments[0].Color != "good" {
		t.Errorf("Color = %q, want good", msg.Attachments[0].Color)
	}
	if !strings.Contains(msg.Attachments[0].Title, "abc123") {
		t.Errorf("attachment title %q missing run id", msg.Attachments[0].Title)
	}
}

func TestSlackNotifier_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(context.Background(), Notification{Title: "x"})
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestSlackNotifier_EmptyURLDisabled(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned error: %v", err)
	}
}

func TestSlackColor(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		if got := SlackColor(tt.typ); got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(context.Background(), Notification{Title: "Batch conversion finished"})

	if len(called) != 2 {
		t.Errorf("calls = %d, want 2", len(called))
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(ctx context.Context, n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
