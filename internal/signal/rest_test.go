package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sigbridge/internal/domain"
)

const envelopeBatch = `[
	{"envelope": {"source": "+111", "timestamp": 1700000000000, "dataMessage": {
		"message": "turn on kitchen light", "timestamp": 1700000000000,
		"attachments": [{"id": "a1", "contentType": "image/png", "filename": "photo.png"}]
	}}},
	{"envelope": {"source": "+222", "timestamp": 1700000000001, "dataMessage": {
		"message": "status", "timestamp": 1700000000001,
		"groupInfo": {"groupId": "g1", "name": "Home"}
	}}},
	{"envelope": {"source": "+333", "timestamp": 1700000000002}}
]`

func TestRESTTransport_ReceiveNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/receive/+100" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(envelopeBatch))
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())
	msgs, err := tr.ReceiveMessages(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The envelope without a dataMessage (receipt) is dropped.
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	first := msgs[0]
	if first.SenderID != "+111" || first.Timestamp != 1700000000000 {
		t.Errorf("unexpected sender/timestamp %+v", first)
	}
	if first.Origin != domain.OriginIndividual || first.GroupID != "" {
		t.Errorf("expected individual origin, got %+v", first)
	}
	if len(first.Attachments) != 1 || first.Attachments[0] != "photo.png" {
		t.Errorf("unexpected attachments %v", first.Attachments)
	}

	second := msgs[1]
	if second.Origin != domain.OriginGroup || second.GroupID != "g1" || second.GroupName != "Home" {
		t.Errorf("expected group origin, got %+v", second)
	}
	if second.Identity() != "1700000000001:+222:g1" {
		t.Errorf("unexpected identity %q", second.Identity())
	}
}

func TestRESTTransport_EmptyErrorBodyMeansNoMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The backend answers the poll window closing with a bare 400.
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())
	msgs, err := tr.ReceiveMessages(context.Background())
	if err != nil {
		t.Fatalf("empty-body non-success should not be an error, got %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestRESTTransport_ErrorBodyIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "account not registered", http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())
	if _, err := tr.ReceiveMessages(context.Background()); err == nil {
		t.Error("non-success with a body should be an error")
	}
}

func TestRESTTransport_Send(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		got = sendRequest{}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())

	err := tr.SendMessage(context.Background(), domain.ReplyTarget{Recipient: "+111"}, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if got.Recipient != "+111" || got.GroupID != "" || got.Message != "hello" {
		t.Errorf("unexpected send payload %+v", got)
	}

	err = tr.SendMessage(context.Background(), domain.ReplyTarget{GroupID: "g1"}, "to group")
	if err != nil {
		t.Fatal(err)
	}
	if got.GroupID != "g1" || got.Recipient != "" {
		t.Errorf("unexpected group payload %+v", got)
	}
}

func TestRESTTransport_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unregistered", http.StatusBadRequest)
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())
	err := tr.SendMessage(context.Background(), domain.ReplyTarget{Recipient: "+111"}, "hello")

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected SendError, got %v", err)
	}
	if sendErr.Target.Recipient != "+111" {
		t.Errorf("SendError should carry the target, got %+v", sendErr.Target)
	}
}

func TestRESTTransport_Groups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.Write([]byte(`[{"id": "g1", "name": "Home", "members": ["+111"]}]`))
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"id": "g2", "name": "Alerts"}`))
		}
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())

	groups, err := tr.ListGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" || groups[0].Name != "Home" {
		t.Errorf("unexpected groups %+v", groups)
	}

	id, err := tr.CreateGroup(context.Background(), "Alerts", []string{"+111"})
	if err != nil {
		t.Fatal(err)
	}
	if id != "g2" {
		t.Errorf("unexpected created group id %q", id)
	}
}

func TestRESTTransport_InviteToGroup(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
	}))
	defer server.Close()

	tr := NewRESTTransport(server.URL, "+100", testLogger())
	if err := tr.InviteToGroup(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPut || gotPath != "/groups/+100/g1" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
}
