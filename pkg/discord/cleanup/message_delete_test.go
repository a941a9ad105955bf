package cleanup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type deleteRecorder struct {
	mu      sync.Mutex
	singles []string
	bulks   [][]string
}

func newDeleteSession(t *testing.T, failBulk bool) (*discordgo.Session, *deleteRecorder) {
	t.Helper()
	rec := &deleteRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/bulk-delete"):
			var body struct {
				Messages []string `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			rec.bulks = append(rec.bulks, body.Messages)
			if failBulk {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"code":50013,"message":"Missing Permissions"}`))
				return
			}
		case r.Method == http.MethodDelete:
			rec.singles = append(rec.singles, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	oldChannels := discordgo.EndpointChannels
	discordgo.EndpointChannels = server.URL + "/channels/"
	t.Cleanup(func() { discordgo.EndpointChannels = oldChannels })

	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("discordgo.New: %v", err)
	}
	s.MaxRestRetries = 0
	return s, rec
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strings.Repeat("1", i+1)
	}
	return out
}

func TestDeleteMessagesChunksBulkRequests(t *testing.T) {
	s, rec := newDeleteSession(t, false)

	deleted, failed := DeleteMessages(context.Background(), s, "c1", append(ids(101), ""), DeleteOptions{})
	if deleted != 101 || failed != 0 {
		t.Fatalf("expected 101 deleted, got deleted=%d failed=%d", deleted, failed)
	}
	if len(rec.bulks) != 1 || len(rec.bulks[0]) != BulkDeleteLimit {
		t.Fatalf("expected one full bulk request, got %d", len(rec.bulks))
	}
	if len(rec.singles) != 1 {
		t.Fatalf("trailing message should be deleted alone, got %v", rec.singles)
	}
}

func TestDeleteMessagesSingleOnly(t *testing.T) {
	s, rec := newDeleteSession(t, false)

	deleted, _ := DeleteMessages(context.Background(), s, "c1", []string{"1", "2", "3"}, DeleteOptions{Mode: DeleteModeSingleOnly})
	if deleted != 3 || len(rec.singles) != 3 || len(rec.bulks) != 0 {
		t.Fatalf("unexpected requests: deleted=%d singles=%v bulks=%v", deleted, rec.singles, rec.bulks)
	}
}

func TestDeleteMessagesReportsFailures(t *testing.T) {
	s, _ := newDeleteSession(t, true)

	var failedIDs []string
	deleted, failed := DeleteMessages(context.Background(), s, "c1", []string{"1", "2"}, DeleteOptions{
		OnDeleteError: func(id string, err error) {
			if err == nil {
				t.Error("expected an error for failed delete")
			}
			failedIDs = append(failedIDs, id)
		},
	})
	if deleted != 0 || failed != 2 || len(failedIDs) != 2 {
		t.Fatalf("unexpected result deleted=%d failed=%d ids=%v", deleted, failed, failedIDs)
	}
}

func TestDeleteMessagesNoop(t *testing.T) {
	t.Parallel()

	if d, f := DeleteMessages(context.Background(), nil, "c1", []string{"1"}, DeleteOptions{}); d != 0 || f != 0 {
		t.Fatalf("nil session should be a no-op, got %d/%d", d, f)
	}
}
