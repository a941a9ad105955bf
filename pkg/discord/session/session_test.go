package session

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type connectorCalls struct {
	created, opened, closed int
}

func fakeConnector(calls *connectorCalls, createErr, openErr error) connector {
	return connector{
		create: func(string) (*discordgo.Session, error) {
			calls.created++
			if createErr != nil {
				return nil, createErr
			}
			return &discordgo.Session{State: discordgo.NewState()}, nil
		},
		open: func(*discordgo.Session) error {
			calls.opened++
			return openErr
		},
		close: func(*discordgo.Session) error {
			calls.closed++
			return nil
		},
	}
}

func TestConnect(t *testing.T) {
	createErr := errors.New("bad token format")
	openErr := errors.New("gateway unreachable")

	tests := []struct {
		name      string
		token     string
		createErr error
		openErr   error
		wantErr   error
		want      connectorCalls
	}{
		{name: "empty token", token: "", wantErr: ErrEmptyToken},
		{name: "create fails", token: "t", createErr: createErr, wantErr: createErr, want: connectorCalls{created: 1}},
		{name: "open fails closes", token: "t", openErr: openErr, wantErr: openErr, want: connectorCalls{created: 1, opened: 1, closed: 1}},
		{name: "success", token: "t", want: connectorCalls{created: 1, opened: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls connectorCalls
			s, err := fakeConnector(&calls, tt.createErr, tt.openErr).connect(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.want {
				t.Fatalf("calls = %+v, want %+v", calls, tt.want)
			}
			if tt.wantErr != nil {
				return
			}
			if s.Identify.Intents != Intents {
				t.Fatalf("intents = %d, want %d", s.Identify.Intents, Intents)
			}
			if !s.State.TrackMembers || !s.State.TrackRoles || !s.State.TrackChannels {
				t.Fatal("expected state tracking enabled")
			}
		})
	}
}

func TestIntentsExcludeMessageContent(t *testing.T) {
	if Intents&discordgo.IntentMessageContent != 0 {
		t.Fatal("message content is privileged and not needed")
	}
}
