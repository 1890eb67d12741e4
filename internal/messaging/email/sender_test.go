package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swimdesk/lesson-notify/internal/domain"
	"github.com/swimdesk/lesson-notify/internal/messaging"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "enabled without api key",
			config:  Config{Enabled: true, FromAddress: "x@example.com"},
			wantErr: "API key is required",
		},
		{
			name:    "enabled without from address",
			config:  Config{Enabled: true, APIKey: "key"},
			wantErr: "from address is required",
		},
		{
			name:    "disabled - no validation",
			config:  Config{Enabled: false},
			wantErr: "",
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				APIKey:      "key",
				FromAddress: "Swim Team <notify@example.com>",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestSender_Channel(t *testing.T) {
	sender, err := NewSender(Config{})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, sender.Channel())
}

func TestSender_Send_Disabled(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	id, err := sender.Send(context.Background(), messaging.OutboundMessage{
		To:   "maria@example.com",
		Body: "hello",
	})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSender_Send(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_, _ = w.Write([]byte(`{"id": "em-123"}`))
	}))
	defer srv.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		APIBaseURL:  srv.URL,
		APIKey:      "key",
		FromAddress: "Swim Team <notify@example.com>",
		OrgName:     "Swim Team",
	})
	require.NoError(t, err)

	id, err := sender.Send(context.Background(), messaging.OutboundMessage{
		To:      "maria@example.com",
		Subject: "Pool closure",
		Body:    "Line one\nLine <two> & more",
	})
	require.NoError(t, err)

	assert.Equal(t, "em-123", id)
	assert.Equal(t, "/emails", gotPath)
	assert.Equal(t, "Bearer key", gotAuth)
	assert.Equal(t, "Swim Team <notify@example.com>", gotReq.From)
	assert.Equal(t, []string{"maria@example.com"}, gotReq.To)
	assert.Equal(t, "Pool closure", gotReq.Subject)

	// Body is escaped and wrapped in the branded shell.
	assert.Contains(t, gotReq.HTML, "Line one<br>Line &lt;two&gt; &amp; more")
	assert.Contains(t, gotReq.HTML, "<h1 style=\"color: white; margin: 0;\">Swim Team</h1>")
	assert.Contains(t, gotReq.HTML, "enrolled in our lesson program")
}

func TestSender_Send_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "invalid from address"}`))
	}))
	defer srv.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		APIBaseURL:  srv.URL,
		APIKey:      "key",
		FromAddress: "bogus",
	})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), messaging.OutboundMessage{
		To:   "maria@example.com",
		Body: "hello",
	})
	require.Error(t, err)

	var provErr *messaging.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "email", provErr.Provider)
	assert.Equal(t, http.StatusUnprocessableEntity, provErr.Code)
	assert.Equal(t, "invalid from address", provErr.Message)
}
