package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitableTimesheet/internal/logger"
)

func TestHTTPSenderPostsMessage(t *testing.T) {
	var got sendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "key-1", 0)
	require.NoError(t, sender.Send(context.Background(), "+8613800138000", "Your code is 123456"))

	assert.Equal(t, "Bearer key-1", auth)
	assert.Equal(t, "+8613800138000", got.To)
	assert.Equal(t, "Your code is 123456", got.Message)
}

func TestHTTPSenderReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPSender(srv.URL, "", 0).Send(context.Background(), "+8613800138000", "hi")
	var dispatchErr *DispatchError
	require.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, http.StatusBadGateway, dispatchErr.Status)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := LogSender{Logger: logger.NewLogger("DEBUG", &buf)}

	require.NoError(t, sender.Send(context.Background(), "+8613800138000", "Your code is 123456"))
	assert.Contains(t, buf.String(), `"to":"+*********8000"`)
	assert.Contains(t, buf.String(), `"message":"Your code is ******"`)
	assert.NotContains(t, buf.String(), "123456")
	assert.NotContains(t, buf.String(), "13800138000")

	assert.NoError(t, LogSender{}.Send(context.Background(), "+1", "x"))
}

func TestToInternational(t *testing.T) {
	tests := []struct {
		digits  string
		country string
		want    string
	}{
		{"13800138000", "86", "+8613800138000"},
		{"8613800138000", "86", "+8613800138000"},
		{"008613800138000", "86", "+8613800138000"},
		{"07700900123", "44", "+447700900123"},
		{"13800138000", "", "+8613800138000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToInternational(tt.digits, tt.country), tt.digits)
	}
}
