package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
)

func TestClientInitiatePush(t *testing.T) {
	var gotReq PushRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/push", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(PushResponse{ExternalRef: "MPX555"})
	}))
	defer server.Close()

	client, err := NewClient("secret-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	resp, err := client.InitiatePush(context.Background(), PushRequest{
		PhoneNumber: "254700000001",
		Amount:      decimal.RequireFromString("125.50"),
		Reference:   "order-ref",
	})
	require.NoError(t, err)
	assert.Equal(t, "MPX555", resp.ExternalRef)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "254700000001", gotReq.PhoneNumber)
	assert.True(t, gotReq.Amount.Equal(decimal.RequireFromString("125.50")))
}

func TestClientInitiatePushRejectsEmptyExternalRef(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PushResponse{})
	}))
	defer server.Close()

	client, err := NewClient("secret-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.InitiatePush(context.Background(), PushRequest{
		PhoneNumber: "254700000001",
		Amount:      decimal.NewFromInt(10),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestClientInitiatePushValidation(t *testing.T) {
	client, err := NewClient("secret-key")
	require.NoError(t, err)

	_, err = client.InitiatePush(context.Background(), PushRequest{
		Amount: decimal.NewFromInt(10),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())

	_, err = client.InitiatePush(context.Background(), PushRequest{
		PhoneNumber: "254700000001",
		Amount:      decimal.Zero,
	})
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestClientInitiatePushGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream busy", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient("secret-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.InitiatePush(context.Background(), PushRequest{
		PhoneNumber: "254700000001",
		Amount:      decimal.NewFromInt(10),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}

func TestClientQueryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/push/MPX777", r.URL.Path)
		require.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(StatusResult{
			ExternalRef:   "MPX777",
			Status:        AttemptCompleted,
			Amount:        decimal.NewFromInt(40),
			ReceiptNumber: "RCT900",
		})
	}))
	defer server.Close()

	client, err := NewClient("secret-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	result, err := client.QueryStatus(context.Background(), "MPX777")
	require.NoError(t, err)
	assert.Equal(t, AttemptCompleted, result.Status)
	assert.Equal(t, "RCT900", result.ReceiptNumber)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(40)))
}

func TestClientQueryStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := NewClient("secret-key", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = client.QueryStatus(context.Background(), "MPX404")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestClientQueryStatusRequiresRef(t *testing.T) {
	client, err := NewClient("secret-key")
	require.NoError(t, err)

	_, err = client.QueryStatus(context.Background(), "  ")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("   ")
	require.Error(t, err)
}

func TestAttemptStatusIsResolved(t *testing.T) {
	assert.False(t, AttemptPending.IsResolved())
	assert.True(t, AttemptCompleted.IsResolved())
	assert.True(t, AttemptFailed.IsResolved())
	assert.True(t, AttemptCancelled.IsResolved())
}
