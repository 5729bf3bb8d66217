package notify

import (
	"context"
	"encoding/json"
	"errors"
	"groupboard-backend/config"
	"groupboard-backend/internal/model"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTransport struct {
	mock.Mock
	name string
}

func (m *MockTransport) Name() string {
	return m.name
}

func (m *MockTransport) Send(ctx context.Context, sub *model.ProjectSubmission) error {
	args := m.Called(sub)
	return args.Error(0)
}

func newSubmission() *model.ProjectSubmission {
	return &model.ProjectSubmission{
		ID:          "sub-1",
		GroupID:     "g1",
		Title:       "Campus Map",
		SubmittedBy: model.AuthorSnapshot{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com"},
		CreatedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCascadeStopsAtFirstSuccess(t *testing.T) {
	primary := &MockTransport{name: ChannelPrimary}
	secondary := &MockTransport{name: ChannelSecondary}
	minimal := &MockTransport{name: ChannelMinimal}
	sub := newSubmission()

	primary.On("Send", sub).Return(errors.New("502"))
	secondary.On("Send", sub).Return(nil)

	outcome := NewCascade(primary, secondary, minimal).Dispatch(context.Background(), sub)

	assert.True(t, outcome.Delivered)
	assert.Equal(t, ChannelSecondary, outcome.Channel)
	require.Len(t, outcome.Attempts, 2)
	assert.False(t, outcome.Attempts[0].Success)
	assert.Equal(t, "502", outcome.Attempts[0].Error)
	assert.True(t, outcome.Attempts[1].Success)
	minimal.AssertNotCalled(t, "Send", mock.Anything)
}

func TestCascadeAllFailed(t *testing.T) {
	sub := newSubmission()
	var transports []Transport
	for _, name := range []string{ChannelPrimary, ChannelSecondary, ChannelMinimal, ChannelSpreadsheet} {
		tr := &MockTransport{name: name}
		tr.On("Send", sub).Return(errors.New(name + " down"))
		transports = append(transports, tr)
	}

	outcome := NewCascade(transports...).Dispatch(context.Background(), sub)

	assert.False(t, outcome.Delivered)
	assert.Empty(t, outcome.Channel)
	assert.Len(t, outcome.Attempts, 4)
	assert.Equal(t, ChannelSpreadsheet, outcome.Attempts[3].Channel)
}

type panicTransport struct{}

func (panicTransport) Name() string { return "broken" }

func (panicTransport) Send(context.Context, *model.ProjectSubmission) error {
	panic("boom")
}

func TestCascadePanicDoesNotStopLaterTransports(t *testing.T) {
	sub := newSubmission()
	next := &MockTransport{name: ChannelSpreadsheet}
	next.On("Send", sub).Return(nil)

	outcome := NewCascade(panicTransport{}, next).Dispatch(context.Background(), sub)

	assert.True(t, outcome.Delivered)
	assert.Equal(t, ChannelSpreadsheet, outcome.Channel)
	assert.Contains(t, outcome.Attempts[0].Error, "boom")
}

func TestHTTPTransport(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(ChannelMinimal, srv.URL, srv.Client(), MinimalPayload)
	require.NoError(t, tr.Send(context.Background(), newSubmission()))
	assert.Equal(t, "sub-1", received["submission_id"])
	assert.Equal(t, "ada@example.com", received["submitted_by"])
}

func TestHTTPTransportNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPTransport(ChannelPrimary, srv.URL, nil, FullPayload).Send(context.Background(), newSubmission())
	assert.EqualError(t, err, "primary responded 500")
}

func TestFromConfigFallsThroughToSpreadsheet(t *testing.T) {
	var spreadsheetHits int32
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	sheet := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&spreadsheetHits, 1)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "submissions", body["sheet"])
	}))
	defer sheet.Close()

	cascade := FromConfig(&config.Config{
		NotifyPrimaryURL:   failing.URL,
		NotifySecondaryURL: failing.URL,
		NotifyMinimalURL:   failing.URL,
		SpreadsheetWebhook: sheet.URL,
		NotifyTimeout:      time.Second,
	})
	require.Equal(t, 4, cascade.Len())

	outcome := cascade.Dispatch(context.Background(), newSubmission())
	assert.True(t, outcome.Delivered)
	assert.Equal(t, ChannelSpreadsheet, outcome.Channel)
	assert.Len(t, outcome.Attempts, 4)
	assert.Equal(t, int32(1), atomic.LoadInt32(&spreadsheetHits))
}

func TestFromConfigSkipsUnsetChannels(t *testing.T) {
	cascade := FromConfig(&config.Config{SpreadsheetWebhook: "http://example.invalid", NotifyTimeout: time.Second})
	assert.Equal(t, 1, cascade.Len())
}
