package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	"github.com/smallbiznis/telemetry/internal/observability"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"github.com/smallbiznis/telemetry/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEventService struct {
	mock.Mock
}

func (m *mockEventService) RecordEvents(ctx context.Context, events []eventdomain.EventInput) ([]eventdomain.RecordedEvent, error) {
	args := m.Called(ctx, events)
	recorded, _ := args.Get(0).([]eventdomain.RecordedEvent)
	return recorded, args.Error(1)
}

func (m *mockEventService) MakeTrait(ctx context.Context, input eventdomain.TraitInput, eventID snowflake.ID) (*eventdomain.Trait, error) {
	args := m.Called(ctx, input, eventID)
	trait, _ := args.Get(0).(*eventdomain.Trait)
	return trait, args.Error(1)
}

func (m *mockEventService) GetEvents(ctx context.Context, filter eventdomain.EventFilter) ([]eventdomain.EventResponse, error) {
	args := m.Called(ctx, filter)
	resp, _ := args.Get(0).([]eventdomain.EventResponse)
	return resp, args.Error(1)
}

type mockMeteringService struct {
	mock.Mock
}

func (m *mockMeteringService) RecordMeteringData(ctx context.Context, sample meteringdomain.Sample) (*meteringdomain.Meter, error) {
	args := m.Called(ctx, sample)
	meter, _ := args.Get(0).(*meteringdomain.Meter)
	return meter, args.Error(1)
}

func (m *mockMeteringService) GetUsers(ctx context.Context, source string) ([]string, error) {
	args := m.Called(ctx, source)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockMeteringService) GetProjects(ctx context.Context, source string) ([]string, error) {
	args := m.Called(ctx, source)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockMeteringService) GetResources(ctx context.Context, filter meteringdomain.ResourceFilter) ([]meteringdomain.ResourceResponse, error) {
	args := m.Called(ctx, filter)
	resp, _ := args.Get(0).([]meteringdomain.ResourceResponse)
	return resp, args.Error(1)
}

func (m *mockMeteringService) GetMeters(ctx context.Context, filter meteringdomain.MeterFilter) ([]meteringdomain.MeterResponse, error) {
	args := m.Called(ctx, filter)
	resp, _ := args.Get(0).([]meteringdomain.MeterResponse)
	return resp, args.Error(1)
}

func (m *mockMeteringService) GetSamples(ctx context.Context, filter meteringdomain.SampleFilter) ([]meteringdomain.Sample, error) {
	args := m.Called(ctx, filter)
	resp, _ := args.Get(0).([]meteringdomain.Sample)
	return resp, args.Error(1)
}

func (m *mockMeteringService) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func setupServer(t *testing.T) (*gin.Engine, *mockEventService, *mockMeteringService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := &mockEventService{}
	metering := &mockMeteringService{}
	engine := NewEngine(observability.Config{}, telemetry.NewMetricsWith(prometheus.NewRegistry()))
	NewServer(ServerParams{Gin: engine, EventSvc: events, MeteringSvc: metering})

	t.Cleanup(func() {
		events.AssertExpectations(t)
		metering.AssertExpectations(t)
	})
	return engine, events, metering
}

func doRequest(t *testing.T, engine *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	engine, _, _ := setupServer(t)

	rec := doRequest(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecordEventsConvertsTraitValues(t *testing.T) {
	engine, events, _ := setupServer(t)

	generated := time.Date(2012, 12, 21, 13, 34, 56, 0, time.UTC)
	events.On("RecordEvents", mock.Anything, mock.MatchedBy(func(in []eventdomain.EventInput) bool {
		if len(in) != 1 || in[0].Name != "compute.instance.create" || !in[0].When.Equal(generated) {
			return false
		}
		traits := in[0].Traits
		if len(traits) != 3 {
			return false
		}
		ts, ok := traits[2].Value.(time.Time)
		return traits[0].Type == eventdomain.TraitText &&
			traits[1].Type == eventdomain.TraitInt &&
			traits[1].Value == json.Number("12") &&
			ok && ts.Equal(generated)
	})).Return([]eventdomain.RecordedEvent{
		{Event: eventdomain.Event{ID: 7}, Traits: []eventdomain.Trait{{ID: 8, Type: eventdomain.TraitText}}},
	}, nil).Once()

	rec := doRequest(t, engine, http.MethodPost, "/v1/events", `{"events":[{
		"event_name":"compute.instance.create",
		"generated":"2012-12-21T13:34:56Z",
		"traits":[
			{"name":"host","dtype":"text","value":"node-1"},
			{"name":"cpus","dtype":2,"value":12},
			{"name":"launched","dtype":"datetime","value":"2012-12-21T13:34:56Z"}
		]}]}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"data":[{"id":"7","traits":[{"id":"8","dtype":1}]}]}`, rec.Body.String())
}

func TestRecordEventsRejectsBadPayloads(t *testing.T) {
	engine, _, _ := setupServer(t)

	cases := map[string]string{
		"malformed json": `{"events":`,
		"empty batch":    `{"events":[]}`,
		"bad timestamp":  `{"events":[{"event_name":"Foo","generated":"yesterday"}]}`,
		"unknown dtype":  `{"events":[{"event_name":"Foo","generated":"2012-12-21T13:34:56Z","traits":[{"name":"x","dtype":"blob","value":1}]}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, engine, http.MethodPost, "/v1/events", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "validation_error", decodeError(t, rec).Type)
		})
	}
}

func TestRecordEventsMapsBatchErrors(t *testing.T) {
	engine, events, _ := setupServer(t)

	events.On("RecordEvents", mock.Anything, mock.Anything).Return(nil, &eventdomain.BatchError{
		Entries: []eventdomain.EntryError{
			{Index: 1, Err: eventdomain.ErrTypeMismatch},
		},
	}).Once()

	rec := doRequest(t, engine, http.MethodPost, "/v1/events", `{"events":[
		{"event_name":"Foo","generated":"2012-12-21T13:34:56Z"},
		{"event_name":"Foo","generated":"2012-12-21T13:34:56Z","traits":[{"name":"x","dtype":2,"value":"nope"}]}
	]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "events[1]", payload.Errors[0].Field)
	assert.Equal(t, "type_mismatch", payload.Errors[0].Code)
}

func TestRecordEventsStorageUnavailable(t *testing.T) {
	engine, events, _ := setupServer(t)

	events.On("RecordEvents", mock.Anything, mock.Anything).Return(nil, &eventdomain.BatchError{
		Entries: []eventdomain.EntryError{{Index: 0, Err: pkgdb.ErrStorageUnavailable}},
	}).Once()

	rec := doRequest(t, engine, http.MethodPost, "/v1/events", `{"events":[{"event_name":"Foo","generated":"2012-12-21T13:34:56Z"}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage_unavailable", decodeError(t, rec).Type)
}

func TestListEventsPassesFilter(t *testing.T) {
	engine, events, _ := setupServer(t)

	start := time.Date(2012, 12, 21, 0, 0, 0, 0, time.UTC)
	events.On("GetEvents", mock.Anything, mock.MatchedBy(func(f eventdomain.EventFilter) bool {
		return f.Name == "Foo" && f.Start != nil && f.Start.Equal(start) && f.End == nil
	})).Return([]eventdomain.EventResponse{{ID: "1", Name: "Foo", GeneratedAt: start}}, nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/v1/events?event_name=Foo&start=2012-12-21", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data []eventdomain.EventResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Foo", resp.Data[0].Name)
}

func TestListEventsRejectsInvalidTime(t *testing.T) {
	engine, _, _ := setupServer(t)

	rec := doRequest(t, engine, http.MethodGet, "/v1/events?end=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "end", payload.Errors[0].Field)
}

func TestRecordSample(t *testing.T) {
	engine, _, metering := setupServer(t)

	ts := time.Date(2012, 7, 2, 10, 40, 0, 0, time.UTC)
	metering.On("RecordMeteringData", mock.Anything, mock.MatchedBy(func(s meteringdomain.Sample) bool {
		return s.CounterName == "instance" && s.ResourceID == "resource-id" &&
			s.Timestamp.Equal(ts) && s.ResourceMetadata["display_name"] == "test-server"
	})).Return(&meteringdomain.Meter{ID: 99, MessageID: "msg-1", Timestamp: ts}, nil).Once()

	rec := doRequest(t, engine, http.MethodPost, "/v1/samples", map[string]any{
		"source":            "test-1",
		"counter_name":      "instance",
		"counter_type":      "cumulative",
		"counter_unit":      "",
		"counter_volume":    1,
		"user_id":           "user-id",
		"project_id":        "project-id",
		"resource_id":       "resource-id",
		"timestamp":         "2012-07-02T10:40:00Z",
		"resource_metadata": map[string]any{"display_name": "test-server"},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"99"`)
	assert.Contains(t, rec.Body.String(), `"message_id":"msg-1"`)
}

func TestRecordSampleValidation(t *testing.T) {
	engine, _, metering := setupServer(t)

	metering.On("RecordMeteringData", mock.Anything, mock.Anything).
		Return(nil, meteringdomain.ErrInvalidCounterName).Once()

	rec := doRequest(t, engine, http.MethodPost, "/v1/samples", map[string]any{"resource_id": "r"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "counter_name", payload.Errors[0].Field)
}

func TestListSamplesMetaQueryUnsupported(t *testing.T) {
	engine, _, metering := setupServer(t)

	metering.On("GetSamples", mock.Anything, mock.MatchedBy(func(f meteringdomain.SampleFilter) bool {
		return f.Meter == "instance" && f.MetaQuery["display_name"] == "x"
	})).Return(nil, meteringdomain.ErrMetaQueryUnsupported).Once()

	rec := doRequest(t, engine, http.MethodGet, "/v1/samples?meter=instance&metadata.display_name=x", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListUsersAndProjects(t *testing.T) {
	engine, _, metering := setupServer(t)

	metering.On("GetUsers", mock.Anything, "test-1").Return([]string{"user-id"}, nil).Once()
	metering.On("GetProjects", mock.Anything, "").Return([]string{"project-id", "project-id2"}, nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/v1/users?source=test-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":["user-id"]}`, rec.Body.String())

	rec = doRequest(t, engine, http.MethodGet, "/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":["project-id","project-id2"]}`, rec.Body.String())
}

func TestListResourcesAndMeters(t *testing.T) {
	engine, _, metering := setupServer(t)

	metering.On("GetResources", mock.Anything, mock.MatchedBy(func(f meteringdomain.ResourceFilter) bool {
		return f.User == "user-id" && len(f.MetaQuery) == 0
	})).Return([]meteringdomain.ResourceResponse{{ResourceID: "resource-id", UserID: "user-id"}}, nil).Once()
	metering.On("GetMeters", mock.Anything, mock.MatchedBy(func(f meteringdomain.MeterFilter) bool {
		return f.Project == "project-id"
	})).Return([]meteringdomain.MeterResponse{{Name: "instance", ResourceID: "resource-id"}}, nil).Once()

	rec := doRequest(t, engine, http.MethodGet, "/v1/resources?user_id=user-id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resource_id":"resource-id"`)

	rec = doRequest(t, engine, http.MethodGet, "/v1/meters?project_id=project-id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"instance"`)
}

func TestCorruptMetadataIsInternalError(t *testing.T) {
	engine, _, metering := setupServer(t)

	metering.On("GetResources", mock.Anything, mock.Anything).
		Return(nil, meteringdomain.ErrMetadataDecode).Once()

	rec := doRequest(t, engine, http.MethodGet, "/v1/resources", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "data_integrity_error", decodeError(t, rec).Type)
}
