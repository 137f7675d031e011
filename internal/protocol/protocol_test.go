package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/monitor"
)

func TestStampEncodingsAgree(t *testing.T) {
	date := Stamp{Type: StampDate, Value: json.RawMessage(`"2015-11-09T16:16:44Z"`)}
	ms := Stamp{Type: StampUTCms, Value: json.RawMessage(`1447085804000.0`)}

	a, err := date.Decode()
	require.NoError(t, err)
	b, err := ms.Decode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, time.Date(2015, 11, 9, 16, 16, 44, 0, time.UTC), a.Time())
}

func TestStampDecode(t *testing.T) {
	tests := []struct {
		name    string
		stamp   Stamp
		want    model.Stamp
		wantErr bool
	}{
		{"millis zero", Stamp{Type: StampUTCms, Value: json.RawMessage(`0.0`)}, 0, false},
		{"millis fraction", Stamp{Type: StampUTCms, Value: json.RawMessage(`1.5`)}, 1500000, false},
		{"date without zone is utc", Stamp{Type: StampDate, Value: json.RawMessage(`"1970-01-01T00:00:01"`)}, model.Stamp(time.Second), false},
		{"zero month and day clamp", Stamp{Type: StampDate, Value: json.RawMessage(`"2020-00-00T00:00:00Z"`)}, model.StampFromTime(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)), false},
		{"unknown type", Stamp{Type: "TimeStampFoo", Value: json.RawMessage(`0`)}, 0, true},
		{"date as number", Stamp{Type: StampDate, Value: json.RawMessage(`12`)}, 0, true},
		{"millis as string", Stamp{Type: StampUTCms, Value: json.RawMessage(`"12"`)}, 0, true},
		{"garbage date", Stamp{Type: StampDate, Value: json.RawMessage(`"yesterday"`)}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.stamp.Decode()
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrMalformedRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMillisStampRoundTrip(t *testing.T) {
	s := model.Stamp(1250 * time.Millisecond)
	got, err := MillisStamp(s).Decode()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	got, err = DateStamp(s).Decode()
	require.NoError(t, err)
	assert.Equal(t, s-model.Stamp(250*time.Millisecond), got)
}

func TestDecodeUpdate(t *testing.T) {
	data := []byte(`{
		"@worldmodeltype": "RSGUpdate",
		"operation": "CREATE",
		"queryId": "q-1",
		"node": {
			"@graphtype": "Connection",
			"@semanticContext": "Transform",
			"id": "3304e4a0-44d4-4fc8-8834-b0b03b418d5b",
			"attributes": [{"key": "tf:type", "value": "wgs84"}],
			"sourceIds": ["e379121f-06c6-4e21-ae9d-ae78ec1986a1"],
			"targetIds": ["3304e4a0-44d4-4fc8-8834-b0b03b418d5b"],
			"history": [{
				"stamp": {"@stamptype": "TimeStampUTCms", "stamp": 10.0},
				"transform": {
					"type": "HomogeneousMatrix44",
					"matrix": [[1,0,0,1],[0,1,0,2],[0,0,1,3],[0,0,0,1]],
					"unit": "latlon"
				}
			}],
			"start": {"@stamptype": "TimeStampUTCms", "stamp": 0.0}
		},
		"parentId": "e379121f-06c6-4e21-ae9d-ae78ec1986a1"
	}`)

	u, err := Decode[Update](data)
	require.NoError(t, err)
	assert.Equal(t, OpCreate, u.Operation)
	assert.Equal(t, "q-1", u.QueryID)

	id := model.ID(u.Node.ID)
	n, err := u.Node.NewEntity(id, model.DefaultRootID)
	require.NoError(t, err)
	assert.Equal(t, model.KindConnection, n.Kind)
	assert.Equal(t, []model.ID{model.DefaultRootID}, n.SourceIDs)
	assert.Equal(t, []model.ID{id}, n.TargetIDs)
	require.Len(t, n.History, 1)
	assert.Equal(t, model.Stamp(10*time.Millisecond), n.History[0].Stamp)
	assert.Equal(t, "latlon", n.History[0].Unit)
	x, y, z := n.History[0].Matrix.TranslationPart()
	assert.Equal(t, []float64{1, 2, 3}, []float64{x, y, z})
	require.NotNil(t, n.Start)
	assert.Equal(t, model.Stamp(0), *n.Start)
	assert.Nil(t, n.End)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not an object", `[1,2]`},
		{"empty", ``},
		{"broken json", `{"@worldmodeltype": `},
		{"missing type", `{"operation": "CREATE"}`},
		{"unknown operation", `{"@worldmodeltype": "RSGUpdate", "operation": "MERGE"}`},
		{"bad mode", `{"@worldmodeltype": "RSGUpdate", "operation": "UPDATE_ATTRIBUTES", "attributeUpdateMode": "APPEND"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[Update]([]byte(tt.data))
			assert.ErrorIs(t, err, model.ErrMalformedRequest)
		})
	}
}

func TestNodeNewEntityRejectsBadFields(t *testing.T) {
	n := &Node{GraphType: "Connection", SourceIDs: []string{"not-a-uuid"}}
	_, err := n.NewEntity(model.NewID(), model.DefaultRootID)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)

	n = &Node{GraphType: "Edge"}
	_, err = n.NewEntity(model.NewID(), model.DefaultRootID)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)

	n = &Node{GraphType: "Connection", History: []HistoryEntry{{
		Stamp:     MillisStamp(0),
		Transform: Transform{Type: MatrixType, Matrix: [][]float64{{1, 0, 0}}},
	}}}
	_, err = n.NewEntity(model.NewID(), model.DefaultRootID)
	assert.ErrorIs(t, err, model.ErrMalformedRequest)
}

func TestPeek(t *testing.T) {
	h, err := Peek([]byte(`{"@worldmodeltype": "RSGQuery", "query": "GET_ROOT_NODE", "queryId": "abc"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeQuery, h.WorldModelType)
	assert.Equal(t, "abc", h.QueryID)
}

func TestEncodeEvent(t *testing.T) {
	created := EncodeEvent(monitor.Event{
		MonitorID: "m1",
		EventID:   "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Kind:      monitor.KindCreation,
		NewNodeID: model.DefaultRootID,
	})
	raw, err := json.Marshal(created)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"@worldmodeltype": "RSGMonitor",
		"monitorId": "m1",
		"eventId": "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		"stamp": {"@stamptype": "TimeStampUTCms", "stamp": 0},
		"newNodeid": "e379121f-06c6-4e21-ae9d-ae78ec1986a1"
	}`, string(raw))

	changed := EncodeEvent(monitor.Event{
		MonitorID:     "m2",
		Kind:          monitor.KindAttribute,
		EntityID:      model.DefaultRootID,
		Key:           "state",
		Value:         json.RawMessage(`"busy"`),
		PreviousValue: json.RawMessage(`"idle"`),
	})
	assert.Equal(t, "state", changed.AttributeKey)
	assert.Equal(t, model.DefaultRootID.String(), changed.ID)
	assert.Empty(t, changed.NewNodeID)
}
