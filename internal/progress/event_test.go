package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestEventValidate covers the per-stage field requirements.
func TestEventValidate(t *testing.T) {
	t.Parallel()

	id := UUIDToBytes(uuid.New())
	now := time.Now()

	cases := []struct {
		name    string
		evt     Event
		wantErr string
	}{
		{
			name: "run started ok",
			evt:  Event{RunID: id, TS: now, Stage: StageRunStarted},
		},
		{
			name: "run finished ok",
			evt:  Event{RunID: id, TS: now, Stage: StageRunFinished, Dur: time.Minute},
		},
		{
			name: "bookmark checked ok",
			evt: Event{
				RunID: id, TS: now, Stage: StageBookmarkChecked,
				URL: "https://example.com", Method: "render", StatusClass: StatusNone,
			},
		},
		{
			name:    "missing run id",
			evt:     Event{TS: now, Stage: StageRunStarted},
			wantErr: "run id",
		},
		{
			name:    "missing timestamp",
			evt:     Event{RunID: id, Stage: StageRunStarted},
			wantErr: "timestamp",
		},
		{
			name:    "check without url",
			evt:     Event{RunID: id, TS: now, Stage: StageBookmarkChecked, Method: "fetch", StatusClass: Status2xx},
			wantErr: "requires url",
		},
		{
			name:    "check without method",
			evt:     Event{RunID: id, TS: now, Stage: StageBookmarkChecked, URL: "https://example.com", StatusClass: Status2xx},
			wantErr: "requires method",
		},
		{
			name:    "check without status class",
			evt:     Event{RunID: id, TS: now, Stage: StageBookmarkChecked, URL: "https://example.com", Method: "fetch"},
			wantErr: "requires status class",
		},
		{
			name:    "unknown stage",
			evt:     Event{RunID: id, TS: now, Stage: Stage("rebooted")},
			wantErr: "unknown stage",
		},
		{
			name:    "negative duration",
			evt:     Event{RunID: id, TS: now, Stage: StageRunFinished, Dur: -time.Second},
			wantErr: "duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

// TestClassifyStatus maps status codes onto their coarse classes.
func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status2xx, ClassifyStatus(200))
	require.Equal(t, Status2xx, ClassifyStatus(204))
	require.Equal(t, Status3xx, ClassifyStatus(301))
	require.Equal(t, Status4xx, ClassifyStatus(404))
	require.Equal(t, Status5xx, ClassifyStatus(503))
	require.Equal(t, StatusNone, ClassifyStatus(0))
	require.Equal(t, StatusNone, ClassifyStatus(700))
}
