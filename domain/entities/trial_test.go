package entities

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var epoch = time.Unix(1700000000, 0)

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func startedTrial(t *testing.T, audioStart int64) *TrialState {
	t.Helper()
	trial := NewTrialState(0)
	if err := trial.RequestPlayback(at(audioStart - 50)); err != nil {
		t.Fatalf("RequestPlayback failed: %v", err)
	}
	trial.MarkPlaying()
	if !trial.LatchAudioStart(ServerStamp(at(audioStart))) {
		t.Fatal("LatchAudioStart should set the anchor")
	}
	return trial
}

func TestNewTrialStateDefaults(t *testing.T) {
	trial := NewTrialState(3)

	if trial.Phase != TrialPhaseInit {
		t.Errorf("Expected phase %s, got %s", TrialPhaseInit, trial.Phase)
	}
	if trial.ReplayCount != 0 {
		t.Errorf("Expected replay count 0, got %d", trial.ReplayCount)
	}
	if trial.RTYes.Valid() || trial.RTNo.Valid() {
		t.Error("Both RTs should start as NA")
	}
	if trial.Selected != OptionNone {
		t.Errorf("Expected no selection, got %s", trial.Selected)
	}
	if trial.HasAudioStart() {
		t.Error("Audio start should be unset")
	}
}

func TestSelectMutualExclusivity(t *testing.T) {
	tests := []struct {
		name     string
		option   Option
		wantYes  string
		wantNo   string
		selectAt int64
	}{
		{name: "yes", option: OptionYes, wantYes: "430", wantNo: "NA", selectAt: 5430},
		{name: "no", option: OptionNo, wantYes: "NA", wantNo: "812", selectAt: 5812},
		{name: "selection before anchor clamps to zero", option: OptionYes, wantYes: "0", wantNo: "NA", selectAt: 4990},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trial := startedTrial(t, 5000)
			if err := trial.Select(tt.option, ServerStamp(at(tt.selectAt))); err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if got := trial.RTYes.String(); got != tt.wantYes {
				t.Errorf("RT_yes = %s, want %s", got, tt.wantYes)
			}
			if got := trial.RTNo.String(); got != tt.wantNo {
				t.Errorf("RT_no = %s, want %s", got, tt.wantNo)
			}
			if trial.RTYes.Valid() == trial.RTNo.Valid() {
				t.Error("Exactly one RT must be numeric")
			}
		})
	}
}

func TestSelectOverwritesStaleValue(t *testing.T) {
	trial := startedTrial(t, 5000)

	if err := trial.Select(OptionYes, ServerStamp(at(5400))); err != nil {
		t.Fatalf("Select yes failed: %v", err)
	}
	if err := trial.Select(OptionNo, ServerStamp(at(5600))); err != nil {
		t.Fatalf("Select no failed: %v", err)
	}

	if trial.RTYes.Valid() {
		t.Errorf("RT_yes should be forced to NA, got %s", trial.RTYes)
	}
	if trial.RTNo.String() != "600" {
		t.Errorf("RT_no = %s, want 600", trial.RTNo)
	}
	if trial.Selected != OptionNo {
		t.Errorf("Expected last selection to win, got %s", trial.Selected)
	}
}

func TestSelectRequiresAnchor(t *testing.T) {
	trial := NewTrialState(0)
	_ = trial.RequestPlayback(at(0))

	if err := trial.Select(OptionYes, ServerStamp(at(10))); !errors.Is(err, ErrNoAudioAnchor) {
		t.Errorf("Expected ErrNoAudioAnchor, got %v", err)
	}
	if trial.RTYes.Valid() || trial.RTNo.Valid() {
		t.Error("RTs must stay NA without an anchor")
	}
}

func TestSelectRejectsInvalidOption(t *testing.T) {
	trial := startedTrial(t, 100)
	if err := trial.Select(OptionNone, ServerStamp(at(200))); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("Expected ErrInvalidOption, got %v", err)
	}
}

func TestLatchAudioStartOnlyOnce(t *testing.T) {
	trial := startedTrial(t, 5000)

	if trial.LatchAudioStart(ServerStamp(at(5200))) {
		t.Error("Second audio start must not move the anchor")
	}
	if !trial.AudioStart.Server.Equal(at(5000)) {
		t.Errorf("Anchor moved to %v", trial.AudioStart.Server)
	}
}

func TestLatchAudioStartBeforeRequest(t *testing.T) {
	trial := NewTrialState(0)
	if trial.LatchAudioStart(ServerStamp(at(10))) {
		t.Error("Audio start must not latch before playback was requested")
	}
}

func TestReplayInvariance(t *testing.T) {
	for _, replays := range []int{0, 1, 5} {
		trial := startedTrial(t, 5000)
		for i := 0; i < replays; i++ {
			if err := trial.Replay(); err != nil {
				t.Fatalf("Replay failed: %v", err)
			}
			trial.LatchAudioStart(ServerStamp(at(5600 + int64(i)*100)))
		}
		if err := trial.Select(OptionYes, ServerStamp(at(6000))); err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if trial.RTYes.String() != "1000" {
			t.Errorf("replays=%d: RT_yes = %s, want 1000", replays, trial.RTYes)
		}
		if trial.ReplayCount != replays {
			t.Errorf("replays=%d: ReplayCount = %d", replays, trial.ReplayCount)
		}
	}
}

func TestReplayBeforeAudioStart(t *testing.T) {
	trial := NewTrialState(0)
	_ = trial.RequestPlayback(at(0))
	if err := trial.Replay(); err == nil {
		t.Error("Replay should be rejected before the choice is presented")
	}
}

func TestFailLeavesBothNA(t *testing.T) {
	trial := NewTrialState(2)
	_ = trial.RequestPlayback(at(0))
	trial.Fail(TrialOutcomeAudioFailed)

	rec, err := trial.Flatten(StimulusRow{AudioFile: "a.wav", Stimulus: "mensible"}, "P07", true, at(100))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if rec.RTYes.Valid() || rec.RTNo.Valid() {
		t.Error("Both RTs must be NA for a failed trial")
	}
	if rec.Outcome != TrialOutcomeAudioFailed {
		t.Errorf("Expected outcome %s, got %s", TrialOutcomeAudioFailed, rec.Outcome)
	}
}

func TestFlatten(t *testing.T) {
	row := StimulusRow{AudioFile: "w01.wav", Stimulus: "platery", Type: StimulusTypePseudoword, Block: "main", Order: 4, Item: "i4"}
	trial := startedTrial(t, 5000)
	_ = trial.Replay()
	_ = trial.Select(OptionNo, ServerStamp(at(5250)))

	rec, err := trial.Flatten(row, "P07", true, at(5251))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	if rec.Stimulus != row.Stimulus || rec.Type != row.Type || rec.Block != row.Block || rec.Order != row.Order || rec.Item != row.Item {
		t.Errorf("Stimulus metadata not copied: %+v", rec)
	}
	if rec.Subject != "P07" {
		t.Errorf("Expected subject P07, got %s", rec.Subject)
	}
	if rec.ReplayCount == nil || *rec.ReplayCount != 1 {
		t.Errorf("Expected ReplayCount 1, got %v", rec.ReplayCount)
	}
	if trial.Phase != TrialPhaseLogged {
		t.Errorf("Expected phase %s, got %s", TrialPhaseLogged, trial.Phase)
	}

	if _, err := trial.Flatten(row, "P07", true, at(5300)); !errors.Is(err, ErrTrialLogged) {
		t.Errorf("Expected ErrTrialLogged on second flatten, got %v", err)
	}
	if err := trial.Select(OptionYes, ServerStamp(at(5400))); !errors.Is(err, ErrTrialLogged) {
		t.Errorf("Expected ErrTrialLogged on late selection, got %v", err)
	}
}

func TestFlattenWithoutReplay(t *testing.T) {
	trial := startedTrial(t, 100)
	_ = trial.Select(OptionYes, ServerStamp(at(300)))

	rec, err := trial.Flatten(StimulusRow{AudioFile: "x.wav"}, "P01", false, at(301))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if rec.ReplayCount != nil {
		t.Error("ReplayCount must be omitted for variants without replay")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	if _, ok := fields["ReplayCount"]; ok {
		t.Error("ReplayCount should not be serialised")
	}
	if fields["RT_no"] != "NA" {
		t.Errorf("Expected RT_no to serialise as NA, got %v", fields["RT_no"])
	}
	if fields["RT_yes"] != float64(200) {
		t.Errorf("Expected RT_yes 200, got %v", fields["RT_yes"])
	}
}

func TestFlattenBeforeResponse(t *testing.T) {
	trial := startedTrial(t, 100)
	if _, err := trial.Flatten(StimulusRow{}, "P01", false, at(200)); err == nil {
		t.Error("Flatten should fail before a response or failure")
	}
}

func TestSelectUsesDeviceClock(t *testing.T) {
	tests := []struct {
		name    string
		start   Stamp
		choice  Stamp
		wantYes string
	}{
		{
			name:    "device timed both ends",
			start:   Stamp{Server: at(5150), Client: at(2000)},
			choice:  Stamp{Server: at(5800), Client: at(2430)},
			wantYes: "430",
		},
		{
			name:    "choice without device time falls back to receipt",
			start:   Stamp{Server: at(5150), Client: at(2000)},
			choice:  ServerStamp(at(5800)),
			wantYes: "650",
		},
		{
			name:    "start without device time falls back to receipt",
			start:   ServerStamp(at(5150)),
			choice:  Stamp{Server: at(5800), Client: at(2430)},
			wantYes: "650",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trial := NewTrialState(0)
			_ = trial.RequestPlayback(at(5000))
			if !trial.LatchAudioStart(tt.start) {
				t.Fatal("LatchAudioStart should set the anchor")
			}
			if err := trial.Select(OptionYes, tt.choice); err != nil {
				t.Fatalf("Select failed: %v", err)
			}
			if got := trial.RTYes.String(); got != tt.wantYes {
				t.Errorf("RT_yes = %s, want %s", got, tt.wantYes)
			}
		})
	}
}

func TestCalibrationLatency(t *testing.T) {
	tests := []struct {
		name      string
		request   Stamp
		start     Stamp
		want      int64
		wantClock string
	}{
		{name: "typical", request: ServerStamp(at(1000)), start: ServerStamp(at(1120)), want: 120, wantClock: ClockServer},
		{name: "instant", request: ServerStamp(at(1000)), start: ServerStamp(at(1000)), want: 0, wantClock: ClockServer},
		{name: "reported before request", request: ServerStamp(at(1000)), start: ServerStamp(at(990)), want: 0, wantClock: ClockServer},
		{
			name:      "device clock excludes transit",
			request:   Stamp{Server: at(1000), Client: at(40)},
			start:     Stamp{Server: at(1150), Client: at(40)},
			want:      0,
			wantClock: ClockClient,
		},
		{
			name:      "device latency",
			request:   Stamp{Server: at(1000), Client: at(40)},
			start:     Stamp{Server: at(1170), Client: at(60)},
			want:      20,
			wantClock: ClockClient,
		},
		{
			name:      "request without device time",
			request:   ServerStamp(at(1000)),
			start:     Stamp{Server: at(1170), Client: at(60)},
			want:      170,
			wantClock: ClockServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCalibrationResult(tt.request, tt.start, 1)
			if got.LatencyMs != tt.want {
				t.Errorf("LatencyMs = %d, want %d", got.LatencyMs, tt.want)
			}
			if got.Clock != tt.wantClock {
				t.Errorf("Clock = %s, want %s", got.Clock, tt.wantClock)
			}
			if !got.RequestTime.Equal(tt.request.Server) {
				t.Errorf("RequestTime = %v, want server receipt %v", got.RequestTime, tt.request.Server)
			}
		})
	}
}
