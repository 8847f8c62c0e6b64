package entities

import "time"

// Clocks a latency can be measured on
const (
	ClockClient = "client"
	ClockServer = "server"
)

// CalibrationResult is the one-off measurement of audio start-up latency on the
// participant's device. It is diagnostic only and never subtracted from trial RTs.
type CalibrationResult struct {
	RequestTime    time.Time `json:"request_time" bson:"request_time"`
	AudioStartTime time.Time `json:"audio_start_time" bson:"audio_start_time"`
	LatencyMs      int64     `json:"AudioLatency" bson:"latency_ms"`
	Clock          string    `json:"clock" bson:"clock"`
	Attempts       int       `json:"attempts" bson:"attempts"`
}

// NewCalibrationResult derives the latency from the play request and the first
// confirmed playback start, on the device clock when it timed both ends and
// on server receipt times otherwise. A start before the request yields zero.
func NewCalibrationResult(request, audioStart Stamp, attempts int) CalibrationResult {
	latency, _ := audioStart.Since(request).Milliseconds()
	return CalibrationResult{
		RequestTime:    request.Server,
		AudioStartTime: audioStart.Server,
		LatencyMs:      latency,
		Clock:          sameClock(request, audioStart),
		Attempts:       attempts,
	}
}
