package speech

// CaptureConstraints 麦克风采集约束
type CaptureConstraints struct {
	SampleRate       int  `json:"sampleRate"`   // 目标采样率
	Channels         int  `json:"channelCount"` // 声道数（单声道）
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
}

// DefaultCaptureConstraints returns the fixed constraints used for every
// recording: mono, 16kHz, with all voice processing requested.
func DefaultCaptureConstraints() CaptureConstraints {
	return CaptureConstraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}
