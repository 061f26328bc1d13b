package speech

// StatusError is the status value the backend reports on a handled failure.
const StatusError = "error"

// ProcessResponse 语音处理响应
type ProcessResponse struct {
	Status          string `json:"status,omitempty"`
	Error           string `json:"error,omitempty"`
	TranscribedText string `json:"transcribed_text,omitempty"`
	ResponseText    string `json:"response_text,omitempty"`
	AudioURL        string `json:"audio_url,omitempty"`
}

// Failed reports whether the backend answered with an error body.
func (r *ProcessResponse) Failed() bool {
	return r.Status == StatusError
}

// ChatResponse 文本对话响应
type ChatResponse struct {
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
	Response string `json:"response,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Failed reports whether the backend answered with an error body.
func (r *ChatResponse) Failed() bool {
	return r.Status == StatusError
}
