package speech

// ChatRequest 文本对话请求
type ChatRequest struct {
	Message  string `json:"message"`
	Language string `json:"language"`
}

// ProcessRequest 语音处理请求（multipart 上传）
type ProcessRequest struct {
	Payload  []byte `json:"-"`
	Filename string `json:"filename"` // rec.wav
	Language string `json:"language"` // en, zh-CN, etc.
}
