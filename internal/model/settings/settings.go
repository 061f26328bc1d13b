package settings

// Settings captures the user preferences persisted between runs.
type Settings struct {
	AutoPlayAudio  bool `json:"autoPlayAudio"`
	DarkMode       bool `json:"darkMode"`
	MicSensitivity int  `json:"micSensitivity"` // 0-100, display only
}

// Defaults returns the preferences used when nothing has been stored yet.
func Defaults() Settings {
	return Settings{
		AutoPlayAudio:  true,
		DarkMode:       false,
		MicSensitivity: 50,
	}
}
