package devenv

// VisionPlusTestConfig is read from dev/.state/visionplus_config.json5 by the
// tests that talk to a real VisionPlus instance. Those tests are skipped when
// the file does not exist.
type VisionPlusTestConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}
