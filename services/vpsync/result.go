package vpsync

// Method names the way a sync attempt reached (or failed to reach) VisionPlus.
type Method string

const (
	MethodForm         Method = "FORM"
	MethodDirect       Method = "DIRECT"
	MethodApi          Method = "API"
	MethodManual       Method = "MANUAL"
	MethodStatusUpdate Method = "STATUS_UPDATE"

	// only ever appears in attempt lists
	methodAuthentication Method = "AUTHENTICATION"
)

const (
	errNotFound      = "appointment not found"
	errNotSynced     = "appointment not yet synced to VisionPlus"
	errAllFailed     = "all integration methods failed"
	errNotConfigured = "credentials not configured"
)

type SyncResult struct {
	Success      bool   `json:"success"`
	VisionPlusId string `json:"visionPlusId,omitempty"`
	Method       Method `json:"method"`
	Error        string `json:"error,omitempty"`
	ResponseData any    `json:"responseData,omitempty"`
}

func failure(method Method, message string) SyncResult {
	return SyncResult{Method: method, Error: message}
}

// Attempt is one failed strategy, listed in the response data of an
// exhausted sync.
type Attempt struct {
	Method Method `json:"method"`
	Error  string `json:"error"`
}
