package domain

// PluginType tells the video platform how a plugin consumes frames.
type PluginType int

const (
	PluginTypeAnalyze PluginType = iota
	PluginTypeTransform
)

func (t PluginType) String() string {
	switch t {
	case PluginTypeAnalyze:
		return "ANALYZE"
	case PluginTypeTransform:
		return "TRANSFORM"
	default:
		return "UNKNOWN"
	}
}

// SupportResult is the outcome of a plugin support check.
type SupportResult struct {
	IsSupported bool   `json:"isSupported"`
	ErrType     string `json:"errType,omitempty"`
	ErrMsg      string `json:"errMsg,omitempty"`
}
