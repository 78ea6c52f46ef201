package model

// SourceEndpoint describes one request against the external source. URL,
// header values and param values may contain the placeholders {id} and {days}.
type SourceEndpoint struct {
	Name    string            `yaml:"name" json:"name"`
	Method  string            `yaml:"method" json:"method"` // "GET"|"POST/JSON"|"POST/FORM"
	URL     string            `yaml:"url" json:"url"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Params  map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	// DataField names the response key holding the payload; empty means the whole body.
	DataField string `yaml:"data_field,omitempty" json:"data_field,omitempty"`
}
