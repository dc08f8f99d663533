package metadata

type Field struct {
	Name      string `json:"name"`
	Type      string `json:"type"` // string, int, decimal
	Required  bool   `json:"required,omitempty"`
	Precision int    `json:"precision,omitempty"`
}
