package tool

// Definition describes one function the remote agent may call. It is
// enumerated in the settings payload so the agent knows what exists.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// NoParameters is the schema of a function that takes no arguments.
func NoParameters() Parameters {
	return Parameters{
		Type:       "object",
		Properties: Properties{},
		Required:   []string{},
	}
}
