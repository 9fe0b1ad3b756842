package domain

// CapabilitySet holds the fixed capability booleans a provider declared
// during the connection handshake. It is captured once per connection and
// never mutated afterwards; the zero value means the provider declared
// nothing. A capability the peer did not mention is simply false.
type CapabilitySet struct {
	Tools            bool
	ToolsListChanged bool
	Prompts          bool
	Resources        bool

	// File-system bridge capabilities, declared through the experimental
	// capability block of the handshake result.
	ReadTextFile  bool
	WriteTextFile bool
}

// Names returns the enabled capability names in a stable order, for logs
// and status output.
func (c CapabilitySet) Names() []string {
	names := make([]string, 0, 6)
	if c.Tools {
		names = append(names, "tools")
	}
	if c.ToolsListChanged {
		names = append(names, "tools.listChanged")
	}
	if c.Prompts {
		names = append(names, "prompts")
	}
	if c.Resources {
		names = append(names, "resources")
	}
	if c.ReadTextFile {
		names = append(names, "fs.readTextFile")
	}
	if c.WriteTextFile {
		names = append(names, "fs.writeTextFile")
	}
	return names
}
