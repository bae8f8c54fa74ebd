package ir

// Version constants for the record format and the tool.
const (
	// FormatVersion is bumped whenever the hashed shape of an entry or
	// action changes. It is part of every hash domain.
	FormatVersion = "1"

	// ToolVersion is the blogchain release.
	ToolVersion = "0.1.0"
)
