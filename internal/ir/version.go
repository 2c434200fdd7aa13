package ir

// Version constants for the directive model and engine.
const (
	// IRVersion is the directive model version embedded in plan fingerprints.
	IRVersion = "1"

	// EngineVersion is the engine version.
	EngineVersion = "0.1.0"
)
