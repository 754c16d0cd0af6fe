package ir

// EngineVersion is the croprot engine version.
const EngineVersion = "0.1.0"
