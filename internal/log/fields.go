// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"
	FieldStreamID  = "stream_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldTool      = "tool"
	FieldExitCode  = "exit_code"
	FieldAttempt   = "attempt"

	// Media fields
	FieldVideoCodec = "vcodec"
	FieldAudioCodec = "acodec"
	FieldHeight     = "height"
	FieldMode       = "mode"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath      = "path"
	FieldFinalPath = "final_path"
	FieldURL       = "url"
)
