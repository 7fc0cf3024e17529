package utils

import "errors"

// Error taxonomy shared by every package. Callers wrap these with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// ErrMissingArtifact: a requested model, classifier, attack or result file is absent.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrSchemaMismatch: a loaded table or array does not match the expected columns or dimensions.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrTrainingFailure: numerical or configuration failure during a fit.
	ErrTrainingFailure = errors.New("training failure")
	// ErrDeviceUnavailable: the requested accelerator is not present.
	ErrDeviceUnavailable = errors.New("device unavailable")
)
