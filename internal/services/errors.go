package services

import "errors"

// Stage-level failures the orchestrator folds into a partial result
// instead of propagating as request failures.
var (
	// ErrNoOutputProduced: the streaming image generation call finished
	// without a single decodable image payload.
	ErrNoOutputProduced = errors.New("no image output produced by generation stream")

	// ErrGenerationFailed: a synchronous text generation call failed at
	// the transport or remote layer. Not retried here; the caller may
	// re-invoke the single-stage endpoint.
	ErrGenerationFailed = errors.New("text generation failed")

	// ErrSubmissionFailed: the remote 3D reconstruction job could not be
	// created.
	ErrSubmissionFailed = errors.New("3d task submission failed")

	// ErrStatusUnavailable: the remote status endpoint could not be
	// reached. The stored task state is left untouched; the caller
	// retries by re-polling.
	ErrStatusUnavailable = errors.New("3d task status unavailable")
)
