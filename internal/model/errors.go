package model

import "github.com/cockroachdb/errors"

// Sentinel errors. Wrap or mark with these and check with errors.Is.
var (
	// ErrInput marks entity facts that cannot be processed at all (missing id)
	ErrInput = errors.New("input error")

	// ErrExtractorFault marks a failure inside a single signal extractor.
	// The extractor's contribution is treated as absent.
	ErrExtractorFault = errors.New("extractor fault")

	// ErrTables marks reference tables that cannot be loaded or are structurally invalid
	ErrTables = errors.New("reference tables")
)
