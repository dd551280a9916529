package config

import "errors"

var (
	// ErrNoBaseURL is returned when no site URL is provided
	ErrNoBaseURL = errors.New("no site URL provided")
	// ErrInvalidBaseURL is returned when the site URL cannot be parsed
	ErrInvalidBaseURL = errors.New("invalid site URL")
	// ErrEmptyOutputDir is returned when output directory is empty
	ErrEmptyOutputDir = errors.New("output_dir cannot be empty")
	// ErrInvalidWait is returned when a settle wait is negative
	ErrInvalidWait = errors.New("page_wait and first_page_wait must not be negative")
	// ErrInvalidTimeout is returned when navigation timeout is not greater than 0
	ErrInvalidTimeout = errors.New("navigation_timeout must be greater than 0")
	// ErrInvalidRequestDelay is returned when request delay is negative
	ErrInvalidRequestDelay = errors.New("request_delay must not be negative")
	// ErrInvalidRetries is returned when render retries is negative
	ErrInvalidRetries = errors.New("render_retries must not be negative")
	// ErrInvalidRenderer is returned for an unknown renderer name
	ErrInvalidRenderer = errors.New("renderer must be 'chrome' or 'http'")
	// ErrInvalidReplacePattern is returned when a replace_strings pattern does not compile
	ErrInvalidReplacePattern = errors.New("invalid replace_strings pattern")
	// ErrInvalidExcludePattern is returned when an exclude glob does not compile
	ErrInvalidExcludePattern = errors.New("invalid exclude pattern")
	// ErrInvalidSiteID is returned for a site id that is not a single directory name
	ErrInvalidSiteID = errors.New("site id must be a single directory name")
	// ErrEmptyDatabasePath is returned when database path is empty
	ErrEmptyDatabasePath = errors.New("database_path cannot be empty")
)
