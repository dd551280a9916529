package crawler

import "time"

// State is a step of the crawl state machine
type State int

// Crawl states, in the order a page moves through them
const (
	StateInit State = iota
	StateSeeding
	StateRendering
	StateSettling
	StateExtracting
	StatePersisting
	StateRoundComplete
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSeeding:
		return "SEEDING"
	case StateRendering:
		return "RENDERING"
	case StateSettling:
		return "SETTLING"
	case StateExtracting:
		return "EXTRACTING"
	case StatePersisting:
		return "PERSISTING"
	case StateRoundComplete:
		return "ROUND_COMPLETE"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// RunInfo describes a crawl run recorded in the ledger
type RunInfo struct {
	BaseURL   string
	SiteID    string
	OutputDir string
	Recursive bool
	StartedAt time.Time
}

// PageRecord is a processed page as recorded in the ledger
type PageRecord struct {
	Sequence     int           // Progress counter value for this page
	Path         string        // Normalized site path
	URL          string        // Absolute URL written to the sitemap
	SnapshotFile string        // File name inside the output directory
	SnapshotSize int64         // Bytes written
	ContentHash  string        // xxhash of the snapshot
	Title        string        // <title> of the rendered page
	MetaRobots   string        // <meta name="robots"> content
	CanonicalURL string        // <link rel="canonical"> href
	AnchorCount  int           // Raw anchors found in the rendered document
	RenderTime   time.Duration // Navigation plus settle time
	CrawledAt    time.Time
}

// PageError is a page that could not be rendered
type PageError struct {
	Path         string
	URL          string
	ErrorType    string // navigation, timeout, bad_status, canceled, extraction
	ErrorMessage string
	Attempts     int
	OccurredAt   time.Time
}

// CrawlStats represents crawling statistics
type CrawlStats struct {
	PagesProcessed int
	Errors         int
	Discovered     int
	Rounds         int
	StartTime      time.Time
	Duration       time.Duration
}
