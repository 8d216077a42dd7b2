package catalog

import (
	"fmt"
	"time"
)

// SurahCount is the number of chapters in a complete recitation catalog.
const SurahCount = 114

// Track identifies a single recitation unit. Immutable once resolved.
type Track struct {
	Reciter  string        `json:"reciter"`
	Surah    int           `json:"surah"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration,omitempty"` // zero when unknown
	Source   string        `json:"source"`             // URL or local file path
}

// ID returns the stable track identifier used by the position store.
func (t Track) ID() string {
	return fmt.Sprintf("%s/%03d", t.Reciter, t.Surah)
}

func (t Track) String() string {
	return fmt.Sprintf("%s (%s)", t.Title, t.ID())
}
