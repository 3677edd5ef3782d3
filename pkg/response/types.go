package response

import "time"

// Revision is one entry of a page's "revisions" list.
type Revision struct {
	RevID     int       `json:"revid"`
	ParentID  int       `json:"parentid"`
	User      string    `json:"user"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`

	Slots map[string]Slot `json:"slots"`
}

// Slot is one content slot of a revision (normally just "main").
type Slot struct {
	ContentModel string `json:"contentmodel"`
	Content      string `json:"content"`
}

// Text returns the main-slot wikitext of the revision, if it was fetched.
func (r Revision) Text() string {
	return r.Slots["main"].Content
}

// Contribution is one entry of a "usercontribs" list.
type Contribution struct {
	User      string    `json:"user"`
	Title     string    `json:"title"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
	RevID     int       `json:"revid"`
	NS        int       `json:"ns"`
}

// LogEvent is one entry of a "logevents" list.
type LogEvent struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Title     string    `json:"title"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// TitleEntry is a list entry that only carries page identity, e.g. the
// members of a category or the results of a prefix scan.
type TitleEntry struct {
	PageID int    `json:"pageid"`
	NS     int    `json:"ns"`
	Title  string `json:"title"`
}
