package domain

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
)

// AlertReference is one feed entry pointing at a full CAP document.
type AlertReference struct {
	GUID  string `json:"guid"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Document is a fetched feed or CAP body with its declared media type.
type Document struct {
	Body        []byte
	ContentType string
}

// Alert is a parsed CAP message. Identity is the GUID alone.
type Alert struct {
	GUID     string    `json:"identifier"`
	Sender   string    `json:"sender,omitempty"`
	DateSent time.Time `json:"sent"`
	Status   string    `json:"status"`
	Scope    string    `json:"scope"`
	MsgType  string    `json:"msg_type"`
	Info     AlertInfo `json:"info"`
}

// AlertInfo is the primary <info> block of a CAP message.
type AlertInfo struct {
	Category     string            `json:"category,omitempty"`
	Event        string            `json:"event,omitempty"`
	Urgency      string            `json:"urgency,omitempty"`
	Severity     Severity          `json:"severity"`
	Certainty    string            `json:"certainty,omitempty"`
	Onset        time.Time         `json:"onset"`
	Expires      time.Time         `json:"expires"`
	Headline     string            `json:"headline,omitempty"`
	Description  string            `json:"description,omitempty"`
	Instruction  string            `json:"instruction,omitempty"`
	ResponseType string            `json:"response_type,omitempty"`
	SenderName   string            `json:"sender_name,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Areas        []Area            `json:"areas,omitempty"`
}

// Area is a described region with zero or more polygons. Circles from the
// source document have already been converted into Polygons.
type Area struct {
	Desc     string        `json:"desc"`
	Polygons []orb.Polygon `json:"polygons,omitempty"`
}

// Polygons returns every area polygon of the alert.
func (a Alert) Polygons() []orb.Polygon {
	var out []orb.Polygon
	for _, area := range a.Info.Areas {
		out = append(out, area.Polygons...)
	}
	return out
}

// AreaNames returns the area descriptions in document order.
func (a Alert) AreaNames() []string {
	names := make([]string, 0, len(a.Info.Areas))
	for _, area := range a.Info.Areas {
		names = append(names, area.Desc)
	}
	return names
}

// AlertSet is a set of alerts keyed by GUID.
type AlertSet map[string]Alert

// NewAlertSet builds a set from alerts; later duplicates are ignored.
func NewAlertSet(alerts ...Alert) AlertSet {
	s := make(AlertSet, len(alerts))
	for _, a := range alerts {
		s.Add(a)
	}
	return s
}

// Add inserts a if no alert with the same GUID is present and reports
// whether it was inserted.
func (s AlertSet) Add(a Alert) bool {
	if _, ok := s[a.GUID]; ok {
		return false
	}
	s[a.GUID] = a
	return true
}

// Merge adds every alert of other to s.
func (s AlertSet) Merge(other AlertSet) {
	for _, a := range other {
		s.Add(a)
	}
}

// Slice returns the alerts sorted by GUID so callers get stable output.
func (s AlertSet) Slice() []Alert {
	out := make([]Alert, 0, len(s))
	for _, a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}

// GUIDs returns the sorted GUIDs of the set.
func (s AlertSet) GUIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
