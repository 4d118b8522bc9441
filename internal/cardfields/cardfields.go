// internal/cardfields/cardfields.go
//
// Pure builders that turn a design request into Trello card fields.
//
// Context
// -------
// Nothing here touches the network or the database, and every function is
// deterministic for a given input.  The orchestrator calls these when it
// composes a create payload; the sweeper calls them again when it replays a
// create from persisted state, so the output must depend only on the row.
//
// Notes
// -----
// • Optional sections are omitted outright when blank.  We never emit a bold
//   header with nothing under it.
// • Labels come out priority first, then type.  No labels is a valid result.
package cardfields

import (
	"fmt"
	"strings"
	"time"

	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/designrequest"
)

// DefaultProjectName is used in titles when the requester left it blank.
const DefaultProjectName = "Design Request"

// DueLayout is the provider's due-date format, pinned to UTC midnight.
const DueLayout = "2006-01-02T00:00:00.000Z"

// Title returns "{short_id}: {project_name}".
func Title(r *designrequest.Record) string {
	name := strings.TrimSpace(r.ProjectName)
	if name == "" {
		name = DefaultProjectName
	}
	return r.ShortID + ": " + name
}

type section struct {
	label string
	value string
}

// Description renders the card body as markdown.
func Description(r *designrequest.Record) string {
	var b strings.Builder

	for _, s := range []section{
		{"Context", r.Context},
		{"Design Needs", r.DesignNeeds},
		{"Key Message", r.KeyMessage},
		{"Size/Format", r.SizeFormat},
		{"Additional Notes", r.AdditionalNotes},
	} {
		v := strings.TrimSpace(s.value)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "**%s:**\n%s\n\n", s.label, v)
	}

	if c := contactLine(r); c != "" {
		fmt.Fprintf(&b, "**Contact:** %s\n", c)
	}
	fmt.Fprintf(&b, "**Priority:** %s\n", priorityOrDefault(r.Priority))
	fmt.Fprintf(&b, "**Submitted:** %s", r.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))

	if n := len(r.Attachments); n > 0 {
		fmt.Fprintf(&b, "\n\n**Attachments:** %d file(s)", n)
	}
	return b.String()
}

// contactLine joins email and phone, skipping whichever is blank.
func contactLine(r *designrequest.Record) string {
	email, phone := strings.TrimSpace(r.ContactEmail), strings.TrimSpace(r.ContactPhone)
	switch {
	case email != "" && phone != "":
		return email + " / " + phone
	case email != "":
		return email
	}
	return phone
}

// Labels maps priority and request type to label ids via the client's
// config.  Unmapped values are skipped.
func Labels(r *designrequest.Record, cfg client.TrelloConfig) []string {
	out := make([]string, 0, 2)
	if id, ok := cfg.PriorityLabels[string(r.Priority)]; ok && id != "" {
		out = append(out, id)
	}
	if r.RequestType != "" {
		if id, ok := cfg.TypeLabels[r.RequestType]; ok && id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Due formats the deadline as the provider expects, or "" when unset.
func Due(r *designrequest.Record) string {
	if r.Deadline == nil {
		return ""
	}
	return FormatDue(*r.Deadline)
}

// FormatDue pins t's calendar date to UTC midnight.
func FormatDue(t time.Time) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(DueLayout)
}

func priorityOrDefault(p designrequest.Priority) designrequest.Priority {
	if p == "" {
		return designrequest.PriorityNormal
	}
	return p
}
