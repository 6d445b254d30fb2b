package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"evcal/internal/model"
)

// yamlEvent is one entry of a CMS export.
type yamlEvent struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	StartDate     string `yaml:"start_date"`
	StartTime     string `yaml:"start_time"`
	StartDateTime string `yaml:"start_datetime"`
	EndDate       string `yaml:"end_date"`
	Recurrence    string `yaml:"recurrence"`
}

type yamlDoc struct {
	Events []yamlEvent `yaml:"events"`
}

// ParseYAML decodes a CMS export. The document is either a mapping with
// an "events" list or a bare list of events. Entries without an id get a
// stable one derived from the feed id, title and start text.
func ParseYAML(src Source, body []byte) ([]model.EventRecord, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty YAML body")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("parse yaml feed %s: %w", src.ID, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("parse yaml feed %s: no document", src.ID)
	}

	var items []yamlEvent
	switch top := root.Content[0]; top.Kind {
	case yaml.SequenceNode:
		if err := top.Decode(&items); err != nil {
			return nil, fmt.Errorf("parse yaml feed %s: %w", src.ID, err)
		}
	case yaml.MappingNode:
		var doc yamlDoc
		if err := top.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse yaml feed %s: %w", src.ID, err)
		}
		items = doc.Events
	default:
		return nil, fmt.Errorf("parse yaml feed %s: unexpected top-level node", src.ID)
	}

	out := make([]model.EventRecord, 0, len(items))
	for _, it := range items {
		rec := model.EventRecord{
			ID:             strings.TrimSpace(it.ID),
			Title:          strings.TrimSpace(it.Title),
			StartDateText:  strings.TrimSpace(it.StartDate),
			StartTimeText:  strings.TrimSpace(it.StartTime),
			StartDateTime:  strings.TrimSpace(it.StartDateTime),
			EndDateText:    strings.TrimSpace(it.EndDate),
			RecurrenceText: strings.TrimSpace(it.Recurrence),
		}
		if rec.ID == "" {
			rec.ID = stableID(src.ID, rec.Title, rec.StartDateText+rec.StartDateTime)
		}
		out = append(out, rec)
	}
	return out, nil
}

// stableID returns a name-based UUID so ids survive refreshes.
func stableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "\x00"))).String()
}
