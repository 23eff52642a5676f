// Package note turns the text of a markdown note into a project record, its
// checkbox tasks and its tags, and maintains the Things link inside the note.
package note

// Note is everything one export needs from a document.
type Note struct {
	Project Project  `json:"project" yaml:"project"`
	Tasks   []Task   `json:"tasks" yaml:"tasks"`
	Tags    []string `json:"tags" yaml:"tags"`
	Body    string   `json:"body,omitempty" yaml:"body,omitempty"`
	Raw     string   `json:"-" yaml:"-"`
}

// Options shape the record handed to the request builder.
type Options struct {
	OmitNotes       bool
	StripFormatting bool
	TagMapping      map[string]string
	TagStyle        string
	// LinkScheme is the scheme of the note's own Things link, dropped from
	// the description. Empty means DefaultLinkScheme.
	LinkScheme string
}

// Parse reads content once into a Note. Parsing is pure: the same content
// always yields the same Note.
func Parse(content string) Note {
	tasks := OrganizeSubtasks(ParseTasks(content))
	if tasks == nil {
		tasks = []Task{}
	}
	return Note{
		Project: ParseProject(content),
		Tasks:   tasks,
		Tags:    ExtractTags(content),
		Body:    ExtractBody(content),
		Raw:     content,
	}
}

// ProjectRecord returns the project with the note's tag set and description
// applied according to opts.
func (n Note) ProjectRecord(opts Options) Project {
	p := n.Project
	p.Tags = MapTags(FlattenTags(n.Tags), opts.TagMapping, opts.TagStyle)
	body := n.Body
	if opts.LinkScheme != "" && opts.LinkScheme != DefaultLinkScheme && n.Raw != "" {
		body = extractBody(n.Raw, NewLinks(opts.LinkScheme))
	}
	switch {
	case opts.OmitNotes:
		p.Description = ""
	case opts.StripFormatting:
		p.Description = PlainText(body)
	default:
		p.Description = body
	}
	return p
}
