package document

import (
	"bytes"
	"fmt"
	"time"
)

// Sort is the fixed content shape of a template or a rendered artifact.
type Sort string

const (
	SortText           Sort = "text"
	SortBinary         Sort = "binary"
	SortStructuredText Sort = "structured-text"
)

// Valid reports whether s is one of the known sorts.
func (s Sort) Valid() bool {
	switch s {
	case SortText, SortBinary, SortStructuredText:
		return true
	}
	return false
}

// Textual reports whether content of this sort is held as characters.
func (s Sort) Textual() bool {
	return s == SortText || s == SortStructuredText
}

// DocumentType is owned by an external catalog; only its reference matters here.
type DocumentType struct {
	Reference string `json:"reference" bson:"reference"`
	Name      string `json:"name" bson:"name"`
}

// Content holds exactly one payload: Text for textual sorts, Bytes for binary.
type Content struct {
	Sort     Sort   `json:"sort" bson:"sort"`
	Name     string `json:"name" bson:"name"`
	MimeType string `json:"mimeType" bson:"mimeType"`
	Text     string `json:"text,omitempty" bson:"text,omitempty"`
	Bytes    []byte `json:"bytes,omitempty" bson:"bytes,omitempty"`
}

// TextContent builds plain text content.
func TextContent(name, mimeType, text string) Content {
	return Content{Sort: SortText, Name: name, MimeType: mimeType, Text: text}
}

// StructuredTextContent builds structured-text (clob) content.
func StructuredTextContent(name, mimeType, text string) Content {
	return Content{Sort: SortStructuredText, Name: name, MimeType: mimeType, Text: text}
}

// BinaryContent builds binary (blob) content. The slice is copied.
func BinaryContent(name, mimeType string, b []byte) Content {
	return Content{Sort: SortBinary, Name: name, MimeType: mimeType, Bytes: append([]byte(nil), b...)}
}

// Validate checks that the payload agrees with the declared sort.
func (c Content) Validate() error {
	if !c.Sort.Valid() {
		return fmt.Errorf("%w: unknown content sort %q", ErrInvalidArgument, c.Sort)
	}
	if c.Sort.Textual() && len(c.Bytes) > 0 {
		return fmt.Errorf("%w: %s content must not carry bytes", ErrInvalidArgument, c.Sort)
	}
	if c.Sort == SortBinary && c.Text != "" {
		return fmt.Errorf("%w: binary content must not carry text", ErrInvalidArgument)
	}
	return nil
}

// AsChars returns the textual payload. Binary content has no textual form.
func (c Content) AsChars() (string, error) {
	if !c.Sort.Textual() {
		return "", fmt.Errorf("%w: %s content has no textual source", ErrUnsupportedRenderCapability, c.Sort)
	}
	return c.Text, nil
}

// AsBytes returns the payload as bytes; textual content is UTF-8 encoded.
func (c Content) AsBytes() []byte {
	if c.Sort == SortBinary {
		return append([]byte(nil), c.Bytes...)
	}
	return []byte(c.Text)
}

// Equal reports whether two contents carry the same payload and metadata.
func (c Content) Equal(o Content) bool {
	return c.Sort == o.Sort &&
		c.Name == o.Name &&
		c.MimeType == o.MimeType &&
		c.Text == o.Text &&
		bytes.Equal(c.Bytes, o.Bytes)
}

// Template is a document template. The selection key (Type, ScopePath,
// EffectiveDate) is unique; Revision only ever increases. EffectiveDate is
// a calendar day, stored as UTC midnight.
type Template struct {
	ID                  string     `json:"id" bson:"_id,omitempty"`
	Type                string     `json:"type" bson:"type"`
	Name                string     `json:"name" bson:"name"`
	ScopePath           string     `json:"scopePath" bson:"scopePath"`
	EffectiveDate       *time.Time `json:"effectiveDate,omitempty" bson:"effectiveDate"`
	Content             Content    `json:"content" bson:"content"`
	RenderingStrategyID string     `json:"renderingStrategyId" bson:"renderingStrategyId"`
	DataModelTypeName   string     `json:"dataModelTypeName" bson:"dataModelTypeName"`
	Revision            int64      `json:"revision" bson:"revision"`
	Retired             bool       `json:"retired,omitempty" bson:"retired"`
	CreatedAt           time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Sort is shorthand for the template's content sort.
func (t Template) Sort() Sort { return t.Content.Sort }

// Key returns a stable identity for the selection key, usable as a cache key.
func (t Template) Key() string {
	date := "-"
	if t.EffectiveDate != nil {
		date = t.EffectiveDate.UTC().Format(DateLayout)
	}
	return t.Type + "@" + NormalizePath(t.ScopePath) + "#" + date
}

// EffectiveAt reports whether the template is in force at asOf.
func (t Template) EffectiveAt(asOf time.Time) bool {
	return t.EffectiveDate == nil || !t.EffectiveDate.After(asOf)
}

// RenderedDocument is the immutable output of a single render call.
type RenderedDocument struct {
	Sort      Sort      `json:"sort" bson:"sort"`
	Name      string    `json:"name" bson:"name"`
	MimeType  string    `json:"mimeType" bson:"mimeType"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	Bytes     []byte    `json:"bytes,omitempty" bson:"bytes,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Payload returns the artifact bytes; text is returned UTF-8 encoded.
func (r RenderedDocument) Payload() []byte {
	if r.Sort == SortBinary {
		return r.Bytes
	}
	return []byte(r.Text)
}

// Document is a rendered artifact after the document store has taken it.
type Document struct {
	ID   string `json:"id" bson:"_id,omitempty"`
	Type string `json:"type" bson:"type"`
	Path string `json:"path" bson:"path"`
	RenderedDocument `bson:",inline"`
}

// DateLayout is the format used for effective dates in labels and keys.
const DateLayout = "2006-01-02"

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return Date(u.Year(), u.Month(), u.Day())
}

// DatePtr is Date returned as a pointer, for EffectiveDate fields.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}
