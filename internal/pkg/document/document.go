// Package document models the rich-text editor's JSON document tree.
package document

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Node types emitted by the editor.
const (
	TypeDoc            = "doc"
	TypeParagraph      = "paragraph"
	TypeText           = "text"
	TypeHeading        = "heading"
	TypeBulletList     = "bulletList"
	TypeOrderedList    = "orderedList"
	TypeListItem       = "listItem"
	TypeTaskList       = "taskList"
	TypeTaskItem       = "taskItem"
	TypeBlockquote     = "blockquote"
	TypeCodeBlock      = "codeBlock"
	TypeHorizontalRule = "horizontalRule"
	TypeHardBreak      = "hardBreak"
	TypeImage          = "image"
)

// Mark types.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkStrike = "strike"
	MarkCode   = "code"
	MarkLink   = "link"
)

// Node is one element of the document tree. Text nodes carry Text and never
// Content; every other node may carry Content and never Text.
type Node struct {
	Type    string                 `json:"type"`
	Text    *string                `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Marks   []Mark                 `json:"marks,omitempty"`
	Content []Node                 `json:"content,omitempty"`
}

// Mark is an inline formatting annotation on a text node.
type Mark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

var ErrMalformed = errors.New("malformed document")

// Empty returns the minimal valid document: a doc with one empty paragraph.
func Empty() Node {
	return Node{Type: TypeDoc, Content: []Node{{Type: TypeParagraph}}}
}

// Text builds a text leaf.
func Text(s string, marks ...Mark) Node {
	return Node{Type: TypeText, Text: &s, Marks: marks}
}

// Paragraph builds a paragraph; an empty string yields an empty paragraph.
func Paragraph(text string) Node {
	n := Node{Type: TypeParagraph}
	if text != "" {
		n.Content = []Node{Text(text)}
	}
	return n
}

// Heading builds a heading of the given level, clamped to 1-6.
func Heading(level int, text string) Node {
	level = max(1, min(level, 6))
	n := Node{Type: TypeHeading, Attrs: map[string]interface{}{"level": level}}
	if text != "" {
		n.Content = []Node{Text(text)}
	}
	return n
}

// FromLines turns plain lines into a document. Lines starting with one to six
// '#' followed by a space become headings, everything else a paragraph.
func FromLines(lines []string) Node {
	doc := Node{Type: TypeDoc}
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if level, text, ok := headingLine(line); ok {
			doc.Content = append(doc.Content, Heading(level, text))
			continue
		}
		doc.Content = append(doc.Content, Paragraph(line))
	}
	if len(doc.Content) == 0 {
		return Empty()
	}
	return doc
}

func headingLine(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level+1:]), true
}

// Validate checks the tree is well formed: the root is a doc and every node
// has a type, with text payloads only on text leaves.
func Validate(root Node) error {
	if root.Type != TypeDoc {
		return fmt.Errorf("%w: root type %q, want %q", ErrMalformed, root.Type, TypeDoc)
	}
	return validateNode(root, "doc")
}

func validateNode(n Node, path string) error {
	if n.Type == "" {
		return fmt.Errorf("%w: node at %s has no type", ErrMalformed, path)
	}
	if n.Type == TypeText {
		if n.Text == nil {
			return fmt.Errorf("%w: text node at %s has no text", ErrMalformed, path)
		}
		if len(n.Content) > 0 {
			return fmt.Errorf("%w: text node at %s has children", ErrMalformed, path)
		}
		return nil
	}
	if n.Text != nil {
		return fmt.Errorf("%w: %s node at %s carries text", ErrMalformed, n.Type, path)
	}
	for i, child := range n.Content {
		if child.Type == TypeDoc {
			return fmt.Errorf("%w: nested doc at %s/%d", ErrMalformed, path, i)
		}
		if err := validateNode(child, fmt.Sprintf("%s/%d", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// IsZero reports whether the node was never set.
func (n Node) IsZero() bool {
	return n.Type == "" && len(n.Content) == 0 && n.Text == nil
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (n Node) Clone() Node {
	out := Node{Type: n.Type}
	if n.Text != nil {
		s := *n.Text
		out.Text = &s
	}
	if n.Attrs != nil {
		out.Attrs = make(map[string]interface{}, len(n.Attrs))
		for k, v := range n.Attrs {
			out.Attrs[k] = v
		}
	}
	if n.Marks != nil {
		out.Marks = make([]Mark, len(n.Marks))
		for i, m := range n.Marks {
			out.Marks[i] = Mark{Type: m.Type}
			if m.Attrs != nil {
				out.Marks[i].Attrs = make(map[string]interface{}, len(m.Attrs))
				for k, v := range m.Attrs {
					out.Marks[i].Attrs[k] = v
				}
			}
		}
	}
	if n.Content != nil {
		out.Content = make([]Node, len(n.Content))
		for i, c := range n.Content {
			out.Content[i] = c.Clone()
		}
	}
	return out
}

func (n Node) attrString(key string) string {
	if n.Attrs == nil {
		return ""
	}
	if v, ok := n.Attrs[key].(string); ok {
		return v
	}
	return ""
}

func (n Node) attrInt(key string, fallback int) int {
	if n.Attrs == nil {
		return fallback
	}
	switch v := n.Attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func (n Node) attrBool(key string) bool {
	if n.Attrs == nil {
		return false
	}
	v, _ := n.Attrs[key].(bool)
	return v
}

// Value implements driver.Valuer.
func (n Node) Value() (driver.Value, error) {
	if n.IsZero() {
		n = Empty()
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (n *Node) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*n = Empty()
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("document: cannot scan %T", value)
	}
	if len(data) == 0 {
		*n = Empty()
		return nil
	}
	var out Node
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	*n = out
	return nil
}

// GormDBDataType picks a column type large enough for long stories.
func (Node) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "LONGTEXT"
	default:
		return "TEXT"
	}
}
