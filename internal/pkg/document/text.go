package document

import (
	"math"
	"strings"
)

// WordsPerMinute is the reading speed used for reading time estimates.
const WordsPerMinute = 200

var blockTypes = map[string]bool{
	TypeParagraph:   true,
	TypeHeading:     true,
	TypeListItem:    true,
	TypeTaskItem:    true,
	TypeBlockquote:  true,
	TypeCodeBlock:   true,
	TypeBulletList:  true,
	TypeOrderedList: true,
	TypeTaskList:    true,
}

// PlainText flattens the tree to text, one line per block.
func PlainText(root Node) string {
	var b strings.Builder
	writePlain(&b, root)
	return strings.TrimSpace(b.String())
}

func writePlain(b *strings.Builder, n Node) {
	switch n.Type {
	case TypeText:
		if n.Text != nil {
			b.WriteString(*n.Text)
		}
		return
	case TypeHardBreak:
		b.WriteByte('\n')
		return
	case TypeImage:
		if alt := n.attrString("alt"); alt != "" {
			b.WriteString(alt)
		}
		return
	}
	for _, c := range n.Content {
		writePlain(b, c)
	}
	if blockTypes[n.Type] {
		b.WriteByte('\n')
	}
}

// WordCount counts whitespace separated words.
func WordCount(root Node) int {
	return len(strings.Fields(PlainText(root)))
}

// ReadingTime returns the estimated minutes to read, rounded up. A document
// without words reads in zero minutes.
func ReadingTime(root Node) int {
	words := WordCount(root)
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / WordsPerMinute))
}

// Excerpt returns up to limit runes of plain text, cut at a word boundary.
func Excerpt(root Node, limit int) string {
	text := strings.Join(strings.Fields(PlainText(root)), " ")
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
