package document

import (
	"strconv"
	"strings"
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"`", "\\`",
	`*`, `\*`,
	`_`, `\_`,
	`[`, `\[`,
	`]`, `\]`,
	`<`, `\<`,
	`>`, `\>`,
	`#`, `\#`,
	`~`, `\~`,
	`|`, `\|`,
)

// ToMarkdown renders the tree as CommonMark with GFM extensions.
func ToMarkdown(root Node) string {
	var b strings.Builder
	writeBlocks(&b, root.Content, "")
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeBlocks(b *strings.Builder, nodes []Node, indent string) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(indent)
			b.WriteByte('\n')
		}
		writeBlock(b, n, indent)
	}
}

func writeBlock(b *strings.Builder, n Node, indent string) {
	switch n.Type {
	case TypeHeading:
		level := max(1, min(n.attrInt("level", 1), 6))
		b.WriteString(indent + strings.Repeat("#", level) + " ")
		b.WriteString(inline(n.Content))
		b.WriteByte('\n')
	case TypeBulletList:
		writeList(b, n.Content, indent, func(int) string { return "- " })
	case TypeOrderedList:
		start := n.attrInt("start", 1)
		writeList(b, n.Content, indent, func(i int) string { return strconv.Itoa(start+i) + ". " })
	case TypeTaskList:
		writeList(b, n.Content, indent, func(i int) string {
			if n.Content[i].attrBool("checked") {
				return "- [x] "
			}
			return "- [ ] "
		})
	case TypeBlockquote:
		var inner strings.Builder
		writeBlocks(&inner, n.Content, "")
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			if line == "" {
				b.WriteString(indent + ">\n")
				continue
			}
			b.WriteString(indent + "> " + line + "\n")
		}
	case TypeCodeBlock:
		b.WriteString(indent + "```" + n.attrString("language") + "\n")
		var code strings.Builder
		for _, c := range n.Content {
			if c.Text != nil {
				code.WriteString(*c.Text)
			}
		}
		for _, line := range strings.Split(code.String(), "\n") {
			b.WriteString(indent + line + "\n")
		}
		b.WriteString(indent + "```\n")
	case TypeHorizontalRule:
		b.WriteString(indent + "---\n")
	case TypeImage:
		b.WriteString(indent + image(n) + "\n")
	default:
		text := inline(n.Content)
		if text == "" {
			return
		}
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			b.WriteString(indent + line)
			if i < len(lines)-1 {
				// trailing backslash is a CommonMark hard break
				b.WriteString("\\")
			}
			b.WriteByte('\n')
		}
	}
}

func writeList(b *strings.Builder, items []Node, indent string, marker func(int) string) {
	for i, item := range items {
		prefix := marker(i)
		var inner strings.Builder
		writeBlocks(&inner, item.Content, "")
		lines := strings.Split(strings.TrimRight(inner.String(), "\n"), "\n")
		pad := strings.Repeat(" ", len(prefix))
		for j, line := range lines {
			switch {
			case j == 0:
				b.WriteString(indent + prefix + line + "\n")
			case line == "":
				b.WriteString("\n")
			default:
				b.WriteString(indent + pad + line + "\n")
			}
		}
	}
}

func inline(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		switch n.Type {
		case TypeText:
			if n.Text != nil {
				b.WriteString(applyMarks(*n.Text, n.Marks))
			}
		case TypeHardBreak:
			b.WriteByte('\n')
		case TypeImage:
			b.WriteString(image(n))
		default:
			b.WriteString(inline(n.Content))
		}
	}
	return b.String()
}

func applyMarks(text string, marks []Mark) string {
	var code bool
	for _, m := range marks {
		if m.Type == MarkCode {
			code = true
		}
	}
	out := markdownEscaper.Replace(text)
	if code {
		out = "`" + strings.ReplaceAll(text, "`", "") + "`"
	}
	for _, m := range marks {
		switch m.Type {
		case MarkBold:
			out = "**" + out + "**"
		case MarkItalic:
			out = "*" + out + "*"
		case MarkStrike:
			out = "~~" + out + "~~"
		case MarkLink:
			href, _ := m.Attrs["href"].(string)
			out = "[" + out + "](" + escapeURL(href) + ")"
		}
	}
	return out
}

func image(n Node) string {
	return "![" + markdownEscaper.Replace(n.attrString("alt")) + "](" + escapeURL(n.attrString("src")) + ")"
}

func escapeURL(u string) string {
	return strings.NewReplacer(" ", "%20", "(", "%28", ")", "%29").Replace(u)
}
