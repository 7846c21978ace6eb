package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe     = regexp.MustCompile("^(```|~~~)\\s*([A-Za-z0-9_+-]*)\\s*$")
	headingRe   = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	unorderedRe = regexp.MustCompile(`^\s*[-*+]\s+(.+)$`)
	orderedRe   = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
	imageRe     = regexp.MustCompile(`^!\[([^\]]*)\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)$`)
	tableSepRe  = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	ruleRe      = regexp.MustCompile(`^(-{3,}|\*{3,}|_{3,})$`)
)

type chartDirective struct {
	Type  string          `json:"type"`
	Title string          `json:"title"`
	Data  json.RawMessage `json:"data"`
}

// ParseDocument converts generated markdown-like text into a Document and
// extracts chart and image directives. It never fails: anything it cannot
// classify becomes a paragraph.
func ParseDocument(content string) (*Document, []Chart) {
	p := &docParser{
		lines:  strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n"),
		blocks: []Block{},
		charts: []Chart{},
	}
	p.parse()
	return &Document{Version: DocumentVersion, Blocks: p.blocks}, p.charts
}

type docParser struct {
	lines  []string
	pos    int
	para   []string
	blocks []Block
	charts []Chart
	nChart int
	nImage int
}

func (p *docParser) parse() {
	for p.pos < len(p.lines) {
		raw := p.lines[p.pos]
		line := strings.TrimSpace(raw)

		switch {
		case line == "" || ruleRe.MatchString(line):
			p.flush()
			p.pos++
		case fenceRe.MatchString(line):
			p.flush()
			p.fence(line)
		case strings.HasPrefix(line, "$$"):
			p.flush()
			p.mathBlock(line)
		case headingRe.MatchString(line):
			p.flush()
			m := headingRe.FindStringSubmatch(line)
			p.blocks = append(p.blocks, Heading{Level: len(m[1]), Text: m[2]})
			p.pos++
		case imageRe.MatchString(line):
			p.flush()
			m := imageRe.FindStringSubmatch(line)
			p.image(m[1], m[2])
			p.pos++
		case strings.HasPrefix(line, "|") && p.pos+1 < len(p.lines) && tableSepRe.MatchString(strings.TrimSpace(p.lines[p.pos+1])):
			p.flush()
			p.table()
		case unorderedRe.MatchString(raw):
			p.flush()
			p.list(unorderedRe, false)
		case orderedRe.MatchString(raw):
			p.flush()
			p.list(orderedRe, true)
		default:
			p.para = append(p.para, line)
			p.pos++
		}
	}
	p.flush()
}

func (p *docParser) flush() {
	if len(p.para) == 0 {
		return
	}
	p.blocks = append(p.blocks, Paragraph{Text: strings.Join(p.para, "\n")})
	p.para = nil
}

func (p *docParser) fence(open string) {
	m := fenceRe.FindStringSubmatch(open)
	marker, lang := m[1], strings.ToLower(m[2])
	p.pos++

	var body []string
	for p.pos < len(p.lines) {
		if strings.TrimSpace(p.lines[p.pos]) == marker {
			p.pos++
			break
		}
		body = append(body, p.lines[p.pos])
		p.pos++
	}
	text := strings.Join(body, "\n")

	switch lang {
	case "chart":
		if p.chart(text) {
			return
		}
	case "math", "latex", "tex":
		p.blocks = append(p.blocks, Math{Expression: strings.TrimSpace(text)})
		return
	}
	p.blocks = append(p.blocks, Code{Language: lang, Text: text})
}

func (p *docParser) chart(body string) bool {
	var d chartDirective
	if err := json.Unmarshal([]byte(body), &d); err != nil || d.Type == "" {
		return false
	}
	p.nChart++
	id := fmt.Sprintf("chart-%d", p.nChart)
	p.charts = append(p.charts, Chart{
		ID:    id,
		Kind:  ChartKindChart,
		Type:  d.Type,
		Title: d.Title,
		Data:  d.Data,
	})
	p.blocks = append(p.blocks, ChartRef{ChartID: id})
	return true
}

func (p *docParser) image(alt, src string) {
	p.nImage++
	p.charts = append(p.charts, Chart{
		ID:   fmt.Sprintf("image-%d", p.nImage),
		Kind: ChartKindImage,
		Src:  src,
		Alt:  alt,
	})
	p.blocks = append(p.blocks, Image{Src: src, Alt: alt})
}

func (p *docParser) mathBlock(open string) {
	rest := strings.TrimSpace(strings.TrimPrefix(open, "$$"))
	p.pos++
	if strings.HasSuffix(rest, "$$") {
		p.blocks = append(p.blocks, Math{Expression: strings.TrimSpace(strings.TrimSuffix(rest, "$$"))})
		return
	}

	body := []string{}
	if rest != "" {
		body = append(body, rest)
	}
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if strings.HasSuffix(line, "$$") {
			if tail := strings.TrimSpace(strings.TrimSuffix(line, "$$")); tail != "" {
				body = append(body, tail)
			}
			break
		}
		body = append(body, line)
	}
	p.blocks = append(p.blocks, Math{Expression: strings.Join(body, "\n")})
}

func (p *docParser) table() {
	header := splitRow(p.lines[p.pos])
	p.pos += 2

	rows := [][]string{}
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		if !strings.HasPrefix(line, "|") {
			break
		}
		rows = append(rows, splitRow(line))
		p.pos++
	}
	p.blocks = append(p.blocks, Table{Header: header, Rows: rows})
}

func (p *docParser) list(re *regexp.Regexp, ordered bool) {
	var items []string
	for p.pos < len(p.lines) {
		m := re.FindStringSubmatch(p.lines[p.pos])
		if m == nil {
			break
		}
		items = append(items, strings.TrimSpace(m[1]))
		p.pos++
	}
	p.blocks = append(p.blocks, List{Ordered: ordered, Items: items})
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}
