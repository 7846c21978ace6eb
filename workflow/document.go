package workflow

import (
	"encoding/json"
	"fmt"
)

// BlockKind discriminates document blocks in their JSON form.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockHeading   BlockKind = "heading"
	BlockList      BlockKind = "list"
	BlockCode      BlockKind = "code"
	BlockMath      BlockKind = "math"
	BlockTable     BlockKind = "table"
	BlockChart     BlockKind = "chart"
	BlockImage     BlockKind = "image"
)

// Block is one node of a structured document. The set of implementations is
// closed; see the Block* kinds.
type Block interface {
	Kind() BlockKind
	isBlock()
}

type Paragraph struct {
	Text string `json:"text"`
}

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

type List struct {
	Ordered bool     `json:"ordered"`
	Items   []string `json:"items"`
}

type Code struct {
	Language string `json:"language,omitempty"`
	Text     string `json:"text"`
}

type Math struct {
	Expression string `json:"expression"`
}

type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// ChartRef points at an entry of WorkflowState.Charts.
type ChartRef struct {
	ChartID string `json:"chart_id"`
}

type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

func (Paragraph) Kind() BlockKind { return BlockParagraph }
func (Heading) Kind() BlockKind   { return BlockHeading }
func (List) Kind() BlockKind      { return BlockList }
func (Code) Kind() BlockKind      { return BlockCode }
func (Math) Kind() BlockKind      { return BlockMath }
func (Table) Kind() BlockKind     { return BlockTable }
func (ChartRef) Kind() BlockKind  { return BlockChart }
func (Image) Kind() BlockKind     { return BlockImage }

func (Paragraph) isBlock() {}
func (Heading) isBlock()   {}
func (List) isBlock()      {}
func (Code) isBlock()      {}
func (Math) isBlock()      {}
func (Table) isBlock()     {}
func (ChartRef) isBlock()  {}
func (Image) isBlock()     {}

// ChartKind separates rendered charts from embedded images.
type ChartKind string

const (
	ChartKindChart ChartKind = "chart"
	ChartKindImage ChartKind = "image"
)

// Chart is a visual artifact extracted from generated content. Rendering is
// done downstream.
type Chart struct {
	ID    string          `json:"id"`
	Kind  ChartKind       `json:"kind"`
	Type  string          `json:"type,omitempty"`
	Title string          `json:"title,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Src   string          `json:"src,omitempty"`
	Alt   string          `json:"alt,omitempty"`
}

func (c Chart) clone() Chart {
	c.Data = cloneSlice(c.Data)
	return c
}

// DocumentVersion is the current storage format version.
const DocumentVersion = 1

// Document is the structured storage representation of generated content.
type Document struct {
	Version int
	Blocks  []Block
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Version: d.Version, Blocks: make([]Block, len(d.Blocks))}
	for i, b := range d.Blocks {
		out.Blocks[i] = cloneBlock(b)
	}
	return out
}

func cloneBlock(b Block) Block {
	switch v := b.(type) {
	case Paragraph, Heading, Code, Math, ChartRef, Image:
		return v
	case List:
		v.Items = cloneSlice(v.Items)
		return v
	case Table:
		v.Header = cloneSlice(v.Header)
		rows := make([][]string, len(v.Rows))
		for i, r := range v.Rows {
			rows[i] = cloneSlice(r)
		}
		v.Rows = rows
		return v
	default:
		panic(fmt.Sprintf("workflow: unknown block type %T", b))
	}
}

type documentJSON struct {
	Version int               `json:"version"`
	Blocks  []json.RawMessage `json:"blocks"`
}

// MarshalJSON encodes blocks with a "type" discriminator.
func (d Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{Version: d.Version, Blocks: make([]json.RawMessage, 0, len(d.Blocks))}
	for _, b := range d.Blocks {
		raw, err := marshalBlock(b)
		if err != nil {
			return nil, err
		}
		out.Blocks = append(out.Blocks, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged block list.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.Version = in.Version
	d.Blocks = make([]Block, 0, len(in.Blocks))
	for _, raw := range in.Blocks {
		b, err := unmarshalBlock(raw)
		if err != nil {
			return err
		}
		d.Blocks = append(d.Blocks, b)
	}
	return nil
}

func marshalBlock(b Block) (json.RawMessage, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(b.Kind())
	fields["type"] = kind
	return json.Marshal(fields)
}

func unmarshalBlock(raw json.RawMessage) (Block, error) {
	var head struct {
		Type BlockKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case BlockParagraph:
		return decodeAs[Paragraph](raw)
	case BlockHeading:
		return decodeAs[Heading](raw)
	case BlockList:
		return decodeAs[List](raw)
	case BlockCode:
		return decodeAs[Code](raw)
	case BlockMath:
		return decodeAs[Math](raw)
	case BlockTable:
		return decodeAs[Table](raw)
	case BlockChart:
		return decodeAs[ChartRef](raw)
	case BlockImage:
		return decodeAs[Image](raw)
	default:
		return nil, fmt.Errorf("unknown document block type %q", head.Type)
	}
}

func decodeAs[T Block](raw json.RawMessage) (Block, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
