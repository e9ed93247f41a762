package extract

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"
)

// xmlNode is a generic parsed element.
type xmlNode struct {
	name     string
	text     string
	children []*xmlNode
}

// ReadXML parses a generic XML document into a table. The record set is the
// first group of repeated sibling elements; each record's child elements
// become columns. Nested structures below one level are flattened to their
// text content.
func ReadXML(data []byte) (*Table, error) {
	root, err := parseXML(data)
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse xml")
	}

	records := findRecords(root)
	if len(records) == 0 {
		return nil, eris.New("extract: no repeated record elements in xml")
	}

	var header []string
	seen := map[string]bool{}
	for _, rec := range records {
		for _, child := range rec.children {
			if !seen[child.name] {
				seen[child.name] = true
				header = append(header, child.name)
			}
		}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(header))
		for _, child := range rec.children {
			row[index[child.name]] = child.flatText()
		}
		rows = append(rows, row)
	}

	return &Table{HeaderRows: [][]string{header}, Rows: rows}, nil
}

func parseXML(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *xmlNode
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			} else {
				root = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text += string(t)
			}
		}
	}
	if root == nil {
		return nil, eris.New("extract: no root element")
	}
	return root, nil
}

// findRecords walks the tree for the first element whose children share a
// repeated tag name, breadth-first so the outermost record set wins.
func findRecords(root *xmlNode) []*xmlNode {
	queue := []*xmlNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		counts := map[string]int{}
		for _, child := range node.children {
			counts[child.name]++
		}
		for name, n := range counts {
			if n >= 2 {
				var records []*xmlNode
				for _, child := range node.children {
					if child.name == name {
						records = append(records, child)
					}
				}
				return records
			}
		}
		queue = append(queue, node.children...)
	}
	// Single-record document: the deepest element with leaf children.
	if rec := singleRecord(root); rec != nil {
		return []*xmlNode{rec}
	}
	return nil
}

func singleRecord(node *xmlNode) *xmlNode {
	leaves := 0
	for _, child := range node.children {
		if len(child.children) == 0 {
			leaves++
		}
	}
	if leaves >= 2 {
		return node
	}
	for _, child := range node.children {
		if rec := singleRecord(child); rec != nil {
			return rec
		}
	}
	return nil
}

func (n *xmlNode) flatText() string {
	if len(n.children) == 0 {
		return strings.TrimSpace(n.text)
	}
	parts := make([]string, 0, len(n.children))
	for _, child := range n.children {
		if t := child.flatText(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}
