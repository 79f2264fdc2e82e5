// Package ooxml provides parsing, XPath queries, validation, and node
// surgery for WordprocessingML part payloads. The docx backend builds its
// paragraph and field model on top of this package and uses the mutation
// primitives to split runs, wrap hyperlinks, and place bookmarks.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities by default, and we explicitly
//     disable entity expansion in validation functions.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package ooxml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/citekit/citelink/core/encoding"
)

// Document represents a parsed XML part.
type Document struct {
	root *xmlquery.Node
}

// Node represents an XML node (element, text, attribute, etc.).
type Node struct {
	node *xmlquery.Node
}

// ValidationResult contains the result of XML validation.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

// FormatOptions controls XML formatting behavior.
type FormatOptions struct {
	Indent string // Indentation string (e.g., "  " or "\t")
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	reader := bytes.NewReader(data)
	root, err := xmlquery.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing XML: %w", err)
	}
	return &Document{root: root}, nil
}

// Validate checks data for well-formedness and returns a ValidationResult.
//
// Security: This function is protected against XXE (XML External Entity)
// attacks by disabling entity expansion. Go's xml.Decoder does not fetch
// external entities by default, and we explicitly disable internal entity
// expansion as well.
func Validate(data []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))

	// XXE Protection (CWE-611): disable entity expansion.
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    1, // xml.Decoder doesn't provide line numbers easily
				Column:  0,
				Message: err.Error(),
			})
			break
		}
	}

	return result
}

// Format pretty-prints XML data.
func Format(data []byte, opts FormatOptions) ([]byte, error) {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := formatNode(&buf, doc.root, 0, opts.Indent); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// formatNode recursively formats an XML node.
func formatNode(w *bytes.Buffer, n *xmlquery.Node, depth int, indent string) error {
	switch n.Type {
	case xmlquery.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if err := formatNode(w, child, depth, indent); err != nil {
				return err
			}
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?xml")
		for _, attr := range n.Attr {
			w.WriteString(" ")
			w.WriteString(attr.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}
		w.WriteString("?>\n")

	case xmlquery.ElementNode:
		writeIndent(w, depth, indent)
		w.WriteString("<")
		if n.Prefix != "" {
			w.WriteString(n.Prefix)
			w.WriteString(":")
		}
		w.WriteString(n.Data)

		for _, attr := range n.Attr {
			w.WriteString(" ")
			if attr.Name.Space != "" {
				w.WriteString(attr.Name.Space)
				w.WriteString(":")
			}
			w.WriteString(attr.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(attr.Value))
			w.WriteString("\"")
		}

		hasChildren := n.FirstChild != nil
		hasElementChildren := false
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == xmlquery.ElementNode {
				hasElementChildren = true
				break
			}
		}

		if !hasChildren {
			w.WriteString("/>\n")
		} else {
			w.WriteString(">")
			if hasElementChildren {
				w.WriteString("\n")
			}

			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == xmlquery.ElementNode {
					if err := formatNode(w, child, depth+1, indent); err != nil {
						return err
					}
				} else if child.Type == xmlquery.TextNode {
					text := strings.TrimSpace(child.Data)
					if text != "" {
						if hasElementChildren {
							writeIndent(w, depth+1, indent)
						}
						w.WriteString(encoding.EscapeXMLText(child.Data))
						if hasElementChildren {
							w.WriteString("\n")
						}
					}
				} else if child.Type == xmlquery.CharDataNode {
					w.WriteString("<![CDATA[")
					w.WriteString(child.Data)
					w.WriteString("]]>")
				}
			}

			if hasElementChildren {
				writeIndent(w, depth, indent)
			}
			w.WriteString("</")
			if n.Prefix != "" {
				w.WriteString(n.Prefix)
				w.WriteString(":")
			}
			w.WriteString(n.Data)
			w.WriteString(">\n")
		}

	case xmlquery.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			w.WriteString(encoding.EscapeXMLText(text))
		}

	case xmlquery.CommentNode:
		writeIndent(w, depth, indent)
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->\n")
	}

	return nil
}

func writeIndent(w *bytes.Buffer, depth int, indent string) {
	for i := 0; i < depth; i++ {
		w.WriteString(indent)
	}
}

// Root returns the root element of the document.
func (d *Document) Root() *Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return &Node{node: child}
		}
	}
	return nil
}

// XPath executes an XPath query and returns matching nodes.
func (d *Document) XPath(expr string) ([]*Node, error) {
	_, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	nodes, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}

	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{node: n}
	}
	return result, nil
}

// XPathFirst executes an XPath query and returns the first matching node.
func (d *Document) XPathFirst(expr string) (*Node, error) {
	_, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	node, err := xmlquery.Query(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("xpath query failed: %w", err)
	}
	if node == nil {
		return nil, nil
	}
	return &Node{node: node}, nil
}

// Serialize converts the document back to XML bytes.
func (d *Document) Serialize() []byte {
	if d.root == nil {
		return nil
	}
	return []byte(d.root.OutputXML(true))
}

// NewElement creates a detached element node. A "prefix:local" name is
// split into the node's prefix and local name.
func NewElement(name string) *Node {
	prefix, local := splitName(name)
	return &Node{node: &xmlquery.Node{
		Type:   xmlquery.ElementNode,
		Data:   local,
		Prefix: prefix,
	}}
}

// NewText creates a detached text node.
func NewText(text string) *Node {
	return &Node{node: &xmlquery.Node{
		Type: xmlquery.TextNode,
		Data: text,
	}}
}

func splitName(name string) (prefix, local string) {
	if i := strings.Index(name, ":"); i > 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// Same reports whether two handles refer to the same underlying node.
// Handles are created per navigation call, so pointer comparison on the
// wrappers themselves says nothing.
func (n *Node) Same(other *Node) bool {
	return n != nil && other != nil && n.node == other.node
}

// Name returns the element's local name without its prefix.
func (n *Node) Name() string {
	if n.node == nil {
		return ""
	}
	return n.node.Data
}

// Text returns the text content of the node.
func (n *Node) Text() string {
	if n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// InnerText returns all text content of the node and its descendants.
func (n *Node) InnerText() string {
	if n.node == nil {
		return ""
	}
	return n.node.InnerText()
}

// InnerXML returns the inner XML of the node.
func (n *Node) InnerXML() string {
	if n.node == nil {
		return ""
	}
	var buf bytes.Buffer
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		buf.WriteString(child.OutputXML(true))
	}
	return buf.String()
}

// Parent returns the parent element, or nil at the document root.
func (n *Node) Parent() *Node {
	if n.node == nil || n.node.Parent == nil {
		return nil
	}
	return &Node{node: n.node.Parent}
}

// Children returns the child element nodes.
func (n *Node) Children() []*Node {
	if n.node == nil {
		return nil
	}

	var children []*Node
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			children = append(children, &Node{node: child})
		}
	}
	return children
}

// Child returns the first child element with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	if n.node == nil {
		return nil
	}
	for child := n.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == name {
			return &Node{node: child}
		}
	}
	return nil
}

// Attributes returns all attributes of the node.
func (n *Node) Attributes() map[string]string {
	if n.node == nil {
		return nil
	}

	attrs := make(map[string]string)
	for _, attr := range n.node.Attr {
		attrs[attr.Name.Local] = attr.Value
	}
	return attrs
}

// Attr returns the value of a specific attribute. Prefixed names such as
// "w:val" match on both prefix and local name.
func (n *Node) Attr(name string) string {
	if n.node == nil {
		return ""
	}
	return n.node.SelectAttr(name)
}

// SetAttr sets an attribute, replacing any existing value.
func (n *Node) SetAttr(name, value string) {
	if n.node == nil {
		return
	}
	space, local := splitName(name)
	for i, a := range n.node.Attr {
		if a.Name.Local == local && a.Name.Space == space {
			n.node.Attr[i].Value = value
			return
		}
	}
	n.node.Attr = append(n.node.Attr, xmlquery.Attr{
		Name:  xml.Name{Space: space, Local: local},
		Value: value,
	})
}

// RemoveAttr deletes an attribute if present.
func (n *Node) RemoveAttr(name string) {
	if n.node == nil {
		return
	}
	space, local := splitName(name)
	kept := n.node.Attr[:0]
	for _, a := range n.node.Attr {
		if a.Name.Local != local || a.Name.Space != space {
			kept = append(kept, a)
		}
	}
	n.node.Attr = kept
}

// SetText replaces the node's children with a single text node.
func (n *Node) SetText(text string) {
	if n.node == nil {
		return
	}
	for child := n.node.FirstChild; child != nil; {
		next := child.NextSibling
		detach(child)
		child = next
	}
	attach(n.node, NewText(text).node)
}

// AppendChild appends child as the node's last child.
func (n *Node) AppendChild(child *Node) {
	if n.node == nil || child == nil || child.node == nil {
		return
	}
	attach(n.node, child.node)
}

// InsertBefore inserts newNode as the sibling immediately before n.
func (n *Node) InsertBefore(newNode *Node) {
	if n.node == nil || newNode == nil || newNode.node == nil {
		return
	}
	ref, nn := n.node, newNode.node
	nn.Parent = ref.Parent
	nn.PrevSibling = ref.PrevSibling
	nn.NextSibling = ref
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = nn
	} else if ref.Parent != nil {
		ref.Parent.FirstChild = nn
	}
	ref.PrevSibling = nn
}

// InsertAfter inserts newNode as the sibling immediately after n.
func (n *Node) InsertAfter(newNode *Node) {
	if n.node == nil || newNode == nil || newNode.node == nil {
		return
	}
	ref, nn := n.node, newNode.node
	nn.Parent = ref.Parent
	nn.NextSibling = ref.NextSibling
	nn.PrevSibling = ref
	if ref.NextSibling != nil {
		ref.NextSibling.PrevSibling = nn
	} else if ref.Parent != nil {
		ref.Parent.LastChild = nn
	}
	ref.NextSibling = nn
}

// Remove detaches the node from its parent.
func (n *Node) Remove() {
	if n.node == nil {
		return
	}
	detach(n.node)
}

// Clone returns a deep copy of the node, detached from any tree.
func (n *Node) Clone() *Node {
	if n.node == nil {
		return nil
	}
	return &Node{node: cloneNode(n.node)}
}

func cloneNode(src *xmlquery.Node) *xmlquery.Node {
	dst := &xmlquery.Node{
		Type:         src.Type,
		Data:         src.Data,
		Prefix:       src.Prefix,
		NamespaceURI: src.NamespaceURI,
		Attr:         append([]xmlquery.Attr(nil), src.Attr...),
	}
	for child := src.FirstChild; child != nil; child = child.NextSibling {
		attach(dst, cloneNode(child))
	}
	return dst
}

func attach(parent, n *xmlquery.Node) {
	n.Parent = parent
	n.PrevSibling = parent.LastChild
	n.NextSibling = nil
	if parent.LastChild != nil {
		parent.LastChild.NextSibling = n
	} else {
		parent.FirstChild = n
	}
	parent.LastChild = n
}

func detach(n *xmlquery.Node) {
	if n.Parent != nil {
		if n.Parent.FirstChild == n {
			n.Parent.FirstChild = n.NextSibling
		}
		if n.Parent.LastChild == n {
			n.Parent.LastChild = n.PrevSibling
		}
	}
	if n.PrevSibling != nil {
		n.PrevSibling.NextSibling = n.NextSibling
	}
	if n.NextSibling != nil {
		n.NextSibling.PrevSibling = n.PrevSibling
	}
	n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
}
