package output

import (
	"sort"
	"strings"
)

const (
	treeEdge  = "├── "
	treeLast  = "└── "
	treeVert  = "│   "
	treeSpace = "    "

	// noteColumn is where entry notes start.
	noteColumn = 56
)

// TreeNode is one directory or file of a rendered tree.
type TreeNode struct {
	Name     string
	Note     string
	IsDir    bool
	Children []*TreeNode
}

// RenderTree renders slash-separated entry paths under root, each followed by
// its note (for example a descriptor's status). Directories sort first.
func RenderTree(root string, entries map[string]string) string {
	if len(entries) == 0 {
		return ""
	}

	top := &TreeNode{Name: root, IsDir: true}
	for path, note := range entries {
		current := top
		parts := strings.Split(path, "/")
		for i, part := range parts {
			child := current.child(part)
			if child == nil {
				child = &TreeNode{Name: part, IsDir: i < len(parts)-1}
				current.Children = append(current.Children, child)
			}
			if i == len(parts)-1 {
				child.Note = note
			}
			current = child
		}
	}
	sortTree(top)

	var sb strings.Builder
	sb.WriteString(StyleSummary.Render(top.Name + "/"))
	sb.WriteString("\n")
	renderChildren(&sb, top, "")
	return sb.String()
}

func (n *TreeNode) child(name string) *TreeNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func sortTree(node *TreeNode) {
	sort.Slice(node.Children, func(i, j int) bool {
		if node.Children[i].IsDir != node.Children[j].IsDir {
			return node.Children[i].IsDir
		}
		return node.Children[i].Name < node.Children[j].Name
	})
	for _, c := range node.Children {
		sortTree(c)
	}
}

func renderChildren(sb *strings.Builder, node *TreeNode, prefix string) {
	for i, c := range node.Children {
		last := i == len(node.Children)-1

		connector, next := treeEdge, prefix+treeVert
		if last {
			connector, next = treeLast, prefix+treeSpace
		}

		name := c.Name
		if c.IsDir {
			name += "/"
		}
		line := prefix + connector + name
		if c.Note != "" {
			// Width in runes: the connectors are multi-byte.
			padding := noteColumn - len([]rune(line))
			if padding < 2 {
				padding = 2
			}
			line += strings.Repeat(" ", padding) + StatusStyle(c.Note).Render(c.Note)
		}
		sb.WriteString(line)
		sb.WriteString("\n")

		renderChildren(sb, c, next)
	}
}
