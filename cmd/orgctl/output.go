package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTree writes one line per node, children indented under their parent.
func printTree(w io.Writer, forest []orgtree.TreeNode) error {
	var walk func(nodes []orgtree.TreeNode, depth int) error
	walk = func(nodes []orgtree.TreeNode, depth int) error {
		for _, n := range nodes {
			line := fmt.Sprintf("%s%s [%d] (%s)", strings.Repeat("  ", depth), n.Name, n.ID, n.OrgType)
			if n.Code != nil && *n.Code != "" {
				line += " " + *n.Code
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(forest, 0)
}

func printStats(w io.Writer, s orgtree.Stats) error {
	if _, err := fmt.Fprintf(w, "total=%d roots=%d max_depth=%d\n", s.Total, s.Roots, s.MaxDepth); err != nil {
		return err
	}
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if _, err := fmt.Fprintf(w, "  %s: %d\n", t, s.ByType[t]); err != nil {
			return err
		}
	}
	return nil
}
