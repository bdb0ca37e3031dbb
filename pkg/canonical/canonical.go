// Package canonical produces stable identities for GraphQL operations.
//
// A document cache keys entries by the identity of a whole query plus its
// argument set, so two call sites issuing the same logical query must land on
// the same key. This package provides the three pieces that make that true:
//
//   - Normalize: rewrites a parsed query into a canonical form by injecting
//     __typename into every nested selection set, so a query is keyed the
//     same whether or not the caller asked for the discriminator explicitly.
//   - Hasher: digests the canonical rendering of a document (BLAKE2b-256)
//     and memoizes the result per document instance.
//   - VariablesKey: serializes a variables map into an order-independent
//     string key.
//
// All functions are pure; Normalize never mutates its input document.
package canonical

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// typenameField is the implicit type discriminator every object selection
// carries after normalization.
const typenameField = "__typename"

// ParseQuery parses a raw GraphQL query string into a query document.
func ParseQuery(query string) (*ast.QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// Normalize returns a copy of doc with __typename appended to every nested
// selection set that does not already request it. Operation roots are left
// untouched: the root of a query has no parent object whose type could be
// discriminated. Fragment definitions select on an object type, so their
// root selection set does get the discriminator.
//
// The input document is never modified; selections are copied as they are
// rewritten.
func Normalize(doc *ast.QueryDocument) *ast.QueryDocument {
	if doc == nil {
		return nil
	}

	out := &ast.QueryDocument{Position: doc.Position}

	for _, op := range doc.Operations {
		cp := *op
		cp.SelectionSet = normalizeSet(op.SelectionSet, false)
		out.Operations = append(out.Operations, &cp)
	}

	for _, frag := range doc.Fragments {
		cp := *frag
		cp.SelectionSet = normalizeSet(frag.SelectionSet, true)
		out.Fragments = append(out.Fragments, &cp)
	}

	return out
}

// normalizeSet copies a selection set, recursing into every selection, and
// appends a __typename field when addTypename is set and the set does not
// already select it without an alias.
func normalizeSet(set ast.SelectionSet, addTypename bool) ast.SelectionSet {
	if set == nil {
		return nil
	}

	hasTypename := false
	out := make(ast.SelectionSet, 0, len(set)+1)

	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			cp := *s
			cp.SelectionSet = normalizeSet(s.SelectionSet, true)
			if s.Name == typenameField && (s.Alias == "" || s.Alias == s.Name) {
				hasTypename = true
			}
			out = append(out, &cp)
		case *ast.InlineFragment:
			cp := *s
			cp.SelectionSet = normalizeSet(s.SelectionSet, true)
			out = append(out, &cp)
		case *ast.FragmentSpread:
			cp := *s
			out = append(out, &cp)
		default:
			out = append(out, sel)
		}
	}

	if addTypename && !hasTypename {
		// Alias mirrors Name the same way the parser fills it in, so the
		// formatter prints a bare field.
		out = append(out, &ast.Field{Alias: typenameField, Name: typenameField})
	}

	return out
}

// Print renders a query document as GraphQL source text. Rendering is
// deterministic for a given document structure, which makes it a suitable
// digest input: structurally equal documents print identically.
func Print(doc *ast.QueryDocument) string {
	var sb strings.Builder

	f := formatter.NewFormatter(&sb)
	f.FormatQueryDocument(doc)

	return sb.String()
}
