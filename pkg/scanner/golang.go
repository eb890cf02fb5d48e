package scanner

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/depscope/depscope/pkg/model"
)

// goBuiltins are callable names that belong to the language, not to any
// source tree. Calls to them carry no dependency information.
var goBuiltins = map[string]bool{
	"append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true,
	"len": true, "make": true, "max": true, "min": true, "new": true,
	"panic": true, "print": true, "println": true, "real": true,
	"recover": true,
}

// GoScanner extracts symbols and references from Go sources via tree-sitter.
type GoScanner struct {
	lang *sitter.Language
}

func NewGoScanner() *GoScanner {
	return &GoScanner{lang: golang.GetLanguage()}
}

func (s *GoScanner) Language() string { return "go" }

func (s *GoScanner) Extensions() []string { return []string{".go"} }

func (s *GoScanner) Scan(path string, content []byte) (*FileScan, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(s.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax errors in %s", path)
	}

	scan := &FileScan{Path: path, Language: s.Language()}

	pkgName := s.packageName(root, content)
	module := SymbolDraft{
		Name:      pkgName,
		Kind:      model.SymbolModule,
		Signature: "package " + pkgName,
		StartLine: 1,
		EndLine:   int(root.EndPoint().Row) + 1,
	}
	scan.Symbols = append(scan.Symbols, module)
	s.collectImports(root, content, module.Name, scan)

	q, err := sitter.NewQuery([]byte(`
		(function_declaration) @func
		(method_declaration) @func
	`), s.lang)
	if err != nil {
		return nil, fmt.Errorf("declaration query: %w", err)
	}
	defer q.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		for _, c := range m.Captures {
			s.extractFunction(c.Node, content, scan)
		}
	}

	return scan, nil
}

func (s *GoScanner) packageName(root *sitter.Node, content []byte) string {
	q, err := sitter.NewQuery([]byte(`(package_clause (package_identifier) @pkg)`), s.lang)
	if err != nil {
		return "main"
	}
	defer q.Close()
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)
	if m, ok := qc.NextMatch(); ok && len(m.Captures) > 0 {
		return m.Captures[0].Node.Content(content)
	}
	return "main"
}

func (s *GoScanner) collectImports(root *sitter.Node, content []byte, owner string, scan *FileScan) {
	q, err := sitter.NewQuery([]byte(`(import_spec path: (interpreted_string_literal) @path)`), s.lang)
	if err != nil {
		return
	}
	defer q.Close()
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)
	for {
		m, ok := qc.NextMatch()
		if !ok {
			return
		}
		for _, c := range m.Captures {
			importPath := strings.Trim(c.Node.Content(content), `"`)
			scan.Edges = append(scan.Edges, EdgeDraft{
				FromName:  owner,
				TargetRef: importPath,
				Kind:      model.RelationImport,
				Hint:      HintLexical,
				Line:      int(c.Node.StartPoint().Row) + 1,
			})
		}
	}
}

func (s *GoScanner) extractFunction(node *sitter.Node, content []byte, scan *FileScan) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(content)
	arity := goArity(node.ChildByFieldName("parameters"), content)

	scan.Symbols = append(scan.Symbols, SymbolDraft{
		Name:      name,
		Arity:     arity,
		Kind:      model.SymbolFunction,
		Signature: declarationHead(node, content),
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
	})

	body := node.ChildByFieldName("body")
	if body == nil {
		return
	}
	s.walkBody(body, content, name, arity, false, scan)
}

// walkBody finds call expressions below n. conditional is true once the walk
// has entered a branch, loop, or select arm.
func (s *GoScanner) walkBody(n *sitter.Node, content []byte, fromName string, fromArity int, conditional bool, scan *FileScan) {
	switch n.Type() {
	case "if_statement":
		// The condition always evaluates; only the arms are conditional.
		if cond := n.ChildByFieldName("condition"); cond != nil {
			s.walkBody(cond, content, fromName, fromArity, conditional, scan)
		}
		if init := n.ChildByFieldName("initializer"); init != nil {
			s.walkBody(init, content, fromName, fromArity, conditional, scan)
		}
		if cons := n.ChildByFieldName("consequence"); cons != nil {
			s.walkBody(cons, content, fromName, fromArity, true, scan)
		}
		if alt := n.ChildByFieldName("alternative"); alt != nil {
			s.walkBody(alt, content, fromName, fromArity, true, scan)
		}
		return
	case "for_statement", "select_statement":
		// A loop may run zero times; a select arm may never fire.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			s.walkBody(n.NamedChild(i), content, fromName, fromArity, true, scan)
		}
		return
	case "expression_switch_statement", "type_switch_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			inArm := strings.HasSuffix(child.Type(), "_case")
			s.walkBody(child, content, fromName, fromArity, conditional || inArm, scan)
		}
		return
	case "call_expression":
		s.extractCall(n, content, fromName, fromArity, conditional, scan)
		// Nested calls in the operand and arguments still count.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			s.walkBody(n.NamedChild(i), content, fromName, fromArity, conditional, scan)
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.walkBody(n.NamedChild(i), content, fromName, fromArity, conditional, scan)
	}
}

func (s *GoScanner) extractCall(n *sitter.Node, content []byte, fromName string, fromArity int, conditional bool, scan *FileScan) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}

	args := n.ChildByFieldName("arguments")
	argCount := 0
	if args != nil {
		argCount = int(args.NamedChildCount())
	}

	hint := HintLexical
	if conditional {
		hint = HintConditional
	}

	var targetRef string
	switch fn.Type() {
	case "identifier":
		targetRef = fn.Content(content)
		if goBuiltins[targetRef] {
			return
		}
	case "selector_expression":
		targetRef = fn.Content(content)
		if strings.Contains(targetRef, "MethodByName") || goDynamicOperand(fn) {
			hint = HintDynamic
			targetRef = truncateRef(targetRef)
		}
	default:
		// Calling the result of an expression: the target is computed.
		hint = HintDynamic
		targetRef = truncateRef(fn.Content(content))
	}

	scan.Edges = append(scan.Edges, EdgeDraft{
		FromName:  fromName,
		FromArity: fromArity,
		TargetRef: targetRef,
		ArgCount:  argCount,
		Kind:      model.RelationCall,
		Hint:      hint,
		Line:      int(n.StartPoint().Row) + 1,
	})

	// Bare identifiers passed as arguments are higher-order references: if
	// they name an in-tree function the caller composes with it.
	if args != nil {
		composeHint := HintLexical
		if conditional {
			composeHint = HintConditional
		}
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() != "identifier" {
				continue
			}
			name := arg.Content(content)
			if goBuiltins[name] {
				continue
			}
			scan.Edges = append(scan.Edges, EdgeDraft{
				FromName:  fromName,
				FromArity: fromArity,
				TargetRef: name,
				Kind:      model.RelationCompose,
				Hint:      composeHint,
				Line:      int(arg.StartPoint().Row) + 1,
			})
		}
	}
}

// goDynamicOperand reports whether a selector's operand is itself computed,
// which makes the method target unknowable statically.
func goDynamicOperand(selector *sitter.Node) bool {
	operand := selector.ChildByFieldName("operand")
	if operand == nil {
		return false
	}
	switch operand.Type() {
	case "call_expression", "index_expression", "type_assertion_expression":
		return true
	}
	return false
}

// goArity counts declared parameter names; an unnamed parameter counts once.
func goArity(params *sitter.Node, content []byte) int {
	if params == nil {
		return 0
	}
	arity := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		decl := params.NamedChild(i)
		if decl.Type() != "parameter_declaration" && decl.Type() != "variadic_parameter_declaration" {
			continue
		}
		names := 0
		for j := 0; j < int(decl.NamedChildCount()); j++ {
			if decl.NamedChild(j).Type() == "identifier" {
				names++
			}
		}
		if names == 0 {
			names = 1
		}
		arity += names
	}
	return arity
}

// declarationHead returns the declaration text up to the body brace.
func declarationHead(node *sitter.Node, content []byte) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	head := string(content[node.StartByte():end])
	return strings.TrimSpace(strings.Join(strings.Fields(head), " "))
}

// truncateRef caps opaque references so computed dispatch text stays short.
func truncateRef(ref string) string {
	const maxRef = 80
	ref = strings.Join(strings.Fields(ref), " ")
	if len(ref) > maxRef {
		return ref[:maxRef]
	}
	return ref
}
