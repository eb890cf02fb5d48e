package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/depscope/depscope/pkg/model"
)

var pythonBuiltins = map[string]bool{
	"abs": true, "bool": true, "dict": true, "enumerate": true,
	"float": true, "int": true, "isinstance": true, "len": true,
	"list": true, "max": true, "min": true, "open": true, "print": true,
	"range": true, "repr": true, "set": true, "sorted": true, "str": true,
	"super": true, "tuple": true, "type": true, "zip": true,
}

// PythonScanner extracts symbols and references from Python sources.
type PythonScanner struct {
	lang *sitter.Language
}

func NewPythonScanner() *PythonScanner {
	return &PythonScanner{lang: python.GetLanguage()}
}

func (s *PythonScanner) Language() string { return "python" }

func (s *PythonScanner) Extensions() []string { return []string{".py"} }

func (s *PythonScanner) Scan(path string, content []byte) (*FileScan, error) {
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

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	scan.Symbols = append(scan.Symbols, SymbolDraft{
		Name:      moduleName,
		Kind:      model.SymbolModule,
		Signature: "module " + moduleName,
		StartLine: 1,
		EndLine:   int(root.EndPoint().Row) + 1,
	})
	s.collectImports(root, content, moduleName, scan)

	// Module-level statements execute on import, so calls outside any def
	// are attributed to the module symbol.
	s.walk(root, content, moduleName, 0, false, scan)

	return scan, nil
}

func (s *PythonScanner) collectImports(root *sitter.Node, content []byte, owner string, scan *FileScan) {
	q, err := sitter.NewQuery([]byte(`
		(import_statement name: (dotted_name) @mod)
		(import_statement name: (aliased_import name: (dotted_name) @mod))
		(import_from_statement module_name: (dotted_name) @mod)
	`), s.lang)
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
			scan.Edges = append(scan.Edges, EdgeDraft{
				FromName:  owner,
				TargetRef: c.Node.Content(content),
				Kind:      model.RelationImport,
				Hint:      HintLexical,
				Line:      int(c.Node.StartPoint().Row) + 1,
			})
		}
	}
}

func (s *PythonScanner) walk(n *sitter.Node, content []byte, owner string, ownerArity int, conditional bool, scan *FileScan) {
	switch n.Type() {
	case "function_definition":
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			return
		}
		name := nameNode.Content(content)
		arity := pythonArity(n.ChildByFieldName("parameters"), content)
		scan.Symbols = append(scan.Symbols, SymbolDraft{
			Name:      name,
			Arity:     arity,
			Kind:      model.SymbolFunction,
			Signature: pythonSignature(n, content),
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
		})
		if body := n.ChildByFieldName("body"); body != nil {
			// References inside a def belong to that def; branch nesting
			// restarts at its body.
			s.walk(body, content, name, arity, false, scan)
		}
		return
	case "if_statement":
		cond := n.ChildByFieldName("condition")
		if cond != nil {
			s.walk(cond, content, owner, ownerArity, conditional, scan)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if cond != nil && child.StartByte() == cond.StartByte() && child.EndByte() == cond.EndByte() {
				continue
			}
			s.walk(child, content, owner, ownerArity, true, scan)
		}
		return
	case "for_statement", "while_statement", "try_statement", "conditional_expression", "match_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			s.walk(n.NamedChild(i), content, owner, ownerArity, true, scan)
		}
		return
	case "call":
		s.extractCall(n, content, owner, ownerArity, conditional, scan)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			s.walk(n.NamedChild(i), content, owner, ownerArity, conditional, scan)
		}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		s.walk(n.NamedChild(i), content, owner, ownerArity, conditional, scan)
	}
}

func (s *PythonScanner) extractCall(n *sitter.Node, content []byte, owner string, ownerArity int, conditional bool, scan *FileScan) {
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
		if pythonBuiltins[targetRef] {
			return
		}
		// getattr-based dispatch selects the callee by string at runtime.
		if targetRef == "getattr" {
			hint = HintDynamic
			targetRef = truncateRef(n.Content(content))
		}
	case "attribute":
		targetRef = fn.Content(content)
		if obj := fn.ChildByFieldName("object"); obj != nil && obj.Type() == "call" {
			hint = HintDynamic
			targetRef = truncateRef(targetRef)
		}
	case "subscript":
		// Dispatch-table lookup: handlers[name]().
		hint = HintDynamic
		targetRef = truncateRef(fn.Content(content))
	default:
		hint = HintDynamic
		targetRef = truncateRef(fn.Content(content))
	}

	scan.Edges = append(scan.Edges, EdgeDraft{
		FromName:  owner,
		FromArity: ownerArity,
		TargetRef: targetRef,
		ArgCount:  argCount,
		Kind:      model.RelationCall,
		Hint:      hint,
		Line:      int(n.StartPoint().Row) + 1,
	})

	if args != nil && hint != HintDynamic {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() != "identifier" {
				continue
			}
			name := arg.Content(content)
			if pythonBuiltins[name] {
				continue
			}
			scan.Edges = append(scan.Edges, EdgeDraft{
				FromName:  owner,
				FromArity: ownerArity,
				TargetRef: name,
				Kind:      model.RelationCompose,
				Hint:      hint,
				Line:      int(arg.StartPoint().Row) + 1,
			})
		}
	}
}

// pythonArity counts parameters, excluding self and cls receivers.
func pythonArity(params *sitter.Node, content []byte) int {
	if params == nil {
		return 0
	}
	arity := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		name := p.Content(content)
		if p.Type() == "identifier" && (name == "self" || name == "cls") {
			continue
		}
		arity++
	}
	return arity
}

func pythonSignature(n *sitter.Node, content []byte) string {
	end := n.EndByte()
	if body := n.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	head := string(content[n.StartByte():end])
	head = strings.TrimRight(strings.TrimSpace(strings.Join(strings.Fields(head), " ")), ":")
	return head
}
