package syncer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/scanner"
	"github.com/depscope/depscope/pkg/store"
)

// candidate is one resolvable symbol in the global name index.
type candidate struct {
	id    string
	path  string
	name  string
	arity int
	kind  model.SymbolKind
}

// nameIndex resolves textual references to in-tree symbols. It spans the
// whole tree for one run: live symbols from the store, minus files being
// replaced or removed, plus every fresh draft of the run, so that
// cross-file references between two files changed in the same run resolve.
type nameIndex struct {
	byName  map[string][]candidate
	modules map[string][]candidate
	byPath  map[string][]candidate
}

func newNameIndex() *nameIndex {
	return &nameIndex{
		byName:  make(map[string][]candidate),
		modules: make(map[string][]candidate),
		byPath:  make(map[string][]candidate),
	}
}

func (ix *nameIndex) add(c candidate) {
	ix.byName[c.name] = append(ix.byName[c.name], c)
	ix.byPath[c.path] = append(ix.byPath[c.path], c)
	if c.kind == model.SymbolModule {
		ix.modules[c.name] = append(ix.modules[c.name], c)
	}
}

func (ix *nameIndex) sort() {
	for _, lists := range []map[string][]candidate{ix.byName, ix.modules, ix.byPath} {
		for _, cs := range lists {
			sort.Slice(cs, func(i, j int) bool {
				if cs[i].path != cs[j].path {
					return cs[i].path < cs[j].path
				}
				return cs[i].name < cs[j].name
			})
		}
	}
}

// resolveCall finds the in-tree target of a call or compose reference.
// Same-file candidates win, then an arity match, then the first candidate
// in path order so resolution is deterministic across runs.
func (ix *nameIndex) resolveCall(fromPath, ref string, argCount int) (candidate, bool) {
	if base, member, ok := strings.Cut(ref, "."); ok {
		// Qualified reference: resolve only through an in-tree module.
		mods := ix.modules[base]
		if len(mods) == 0 {
			return candidate{}, false
		}
		for _, mod := range mods {
			for _, c := range ix.byPath[mod.path] {
				if c.name == member && c.kind == model.SymbolFunction {
					return c, true
				}
			}
		}
		return candidate{}, false
	}

	cs := ix.byName[ref]
	if len(cs) == 0 {
		return candidate{}, false
	}
	for _, c := range cs {
		if c.path == fromPath {
			return c, true
		}
	}
	for _, c := range cs {
		if c.kind == model.SymbolFunction && c.arity == argCount {
			return c, true
		}
	}
	return cs[0], true
}

// resolveImport matches an import path against in-tree module symbols by
// its last segment.
func (ix *nameIndex) resolveImport(ref string) (candidate, bool) {
	base := ref
	if i := strings.LastIndexAny(base, "/."); i >= 0 {
		base = base[i+1:]
	}
	mods := ix.modules[base]
	if len(mods) == 0 {
		return candidate{}, false
	}
	return mods[0], true
}

// resolve builds one FileDelta per successfully scanned unit. It assigns
// symbol ids, diffs against the prior live set, resolves every edge draft
// against the global name index, and classifies edge confidence.
func (b *Builder) resolve(ctx context.Context, units []*unit, removed []string) (map[string]store.FileDelta, error) {
	live, err := b.store.LiveSymbols(ctx)
	if err != nil {
		return nil, err
	}

	replaced := make(map[string]bool, len(units)+len(removed))
	for _, u := range units {
		if u.scan != nil {
			replaced[u.input.Path] = true
		}
	}
	for _, path := range removed {
		replaced[path] = true
	}

	priorByPath := make(map[string]map[string]bool)
	ix := newNameIndex()
	for _, sym := range live {
		if replaced[sym.Path] {
			prior := priorByPath[sym.Path]
			if prior == nil {
				prior = make(map[string]bool)
				priorByPath[sym.Path] = prior
			}
			prior[sym.ID] = true
			continue
		}
		ix.add(candidate{id: sym.ID, path: sym.Path, name: sym.Name, arity: sym.Arity, kind: sym.Kind})
	}
	for _, u := range units {
		if u.scan == nil {
			continue
		}
		for _, d := range u.scan.Symbols {
			ix.add(candidate{
				id:    model.SymbolID(u.input.Path, d.Name, d.Arity),
				path:  u.input.Path,
				name:  d.Name,
				arity: d.Arity,
				kind:  d.Kind,
			})
		}
	}
	ix.sort()

	deltas := make(map[string]store.FileDelta, len(units))
	for _, u := range units {
		if u.scan == nil {
			continue
		}
		delta, created, err := b.buildDelta(u, ix, priorByPath[u.input.Path])
		if err != nil {
			return nil, err
		}
		u.created = created
		deltas[u.input.Path] = delta
	}
	return deltas, nil
}

func (b *Builder) buildDelta(u *unit, ix *nameIndex, prior map[string]bool) (store.FileDelta, []string, error) {
	path := u.input.Path
	delta := store.FileDelta{
		File: model.SourceFile{
			Path:     path,
			Language: u.input.Language,
			Digest:   u.input.Digest,
			SyncedAt: time.Now().UTC(),
		},
	}

	fresh := make(map[string]bool, len(u.scan.Symbols))
	for _, d := range u.scan.Symbols {
		id := model.SymbolID(path, d.Name, d.Arity)
		if fresh[id] {
			// Two declarations with the same identity, e.g. methods of the
			// same name on different receivers. One symbol represents both.
			continue
		}
		fresh[id] = true
		delta.Symbols = append(delta.Symbols, model.Symbol{
			ID:        id,
			Path:      path,
			Name:      d.Name,
			Arity:     d.Arity,
			Kind:      d.Kind,
			Signature: d.Signature,
			StartLine: d.StartLine,
			EndLine:   d.EndLine,
		})
	}

	var created []string
	for id := range fresh {
		if !prior[id] {
			created = append(created, id)
		}
	}
	sort.Strings(created)
	for id := range prior {
		if !fresh[id] {
			delta.Tombstones = append(delta.Tombstones, id)
		}
	}
	sort.Strings(delta.Tombstones)

	merged := make(map[string]int) // dedup key -> index into delta.Edges
	for _, d := range u.scan.Edges {
		sourceID := model.SymbolID(path, d.FromName, d.FromArity)
		if !fresh[sourceID] {
			return store.FileDelta{}, nil, &model.ConsistencyError{
				Detail: fmt.Sprintf("edge source %s/%d not declared in %s", d.FromName, d.FromArity, path),
			}
		}

		var target candidate
		internal := false
		if d.Hint != scanner.HintDynamic {
			switch d.Kind {
			case model.RelationImport:
				target, internal = ix.resolveImport(d.TargetRef)
			default:
				target, internal = ix.resolveCall(path, d.TargetRef, d.ArgCount)
			}
		}
		if d.Kind == model.RelationCompose && !internal {
			// A bare identifier argument that names nothing in-tree is
			// just a variable, not a higher-order reference.
			continue
		}

		edge := model.Edge{
			SourceID:     sourceID,
			TargetRef:    d.TargetRef,
			Kind:         d.Kind,
			Confidence:   scanner.Classify(d.Hint, internal),
			Observations: 1,
		}
		if internal {
			edge.TargetID = target.id
		}

		key := sourceID + "\x00" + d.TargetRef + "\x00" + string(d.Kind)
		if i, ok := merged[key]; ok {
			delta.Edges[i].Observations++
			delta.Edges[i].Confidence = scanner.Promote(delta.Edges[i].Confidence, edge.Confidence)
			continue
		}
		merged[key] = len(delta.Edges)
		delta.Edges = append(delta.Edges, edge)
	}

	return delta, created, nil
}
