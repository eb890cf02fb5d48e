package output

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/depscope/depscope/pkg/model"
)

// PrintSyncReport prints a formatted summary of one sync run with colors
func PrintSyncReport(workspace string, report *model.SyncReport) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Println("depscope - Sync Report")
	bold.Println("======================")
	fmt.Printf("Workspace: %s\n", workspace)
	fmt.Printf("Run: %s (%s)\n", report.RunID, report.Finished.Sub(report.Started).Round(1e6))

	if !report.Changed() && report.FilesFailed == 0 {
		green.Println("No changes")
		return
	}

	fmt.Printf("Added: %d  Modified: %d  Removed: %d\n",
		report.FilesAdded, report.FilesModified, report.FilesRemoved)
	if len(report.CreatedSymbols) > 0 || len(report.TombstonedSymbols) > 0 {
		fmt.Printf("Symbols: +%d -%d\n", len(report.CreatedSymbols), len(report.TombstonedSymbols))
	}

	if report.FilesFailed > 0 {
		yellow.Printf("Failed: %d file(s)\n", report.FilesFailed)
		fmt.Println()
		red.Println("FAILURES:")
		for _, fe := range report.Errors {
			yellow.Printf("  %s\n", fe.Path)
			fmt.Printf("    %s: %s\n", fe.Stage, fe.Err)
		}
		return
	}
	green.Println("✓ Graph is up to date")
}

// PrintCycles prints detected dependency cycles, one walk per cycle.
func PrintCycles(found []model.Cycle, describe func(id string) string) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	bold.Println("depscope - Dependency Cycles")
	bold.Println("============================")

	if len(found) == 0 {
		green.Println("✓ No cycles detected")
		return
	}

	red.Printf("%d cycle(s) detected\n\n", len(found))
	for i, c := range found {
		bold.Printf("Cycle %d (%d symbols):\n", i+1, len(c.Members))
		for j, id := range c.Walk {
			prefix := "  "
			if j > 0 {
				prefix = "    -> "
			}
			cyan.Printf("%s%s\n", prefix, describe(id))
		}
		fmt.Println()
	}
}

// PrintImpact prints the transitive dependents of a symbol, nearest first.
func PrintImpact(target string, entries []model.ImpactEntry) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("depscope - Impact Analysis")
	bold.Println("==========================")
	fmt.Printf("Target: %s\n\n", target)

	if len(entries) == 0 {
		green.Println("✓ No dependents found")
		return
	}

	fmt.Printf("%d dependent(s):\n", len(entries))
	for _, e := range entries {
		marker := green
		if e.Certainty == model.CertaintyPossible {
			marker = yellow
		}
		cyan.Printf("  [depth %d] ", e.Depth)
		fmt.Printf("%s#%s/%d ", e.Symbol.Path, e.Symbol.Name, e.Symbol.Arity)
		marker.Printf("(%s)\n", e.Certainty)
	}
}

// PrintSymbols prints the symbols of one file.
func PrintSymbols(path string, symbols []model.Symbol) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)

	bold.Printf("%s\n", path)
	for _, sym := range symbols {
		leaf := ""
		if sym.Leaf {
			leaf = " (leaf)"
		}
		cyan.Printf("  %s/%d", sym.Name, sym.Arity)
		fmt.Printf(" %s lines %d-%d%s\n", sym.Kind, sym.StartLine, sym.EndLine, leaf)
	}
}
