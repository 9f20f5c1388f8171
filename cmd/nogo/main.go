// Command nogo reports raw go statements outside the packages that own
// docgraph's background workers. Everything else runs synchronously or fans
// out through errgroup.
package main

import (
	"go/ast"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/singlechecker"
)

// workerPackages may start goroutines: the docstore indexing queues and the
// config file watcher.
var workerPackages = []string{"core/docstore", "core/config"}

var Analyzer = &analysis.Analyzer{
	Name: "nogo",
	Doc:  "forbids raw go statements outside of docgraph's worker packages",
	Run:  run,
}

func main() {
	singlechecker.Main(Analyzer)
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, allowed := range workerPackages {
		if strings.HasSuffix(pass.Pkg.Path(), allowed) {
			return nil, nil
		}
	}

	for _, file := range pass.Files {
		if strings.HasSuffix(pass.Fset.Position(file.Package).Filename, "_test.go") {
			continue
		}
		ast.Inspect(file, func(n ast.Node) bool {
			if goStmt, ok := n.(*ast.GoStmt); ok {
				pass.Reportf(goStmt.Pos(),
					"raw 'go' statement forbidden - use errgroup, or move the worker into core/docstore")
			}
			return true
		})
	}
	return nil, nil
}
