// Package preflight checks that rowsearch can run with a given
// configuration: the index directory is writable with room to grow, file
// descriptor limits suffice, the datasource answers, and the existing index
// and checkpoint are readable.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	checker.PrintResults(results)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
