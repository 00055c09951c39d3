// Package preflight checks that tailored can run with its configuration:
// the data directory is writable and has room, and the collaborators the
// config names (Ollama, the reranker, pdftotext, vision and speech
// endpoints) are reachable.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	checker.PrintResults(results)
//	if preflight.HasCriticalFailures(results) {
//	    os.Exit(1)
//	}
package preflight
