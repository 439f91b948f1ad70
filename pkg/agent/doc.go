// Package agent defines the agents a human can impersonate and resolves
// their tools.
//
// Invariants:
// - Agent names are unique within a Catalog.
// - Provider.Tools returns the policy-filtered tools of an agent with unique names.
// - A Watcher swaps the whole catalog on config change; sessions keep the
//   *Agent they selected.
//
// Usage:
//
//	catalog, _ := agent.NewCatalog(agent.CalculatorAgent())
//	calc, _ := catalog.Get("calculator_agent")
//	tools, _ := agent.NewToolsetProvider().Tools(ctx, calc)
//	_ = tools
package agent
