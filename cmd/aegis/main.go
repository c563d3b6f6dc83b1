// aegis — governance decision core for autonomous AI agents.
// Deterministic rule evaluation, payload scanning, progressive trust
// isolation, and a hash-chained audit ledger behind one binary.
package main

import "github.com/DHARANI2D/AEGIS/internal/cli"

func main() {
	cli.Execute()
}
