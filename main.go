// SPDX-License-Identifier: MIT
package main

import "github.com/skaphos/rebasekeeper/cmd/rebasekeeper"

// execute is overridable in tests.
var execute = rebasekeeper.Execute

func main() {
	execute()
}
