package main

import (
	"github.com/GoSim-25-26J-441/optimization-driver/internal/expr"
)

// callbacks resolves the func ids that run files name in objectives and
// constraints. Builds of optd that ship model-specific objectives register
// them here from an init function; the stock binary registers none, so its
// run files use expr formulas.
var callbacks = expr.NewRegistry()
