// Package definition loads workflow graphs from declarative files.
//
// A definition names the entry node, an optional terminal marker and
// iteration cap, the nodes taking part and one route per node. Nodes are
// either looked up in a registry by id or built from a kind:
//
//	set       writes fixed values, with ${var} placeholders expanded
//	template  renders a template into one output key
//	llm       renders a prompt, calls an llm.Client, stores the reply
//
// Routes take one of three forms:
//
//	next      static edge to a node or the terminal
//	switch    dispatch on a state key through cases
//	branches  ordered when-expressions; a branch without when always matches
//
// YAML:
//
//	name: support
//	entry: classify
//	max_iterations: 10
//	nodes:
//	  - id: classify
//	  - id: reply
//	    kind: template
//	    template: "Routed to ${team}"
//	    output: response
//	routes:
//	  - from: classify
//	    branches:
//	      - when: priority >= 3
//	        to: escalate
//	      - to: reply
//	  - from: reply
//	    next: END
//
// The same graph in HCL:
//
//	name  = "support"
//	entry = "classify"
//
//	node "classify" {}
//	node "reply" {
//	  kind     = "template"
//	  template = "Routed to $${team}"
//	  output   = "response"
//	}
//
//	route "classify" {
//	  branch {
//	    when = "priority >= 3"
//	    to   = "escalate"
//	  }
//	  branch { to = "reply" }
//	}
//	route "reply" { next = "END" }
//
// HCL treats ${...} as interpolation, so template placeholders are written
// $${var} there.
package definition
