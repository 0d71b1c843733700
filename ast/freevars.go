package ast

// FreeVars collects the root identifier names an expression reads,
// used by the graph builder to wire use->def edges (§4.3). It does not
// descend into nested scatter/conditional bodies since those are
// walked independently when their own subgraph is built.
func FreeVars(e Expr) []string {
	var names []string
	var walk func(Expr)
	walk = func(e Expr) {
		if e == nil {
			return
		}
		switch n := e.(type) {
		case *Ident:
			names = append(names, n.Name)
		case *MemberAccess:
			walk(n.Target)
		case *IndexAccess:
			walk(n.Target)
			walk(n.Index)
		case *BinaryOp:
			walk(n.Left)
			walk(n.Right)
		case *UnaryOp:
			walk(n.Operand)
		case *ArrayLiteral:
			for _, el := range n.Elements {
				walk(el)
			}
		case *MapLiteral:
			for _, k := range n.Keys {
				walk(k)
			}
			for _, v := range n.Values {
				walk(v)
			}
		case *PairLiteral:
			walk(n.Left)
			walk(n.Right)
		case *ObjectLiteral:
			for _, v := range n.Values {
				walk(v)
			}
		case *CallExpr:
			for _, a := range n.Args {
				walk(a)
			}
		case *Ternary:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		case *StringLiteral:
			for _, p := range n.Parts {
				walk(p.Expr)
				walk(p.Default)
			}
		}
	}
	walk(e)
	return names
}

// FreeVarsCall collects the names referenced by a call's argument expressions.
func FreeVarsCall(c *Call) []string {
	var names []string
	for _, arg := range c.Args {
		names = append(names, FreeVars(arg)...)
	}
	return names
}
