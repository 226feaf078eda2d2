package controller

// applyGuard suppresses outbound applies while the controller rewrites its
// own state. Suppression nests; apply is allowed again only when every
// token has been released.
type applyGuard struct {
	depth int
}

// suppress takes a token and returns its release function. Use as
//
//	defer g.suppress()()
func (g *applyGuard) suppress() func() {
	g.depth++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.depth--
	}
}

func (g *applyGuard) enabled() bool { return g.depth == 0 }
