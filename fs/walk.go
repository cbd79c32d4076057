package fs

type WalkFunc func(node *WalkNode) error

type WalkNode struct {
	Path Path
	Info Metadata
	Err  error // from Stat; Info is zero if set.

	children []*WalkNode
}

/*
	Walks a tree.

	This is much like the standard library's `path/filepath.Walk`, except
	it supports both pre- and post-order traversals, and walks a git tree
	as seen through a View.

	The first node visited is base itself.  Symlinks are not followed, and
	submodules are leaves.  Siblings are visited in git's tree order.

	If a visit func returns an error the walk stops and returns it.
	A node whose Stat failed is still visited (with Err set) so the caller
	decides whether that's fatal.
*/
func Walk(v View, base Path, preVisit WalkFunc, postVisit WalkFunc) error {
	return walkNode(v, newWalkNode(v, base), preVisit, postVisit)
}

func walkNode(v View, node *WalkNode, preVisit WalkFunc, postVisit WalkFunc) error {
	if preVisit != nil {
		if err := preVisit(node); err != nil {
			return err
		}
	}
	if err := node.prepareChildren(v); err != nil {
		return err
	}
	for _, child := range node.children {
		if err := walkNode(v, child, preVisit, postVisit); err != nil {
			return err
		}
	}
	node.forgetChildren()
	if postVisit != nil {
		return postVisit(node)
	}
	return nil
}

func newWalkNode(v View, p Path) *WalkNode {
	node := &WalkNode{Path: p}
	node.Info, node.Err = v.Stat(p, false)
	return node
}

/*
	Expand the next subtree.  Done only once the pre-visit func accepted
	the node, so we don't read every dir up front.
*/
func (t *WalkNode) prepareChildren(v View) error {
	if t.Err != nil || !t.Info.IsDir() {
		return nil
	}
	entries, err := ReadDir(v, t.Path, nil)
	if err != nil {
		return err
	}
	t.children = make([]*WalkNode, len(entries))
	for i, p := range entries {
		t.children[i] = newWalkNode(v, p)
	}
	return nil
}

/*
	Drop the children after the post-order visit, so memory doesn't grow
	with the size of the whole tree.
*/
func (t *WalkNode) forgetChildren() {
	t.children = nil
}
