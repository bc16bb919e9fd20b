package replytree

import (
	"fmt"
	"strings"
)

/*
A sort path is the dot-separated chain of zero-padded ids from a top-level
reply down to the reply itself, e.g. "0000000001.0000000004". Sorting replies
by sort path puts every reply directly after its parent and siblings in id
order, which is creation order.
*/

const padWidth = 10

const separator = "."

func PadID(id int) string {
	return fmt.Sprintf("%0*d", padWidth, id)
}

// The sort path for reply id under a parent with parentPath. An empty
// parentPath means id is a top-level reply.
func ChildPath(parentPath string, id int) string {
	if parentPath == "" {
		return PadID(id)
	}
	return parentPath + separator + PadID(id)
}

// Whether path lies strictly below ancestorPath.
func IsDescendant(path, ancestorPath string) bool {
	return strings.HasPrefix(path, ancestorPath+separator)
}

/*
Rewrites the path of a descendant of a removed reply. The removed reply's
segment is dropped so the descendant hangs off newParentPath instead, keeping
everything below the removed reply intact.
*/
func RebasePath(path, removedPath, newParentPath string) string {
	rest := strings.TrimPrefix(path, removedPath+separator)
	if newParentPath == "" {
		return rest
	}
	return newParentPath + separator + rest
}
