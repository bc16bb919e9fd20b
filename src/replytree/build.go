package replytree

import (
	"context"
	"fmt"
	"sort"

	"git.handmade.network/hmn/discuss/src/models"
	"git.handmade.network/hmn/discuss/src/perf"
	"git.handmade.network/hmn/discuss/src/store"
)

/*
Orders the rows of one topic into a depth-first tree: each reply follows its
parent, and siblings appear in creation order. Rows are checked against each
other first; any disagreement between a row and its parent yields an error
wrapping models.ErrStructuralInconsistency.

Build does not modify rows and returns a new slice.
*/
func Build(topicID int, rows []models.Reply) ([]models.Reply, error) {
	byID := make(map[int]*models.Reply, len(rows))
	byPath := make(map[string]int, len(rows))
	for i := range rows {
		row := &rows[i]
		if row.TopicID != topicID {
			return nil, inconsistent("reply %d belongs to topic %d, not %d", row.ID, row.TopicID, topicID)
		}
		if _, dup := byID[row.ID]; dup {
			return nil, inconsistent("reply %d appears twice", row.ID)
		}
		byID[row.ID] = row
	}

	for i := range rows {
		row := &rows[i]
		if err := checkRow(row, byID); err != nil {
			return nil, err
		}
		if other, dup := byPath[row.SortPath]; dup {
			return nil, inconsistent("replies %d and %d share sort path %s", other, row.ID, row.SortPath)
		}
		byPath[row.SortPath] = row.ID
	}

	result := models.CloneReplies(rows)
	sort.Slice(result, func(i, j int) bool {
		return result[i].SortPath < result[j].SortPath
	})
	return result, nil
}

func checkRow(row *models.Reply, byID map[int]*models.Reply) error {
	if row.ParentID == nil {
		if row.Depth != 0 {
			return inconsistent("top-level reply %d has depth %d", row.ID, row.Depth)
		}
		if want := ChildPath("", row.ID); row.SortPath != want {
			return inconsistent("reply %d has sort path %s, expected %s", row.ID, row.SortPath, want)
		}
		return nil
	}

	parentID := *row.ParentID
	parent, ok := byID[parentID]
	if !ok {
		return inconsistent("reply %d has missing parent %d", row.ID, parentID)
	}
	// Parents are always created first, so this also rules out cycles.
	if parentID >= row.ID {
		return inconsistent("reply %d has parent %d, which is not older", row.ID, parentID)
	}
	if row.Depth != parent.Depth+1 {
		return inconsistent("reply %d has depth %d under parent of depth %d", row.ID, row.Depth, parent.Depth)
	}
	if row.Depth > models.MaxDepth {
		return inconsistent("reply %d has depth %d beyond the limit of %d", row.ID, row.Depth, models.MaxDepth)
	}
	if want := ChildPath(parent.SortPath, row.ID); row.SortPath != want {
		return inconsistent("reply %d has sort path %s, expected %s", row.ID, row.SortPath, want)
	}
	return nil
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrStructuralInconsistency, fmt.Sprintf(format, args...))
}

// Builds trees from the rows currently in a store.
type Builder struct {
	Store store.Reader
}

func (b Builder) BuildTopic(ctx context.Context, topicID int) ([]models.Reply, error) {
	p := perf.ExtractPerf(ctx)

	rows, err := b.Store.ListReplies(ctx, topicID)
	if err != nil {
		return nil, err
	}

	block := p.StartBlock("TREE", "Build reply tree")
	defer block.End()
	return Build(topicID, rows)
}
