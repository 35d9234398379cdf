package merge

import (
	"github.com/entropycollective/batchsum/pkg/types"
)

func completedTask(index int, title, summary string) *types.SegmentTask {
	return &types.SegmentTask{
		SegmentIndex:  index,
		SourceSegment: types.Segment{Index: index, Title: title, Content: summary},
		Status:        types.TaskCompleted,
		Summary:       summary,
	}
}

func failedTask(index int) *types.SegmentTask {
	return &types.SegmentTask{
		SegmentIndex: index,
		Status:       types.TaskFailed,
	}
}
