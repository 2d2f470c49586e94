package convert

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splatvault/pkg/source"
)

type scriptedJob struct {
	statuses    []Status
	polled      int
	cancelCalls int32
}

func (s *scriptedJob) Submit(ctx context.Context, files []source.File) (JobID, error) {
	return "j1", nil
}

func (s *scriptedJob) Poll(ctx context.Context, id JobID) (Status, error) {
	st := s.statuses[s.polled]
	if s.polled < len(s.statuses)-1 {
		s.polled++
	}
	return st, nil
}

func (s *scriptedJob) Cancel(ctx context.Context, id JobID) error {
	atomic.AddInt32(&s.cancelCalls, 1)
	return nil
}

func (s *scriptedJob) Fetch(ctx context.Context, id JobID) ([]source.File, error) {
	return nil, nil
}

func TestPhase_Terminal(t *testing.T) {
	assert.True(t, PhaseDone.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.True(t, PhaseCancelled.Terminal())
	assert.False(t, PhaseQueued.Terminal())
	assert.False(t, PhaseProcessing.Terminal())
}

func TestWatch_PollsUntilTerminal(t *testing.T) {
	job := &scriptedJob{statuses: []Status{
		{Phase: PhaseQueued},
		{Phase: PhaseWarmingUp},
		{Phase: PhaseProcessing, Done: 3, Total: 10},
		{Phase: PhaseProcessing, Done: 3, Total: 10}, // 没变化，不重复回调
		{Phase: PhaseDone, Done: 10, Total: 10},
	}}

	var seen []Status
	st, err := Watch(context.Background(), job, "j1", time.Millisecond, func(s Status) {
		seen = append(seen, s)
	})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, st.Phase)

	// 重复的 processing 状态只回调一次
	require.Len(t, seen, 4)
	assert.Equal(t, PhaseQueued, seen[0].Phase)
	assert.Equal(t, PhaseDone, seen[3].Phase)
}

func TestWatch_CancelOnContextDone(t *testing.T) {
	// 永远不到终态的任务
	job := &scriptedJob{statuses: []Status{{Phase: PhaseProcessing, Done: 1, Total: 10}}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Watch(ctx, job, "j1", 5*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 上层取消后对远端发起过尽力而为的 Cancel
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.cancelCalls))
}
