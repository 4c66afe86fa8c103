package runner

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// treeScanTimeout bounds how long we spend walking the process table.
const treeScanTimeout = 2 * time.Second

// snapshotDescendants returns every process below pid, parents before
// children. Processes that left the group (setsid, double fork) are still
// found because the walk follows parent links, not group ids.
func snapshotDescendants(pid int) []*process.Process {
	ctx, cancel := context.WithTimeout(context.Background(), treeScanTimeout)
	defer cancel()

	seen := map[int32]bool{int32(pid): true}
	var out []*process.Process

	queue := []int32{int32(pid)}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		p, err := process.NewProcessWithContext(ctx, cur)
		if err != nil {
			continue
		}
		children, err := p.ChildrenWithContext(ctx)
		if err != nil {
			continue
		}
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			out = append(out, c)
			queue = append(queue, c.Pid)
		}
	}
	return out
}

// killSurvivors kills processes from a snapshot that are still running and
// returns how many it killed. IsRunning compares creation times, so a
// recycled pid is left alone.
func killSurvivors(procs []*process.Process) int {
	ctx, cancel := context.WithTimeout(context.Background(), treeScanTimeout)
	defer cancel()

	killed := 0
	for _, p := range procs {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			continue
		}
		if err := p.KillWithContext(ctx); err == nil {
			killed++
		}
	}
	return killed
}
