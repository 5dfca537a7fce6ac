package memtier

import "github.com/cloudfoundry/gosigar"

// SystemPressure reports host-wide memory pressure, grounded on the
// teacher's getsysmem() helper (llrb/config.go), which reads the same
// sigar.Mem snapshot to size its arenas against available RAM. Pool
// uses it only for the diagnostic exposed below; it never throttles
// allocation on its own.
type SystemPressure struct {
	TotalBytes uint64
	UsedBytes  uint64
	FreeBytes  uint64
}

// SystemPressure samples host memory via gosigar, for callers that
// want to decide whether to keep growing the pool before the OS
// starts reclaiming pages out from under it.
func (p *Pool) SystemPressure() (SystemPressure, error) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return SystemPressure{}, err
	}
	return SystemPressure{TotalBytes: mem.Total, UsedBytes: mem.Used, FreeBytes: mem.Free}, nil
}
