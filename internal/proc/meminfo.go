package proc

import (
	"github.com/docker/go-units"
	"github.com/prometheus/procfs"
	"github.com/rs/zerolog"
)

// LogMemInfo emits a one-line snapshot of system memory state. Called when
// a child is presumed OOM killed so the surrounding log context shows how
// much pressure the machine was actually under.
func LogMemInfo(log zerolog.Logger) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		log.Debug().Err(err).Msg("cannot read system memory info")
		return
	}
	mi, err := fs.Meminfo()
	if err != nil {
		log.Debug().Err(err).Msg("cannot read system memory info")
		return
	}

	evt := log.Debug()
	add := func(key string, kb *uint64) {
		if kb != nil {
			evt = evt.Str(key, units.BytesSize(float64(*kb*1024)))
		}
	}
	add("total", mi.MemTotal)
	add("free", mi.MemFree)
	add("available", mi.MemAvailable)
	add("buffers", mi.Buffers)
	add("cached", mi.Cached)
	add("swap_total", mi.SwapTotal)
	add("swap_free", mi.SwapFree)
	evt.Msg("system memory")
}
