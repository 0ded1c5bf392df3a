package device

import (
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features returns the SIMD extensions the host CPU reports, keyed by name.
// Only the current architecture's flags are included.
func Features() map[string]bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return map[string]bool{
			"AVX":      cpu.X86.HasAVX,
			"AVX2":     cpu.X86.HasAVX2,
			"FMA":      cpu.X86.HasFMA,
			"AVX512F":  cpu.X86.HasAVX512F,
			"AVX512BW": cpu.X86.HasAVX512BW,
			"AVXVNNI":  cpu.X86.HasAVXVNNI,
			"SSE41":    cpu.X86.HasSSE41,
		}
	case "arm64":
		return map[string]bool{
			"ASIMD":   cpu.ARM64.HasASIMD,
			"ASIMDHP": cpu.ARM64.HasASIMDHP,
			"ASIMDDP": cpu.ARM64.HasASIMDDP,
			"FPHP":    cpu.ARM64.HasFPHP,
			"SVE":     cpu.ARM64.HasSVE,
		}
	default:
		return map[string]bool{}
	}
}

// FeatureString lists the supported features in sorted order, e.g.
// "AVX,AVX2,FMA".
func FeatureString() string {
	var on []string
	for name, ok := range Features() {
		if ok {
			on = append(on, name)
		}
	}
	sort.Strings(on)
	return strings.Join(on, ",")
}
