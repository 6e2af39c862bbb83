// Package abstraction implements the v1<->v2 table-driven setting
// converter (spec §4.5): for a given controller, translate one version's
// Settings into the other's using an ordered list of per-setting rules.
package abstraction

import (
	"strconv"
	"strings"

	"github.com/libcgroup/libcgroup-sub000/mount"
)

// ConvertFn produces one output Setting from an input value string, or
// reports that the input has no counterpart in the target version.
type ConvertFn func(inValue string, inDefault, outDefault string) (outValue string, ok bool)

// Rule is one row of a version's conversion table: translate inName's
// value into outName using fn. inDefault/outDefault feed int_scale and
// disambiguate sentinel values for the memory/cpuset rules.
type Rule struct {
	Fn               ConvertFn
	InName, OutName  string
	InDefault        string
	OutDefault       string
	// ReadSibling names a second disk setting related to InName (e.g.
	// cpu.cfs_period_us alongside cpu.cfs_quota_us). No table entry sets
	// it and Controller does not read it: the cpu.max fusion uses only the
	// settings present on the input controller, and nothing is read from
	// disk.
	ReadSibling string
}

// Table is an ordered list of Rules for one controller's one-direction
// conversion (v1->v2 or v2->v1).
type Table []Rule

// controllerTables indexes conversion tables by controller name and
// source version. Only controllers with a documented mapping appear;
// everything else is Unmappable.
var controllerTables = map[string]map[mount.Version]Table{
	"cpu": {
		mount.V1: {
			{Fn: intScale, InName: "cpu.shares", OutName: "cpu.weight", InDefault: "1024", OutDefault: "100"},
		},
		mount.V2: {
			{Fn: intScaleReverse, InName: "cpu.weight", OutName: "cpu.shares", InDefault: "100", OutDefault: "1024"},
		},
	},
	"cpuset": {
		mount.V1: {
			{Fn: passthrough, InName: "cpuset.cpus", OutName: "cpuset.cpus"},
			{Fn: passthrough, InName: "cpuset.mems", OutName: "cpuset.mems"},
			{Fn: nameOnly, InName: "cpuset.effective_cpus", OutName: "cpuset.cpus.effective"},
			{Fn: nameOnly, InName: "cpuset.effective_mems", OutName: "cpuset.mems.effective"},
			{Fn: cpuExclusiveForward, InName: "cpuset.cpu_exclusive", OutName: "cpuset.cpus.partition"},
		},
		mount.V2: {
			{Fn: passthrough, InName: "cpuset.cpus", OutName: "cpuset.cpus"},
			{Fn: passthrough, InName: "cpuset.mems", OutName: "cpuset.mems"},
			{Fn: nameOnly, InName: "cpuset.cpus.effective", OutName: "cpuset.effective_cpus"},
			{Fn: nameOnly, InName: "cpuset.mems.effective", OutName: "cpuset.effective_mems"},
			{Fn: cpuExclusiveReverse, InName: "cpuset.cpus.partition", OutName: "cpuset.cpu_exclusive"},
		},
	},
	"memory": {
		mount.V1: {
			{Fn: memLimitForward, InName: "memory.limit_in_bytes", OutName: "memory.max"},
			{Fn: memHighForward, InName: "memory.soft_limit_in_bytes", OutName: "memory.high"},
		},
		mount.V2: {
			{Fn: memLimitReverse, InName: "memory.max", OutName: "memory.limit_in_bytes"},
			{Fn: memHighReverse, InName: "memory.high", OutName: "memory.soft_limit_in_bytes"},
		},
	},
}

// memSentinel is the kernel's "no limit" value for the v1
// memory.limit_in_bytes / memory.soft_limit_in_bytes files, equivalent to
// v2's "max" (spec §4.5).
const memSentinel = "9223372036854771712"

func passthrough(in, _, _ string) (string, bool) { return in, true }

func nameOnly(in, _, _ string) (string, bool) { return in, true }

func intScale(in, inDefault, outDefault string) (string, bool) {
	return scale(in, inDefault, outDefault)
}

func intScaleReverse(in, inDefault, outDefault string) (string, bool) {
	return scale(in, inDefault, outDefault)
}

func scale(in, inDefault, outDefault string) (string, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(in), 10, 64)
	if err != nil {
		return "", false
	}
	inDef, err := strconv.ParseInt(inDefault, 10, 64)
	if err != nil || inDef == 0 {
		return "", false
	}
	outDef, err := strconv.ParseInt(outDefault, 10, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatInt(v*outDef/inDef, 10), true
}

func cpuExclusiveForward(in, _, _ string) (string, bool) {
	switch strings.TrimSpace(in) {
	case "1":
		return "root", true
	case "0":
		return "member", true
	default:
		return "", false
	}
}

func cpuExclusiveReverse(in, _, _ string) (string, bool) {
	switch strings.TrimSpace(in) {
	case "root":
		return "1", true
	case "member":
		return "0", true
	default:
		return "", false
	}
}

func memLimitForward(in, _, _ string) (string, bool) {
	v := strings.TrimSpace(in)
	if v == "-1" || v == memSentinel {
		return "max", true
	}
	return v, true
}

func memLimitReverse(in, _, _ string) (string, bool) {
	if strings.TrimSpace(in) == "max" {
		return memSentinel, true
	}
	return in, true
}

func memHighForward(in, _, _ string) (string, bool) {
	v := strings.TrimSpace(in)
	if v == "-1" || v == memSentinel {
		return "max", true
	}
	return v, true
}

func memHighReverse(in, _, _ string) (string, bool) {
	if strings.TrimSpace(in) == "max" {
		return memSentinel, true
	}
	return in, true
}
