package abstraction

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
	"github.com/libcgroup/libcgroup-sub000/mount"
)

const (
	cpuQuotaName  = "cpu.cfs_quota_us"
	cpuPeriodName = "cpu.cfs_period_us"
	cpuMaxName    = "cpu.max"
)

// Controller converts every setting on in (assumed to carry from
// the version matching inVersion) into a new Controller for
// outVersion. If ignoreUnmappable is false, the first unmappable
// setting aborts the whole controller with a cgerrors.UnmappableConversion
// error; if true, unmappable settings are skipped and accumulated into a
// non-fatal log via the returned multierror (nil if everything mapped).
//
// If every setting is unmappable and none succeeds, Controller returns
// (nil, nil): the caller drops the controller from its output (spec §4.5
// "the whole controller is dropped").
func Controller(in *group.Controller, inVersion, outVersion mount.Version, ignoreUnmappable bool) (*group.Controller, error) {
	table := controllerTables[in.Name]
	var rules Table
	if table != nil {
		rules = table[inVersion]
	}

	out := &group.Controller{Name: in.Name, Version: int(outVersion)}
	var errs *multierror.Error
	mapped := 0

	var fused *group.Setting
	if inVersion == mount.V1 {
		fused, _ = convertCPUNto1(in)
	}
	if fused != nil {
		out.Settings = append(out.Settings, fused)
		mapped++
	}

	for _, s := range in.Settings {
		if fused != nil && (s.Name == cpuQuotaName || s.Name == cpuPeriodName) {
			// Already folded into the single cpu.max setting above.
			continue
		}

		if in.Name == "cpu" && s.Name == cpuMaxName && inVersion == mount.V2 {
			halves, err := convertCPUMaxReverse(s)
			if err != nil {
				if !ignoreUnmappable {
					return nil, err
				}
				errs = multierror.Append(errs, err)
				continue
			}
			out.Settings = append(out.Settings, halves...)
			mapped++
			continue
		}

		rule, ok := findRule(rules, s.Name)
		if !ok {
			if !ignoreUnmappable {
				return nil, cgerrors.New(cgerrors.UnmappableConversion, "abstraction.Controller",
					"no conversion rule for "+in.Name+"."+s.Name)
			}
			errs = multierror.Append(errs, cgerrors.New(cgerrors.UnmappableConversion, "abstraction.Controller",
				"no conversion rule for "+in.Name+"."+s.Name))
			continue
		}
		v, ok := rule.Fn(s.Value, rule.InDefault, rule.OutDefault)
		if !ok {
			if !ignoreUnmappable {
				return nil, cgerrors.New(cgerrors.UnmappableConversion, "abstraction.Controller",
					"unconvertible value for "+in.Name+"."+s.Name)
			}
			errs = multierror.Append(errs, cgerrors.New(cgerrors.UnmappableConversion, "abstraction.Controller",
				"unconvertible value for "+in.Name+"."+s.Name))
			continue
		}
		out.Settings = append(out.Settings, &group.Setting{Name: rule.OutName, Value: v, Dirty: true})
		mapped++
	}

	if mapped == 0 && len(in.Settings) > 0 {
		return nil, nil
	}
	return out, errs.ErrorOrNil()
}

func findRule(rules Table, name string) (Rule, bool) {
	for _, r := range rules {
		if r.InName == name {
			return r, true
		}
	}
	return Rule{}, false
}

// convertCPUNto1 reads cpu.cfs_quota_us and cpu.cfs_period_us off in and
// returns the single cpu.max setting that fuses them, grounded on
// cgroup.convert_cpu_nto1 (spec §4.5). It reports false, leaving in
// completely untouched, when one or both siblings are absent; the caller
// then falls through to the ordinary per-setting rule lookup. in itself is
// never mutated, since Controller/Group are called on groups the caller
// still owns.
func convertCPUNto1(in *group.Controller) (*group.Setting, bool) {
	if in.Name != "cpu" {
		return nil, false
	}
	quota := in.GetSetting(cpuQuotaName)
	period := in.GetSetting(cpuPeriodName)
	if quota == nil || period == nil {
		return nil, false
	}

	q := strings.TrimSpace(quota.Value)
	if q == "-1" {
		q = "max"
	}
	return &group.Setting{Name: cpuMaxName, Value: q + " " + strings.TrimSpace(period.Value), Dirty: true}, true
}

// convertCPUMaxReverse splits a v2 cpu.max value ("max 100000" or
// "50000 100000") back into the two v1 settings it replaces. PrevName on
// each half records the source field name so a caller re-fusing for a
// subsequent write can recognize the pair (spec §4.5).
func convertCPUMaxReverse(s *group.Setting) ([]*group.Setting, error) {
	fields := strings.Fields(s.Value)
	if len(fields) != 2 {
		return nil, cgerrors.New(cgerrors.UnmappableConversion, "abstraction.convertCPUMaxReverse",
			"malformed cpu.max value: "+s.Value)
	}
	quota := fields[0]
	if quota == "max" {
		quota = "-1"
	}
	if _, err := strconv.ParseInt(quota, 10, 64); err != nil {
		return nil, cgerrors.Wrap(cgerrors.UnmappableConversion, "abstraction.convertCPUMaxReverse",
			"non-numeric cpu.max quota", err)
	}
	return []*group.Setting{
		{Name: cpuQuotaName, Value: quota, PrevName: cpuMaxName, Dirty: true},
		{Name: cpuPeriodName, Value: fields[1], PrevName: cpuMaxName, Dirty: true},
	}, nil
}

// Group converts every controller on in to outVersion, dropping
// controllers that fully fail to map. It returns a distinguished
// cgerrors.UnmappableConversion-kind error (wrapping the accumulated
// per-controller errors) if at least one controller was dropped or
// partially unmapped, so callers may choose to surface or ignore it
// (spec §4.5). A controller whose Version is mount.Unknown is converted
// as coming from the other version than outVersion.
func Group(in *group.Group, outVersion mount.Version, ignoreUnmappable bool) (*group.Group, error) {
	out := group.New(in.Name)
	var errs *multierror.Error
	var anyDropped bool

	for _, c := range in.Controllers {
		inVersion := mount.Version(c.Version)
		if inVersion == mount.Unknown {
			inVersion = mount.V1
			if outVersion == mount.V1 {
				inVersion = mount.V2
			}
		}
		converted, err := Controller(c, inVersion, outVersion, ignoreUnmappable)
		if err != nil {
			errs = multierror.Append(errs, err)
			if !ignoreUnmappable {
				return nil, err
			}
		}
		if converted == nil {
			anyDropped = true
			continue
		}
		out.Controllers = append(out.Controllers, converted)
	}

	if anyDropped || errs.ErrorOrNil() != nil {
		return out, cgerrors.Wrap(cgerrors.UnmappableConversion, "abstraction.Group",
			"one or more controllers could not be fully converted", errs.ErrorOrNil())
	}
	return out, nil
}
