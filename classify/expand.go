// Package classify implements template expansion and pid classification
// against matched rules (spec §4.8).
package classify

import (
	"os/user"
	"strconv"
	"strings"

	"github.com/libcgroup/libcgroup-sub000/path"
)

// IdentityResolver resolves a uid/gid to a display name, falling back to
// the numeric form when resolution fails. Production code wires these to
// os/user; tests substitute fakes.
type IdentityResolver struct {
	UserName  func(uid int) (string, bool)
	GroupName func(gid int) (string, bool)
}

// DefaultResolver resolves names via the standard os/user package.
func DefaultResolver() IdentityResolver {
	return IdentityResolver{
		UserName: func(uid int) (string, bool) {
			u, err := user.LookupId(strconv.Itoa(uid))
			if err != nil {
				return "", false
			}
			return u.Username, true
		},
		GroupName: func(gid int) (string, bool) {
			g, err := user.LookupGroupId(strconv.Itoa(gid))
			if err != nil {
				return "", false
			}
			return g.Name, true
		},
	}
}

// Expand substitutes %U/%u/%G/%g/%P/%p escapes in dest and clamps the
// result to FILENAME_MAX (spec §4.8 step 1). "\x" is a single-character
// literal escape: the backslash and the following byte are replaced by
// just that byte.
func Expand(dest string, uid, gid, pid int, procname string, r IdentityResolver) string {
	var sb strings.Builder
	for i := 0; i < len(dest); i++ {
		c := dest[i]
		switch {
		case c == '\\' && i+1 < len(dest):
			sb.WriteByte(dest[i+1])
			i++
		case c == '%' && i+1 < len(dest):
			i++
			sb.WriteString(expandOne(dest[i], uid, gid, pid, procname, r))
		default:
			sb.WriteByte(c)
		}
	}
	return clamp(sb.String())
}

func expandOne(verb byte, uid, gid, pid int, procname string, r IdentityResolver) string {
	switch verb {
	case 'U':
		return strconv.Itoa(uid)
	case 'u':
		if r.UserName != nil {
			if name, ok := r.UserName(uid); ok {
				return name
			}
		}
		return strconv.Itoa(uid)
	case 'G':
		return strconv.Itoa(gid)
	case 'g':
		if r.GroupName != nil {
			if name, ok := r.GroupName(gid); ok {
				return name
			}
		}
		return strconv.Itoa(gid)
	case 'P':
		return strconv.Itoa(pid)
	case 'p':
		if procname != "" {
			return procname
		}
		return strconv.Itoa(pid)
	case '%':
		return "%"
	default:
		return "%" + string(verb)
	}
}

func clamp(s string) string {
	if len(s) <= path.FilenameMax {
		return s
	}
	return s[:path.FilenameMax]
}

// IsTemplate reports whether dest actually contained a substitution (its
// expansion differs from the literal string), which is the signal the
// classifier uses to decide whether to walk the template database (spec
// §4.8 step 2).
func IsTemplate(dest, expanded string) bool {
	return dest != expanded
}
