package daemon

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"

	"github.com/libcgroup/libcgroup-sub000/registry"
)

// CancelUnchange is the flags value a control-socket client sends to
// remove a pid from the registry rather than insert it (spec §4.9:
// "if flags == CANCEL_UNCHANGE, the pid is removed from the registry").
const CancelUnchange = -1

// successReply is the fixed string the server writes back to a client
// on success (spec §4.9: "Server replies with the fixed string
// SUCCESS_STORE_PID").
const successReply = "SUCCESS_STORE_PID"

// ControlSocketPath is the default path for the local control socket
// (spec §6 "Local control socket"). Owner root:root, mode 0660.
const ControlSocketPath = "/var/run/cgred.socket"

// ServeControl accepts connections on l, applying each (pid, flags) pair
// to reg, until l is closed. One connection is handled at a time,
// matching the daemon's single-threaded event loop (spec §4.9 "the
// daemon runs single-threaded").
func ServeControl(l net.Listener, reg *registry.Registry) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		handleControlConn(conn, reg)
	}
}

func handleControlConn(conn net.Conn, reg *registry.Registry) {
	defer conn.Close()

	var pid, flags int32
	if err := binary.Read(conn, binary.LittleEndian, &pid); err != nil {
		return
	}
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return
	}
	if err := binary.Read(conn, binary.LittleEndian, &flags); err != nil {
		return
	}

	if flags == CancelUnchange {
		reg.Remove(int(pid))
	} else {
		reg.Store(int(pid), registry.Flags(flags))
	}

	conn.Write([]byte(successReply))
}
