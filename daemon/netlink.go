package daemon

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// The proc connector ABI (linux/connector.h, linux/cn_proc.h) has no Go
// binding in golang.org/x/sys/unix beyond the generic netlink framing
// (NlMsghdr, SockaddrNetlink, NETLINK_CONNECTOR); the connector and
// proc_event payloads below are decoded by hand against the kernel
// struct layout as little-endian. The kernel speaks native byte order
// over this socket, so the decode matches only on little-endian hosts;
// big-endian hosts are not handled.
const (
	cnIdxProc = 0x1
	cnValProc = 0x1

	procCNMcastListen = 1

	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventUID  = 0x00000004
	procEventGID  = 0x00000040
	procEventExit = 0x80000000
)

// cnMsg mirrors struct cn_msg minus its trailing flexible data array.
type cnMsg struct {
	IdxIdx uint32
	IdxVal uint32
	Seq    uint32
	Ack    uint32
	Len    uint16
	Flags  uint16
}

// procEventHeader mirrors the fixed prefix of struct proc_event (what,
// cpu, timestamp_ns); the event_data union follows immediately and is
// decoded separately per Kind.
type procEventHeader struct {
	What        uint32
	CPU         uint32
	TimestampNS uint64
}

// NetlinkSource is the production Source: a bound, subscribed
// NETLINK_CONNECTOR socket delivering PROC_EVENT_* messages (spec §4.9:
// "Connectionless datagram channel carrying a framed message").
type NetlinkSource struct {
	fd int
}

// OpenNetlinkSource creates, binds, and subscribes a proc-connector
// socket. Requires CAP_NET_ADMIN.
func OpenNetlinkSource() (*NetlinkSource, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("opening netlink socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: cnIdxProc, Pid: uint32(unix.Getpid())}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding netlink socket: %w", err)
	}

	s := &NetlinkSource{fd: fd}
	if err := s.subscribe(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

func (s *NetlinkSource) subscribe() error {
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, uint32(procCNMcastListen))

	var msgBody bytes.Buffer
	binary.Write(&msgBody, binary.LittleEndian, cnMsg{
		IdxIdx: cnIdxProc,
		IdxVal: cnValProc,
		Len:    uint16(payload.Len()),
	})
	msgBody.Write(payload.Bytes())

	hdr := unix.NlMsghdr{
		Len:  unix.NLMSG_HDRLEN + uint32(msgBody.Len()),
		Type: unix.NLMSG_DONE,
		Pid:  uint32(unix.Getpid()),
	}
	var packet bytes.Buffer
	binary.Write(&packet, binary.LittleEndian, hdr)
	packet.Write(msgBody.Bytes())

	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: 0, Groups: 0}
	if err := unix.Sendto(s.fd, packet.Bytes(), 0, sa); err != nil {
		return fmt.Errorf("subscribing to proc connector: %w", err)
	}
	return nil
}

// Next blocks until the next netlink datagram arrives and decodes it
// into an Event. A datagram may be dropped (NLMSG_NOOP/NLMSG_ERROR or an
// event kind the daemon ignores) in which case Next loops to the next
// packet rather than returning a zero Event.
func (s *NetlinkSource) Next() (Event, error) {
	buf := make([]byte, 1<<16)
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			return Event{}, fmt.Errorf("reading netlink socket: %w", err)
		}
		if n < int(unix.NLMSG_HDRLEN) {
			continue
		}

		var hdr unix.NlMsghdr
		r := bytes.NewReader(buf[:n])
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			continue
		}
		if hdr.Type == unix.NLMSG_NOOP || hdr.Type == unix.NLMSG_ERROR {
			continue
		}

		var msg cnMsg
		if err := binary.Read(r, binary.LittleEndian, &msg); err != nil {
			continue
		}
		ev, ok := decodeProcEvent(r)
		if !ok {
			continue
		}
		return ev, nil
	}
}

// Close releases the underlying socket.
func (s *NetlinkSource) Close() error {
	return unix.Close(s.fd)
}

func decodeProcEvent(r *bytes.Reader) (Event, bool) {
	var eh procEventHeader
	if err := binary.Read(r, binary.LittleEndian, &eh); err != nil {
		return Event{}, false
	}

	switch eh.What {
	case procEventUID:
		var d struct {
			ProcessPID, ProcessTGID uint32
			RUID, RGID              uint32
			EUID, EGID              uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindUID, PID: int(d.ProcessPID), TimestampNS: eh.TimestampNS}, true

	case procEventGID:
		var d struct {
			ProcessPID, ProcessTGID uint32
			RUID, RGID              uint32
			EUID, EGID              uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindGID, PID: int(d.ProcessPID), TimestampNS: eh.TimestampNS}, true

	case procEventFork:
		var d struct {
			ParentPID, ParentTGID uint32
			ChildPID, ChildTGID  uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindFork, ParentPID: int(d.ParentPID), ChildPID: int(d.ChildPID), TimestampNS: eh.TimestampNS}, true

	case procEventExit:
		var d struct {
			ProcessPID, ProcessTGID uint32
			ExitCode, ExitSignal    uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindExit, PID: int(d.ProcessPID), TimestampNS: eh.TimestampNS}, true

	case procEventExec:
		var d struct {
			ProcessPID, ProcessTGID uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindExec, PID: int(d.ProcessPID), TimestampNS: eh.TimestampNS}, true

	default:
		return Event{}, false
	}
}
