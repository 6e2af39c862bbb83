package daemon

import (
	"encoding/binary"
	"net"
	"os"
	"strings"
	"testing"

	"github.com/libcgroup/libcgroup-sub000/registry"
	"github.com/stretchr/testify/require"
)

func sendControlRequest(t *testing.T, conn net.Conn, pid int32, flags int32) string {
	t.Helper()
	require.NoError(t, binary.Write(conn, binary.LittleEndian, pid))
	require.NoError(t, binary.Write(conn, binary.LittleEndian, flags))

	buf := make([]byte, len(successReply))
	n, _ := conn.Read(buf)
	return string(buf[:n])
}

func TestHandleControlConn_StoresPid(t *testing.T) {
	reg := registry.New()
	client, server := net.Pipe()
	defer client.Close()

	go handleControlConn(server, reg)

	reply := sendControlRequest(t, client, int32(os.Getpid()), int32(registry.UnchangeChildren))
	require.Equal(t, successReply, reply)
	require.True(t, reg.IsMember(os.Getpid()))
	require.True(t, reg.IsChildUnchanged(os.Getpid()))
}

func TestHandleControlConn_CancelRemoves(t *testing.T) {
	reg := registry.New()
	reg.Store(os.Getpid(), 0)

	client, server := net.Pipe()
	defer client.Close()

	go handleControlConn(server, reg)

	reply := sendControlRequest(t, client, int32(os.Getpid()), int32(CancelUnchange))
	require.Equal(t, successReply, reply)
	require.False(t, reg.IsMember(os.Getpid()))
}

func TestHandleControlConn_RejectsUnknownPid(t *testing.T) {
	reg := registry.New()
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		handleControlConn(server, reg)
		close(done)
	}()

	require.NoError(t, binary.Write(client, binary.LittleEndian, int32(999999999)))
	<-done
	require.False(t, reg.IsMember(999999999))
}

func TestControlSocketPath_IsAbsolute(t *testing.T) {
	require.True(t, strings.HasPrefix(ControlSocketPath, "/"))
}
