//go:build linux

package wire

import (
	"errors"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// checkPeerCredentials refuses unix socket clients running as another user.
func checkPeerCredentials(c net.Conn) error {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		return nil
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return err
	}
	if credErr != nil {
		return credErr
	}
	if int(cred.Uid) != os.Getuid() {
		return errors.New("peer uid mismatch")
	}
	return nil
}
