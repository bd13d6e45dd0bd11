//go:build linux

package ioloop_test

import "golang.org/x/sys/unix"

func pipeFDs() (readFD, writeFD int, err error) {
	fds, err := unix.Pipe2(unix.O_NONBLOCK | unix.O_CLOEXEC)
	if err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}
